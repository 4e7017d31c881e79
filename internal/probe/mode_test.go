package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssertSRSTRefusesOnGen1(t *testing.T) {
	s, _, _ := newTestSession(VersionInfo{Gen: Gen1})
	err := s.assertSRST(context.Background(), DebugSubModeSWD, true)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestAssertSRSTRoutesSWIMThroughSwimAssertReset(t *testing.T) {
	status := []byte{}
	s, out, _ := newTestSession(VersionInfo{Gen: Gen2}, status)

	err := s.assertSRST(context.Background(), DebugSubModeSWIM, true)
	require.NoError(t, err)
	require.Len(t, out.writes, 1)
}

func TestEnterModeSWIMIssuesSWIMEnter(t *testing.T) {
	s, out, _ := newTestSession(VersionInfo{Gen: Gen2})
	err := s.enterMode(context.Background(), DebugSubModeSWIM)
	require.NoError(t, err)
	require.Len(t, out.writes, 1)
	require.Equal(t, byte(cmdSWIMCommand), out.writes[0][0])
	require.Equal(t, byte(cmdSWIMEnter), out.writes[0][1])
}

func TestValidateTargetModeRejectsSWDBelowAPILevel2(t *testing.T) {
	err := validateTargetMode(VersionInfo{APILevel: 1}, DebugSubModeSWD)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestValidateTargetModeRejectsJTAGWithoutRevision(t *testing.T) {
	err := validateTargetMode(VersionInfo{JTAG: 0}, DebugSubModeJTAG)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestValidateTargetModeRejectsSWIMWithoutRevision(t *testing.T) {
	err := validateTargetMode(VersionInfo{SWIM: 0}, DebugSubModeSWIM)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestValidateTargetModeAcceptsSWDAtAPILevel2(t *testing.T) {
	err := validateTargetMode(VersionInfo{APILevel: 2}, DebugSubModeSWD)
	require.NoError(t, err)
}

func TestTargetVoltageComputesFromMulDiv(t *testing.T) {
	reply := make([]byte, 8)
	WriteU32(reply[0:4], 2, LittleEndian) // divisor
	WriteU32(reply[4:8], 1, LittleEndian) // multiplier
	s, _, _ := newTestSession(VersionInfo{Gen: Gen2}, reply)

	v, err := s.targetVoltage(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 1.2, v, 0.01)
}

func TestTargetVoltageRejectsZeroDivisor(t *testing.T) {
	reply := make([]byte, 8)
	s, _, _ := newTestSession(VersionInfo{Gen: Gen2}, reply)

	_, err := s.targetVoltage(context.Background())
	require.ErrorIs(t, err, ErrTransport)
}

func TestResetSysUsesV1SubCommandAtAPILevel1(t *testing.T) {
	status := []byte{0x00, 0x00}
	s, out, _ := newTestSession(VersionInfo{Gen: Gen1, APILevel: 1}, status)

	err := s.ResetSys(context.Background())
	require.NoError(t, err)
	require.Equal(t, byte(cmdV1ResetSys), out.writes[0][1])
}

func TestResetSysUsesV2SubCommandAboveAPILevel1(t *testing.T) {
	status := []byte{0x00, 0x00}
	s, out, _ := newTestSession(VersionInfo{Gen: Gen2, APILevel: 2}, status)

	err := s.ResetSys(context.Background())
	require.NoError(t, err)
	require.Equal(t, byte(cmdV2ResetSys), out.writes[0][1])
}
