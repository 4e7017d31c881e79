package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestSession builds a Session around a fake link, skipping USB
// enumeration entirely, for exercising the command-building logic in
// isolation.
func newTestSession(version VersionInfo, replies ...[]byte) (*Session, *fakeEndpoint, *fakeEndpoint) {
	l, out, in := newFakeLink(Gen2, replies...)
	return &Session{link: l, version: version, debugSubMode: DebugSubModeSWD}, out, in
}

func TestReadMemAlignedUsesMem32Burst(t *testing.T) {
	version := VersionInfo{Gen: Gen2, Features: FlagHasMem16Bit}
	data := []byte{1, 2, 3, 4}
	status := []byte{0x00, 0x00}
	s, out, _ := newTestSession(version, data, status)

	got, err := s.ReadMem(context.Background(), 0x20000000, 4, true)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Len(t, out.writes, 2, "one 32-bit read command plus one status check")
}

func TestReadMemUnalignedHeadThenWordBurstThenNoTail(t *testing.T) {
	version := VersionInfo{Gen: Gen2}
	// address 0x08000001 leaves 3 bytes before the next word boundary: one
	// 8-bit head read of those 3 bytes, one 32-bit burst of the remaining
	// 4-byte-aligned 4 bytes, and an elided zero-length tail.
	head := []byte{0xA1, 0xA2, 0xA3}
	mid := []byte{0xA4, 0xA5, 0xA6, 0xA7}
	status := []byte{0x00, 0x00}
	s, out, _ := newTestSession(version, head, status, mid, status)

	got, err := s.ReadMem(context.Background(), 0x08000001, 7, true)
	require.NoError(t, err)
	require.Equal(t, []byte{0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6, 0xA7}, got)
	require.Len(t, out.writes, 4, "one 8-bit head read, one 32-bit burst, two status checks")
}

func TestReadMemUnalignedHeadAndTailBothSingleByte(t *testing.T) {
	version := VersionInfo{Gen: Gen2}
	// address 0x20000003 with size 2 has a 1-byte head (up to the next
	// word boundary), no aligned middle, and a 1-byte tail. A single
	// logical byte is always a 2-byte physical bulk read, so each queued
	// reply carries a second, discarded byte.
	head := []byte{0xAA, 0x00}
	tail := []byte{0xBB, 0x00}
	status := []byte{0x00, 0x00}
	s, _, _ := newTestSession(version, head, status, tail, status)

	got, err := s.ReadMem(context.Background(), 0x20000003, 2, true)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB}, got)
}

func TestReadMemMay32FalseNeverBurstsWords(t *testing.T) {
	version := VersionInfo{Gen: Gen2, Features: FlagHasMem16Bit}
	chunk := []byte{0x11, 0x22}
	status := []byte{0x00, 0x00}
	s, _, _ := newTestSession(version, chunk, status)

	got, err := s.ReadMem(context.Background(), 0x40001000, 2, false)
	require.NoError(t, err)
	require.Equal(t, chunk, got)
}

func TestCheckRWStatusNonZeroIsFatal(t *testing.T) {
	version := VersionInfo{Gen: Gen2}
	failStatus := []byte{0x01, 0x00}
	s, _, _ := newTestSession(version, failStatus)

	err := s.checkRWStatus(context.Background())
	require.Error(t, err)
}

func TestWriteMem32RejectsMisalignedAddress(t *testing.T) {
	s, _, _ := newTestSession(VersionInfo{Gen: Gen2})
	err := s.writeMem32(context.Background(), 0x20000001, []byte{1, 2, 3, 4})
	require.ErrorIs(t, err, ErrAlignment)
}
