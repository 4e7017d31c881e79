package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryVersionGen2DerivesFeaturesFromJTAGRevision(t *testing.T) {
	// generation=2, jtag=15, swim=0 packed into a big-endian 16-bit word.
	word := (uint16(2) << 12) | (uint16(15) << 6) | 0
	reply := make([]byte, 6)
	WriteU16(reply[0:2], word, BigEndian)
	WriteU16(reply[2:4], VendorID, LittleEndian)
	WriteU16(reply[4:6], PIDGen2, LittleEndian)

	l, _, _ := newFakeLink(Gen2, reply)

	info, err := queryVersion(context.Background(), l)
	require.NoError(t, err)

	assert.Equal(t, Gen2, info.Gen)
	assert.Equal(t, uint8(15), info.JTAG)
	assert.Equal(t, uint8(0), info.SWIM)
	assert.Equal(t, 2, info.APILevel)
	assert.True(t, info.HasFeature(FlagHasTrace))
	assert.True(t, info.HasFeature(FlagHasGetLastRWStatus2))
	assert.False(t, info.HasFeature(FlagHasSWDSetFreq), "JTAG rev 15 is below the SWD_SET_FREQ threshold")
	assert.False(t, info.HasFeature(FlagHasJTAGSetFreq))
}

func TestQueryVersionGen1HasNoFeatureFlags(t *testing.T) {
	word := (uint16(1) << 12) | (uint16(20) << 6) | 0
	reply := make([]byte, 6)
	WriteU16(reply[0:2], word, BigEndian)
	WriteU16(reply[2:4], VendorID, LittleEndian)
	WriteU16(reply[4:6], PIDGen1, LittleEndian)

	l, _, _ := newFakeLink(Gen1, reply, make([]byte, scsiCSWLen))
	// Gen1 replies are followed by a CSW; fake the signature bytes so
	// readCSW's check passes.
	csw := l.in.(*fakeEndpoint)
	copy(csw.replies[1], "USBS")

	info, err := queryVersion(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, Gen1, info.Gen)
	assert.Equal(t, uint32(0), info.Features)
}

func TestQueryVersionGen3ImpliesBroadFeatureSet(t *testing.T) {
	word := (uint16(3) << 12) | (uint16(0) << 6) | 0
	reply := make([]byte, 6)
	WriteU16(reply[0:2], word, BigEndian)
	WriteU16(reply[2:4], VendorID, LittleEndian)
	WriteU16(reply[4:6], PIDGen3E, LittleEndian)

	ext := make([]byte, 12)
	ext[2] = 30
	ext[1] = 0

	l, _, _ := newFakeLink(Gen3, reply, ext)

	info, err := queryVersion(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, Gen3, info.Gen)
	assert.Equal(t, uint8(30), info.JTAG)
	assert.True(t, info.HasFeature(FlagHasMem16Bit))
	assert.True(t, info.HasFeature(FlagHasTrace))
}

func TestQueryVersionGen21ReinterpretsSixBitFields(t *testing.T) {
	// x=18, y=7 falls in the aliased band (x<=22, y==7): the real values
	// are jtag=0, swim=7, not the naive split's jtag=18, swim=0.
	word := (uint16(2) << 12) | (uint16(18) << 6) | 7
	reply := make([]byte, 6)
	WriteU16(reply[0:2], word, BigEndian)
	WriteU16(reply[2:4], VendorID, LittleEndian)
	WriteU16(reply[4:6], PIDGen21, LittleEndian)

	l, _, _ := newFakeLink(Gen2, reply)

	info, err := queryVersion(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), info.JTAG)
	assert.Equal(t, uint8(7), info.SWIM)
}

func TestAPILevelGen1PromotesToV2AboveJTAGRevisionTen(t *testing.T) {
	assert.Equal(t, 1, apiLevel(Gen1, 10))
	assert.Equal(t, 2, apiLevel(Gen1, 11))
}
