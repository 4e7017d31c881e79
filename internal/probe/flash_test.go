package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlashControllerForDispatchesByFamily(t *testing.T) {
	f4 := flashControllerFor(lookupChip(0x419))
	require.Equal(t, uint32(0x40023C00), f4.Base)
	require.Equal(t, uint32(0x40023C10), f4.CR)

	f0 := flashControllerFor(lookupChip(0x410))
	require.Equal(t, uint32(0x40022000), f0.Base)
	require.Equal(t, uint32(0x40022010), f0.CR)

	l4 := flashControllerFor(lookupChip(0x415))
	require.Equal(t, uint32(0x40022000), l4.Base)
	require.Equal(t, uint32(0x40022014), l4.CR)

	wb := flashControllerFor(lookupChip(0x495))
	require.Equal(t, uint32(0x58004000), wb.Base)
	require.Equal(t, uint32(0x58004014), wb.CR)
}

func TestUnlockFlashAlreadyUnlockedIsNoop(t *testing.T) {
	cr := make([]byte, 4)
	WriteU32(cr, 0, LittleEndian) // LOCK bit clear
	status := []byte{0x00, 0x00}
	s, out, _ := newTestSession(VersionInfo{Gen: Gen2}, cr, status)

	err := s.UnlockFlash(context.Background(), lookupChip(0x419))
	require.NoError(t, err)
	require.Len(t, out.writes, 2, "only the initial CR read (plus its status check) should happen")
}

func TestUnlockFlashWritesKeySequenceWhenLocked(t *testing.T) {
	lockedCR := make([]byte, 4)
	WriteU32(lockedCR, flashCRLock, LittleEndian)
	status := []byte{0x00, 0x00}
	unlockedCR := make([]byte, 4)
	WriteU32(unlockedCR, 0, LittleEndian)

	s, _, _ := newTestSession(VersionInfo{Gen: Gen2},
		lockedCR, status, // initial CR read
		status,           // KEY1 write status
		status,           // KEY2 write status
		unlockedCR, status, // CR re-read
	)

	err := s.UnlockFlash(context.Background(), lookupChip(0x419))
	require.NoError(t, err)
}

func TestUnlockFlashStillLockedAfterKeysIsFatal(t *testing.T) {
	lockedCR := make([]byte, 4)
	WriteU32(lockedCR, flashCRLock, LittleEndian)
	status := []byte{0x00, 0x00}

	s, _, _ := newTestSession(VersionInfo{Gen: Gen2},
		lockedCR, status,
		status,
		status,
		lockedCR, status,
	)

	err := s.UnlockFlash(context.Background(), lookupChip(0x419))
	require.ErrorIs(t, err, ErrFlashLocked)
}
