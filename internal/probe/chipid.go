package probe

import (
	"context"
	"fmt"
)

// FlashMemoryBase is the fixed flash origin every STM32 family maps its
// code flash at.
const FlashMemoryBase = 0x08000000

// ChipInfo is the fully resolved identity of the attached target: the
// decoded chip row plus the flash size actually programmed into this part
// (the table only gives the register address to read it from, since flash
// capacity varies within a family).
type ChipInfo struct {
	ChipDescriptor
	FlashSizeKiB uint16
}

// IdentifyChip reads DBGMCU_IDCODE, looks up the device ID in the chip
// table, and reads the part's actual flash capacity out of its
// flash-size register.
func (s *Session) IdentifyChip(ctx context.Context) (ChipInfo, error) {
	idcode, err := s.readMem32Word(ctx, DBGMCUIDCode)
	if err != nil {
		return ChipInfo{}, fmt.Errorf("read DBGMCU_IDCODE: %w", err)
	}

	devID := deviceIDFromIDCode(idcode)
	desc := lookupChip(devID)
	if desc.ID == 0 && devID != 0 {
		return ChipInfo{}, fmt.Errorf("%w: device id %#03x", ErrUnknownChip, devID)
	}

	sizeBytes, err := s.ReadMem(ctx, desc.FlashSizeReg, 2, false)
	if err != nil {
		return ChipInfo{}, fmt.Errorf("read flash size register: %w", err)
	}

	return ChipInfo{
		ChipDescriptor: desc,
		FlashSizeKiB:   ReadU16(sizeBytes, LittleEndian),
	}, nil
}

// readMem32Word is a convenience wrapper around ReadMem for single-word,
// word-aligned reads such as identification registers.
func (s *Session) readMem32Word(ctx context.Context, addr uint32) (uint32, error) {
	buf, err := s.ReadMem(ctx, addr, 4, true)
	if err != nil {
		return 0, err
	}
	return ReadU32(buf, LittleEndian), nil
}
