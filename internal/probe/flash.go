package probe

import (
	"context"
	"fmt"
)

// flashRegisters are the unlock-sequence register offsets from a chip
// family's flash controller base.
type flashRegisters struct {
	Base uint32
	KEYR uint32
	SR   uint32
	CR   uint32
}

// flashControllerFor returns the flash controller register block for a
// chip's family. The controller base address and the KEYR/SR/CR offsets
// from it both vary by family:
//
//   - F2/F4/F7 (FlashTypeF4) sit at 0x40023C00 (KEYR+0x04, SR+0x0C, CR+0x10).
//   - F0/F1/F3/F1XL/L0 share the same KEYR/SR/CR offsets as F4 but at the
//     0x40022000 base.
//   - L4/G0 sit at 0x40022000 with a shifted offset scheme (KEYR+0x08,
//     SR+0x10, CR+0x14); WB uses that same shifted scheme at 0x58004000.
//   - L0/L1 report FlashTypeL0 here for table-lookup purposes but their
//     real hardware unlocks program/erase through a separate PECR register
//     and a different key pair; this driver's two-key sequence does not
//     reproduce that, so UnlockFlash on an L0/L1 part will read back as
//     still locked rather than silently doing the wrong thing.
func flashControllerFor(c ChipDescriptor) flashRegisters {
	switch c.Flash {
	case FlashTypeL4, FlashTypeG0:
		return flashRegsAt(0x40022000, 0x08, 0x10, 0x14)
	case FlashTypeWB:
		return flashRegsAt(0x58004000, 0x08, 0x10, 0x14)
	case FlashTypeF0, FlashTypeF1XL, FlashTypeL0:
		return flashRegsAt(0x40022000, 0x04, 0x0C, 0x10)
	default: // FlashTypeF4 and anything unrecognized
		return flashRegsAt(0x40023C00, 0x04, 0x0C, 0x10)
	}
}

func flashRegsAt(base uint32, keyrOff, srOff, crOff uint32) flashRegisters {
	return flashRegisters{Base: base, KEYR: base + keyrOff, SR: base + srOff, CR: base + crOff}
}

const (
	flashKey1 = 0x45670123
	flashKey2 = 0xCDEF89AB
	flashCRLock = 1 << 31
)

// UnlockFlash writes the standard two-key unlock sequence to the chip's
// flash controller and verifies FLASH_CR.LOCK cleared. Unlocking an
// already-unlocked controller is a no-op on real hardware, so callers may
// call this unconditionally before an erase/program sequence.
func (s *Session) UnlockFlash(ctx context.Context, chip ChipDescriptor) error {
	regs := flashControllerFor(chip)

	cr, err := s.readMem32Word(ctx, regs.CR)
	if err != nil {
		return fmt.Errorf("read flash CR: %w", err)
	}
	if cr&flashCRLock == 0 {
		return nil
	}

	if err := s.writeMem32Word(ctx, regs.KEYR, flashKey1); err != nil {
		return fmt.Errorf("write flash key 1: %w", err)
	}
	if err := s.writeMem32Word(ctx, regs.KEYR, flashKey2); err != nil {
		return fmt.Errorf("write flash key 2: %w", err)
	}

	cr, err = s.readMem32Word(ctx, regs.CR)
	if err != nil {
		return fmt.Errorf("read flash CR after unlock: %w", err)
	}
	if cr&flashCRLock != 0 {
		return ErrFlashLocked
	}
	return nil
}

func (s *Session) writeMem32Word(ctx context.Context, addr, value uint32) error {
	var buf [4]byte
	WriteU32(buf[:], value, LittleEndian)
	return s.WriteMem(ctx, addr, buf[:], true)
}
