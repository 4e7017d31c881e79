package probe

import "testing"

func TestLookupChipKnownID(t *testing.T) {
	d := lookupChip(0x419)
	if d.Description != "F46x and F47x device" {
		t.Errorf("got %q, want %q", d.Description, "F46x and F47x device")
	}
	if len(d.SRAM) != 1 || d.SRAM[0].Base != 0x20000000 || d.SRAM[0].Size != 0x40000 {
		t.Errorf("got SRAM %+v, want [{0x20000000 0x40000}]", d.SRAM)
	}
	if d.FlashSizeReg != 0x1FFF7A22 {
		t.Errorf("got flash size reg %#08x, want 0x1FFF7A22", d.FlashSizeReg)
	}
}

func TestLookupChipUnknownIDReturnsSentinel(t *testing.T) {
	d := lookupChip(0x7FF)
	if d.ID != 0 || d.Description != "Unknown device" {
		t.Errorf("got %+v, want the Unknown sentinel row", d)
	}
}

func TestLookupChipDualBankSRAM(t *testing.T) {
	d := lookupChip(0x415)
	if len(d.SRAM) != 2 {
		t.Fatalf("got %d SRAM banks, want 2", len(d.SRAM))
	}
	if d.SRAM[1].Base != 0x10000000 {
		t.Errorf("got second bank base %#08x, want 0x10000000", d.SRAM[1].Base)
	}
}

func TestDeviceIDFromIDCodeMasksTo11Bits(t *testing.T) {
	idcode := uint32(0xFFFF0419) // high bits are revision ID, not part of the device ID field
	if got := deviceIDFromIDCode(idcode); got != 0x419 {
		t.Errorf("got %#03x, want 0x419", got)
	}
}
