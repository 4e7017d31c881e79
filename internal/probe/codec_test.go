package probe

import "testing"

func TestReadWriteU16RoundTrip(t *testing.T) {
	for _, e := range []Endian{LittleEndian, BigEndian} {
		buf := WriteU16(make([]byte, 2), 0xBEEF, e)
		got := ReadU16(buf, e)
		if got != 0xBEEF {
			t.Errorf("endian %v: got %#04x, want 0xBEEF", e, got)
		}
	}
}

func TestReadWriteU32RoundTrip(t *testing.T) {
	for _, e := range []Endian{LittleEndian, BigEndian} {
		buf := WriteU32(make([]byte, 4), 0xDEADBEEF, e)
		got := ReadU32(buf, e)
		if got != 0xDEADBEEF {
			t.Errorf("endian %v: got %#08x, want 0xDEADBEEF", e, got)
		}
	}
}

func TestReadU16LittleEndianByteOrder(t *testing.T) {
	buf := []byte{0x01, 0x02}
	if got := ReadU16(buf, LittleEndian); got != 0x0201 {
		t.Errorf("got %#04x, want 0x0201", got)
	}
	if got := ReadU16(buf, BigEndian); got != 0x0102 {
		t.Errorf("got %#04x, want 0x0102", got)
	}
}

func TestFieldExtraction(t *testing.T) {
	word := uint32(0b1101_0110)
	if got := field(word, 0, 3); got != 0b110 {
		t.Errorf("got %#b, want 0b110", got)
	}
	if got := field(word, 4, 4); got != 0b1101 {
		t.Errorf("got %#b, want 0b1101", got)
	}
}
