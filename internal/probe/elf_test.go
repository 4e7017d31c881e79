package probe

import "testing"

func TestReaderAtShortReadPastEnd(t *testing.T) {
	r := newReaderAt([]byte{1, 2, 3})
	buf := make([]byte, 4)
	n, err := r.ReadAt(buf, 0)
	if err == nil {
		t.Fatal("expected a short-read error when the buffer exceeds the data")
	}
	if n != 3 {
		t.Errorf("got n=%d, want 3 (bytes actually available)", n)
	}
}

func TestReaderAtOffsetOutOfRange(t *testing.T) {
	r := newReaderAt([]byte{1, 2, 3})
	_, err := r.ReadAt(make([]byte, 1), 10)
	if err == nil {
		t.Fatal("expected an error reading past the end of the data")
	}
}

func TestLoadELFRejectsGarbage(t *testing.T) {
	if _, err := LoadELF([]byte("not an elf file")); err == nil {
		t.Fatal("expected an error parsing non-ELF data")
	}
}

func TestLoadableSectionsNamesVectorTableAndCode(t *testing.T) {
	for _, name := range []string{".vector_table", ".text", ".rodata", ".data"} {
		if !loadableSections[name] {
			t.Errorf("expected %s to be a loadable section", name)
		}
	}
	if loadableSections[".debug_info"] {
		t.Error("debug sections should not be treated as loadable")
	}
}
