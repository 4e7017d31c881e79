package probe

import (
	"debug/elf"
	"fmt"
)

// SectionInfo is one loadable section pulled out of a firmware image, ready
// to hand to WriteMem at its link-time address.
type SectionInfo struct {
	Name    string
	Address uint32
	Data    []byte
}

// loadableSections names the sections a flashing workflow cares about;
// anything else (debug info, symbol tables, build notes) is ignored.
var loadableSections = map[string]bool{
	".vector_table": true,
	".text":         true,
	".rodata":       true,
	".data":         true,
}

// ElfFile is a narrow read of a Cortex-M firmware ELF: just the sections a
// flashing or memory-comparison workflow needs, as raw bytes at their
// link-time load address.
type ElfFile struct {
	Sections []SectionInfo
	BSS      []SectionInfo
	EntryPoint uint32
}

// LoadELF parses raw into the sections this driver knows how to flash.
// .bss is reported separately in BSS, with a zero-filled Data of the
// section's size, since it carries no file content to write.
func LoadELF(raw []byte) (*ElfFile, error) {
	f, err := elf.NewFile(newReaderAt(raw))
	if err != nil {
		return nil, fmt.Errorf("parse ELF: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_ARM {
		return nil, fmt.Errorf("%w: ELF machine %v is not ARM", ErrUnsupported, f.Machine)
	}

	out := &ElfFile{EntryPoint: uint32(f.Entry)}
	for _, sec := range f.Sections {
		if sec.Addr == 0 || sec.Size == 0 {
			continue
		}
		switch {
		case loadableSections[sec.Name]:
			data, err := sec.Data()
			if err != nil {
				return nil, fmt.Errorf("read section %s: %w", sec.Name, err)
			}
			out.Sections = append(out.Sections, SectionInfo{
				Name:    sec.Name,
				Address: uint32(sec.Addr),
				Data:    data,
			})
		case sec.Name == ".bss":
			out.BSS = append(out.BSS, SectionInfo{
				Name:    sec.Name,
				Address: uint32(sec.Addr),
				Data:    make([]byte, sec.Size),
			})
		}
	}
	return out, nil
}

// readerAt adapts an in-memory byte slice to io.ReaderAt, the interface
// debug/elf requires for parsing.
type readerAt struct {
	data []byte
}

func newReaderAt(data []byte) *readerAt { return &readerAt{data: data} }

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.data)) {
		return 0, fmt.Errorf("offset %d out of range", off)
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("short read at offset %d", off)
	}
	return n, nil
}
