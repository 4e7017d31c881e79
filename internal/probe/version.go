package probe

import (
	"context"
	"fmt"
	"time"
)

// VersionInfo records everything the driver derives from GET_VERSION (and,
// on generation 3 probes that report a zero JTAG/SWIM revision, the extended
// GET_VERSION_EXT query).
type VersionInfo struct {
	Gen       Generation
	JTAG      uint8
	SWIM      uint8
	VID       uint16
	PID       uint16
	APILevel   int
	Features  uint32
}

// HasFeature reports whether the connected probe advertises flag.
func (v VersionInfo) HasFeature(flag uint32) bool {
	return v.Features&flag != 0
}

// queryVersion issues GET_VERSION (retrying up to DefaultRetries times after
// a backoff on generation 1 probes, which occasionally drop the very first
// command sent after enumeration; other generations are not retried) and
// derives the generation, API level and feature set.
func queryVersion(ctx context.Context, l *link) (VersionInfo, error) {
	var reply []byte
	var err error
	for attempt := 0; attempt <= DefaultRetries; attempt++ {
		reply, err = l.command(ctx, 6, dirIn, U8(cmdGetVersion))
		if err == nil || l.gen != Gen1 {
			break
		}
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return VersionInfo{}, ctx.Err()
		}
	}
	if err != nil {
		return VersionInfo{}, fmt.Errorf("query version: %w", err)
	}

	word := ReadU16(reply[0:2], BigEndian)
	vid := ReadU16(reply[2:4], LittleEndian)
	pid := ReadU16(reply[4:6], LittleEndian)

	gen := Generation(field(uint32(word), 12, 4))
	jtag := uint8(field(uint32(word), 6, 6))
	swim := uint8(field(uint32(word), 0, 6))

	if pid == PIDGen21NoMSD || pid == PIDGen21 {
		jtag, swim = reinterpretGen21(jtag, swim)
	}

	info := VersionInfo{Gen: normalizeGen(gen, pid), JTAG: jtag, SWIM: swim, VID: vid, PID: pid}

	if info.Gen == Gen3 && jtag == 0 && swim == 0 {
		ext, err := l.command(ctx, 12, dirIn, U8(cmdGetVersionExt))
		if err != nil {
			return VersionInfo{}, fmt.Errorf("query extended version: %w", err)
		}
		info.SWIM = ext[1]
		info.JTAG = ext[2]
	}

	info.APILevel = apiLevel(info.Gen, info.JTAG)
	info.Features = deriveFeatures(info)
	return info, nil
}

// reinterpretGen21 undoes the GET_VERSION six-bit split for the 2.1-era
// PIDs (0x3752, 0x374B), whose jtag/swim fields alias one another outside
// a narrow band: for x<=22 with y==7, and for x in [25,255] with y in
// [7,12], the device is actually reporting jtag=0, swim=y; everywhere
// else the naive split (jtag=x, swim=0) already holds.
func reinterpretGen21(x, y uint8) (jtag, swim uint8) {
	switch {
	case x <= 22 && y == 7:
		return 0, y
	case x >= 25 && y >= 7 && y <= 12:
		return 0, y
	default:
		return x, 0
	}
}

func normalizeGen(wireGen Generation, pid uint16) Generation {
	switch pid {
	case PIDGen3Loader, PIDGen3E, PIDGen3S, PIDGen32:
		return Gen3
	case PIDGen2, PIDGen21, PIDGen21NoMSD:
		return Gen2
	case PIDGen1:
		return Gen1
	}
	if wireGen >= 3 {
		return Gen3
	}
	if wireGen == 2 {
		return Gen2
	}
	return Gen1
}

// apiLevel derives the command-set API level the probe speaks. Generation 1
// firmware gained the v2 command set partway through its production run;
// the only way to tell the two eras apart is the JTAG firmware revision.
func apiLevel(gen Generation, jtag uint8) int {
	switch gen {
	case Gen3:
		return 3
	case Gen2:
		return 2
	default:
		if jtag > 10 {
			return 2
		}
		return 1
	}
}

// deriveFeatures computes the feature bitmask from the probe's generation
// and JTAG firmware revision. Generation 3 probes imply every flag except
// the fixed-table SET_FREQ commands, which generation 3 firmware replaces
// with the dynamic GET_COM_FREQ/SET_COM_FREQ pair.
func deriveFeatures(v VersionInfo) uint32 {
	if v.Gen == Gen1 {
		return 0
	}
	if v.Gen == Gen3 {
		return FlagHasTrace | FlagHasMem16Bit | FlagHasGetLastRWStatus2
	}

	var f uint32
	if v.JTAG >= jtagThresholdTrace {
		f |= FlagHasTrace
	}
	if v.JTAG >= jtagThresholdGetLastRWStatus2 {
		f |= FlagHasGetLastRWStatus2
	}
	if v.JTAG >= jtagThresholdSWDSetFreq {
		f |= FlagHasSWDSetFreq
	}
	if v.JTAG >= jtagThresholdJTAGSetFreq {
		f |= FlagHasJTAGSetFreq
	}
	if v.JTAG >= jtagThresholdMem16Bit {
		f |= FlagHasMem16Bit
	}
	return f
}
