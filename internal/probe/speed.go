package probe

import "context"

// Conservative default interface speeds programmed once a debug session
// connects, before a caller has negotiated anything faster.
const (
	swdDefaultSpeedKHz  = 1800
	jtagDefaultSpeedKHz = 1125
)

// speedEntry pairs a supported interface speed (kHz) with the divider value
// the probe firmware expects on the wire.
type speedEntry struct {
	khz     uint32
	divider uint16
}

// swdSpeedTable enumerates every SWD clock the fixed-table (generation ≤2)
// firmware accepts, fastest first.
var swdSpeedTable = []speedEntry{
	{4000, 0},
	{1800, 1},
	{1200, 2},
	{950, 3},
	{480, 7},
	{240, 15},
	{125, 31},
	{100, 40},
	{50, 79},
	{25, 158},
	{15, 265},
	{5, 798},
}

// jtagSpeedTable enumerates every JTAG clock the fixed-table firmware
// accepts, fastest first.
var jtagSpeedTable = []speedEntry{
	{18000, 2},
	{9000, 4},
	{4500, 8},
	{2250, 16},
	{1125, 32},
	{562, 64},
	{281, 128},
	{140, 256},
}

// closestSpeed walks table (ordered fastest to slowest) and returns the
// entry closest to khz, preferring the next-slower entry once moving past it
// would increase the distance to the request. An empty table yields a
// divider of 1 at 0 kHz, matching the "unset" sentinel used before the
// first successful speed negotiation.
func closestSpeed(khz uint32, table []speedEntry) speedEntry {
	if len(table) == 0 {
		return speedEntry{khz: 0, divider: 1}
	}
	best := table[0]
	bestDelta := absDelta(khz, best.khz)
	for _, e := range table[1:] {
		d := absDelta(khz, e.khz)
		if d > bestDelta {
			break
		}
		best, bestDelta = e, d
	}
	return best
}

func absDelta(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// setSpeed negotiates the interface clock closest to khz (see closestSpeed;
// the chosen clock may be above or below the request) for the probe's
// current debug submode, using the fixed divider table on
// generations 1/2 and the dynamic GET_COM_FREQ/SET_COM_FREQ exchange on
// generation 3.
func (s *Session) setSpeed(ctx context.Context, khz uint32) (uint32, error) {
	if s.version.Gen == Gen3 {
		return s.speedV3(ctx, khz)
	}
	switch s.debugSubMode {
	case DebugSubModeSWD:
		return s.speedSWD(ctx, khz)
	case DebugSubModeJTAG:
		return s.speedJTAG(ctx, khz)
	default:
		return s.speedSWIM(ctx, khz)
	}
}

func (s *Session) speedSWD(ctx context.Context, khz uint32) (uint32, error) {
	if !s.version.HasFeature(FlagHasSWDSetFreq) {
		return 0, ErrUnsupported
	}
	e := closestSpeed(khz, swdSpeedTable)
	_, err := s.link.command(ctx, 2, dirIn, U8(cmdDebugCommand), U8(cmdSWDSetFreq), U16(e.divider))
	return e.khz, err
}

func (s *Session) speedJTAG(ctx context.Context, khz uint32) (uint32, error) {
	if !s.version.HasFeature(FlagHasJTAGSetFreq) {
		return 0, ErrUnsupported
	}
	e := closestSpeed(khz, jtagSpeedTable)
	_, err := s.link.command(ctx, 2, dirIn, U8(cmdDebugCommand), U8(cmdJTAGSetFreq), U16(e.divider))
	return e.khz, err
}

func (s *Session) speedSWIM(ctx context.Context, khz uint32) (uint32, error) {
	_, err := s.link.command(ctx, 0, dirOut, U8(cmdSWIMCommand), U8(cmdSWIMSpeed), U8(byte(khz)))
	return khz, err
}

// speedV3 queries the probe's dynamically reported frequency table via
// GET_COM_FREQ and asks for the closest entry via SET_COM_FREQ.
func (s *Session) speedV3(ctx context.Context, khz uint32) (uint32, error) {
	table, err := s.getComFreq(ctx)
	if err != nil {
		return 0, err
	}
	e := closestSpeed(khz, table)
	mode := byte(0)
	if s.debugSubMode == DebugSubModeJTAG {
		mode = 1
	}
	_, err = s.link.command(ctx, 8, dirIn, U8(cmdDebugCommand), U8(cmdSetComFreq), U8(mode), U8(0), U32(e.khz))
	return e.khz, err
}

// getComFreq reads the probe's dynamic frequency table for the current
// debug submode.
func (s *Session) getComFreq(ctx context.Context) ([]speedEntry, error) {
	mode := byte(0)
	if s.debugSubMode == DebugSubModeJTAG {
		mode = 1
	}
	reply, err := s.link.command(ctx, 52, dirIn, U8(cmdDebugCommand), U8(cmdGetComFreq), U8(mode))
	if err != nil {
		return nil, err
	}
	count := int(reply[8])
	if count > 10 {
		count = 10
	}
	table := make([]speedEntry, 0, count)
	for i := 0; i < count; i++ {
		off := 12 + i*4
		khz := ReadU32(reply[off:off+4], LittleEndian)
		table = append(table, speedEntry{khz: khz, divider: uint16(i)})
	}
	return table, nil
}
