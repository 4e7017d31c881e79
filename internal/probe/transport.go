package probe

import (
	"context"
	"fmt"

	"stlink/internal/logging"
)

// Generation distinguishes the three wire-framing eras the probe line has
// shipped: generation 1 wraps every command in a SCSI CBW/CSW pair,
// generations 2 and 3 send the command bytes bare.
type Generation int

const (
	Gen1 Generation = iota + 1
	Gen2
	Gen3
)

// direction indicates which way the data stage of a command moves, mirroring
// the bmCBWFlags direction bit of the generation 1 framing.
type direction int

const (
	dirNone direction = iota
	dirIn
	dirOut
)

// Token is a small tagged union used to build a command buffer from a
// mixture of byte, halfword and word fields without manual offset tracking.
type Token struct {
	width int
	u32   uint32
}

// U8 packs an 8-bit command token.
func U8(v byte) Token { return Token{width: 1, u32: uint32(v)} }

// U16 packs a little-endian 16-bit command token.
func U16(v uint16) Token { return Token{width: 2, u32: uint32(v)} }

// U32 packs a little-endian 32-bit command token.
func U32(v uint32) Token { return Token{width: 4, u32: v} }

func (t Token) encode(buf []byte) []byte {
	switch t.width {
	case 1:
		return append(buf, byte(t.u32))
	case 2:
		var tmp [2]byte
		WriteU16(tmp[:], uint16(t.u32), LittleEndian)
		return append(buf, tmp[:]...)
	default:
		var tmp [4]byte
		WriteU32(tmp[:], t.u32, LittleEndian)
		return append(buf, tmp[:]...)
	}
}

// bulkOut is satisfied by *gousb.OutEndpoint and by test fakes.
type bulkOut interface {
	WriteContext(ctx context.Context, b []byte) (int, error)
}

// bulkIn is satisfied by *gousb.InEndpoint and by test fakes.
type bulkIn interface {
	ReadContext(ctx context.Context, b []byte) (int, error)
}

// link is the framing-aware transport shared by every probe session. It
// knows how to turn a sequence of Tokens into bytes on the wire for the
// probe's current generation and how to strip the SCSI envelope back off
// a generation 1 reply.
type link struct {
	gen       Generation
	out       bulkOut
	in        bulkIn
	maxPacket int
	tag       uint32
}

func newLink(gen Generation, out bulkOut, in bulkIn, maxPacket int) *link {
	return &link{gen: gen, out: out, in: in, maxPacket: maxPacket, tag: 1}
}

func (l *link) nextTag() uint32 {
	t := l.tag
	l.tag++ // wraps at 2^32; the probe only needs CBW tags to differ request to request
	return t
}

// buildCommand renders tokens into the on-wire command buffer, prefixed with
// a generation 1 SCSI CBW when required.
func (l *link) buildCommand(expectedRx int, dir direction, tokens ...Token) []byte {
	var body []byte
	for _, t := range tokens {
		body = t.encode(body)
	}

	if l.gen != Gen1 {
		return body
	}

	cbw := make([]byte, 0, scsiCBWLen+len(body))
	cbw = append(cbw, []byte(scsiCBWMagic)...)
	var tagBuf [4]byte
	WriteU32(tagBuf[:], l.nextTag(), LittleEndian)
	cbw = append(cbw, tagBuf[:]...)

	var lenBuf [4]byte
	dataLen := uint32(expectedRx)
	if dir == dirOut {
		dataLen = 0
	}
	WriteU32(lenBuf[:], dataLen, LittleEndian)
	cbw = append(cbw, lenBuf[:]...)

	flags := byte(0x00)
	if dir == dirIn {
		flags = 0x80
	}
	cbw = append(cbw, flags, 0x00, scsiCBLength)
	cbw = append(cbw, body...)
	return cbw
}

// send writes a fully framed command buffer to the out endpoint.
func (l *link) send(ctx context.Context, buf []byte) error {
	logging.Tracef("probe: -> % x", buf)
	if _, err := l.out.WriteContext(ctx, buf); err != nil {
		logging.Errorf("probe: command write failed: %v", err)
		return fmt.Errorf("%w: write command: %v", ErrTransport, err)
	}
	return nil
}

// recv reads exactly len(buf) bytes of reply data, then (generation 1 only)
// drains and validates the 13-byte CSW that follows.
func (l *link) recv(ctx context.Context, buf []byte) error {
	if len(buf) > 0 {
		n, err := l.in.ReadContext(ctx, buf)
		if err != nil {
			return fmt.Errorf("%w: read reply: %v", ErrTransport, err)
		}
		if n != len(buf) {
			return fmt.Errorf("%w: short read: got %d want %d", ErrTransport, n, len(buf))
		}
	}
	if l.gen != Gen1 {
		return nil
	}
	return l.readCSW(ctx)
}

func (l *link) readCSW(ctx context.Context) error {
	csw := make([]byte, scsiCSWLen)
	n, err := l.in.ReadContext(ctx, csw)
	if err != nil {
		return fmt.Errorf("%w: read CSW: %v", ErrTransport, err)
	}
	if n != scsiCSWLen {
		return fmt.Errorf("%w: short CSW: got %d bytes", ErrTransport, n)
	}
	if string(csw[0:4]) != scsiCBWMagic[:3]+"S" {
		return fmt.Errorf("%w: bad CSW signature", ErrProtocolMismatch)
	}
	if csw[12] != 0 {
		return fmt.Errorf("%w: CSW status %d", ErrTransport, csw[12])
	}
	return nil
}

// command sends tokens and reads back an expectedRx-byte reply, applying the
// generation-specific framing and status handling. The probe's bulk-in pipe
// never actually returns a single byte: a 1-byte logical reply is always
// physically a 2-byte transfer, so that case is read as 2 bytes and
// truncated back to the caller's expectation.
func (l *link) command(ctx context.Context, expectedRx int, dir direction, tokens ...Token) ([]byte, error) {
	physicalRx := expectedRx
	if physicalRx == 1 {
		physicalRx = 2
	}

	buf := l.buildCommand(physicalRx, dir, tokens...)
	if err := l.send(ctx, buf); err != nil {
		return nil, err
	}
	reply := make([]byte, physicalRx)
	if err := l.recv(ctx, reply); err != nil {
		return nil, err
	}
	return reply[:expectedRx], nil
}
