package probe

import (
	"context"
	"fmt"
)

// memoryChunk caps a single 32-bit burst's payload at the probe's data
// buffer, leaving room for command framing overhead and rounded down to a
// whole number of words so every burst this package issues is itself
// 4-byte aligned in length.
const memoryChunk = (dataBufSize - 64) &^ 3

// ReadMem reads size bytes from target memory starting at addr. When may32
// allows it, the transfer is decomposed into at most three phases: a single
// 8-bit read of the unaligned head (however many bytes stand between addr
// and the next 4-byte boundary), one or more 32-bit bursts covering the
// aligned middle, and a single 8-bit read of the unaligned tail. A request
// that is already word-aligned on both ends elides the head and tail
// entirely. may32 disables 32-bit decomposition altogether, for callers
// reading peripheral regions that do not tolerate word-sized bus
// transactions; those requests fall back to the same 16/8-bit logic WriteMem
// uses.
func (s *Session) ReadMem(ctx context.Context, addr uint32, size int, may32 bool) ([]byte, error) {
	if !may32 {
		return s.readMemBytewise(ctx, addr, size)
	}

	out := make([]byte, 0, size)

	headLen := int((4 - addr%4) % 4)
	if headLen > size {
		headLen = size
	}
	if headLen > 0 {
		chunk, err := s.readMem8(ctx, addr, headLen)
		if err != nil {
			return nil, err
		}
		if err := s.checkRWStatus(ctx); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}

	mid := addr + uint32(headLen)
	remaining := size - headLen
	tailLen := remaining % 4
	midLen := remaining - tailLen

	for midLen > 0 {
		n := midLen
		if n > memoryChunk {
			n = memoryChunk
		}
		chunk, err := s.readMem32(ctx, mid, n)
		if err != nil {
			return nil, err
		}
		if err := s.checkRWStatus(ctx); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		mid += uint32(n)
		midLen -= n
	}

	if tailLen > 0 {
		chunk, err := s.readMem8(ctx, mid, tailLen)
		if err != nil {
			return nil, err
		}
		if err := s.checkRWStatus(ctx); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}

	return out, nil
}

// readMemBytewise reads size bytes using only 16/8-bit transfers, for
// callers that pass may32=false to ReadMem.
func (s *Session) readMemBytewise(ctx context.Context, addr uint32, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	for len(out) < size {
		remaining := size - len(out)
		cur := addr + uint32(len(out))
		n := remaining
		if n > memoryChunk {
			n = memoryChunk
		}

		var chunk []byte
		var err error
		switch {
		case s.version.HasFeature(FlagHasMem16Bit) && cur%2 == 0 && n >= 2:
			n -= n % 2
			chunk, err = s.readMem16(ctx, cur, n)
		default:
			n = 1
			chunk, err = s.readMem8(ctx, cur, n)
		}
		if err != nil {
			return nil, err
		}
		if err := s.checkRWStatus(ctx); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// WriteMem writes data to target memory starting at addr, using the same
// head/middle/tail decomposition as ReadMem when may32 allows 32-bit
// bursts, and the same 16/8-bit fallback as readMemBytewise otherwise.
func (s *Session) WriteMem(ctx context.Context, addr uint32, data []byte, may32 bool) error {
	if !may32 {
		return s.writeMemBytewise(ctx, addr, data)
	}

	size := len(data)
	headLen := int((4 - addr%4) % 4)
	if headLen > size {
		headLen = size
	}
	if headLen > 0 {
		if err := s.writeMem8(ctx, addr, data[:headLen]); err != nil {
			return err
		}
		if err := s.checkRWStatus(ctx); err != nil {
			return err
		}
	}

	mid := addr + uint32(headLen)
	remaining := size - headLen
	tailLen := remaining % 4
	midLen := remaining - tailLen
	written := headLen

	for midLen > 0 {
		n := midLen
		if n > memoryChunk {
			n = memoryChunk
		}
		if err := s.writeMem32(ctx, mid, data[written:written+n]); err != nil {
			return err
		}
		if err := s.checkRWStatus(ctx); err != nil {
			return err
		}
		mid += uint32(n)
		written += n
		midLen -= n
	}

	if tailLen > 0 {
		if err := s.writeMem8(ctx, mid, data[written:written+tailLen]); err != nil {
			return err
		}
		if err := s.checkRWStatus(ctx); err != nil {
			return err
		}
	}

	return nil
}

// writeMemBytewise writes data using only 16/8-bit transfers, for callers
// that pass may32=false to WriteMem.
func (s *Session) writeMemBytewise(ctx context.Context, addr uint32, data []byte) error {
	written := 0
	for written < len(data) {
		remaining := len(data) - written
		cur := addr + uint32(written)
		n := remaining
		if n > memoryChunk {
			n = memoryChunk
		}

		var err error
		switch {
		case s.version.HasFeature(FlagHasMem16Bit) && cur%2 == 0 && n >= 2:
			n -= n % 2
			err = s.writeMem16(ctx, cur, data[written:written+n])
		default:
			n = 1
			err = s.writeMem8(ctx, cur, data[written:written+n])
		}
		if err != nil {
			return err
		}
		if err := s.checkRWStatus(ctx); err != nil {
			return err
		}
		written += n
	}
	return nil
}

func (s *Session) readMem32(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if addr%4 != 0 || n%4 != 0 {
		return nil, fmt.Errorf("%w: 32-bit read at %#08x length %d", ErrAlignment, addr, n)
	}
	return s.link.command(ctx, n, dirIn, U8(cmdDebugCommand), U8(cmdReadMem32), U32(addr), U16(uint16(n)))
}

func (s *Session) writeMem32(ctx context.Context, addr uint32, data []byte) error {
	if addr%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("%w: 32-bit write at %#08x length %d", ErrAlignment, addr, len(data))
	}
	_, err := s.link.command(ctx, 0, dirOut, append([]Token{U8(cmdDebugCommand), U8(cmdWriteMem32), U32(addr), U16(uint16(len(data)))}, bytesToTokens(data)...)...)
	return err
}

func (s *Session) readMem16(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if addr%2 != 0 || n%2 != 0 {
		return nil, fmt.Errorf("%w: 16-bit read at %#08x length %d", ErrAlignment, addr, n)
	}
	return s.link.command(ctx, n, dirIn, U8(cmdDebugCommand), U8(cmdReadMem16), U32(addr), U16(uint16(n)))
}

func (s *Session) writeMem16(ctx context.Context, addr uint32, data []byte) error {
	if addr%2 != 0 || len(data)%2 != 0 {
		return fmt.Errorf("%w: 16-bit write at %#08x length %d", ErrAlignment, addr, len(data))
	}
	_, err := s.link.command(ctx, 0, dirOut, append([]Token{U8(cmdDebugCommand), U8(cmdWriteMem16), U32(addr), U16(uint16(len(data)))}, bytesToTokens(data)...)...)
	return err
}

func (s *Session) readMem8(ctx context.Context, addr uint32, n int) ([]byte, error) {
	return s.link.command(ctx, n, dirIn, U8(cmdDebugCommand), U8(cmdReadMem8), U32(addr), U16(uint16(n)))
}

func (s *Session) writeMem8(ctx context.Context, addr uint32, data []byte) error {
	_, err := s.link.command(ctx, 0, dirOut, append([]Token{U8(cmdDebugCommand), U8(cmdWriteMem8), U32(addr), U16(uint16(len(data)))}, bytesToTokens(data)...)...)
	return err
}

func bytesToTokens(data []byte) []Token {
	tokens := make([]Token, len(data))
	for i, b := range data {
		tokens[i] = U8(b)
	}
	return tokens
}

// checkRWStatus fetches and enforces the probe's last-read/write status.
// Unlike early SWIM tooling that logged a non-OK status and continued, this
// driver treats any non-OK status as fatal: a silently dropped write leaves
// the caller's model of target memory wrong in a way that is far more
// dangerous than an aborted operation.
func (s *Session) checkRWStatus(ctx context.Context) error {
	cmd := byte(cmdGetLastRWStatus)
	rxLen := 2
	if s.version.HasFeature(FlagHasGetLastRWStatus2) {
		cmd = cmdGetLastRWStatus2
		rxLen = 12
	}
	reply, err := s.link.command(ctx, rxLen, dirIn, U8(cmdDebugCommand), U8(cmd))
	if err != nil {
		return fmt.Errorf("read last r/w status: %w", err)
	}
	if reply[0] != 0 {
		return fmt.Errorf("%w: status byte %#02x", ErrTransport, reply[0])
	}
	return nil
}
