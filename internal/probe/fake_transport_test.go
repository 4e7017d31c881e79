package probe

import (
	"context"
	"errors"
)

// fakeEndpoint is a scriptable stand-in for a gousb endpoint: each call to
// ReadContext pops the next queued reply, each call to WriteContext just
// records what was sent.
type fakeEndpoint struct {
	writes  [][]byte
	replies [][]byte
	reads   int
	failN   int // if > 0, the failN'th write fails instead of succeeding
	writeN  int
}

func (f *fakeEndpoint) WriteContext(ctx context.Context, b []byte) (int, error) {
	f.writeN++
	if f.failN != 0 && f.writeN == f.failN {
		return 0, errors.New("simulated write failure")
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	f.writes = append(f.writes, cp)
	return len(b), nil
}

func (f *fakeEndpoint) ReadContext(ctx context.Context, b []byte) (int, error) {
	if f.reads >= len(f.replies) {
		return 0, errors.New("no more queued replies")
	}
	reply := f.replies[f.reads]
	f.reads++
	n := copy(b, reply)
	return n, nil
}

func newFakeLink(gen Generation, replies ...[]byte) (*link, *fakeEndpoint, *fakeEndpoint) {
	out := &fakeEndpoint{}
	in := &fakeEndpoint{replies: replies}
	return newLink(gen, out, in, maxPacketV1V2), out, in
}
