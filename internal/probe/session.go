package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"stlink/internal/logging"
)

// Stats accumulates per-session counters behind a mutex. The driver never
// hands out Stats itself; callers read a point-in-time StatsSnapshot via
// Session.Stats instead, so a caller holding a snapshot can never see a
// struct whose mutex is mid-copy.
type Stats struct {
	mu             sync.Mutex
	commandsSent   uint64
	bytesOut       uint64
	bytesIn        uint64
	transportErrors uint64
	retries        uint64
}

// StatsSnapshot is an immutable copy of Stats taken at one instant.
type StatsSnapshot struct {
	CommandsSent    uint64
	BytesOut        uint64
	BytesIn         uint64
	TransportErrors uint64
	Retries         uint64
}

func (s *Stats) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		CommandsSent:    s.commandsSent,
		BytesOut:        s.bytesOut,
		BytesIn:         s.bytesIn,
		TransportErrors: s.transportErrors,
		Retries:         s.retries,
	}
}

func (s *Stats) recordCommand(out, in int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandsSent++
	s.bytesOut += uint64(out)
	s.bytesIn += uint64(in)
}

func (s *Stats) recordTransportError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transportErrors++
}

func (s *Stats) recordRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
}

// Options configures Open.
type Options struct {
	VID              gousb.ID
	PID              gousb.ID
	Timeout          time.Duration
	Retries          int
	Mode             DebugSubMode
	ConnectUnderReset bool
}

// DefaultOptions returns the conservative defaults used when a caller
// supplies a zero-value Options.
func DefaultOptions() Options {
	return Options{
		Timeout: DefaultTimeout,
		Retries: DefaultRetries,
		Mode:    DebugSubModeSWD,
	}
}

// Session owns one open connection to a debug probe: its USB handles, the
// framing-aware link built on top of them, and everything the driver has
// learned about the attached probe and target since Open.
type Session struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface
	out   *gousb.OutEndpoint
	in    *gousb.InEndpoint

	link *link

	opts         Options
	version      VersionInfo
	debugSubMode DebugSubMode

	stats Stats
}

// Open claims the USB interface matching opts.VID/opts.PID, negotiates the
// probe's protocol version, and drives it into the requested debug submode.
// On any failure after the device is opened, Open releases everything it
// claimed before returning the error.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.VID == 0 {
		opts.VID = gousb.ID(VendorID)
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Mode == DebugSubModeNone {
		opts.Mode = DebugSubModeSWD
	}

	usbCtx := gousb.NewContext()

	pids := []gousb.ID{opts.PID}
	if opts.PID == 0 {
		pids = []gousb.ID{PIDGen1, PIDGen2, PIDGen21, PIDGen21NoMSD, PIDGen3Loader, PIDGen3E, PIDGen3S, PIDGen32}
	}
	var dev *gousb.Device
	var err error
	for _, pid := range pids {
		dev, err = usbCtx.OpenDeviceWithVIDPID(opts.VID, pid)
		if err != nil || dev != nil {
			opts.PID = pid
			break
		}
	}
	if err != nil {
		usbCtx.Close()
		return nil, fmt.Errorf("%w: open device: %v", ErrTransport, err)
	}
	if dev == nil {
		usbCtx.Close()
		return nil, fmt.Errorf("%w: no probe matching vid=%#04x pid=%#04x", ErrTransport, opts.VID, opts.PID)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("%w: set auto detach: %v", ErrTransport, err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("%w: claim config: %v", ErrTransport, err)
	}

	iface, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("%w: claim interface: %v", ErrTransport, err)
	}

	outAddr, inAddr := endpointsFor(opts.PID)

	outEP, err := iface.OutEndpoint(outAddr)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("%w: open out endpoint: %v", ErrTransport, err)
	}
	inEP, err := iface.InEndpoint(inAddr)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("%w: open in endpoint: %v", ErrTransport, err)
	}

	outEP.Timeout = opts.Timeout
	inEP.Timeout = opts.Timeout

	s := &Session{
		ctx:   usbCtx,
		dev:   dev,
		cfg:   cfg,
		iface: iface,
		out:   outEP,
		in:    inEP,
		opts:  opts,
	}

	gen := genFromPID(opts.PID)
	s.link = newLink(gen, &statsOut{ep: outEP, stats: &s.stats}, &statsIn{ep: inEP, stats: &s.stats}, maxPacketFor(gen))

	qctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	version, err := queryVersion(qctx, s.link)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.version = version
	if version.VID != uint16(opts.VID) || version.PID != uint16(opts.PID) {
		logging.Warnf("probe: GET_VERSION reports %#04x:%#04x, enumerated as %#04x:%#04x", version.VID, version.PID, uint16(opts.VID), uint16(opts.PID))
	}
	logging.Infof("probe: generation %d firmware, jtag rev %d, swim rev %d", version.Gen, version.JTAG, version.SWIM)

	if err := s.initMode(qctx, opts.Mode, opts.ConnectUnderReset); err != nil {
		s.Close()
		return nil, err
	}
	logging.Infof("probe: debug session established in mode %v", opts.Mode)

	return s, nil
}

// Close releases the claimed interface, configuration and device handle in
// reverse acquisition order. It is safe to call more than once.
func (s *Session) Close() error {
	logging.Debugf("probe: closing session, %d commands sent", s.stats.snapshot().CommandsSent)
	var firstErr error
	if s.iface != nil {
		s.iface.Close()
		s.iface = nil
	}
	if s.cfg != nil {
		if err := s.cfg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.cfg = nil
	}
	if s.dev != nil {
		if err := s.dev.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.dev = nil
	}
	if s.ctx != nil {
		s.ctx.Close()
		s.ctx = nil
	}
	return firstErr
}

// Version returns the probe's negotiated protocol and firmware information.
func (s *Session) Version() VersionInfo { return s.version }

// Stats returns a point-in-time snapshot of this session's transport
// counters.
func (s *Session) Stats() StatsSnapshot { return s.stats.snapshot() }

func endpointsFor(pid gousb.ID) (out, in int) {
	switch uint16(pid) {
	case PIDGen21, PIDGen21NoMSD:
		return epGen21Out, epGen21In
	case PIDGen3Loader, PIDGen3E, PIDGen3S, PIDGen32:
		return epGen3Out, epGen3In
	default:
		return epGen2Out, epGen2In
	}
}

func genFromPID(pid gousb.ID) Generation {
	switch uint16(pid) {
	case PIDGen1:
		return Gen1
	case PIDGen3Loader, PIDGen3E, PIDGen3S, PIDGen32:
		return Gen3
	default:
		return Gen2
	}
}

func maxPacketFor(gen Generation) int {
	if gen == Gen3 {
		return maxPacketV3
	}
	return maxPacketV1V2
}

// statsOut/statsIn wrap the real endpoints so every command contributes to
// the session's transport counters without the link needing to know stats
// exist.
type statsOut struct {
	ep    *gousb.OutEndpoint
	stats *Stats
}

// WriteContext satisfies bulkOut. gousb endpoints carry their own Timeout
// field (set from Options.Timeout in Open) rather than taking a context, so
// ctx is only honored up to that fixed deadline.
func (w *statsOut) WriteContext(ctx context.Context, b []byte) (int, error) {
	n, err := w.ep.Write(b)
	if err != nil {
		w.stats.recordTransportError()
	}
	w.stats.recordCommand(n, 0)
	return n, err
}

type statsIn struct {
	ep    *gousb.InEndpoint
	stats *Stats
}

// ReadContext satisfies bulkIn; see the note on statsOut.WriteContext.
func (r *statsIn) ReadContext(ctx context.Context, b []byte) (int, error) {
	n, err := r.ep.Read(b)
	if err != nil {
		r.stats.recordTransportError()
	}
	r.stats.mu.Lock()
	r.stats.bytesIn += uint64(n)
	r.stats.mu.Unlock()
	return n, err
}
