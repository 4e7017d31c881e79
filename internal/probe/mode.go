package probe

import (
	"context"
	"errors"
	"fmt"

	"stlink/internal/logging"
)

// Mode is the probe's top-level operating mode, mirroring GET_CURRENT_MODE.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeDFU
	ModeMassStorage
	ModeDebug
	ModeSWIM
)

// DebugSubMode distinguishes which wire protocol a ModeDebug session is
// using, or selects SWIM in place of JTAG/SWD entirely. GET_CURRENT_MODE
// cannot tell JTAG from SWD on its own (the wire byte for debug mode is the
// same for both), so the session tracks the submode it last asked for and
// treats the wire reply as confirmation rather than as the source of truth.
type DebugSubMode int

const (
	DebugSubModeNone DebugSubMode = iota
	DebugSubModeJTAG
	DebugSubModeSWD
	DebugSubModeSWIM
)

func (m DebugSubMode) String() string {
	switch m {
	case DebugSubModeJTAG:
		return "jtag"
	case DebugSubModeSWD:
		return "swd"
	case DebugSubModeSWIM:
		return "swim"
	default:
		return "none"
	}
}

func (s *Session) currentMode(ctx context.Context) (Mode, error) {
	reply, err := s.link.command(ctx, 2, dirIn, U8(cmdGetCurrentMode))
	if err != nil {
		return ModeUnknown, fmt.Errorf("get current mode: %w", err)
	}
	switch reply[0] {
	case wireModeDFU:
		return ModeDFU, nil
	case wireModeMass:
		return ModeMassStorage, nil
	case wireModeDebug:
		return ModeDebug, nil
	case wireModeSWIM:
		return ModeSWIM, nil
	default:
		return ModeUnknown, nil
	}
}

// initMode drives the probe from whatever mode it is in at open time into
// target. The probe firmware only ever needs rescuing out of DFU mode at
// connect time, so that is the only mode initMode leaves on its own; it then
// confirms the target rail is readable, validates the probe actually
// supports the requested submode, programs a conservative default interface
// speed, and enters the submode.
func (s *Session) initMode(ctx context.Context, target DebugSubMode, underReset bool) error {
	cur, err := s.currentMode(ctx)
	if err != nil {
		return err
	}
	if cur == ModeUnknown {
		logging.Warnf("probe: initial mode is unknown")
	}

	if cur == ModeDFU {
		if err := s.leaveMode(ctx, ModeDFU); err != nil {
			return fmt.Errorf("exit DFU mode: %w", err)
		}
		cur, err = s.currentMode(ctx)
		if err != nil {
			return err
		}
		if cur == ModeDFU {
			return fmt.Errorf("%w: probe remains in DFU mode after DFU_EXIT", ErrModeMismatch)
		}
	}

	voltage, err := s.targetVoltage(ctx)
	if err != nil {
		return fmt.Errorf("read target voltage: %w", err)
	}
	if voltage < 1.5 {
		logging.Warnf("probe: target voltage %.2fV is too low for reliable debugging", voltage)
	}

	if err := validateTargetMode(s.version, target); err != nil {
		return err
	}
	s.debugSubMode = target

	if err := s.programDefaultSpeed(ctx); err != nil {
		return fmt.Errorf("program default interface speed: %w", err)
	}

	if underReset && target != DebugSubModeSWIM {
		if err := s.assertSRST(ctx, target, true); err != nil {
			return fmt.Errorf("assert reset before connect: %w", err)
		}
	}

	if err := s.enterMode(ctx, target); err != nil {
		return fmt.Errorf("enter mode %v: %w", target, err)
	}

	if underReset {
		if err := s.assertSRST(ctx, target, true); err != nil {
			return fmt.Errorf("assert reset after connect: %w", err)
		}
	}

	if target == DebugSubModeSWIM {
		return nil
	}

	got, err := s.currentMode(ctx)
	if err != nil {
		return err
	}
	if got != ModeDebug {
		logging.Warnf("probe: probe reports mode %v after entering debug mode", got)
	}
	return nil
}

// validateTargetMode confirms the connected probe's negotiated capabilities
// actually support target before initMode tries to enter it.
func validateTargetMode(v VersionInfo, target DebugSubMode) error {
	switch target {
	case DebugSubModeJTAG:
		if v.JTAG == 0 {
			return fmt.Errorf("%w: probe reports no JTAG support", ErrUnsupported)
		}
	case DebugSubModeSWD:
		if v.APILevel < 2 {
			return fmt.Errorf("%w: API level %d does not support SWD", ErrUnsupported, v.APILevel)
		}
	case DebugSubModeSWIM:
		if v.SWIM == 0 {
			return fmt.Errorf("%w: probe reports no SWIM support", ErrUnsupported)
		}
	default:
		return fmt.Errorf("%w: unknown debug submode %v", ErrUnsupported, target)
	}
	return nil
}

// targetVoltage reads the probe's measured target supply voltage via
// GET_TARGET_VOLTAGE, which reports it as an ADC division/multiplier pair
// rather than a raw count.
func (s *Session) targetVoltage(ctx context.Context) (float32, error) {
	reply, err := s.link.command(ctx, 8, dirIn, U8(cmdGetTargetVoltage))
	if err != nil {
		return 0, err
	}
	div := ReadU32(reply[0:4], LittleEndian)
	mul := ReadU32(reply[4:8], LittleEndian)
	if div == 0 {
		return 0, fmt.Errorf("%w: target voltage divisor is zero", ErrTransport)
	}
	return 2.4 * float32(mul) / float32(div), nil
}

// programDefaultSpeed sets the probe's interface clock to the conservative
// default for the session's current submode. A probe whose firmware
// predates the *_SET_FREQ commands simply keeps its power-on speed; that is
// logged, not fatal, since it does not stop the connect sequence from
// completing. SWIM has no default here and is left at its power-on speed
// without a log line.
func (s *Session) programDefaultSpeed(ctx context.Context) error {
	var khz uint32
	switch s.debugSubMode {
	case DebugSubModeJTAG:
		khz = jtagDefaultSpeedKHz
	case DebugSubModeSWD:
		khz = swdDefaultSpeedKHz
	default:
		return nil
	}

	_, err := s.setSpeed(ctx, khz)
	if errors.Is(err, ErrUnsupported) {
		logging.Infof("probe: device cannot set a default speed for %v", s.debugSubMode)
		return nil
	}
	return err
}

func (s *Session) leaveMode(ctx context.Context, m Mode) error {
	switch m {
	case ModeDebug:
		_, err := s.link.command(ctx, 2, dirIn, U8(cmdDebugCommand), U8(cmdDebugExit))
		return err
	case ModeDFU:
		_, err := s.link.command(ctx, 2, dirIn, U8(cmdDFUCommand), U8(cmdDFUExit))
		return err
	case ModeSWIM:
		_, err := s.link.command(ctx, 2, dirIn, U8(cmdSWIMCommand), U8(cmdSWIMExit))
		return err
	default:
		return nil
	}
}

func (s *Session) enterMode(ctx context.Context, target DebugSubMode) error {
	enter := byte(cmdV2Enter)
	if s.version.APILevel == 1 {
		enter = cmdV1Enter
	}
	switch target {
	case DebugSubModeJTAG:
		_, err := s.link.command(ctx, 0, dirOut, U8(cmdDebugCommand), U8(enter), U8(cmdEnterJTAGNoReset))
		return err
	case DebugSubModeSWD:
		_, err := s.link.command(ctx, 0, dirOut, U8(cmdDebugCommand), U8(enter), U8(cmdEnterSWDNoReset))
		return err
	case DebugSubModeSWIM:
		_, err := s.link.command(ctx, 0, dirOut, U8(cmdSWIMCommand), U8(cmdSWIMEnter))
		return err
	default:
		return fmt.Errorf("%w: unknown debug submode %v", ErrUnsupported, target)
	}
}

// assertSRST drives the target's reset line. Generation 1 firmware has no
// DRIVE_NRST command at all, so a generation 1 probe refuses outright rather
// than silently no-op'ing a reset the caller asked for.
func (s *Session) assertSRST(ctx context.Context, mode DebugSubMode, srst bool) error {
	if mode == DebugSubModeSWIM {
		return s.swimAssertReset(ctx, srst)
	}
	if s.version.Gen == Gen1 {
		return fmt.Errorf("%w: generation 1 probes cannot assert SRST", ErrUnsupported)
	}
	val := byte(nrstHigh)
	if srst {
		val = nrstLow
	}
	_, err := s.link.command(ctx, 2, dirIn, U8(cmdDebugCommand), U8(cmdDriveNRST), U8(val))
	return err
}

func (s *Session) swimAssertReset(ctx context.Context, assert bool) error {
	cmd := byte(cmdSWIMDeassertReset)
	if assert {
		cmd = cmdSWIMAssertReset
	}
	_, err := s.link.command(ctx, 0, dirOut, U8(cmdSWIMCommand), U8(cmd))
	return err
}

// ResetSys issues the probe's wire-level system reset (DEBUG group,
// RESETSYS): the probe toggles the target's reset line through its own
// firmware sequencing rather than the caller writing AIRCR.SYSRESETREQ
// through the debug port itself (see Session.SystemReset).
func (s *Session) ResetSys(ctx context.Context) error {
	sub := byte(cmdV2ResetSys)
	if s.version.APILevel == 1 {
		sub = cmdV1ResetSys
	}
	_, err := s.link.command(ctx, 2, dirIn, U8(cmdDebugCommand), U8(sub))
	if err != nil {
		return fmt.Errorf("system reset: %w", err)
	}
	return nil
}
