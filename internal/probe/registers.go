package probe

import (
	"context"
	"fmt"
)

// CoreRegisters is a snapshot of the Cortex-M general-purpose register file
// plus the debug-visible special registers, as returned by READALLREGS.
type CoreRegisters struct {
	R      [16]uint32 // R0-R12, SP, LR, PC
	XPSR   uint32
	MSP    uint32
	PSP    uint32
}

// writeDebugReg writes a single 32-bit value to a memory-mapped debug
// register (DHCSR, DEMCR, AIRCR, ...) via the DEBUG command group.
func (s *Session) writeDebugReg(ctx context.Context, addr, value uint32) error {
	sub := byte(cmdV2WriteDbgReg)
	if s.version.APILevel == 1 {
		sub = cmdV1WriteDbgReg
	}
	_, err := s.link.command(ctx, 2, dirIn, U8(cmdDebugCommand), U8(sub), U32(addr), U32(value))
	if err != nil {
		return fmt.Errorf("write debug register %#08x: %w", addr, err)
	}
	return nil
}

// readDebugReg reads a single 32-bit memory-mapped debug register. API v1
// has no such command.
func (s *Session) readDebugReg(ctx context.Context, addr uint32) (uint32, error) {
	if s.version.APILevel == 1 {
		return 0, fmt.Errorf("%w: read debug register on API v1", ErrUnsupported)
	}
	reply, err := s.link.command(ctx, 8, dirIn, U8(cmdDebugCommand), U8(cmdV2ReadDbgReg), U32(addr))
	if err != nil {
		return 0, fmt.Errorf("read debug register %#08x: %w", addr, err)
	}
	return ReadU32(reply[4:8], LittleEndian), nil
}

// readReg reads one core register by its DCRSR index (0-15 general purpose,
// 16 xPSR, 17 MSP, 18 PSP).
func (s *Session) readReg(ctx context.Context, index byte) (uint32, error) {
	sub, rx, off := byte(cmdV2ReadReg), 8, 4
	if s.version.APILevel == 1 {
		sub, rx, off = cmdV1ReadReg, 4, 0
	}
	reply, err := s.link.command(ctx, rx, dirIn, U8(cmdDebugCommand), U8(sub), U8(index))
	if err != nil {
		return 0, fmt.Errorf("read register %d: %w", index, err)
	}
	return ReadU32(reply[off:off+4], LittleEndian), nil
}

// ReadCoreRegs reads the full register snapshot in one exchange (84 bytes
// on API v1; 88 bytes on v2+, whose first word is a status word).
func (s *Session) ReadCoreRegs(ctx context.Context) (CoreRegisters, error) {
	sub, rx, base := byte(cmdV2ReadAllRegs), 88, 4
	if s.version.APILevel == 1 {
		sub, rx, base = cmdV1ReadAllRegs, 84, 0
	}
	reply, err := s.link.command(ctx, rx, dirIn, U8(cmdDebugCommand), U8(sub))
	if err != nil {
		return CoreRegisters{}, fmt.Errorf("read all registers: %w", err)
	}
	var regs CoreRegisters
	for i := range regs.R {
		off := base + i*4
		regs.R[i] = ReadU32(reply[off:off+4], LittleEndian)
	}
	regs.XPSR = ReadU32(reply[base+64:base+68], LittleEndian)
	regs.MSP = ReadU32(reply[base+68:base+72], LittleEndian)
	regs.PSP = ReadU32(reply[base+72:base+76], LittleEndian)
	return regs, nil
}

// legacyCoreCommand issues one of the API v1 single-byte core control
// commands (RUNCORE, FORCEDEBUG, STEPCORE).
func (s *Session) legacyCoreCommand(ctx context.Context, sub byte) error {
	_, err := s.link.command(ctx, 2, dirIn, U8(cmdDebugCommand), U8(sub))
	return err
}

// Halt stops the core: FORCEDEBUG on API v1, otherwise the debug-key-gated
// DHCSR.C_HALT write.
func (s *Session) Halt(ctx context.Context) error {
	if s.version.APILevel == 1 {
		return s.legacyCoreCommand(ctx, cmdForceDebug)
	}
	return s.writeDebugReg(ctx, RegDHCSR, dhcsrDebugKey|dhcsrCDebugEn|dhcsrCHalt)
}

// Run releases the core from halt: RUNCORE on API v1, otherwise a DHCSR
// write clearing C_HALT while keeping C_DEBUGEN set so later Halt calls do
// not need to re-enable debug mode.
func (s *Session) Run(ctx context.Context) error {
	if s.version.APILevel == 1 {
		return s.legacyCoreCommand(ctx, cmdRunCore)
	}
	return s.writeDebugReg(ctx, RegDHCSR, dhcsrDebugKey|dhcsrCDebugEn)
}

// Step single-steps one instruction with interrupts masked: STEPCORE on API
// v1, otherwise three DHCSR writes (halt with interrupts masked, step with
// interrupts masked, halt).
func (s *Session) Step(ctx context.Context) error {
	if s.version.APILevel == 1 {
		return s.legacyCoreCommand(ctx, cmdStepCore)
	}
	for _, v := range []uint32{
		dhcsrDebugKey | dhcsrCDebugEn | dhcsrCHalt | dhcsrCMaskInts,
		dhcsrDebugKey | dhcsrCDebugEn | dhcsrCStep | dhcsrCMaskInts,
		dhcsrDebugKey | dhcsrCDebugEn | dhcsrCHalt,
	} {
		if err := s.writeDebugReg(ctx, RegDHCSR, v); err != nil {
			return err
		}
	}
	return nil
}

// SystemReset pulses AIRCR.SYSRESETREQ, resetting the core and its
// peripherals without touching the probe's own session state.
func (s *Session) SystemReset(ctx context.Context) error {
	return s.writeDebugReg(ctx, RegAIRCR, aircrVectKey|aircrSysResetReq)
}
