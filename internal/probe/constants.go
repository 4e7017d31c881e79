package probe

import "time"

// USB identification.
const (
	VendorID = 0x0483

	PIDGen1      = 0x3744
	PIDGen2      = 0x3748
	PIDGen21     = 0x374B
	PIDGen21NoMSD = 0x3752
	PIDGen3Loader = 0x374D
	PIDGen3E      = 0x374E
	PIDGen3S      = 0x374F
	PIDGen32      = 0x3753
)

// Endpoint addresses by generation.
const (
	epGen1Out = 0x02
	epGen1In  = 0x81

	epGen2Out    = 0x02
	epGen2In     = 0x81
	epGen2Trace  = 0x83

	epGen21Out   = 0x01
	epGen21In    = 0x81
	epGen21Trace = 0x82

	epGen3Out   = 0x01
	epGen3In    = 0x81
	epGen3Trace = 0x82
)

// Command/data buffer sizes.
const (
	cmdBufSizeSCSI = 31
	cmdBufSizeRaw  = 16
	dataBufSize    = 4096

	scsiCBWLen = 15
	scsiCSWLen = 13
	scsiCBWMagic = "USBC"
	scsiCBLength = 0x0A
)

const (
	dirDeviceToHost byte = 0x80
	dirHostToDevice byte = 0x81
)

// Generic command group bytes.
const (
	cmdGetVersion       = 0xF1
	cmdGetVersionExt    = 0xFB
	cmdDebugCommand     = 0xF2
	cmdDFUCommand       = 0xF3
	cmdSWIMCommand      = 0xF4
	cmdGetCurrentMode   = 0xF5
	cmdGetTargetVoltage = 0xF7
)

// DFU sub-commands.
const cmdDFUExit = 0x07

// SWIM sub-commands.
const (
	cmdSWIMEnter        = 0x00
	cmdSWIMExit         = 0x01
	cmdSWIMSpeed        = 0x03
	cmdSWIMAssertReset  = 0x07
	cmdSWIMDeassertReset = 0x08
)

// DEBUG group sub-commands, API v1.
const (
	cmdV1ResetSys    = 0x03
	cmdV1ReadAllRegs = 0x04
	cmdV1ReadReg     = 0x05
	cmdV1Enter       = 0x20
	cmdV1WriteDbgReg = 0x0F
	cmdRunCore       = 0x09
	cmdForceDebug    = 0x02
	cmdStepCore      = 0x0A
)

// DEBUG group sub-commands, API v2/v3.
const (
	cmdV2Enter         = 0x30
	cmdV2ResetSys      = 0x32
	cmdV2ReadReg       = 0x33
	cmdV2ReadAllRegs   = 0x3A
	cmdV2WriteDbgReg   = 0x35
	cmdV2ReadDbgReg    = 0x36
	cmdGetLastRWStatus  = 0x3B
	cmdDriveNRST       = 0x3C
	cmdGetLastRWStatus2 = 0x3E
	cmdSWDSetFreq      = 0x43
	cmdJTAGSetFreq     = 0x44
	cmdReadMem16       = 0x47
	cmdWriteMem16      = 0x48
	cmdReadIDCodes     = 0x31
)

// DEBUG group sub-commands, API v3.
const (
	cmdSetComFreq = 0x61
	cmdGetComFreq = 0x62
)

// DRIVE_NRST values.
const (
	nrstLow   = 0x00
	nrstHigh  = 0x01
	nrstPulse = 0x02
)

// Mode-independent DEBUG commands.
const (
	cmdReadMem32  = 0x07
	cmdWriteMem32 = 0x08
	cmdReadMem8   = 0x0C
	cmdWriteMem8  = 0x0D
	cmdDebugExit  = 0x21
	cmdReadCoreID = 0x22

	cmdEnterJTAGNoReset = 0xA4
	cmdEnterSWDNoReset  = 0xA3
)

// GET_CURRENT_MODE reply byte 0.
const (
	wireModeDFU   = 0x00
	wireModeMass  = 0x01
	wireModeDebug = 0x02
	wireModeSWIM  = 0x03
)

// Feature flags, compared against JTAG rev thresholds on generation 2;
// all but SET_FREQ are implied on generation 3 (superseded by the dynamic
// frequency table).
const (
	FlagHasTrace            uint32 = 1 << 0
	FlagHasSWDSetFreq       uint32 = 1 << 1
	FlagHasJTAGSetFreq      uint32 = 1 << 2
	FlagHasMem16Bit         uint32 = 1 << 3
	FlagHasGetLastRWStatus2 uint32 = 1 << 4
)

const (
	jtagThresholdTrace            = 13
	jtagThresholdGetLastRWStatus2 = 15
	jtagThresholdSWDSetFreq       = 22
	jtagThresholdJTAGSetFreq      = 24
	jtagThresholdMem16Bit         = 26
)

// Cortex-M architectural register addresses.
const (
	RegDHCSR = 0xE000EDF0
	RegDCRSR = 0xE000EDF4
	RegDCRDR = 0xE000EDF8
	RegDEMCR = 0xE000EDFC
	RegAIRCR = 0xE000ED0C

	RegDWTCtrl = 0xE0001000
	RegITMTER0 = 0xE0000E00
	RegFPCtrl  = 0xE0002000
	RegFPUCPACR = 0xE000ED88
	RegTPIUSSPSR = 0xE0040000

	DBGMCUIDCode = 0xE0042000
)

const (
	dhcsrDebugKey   = 0xA05F << 16
	dhcsrCDebugEn   = 1 << 0
	dhcsrCHalt      = 1 << 1
	dhcsrCStep      = 1 << 2
	dhcsrCMaskInts  = 1 << 3
)

const (
	aircrVectKey       = 0x5FA << 16
	aircrSysResetReq   = 1 << 2
)

// Default timeout and retry policy.
const (
	DefaultTimeout = 120 * time.Second
	DefaultRetries = 3
	retryBackoff   = 1 * time.Second
)

// Max packet size, by generation.
const (
	maxPacketV1V2 = 64
	maxPacketV3   = 512
)
