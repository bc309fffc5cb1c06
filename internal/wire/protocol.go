// Package wire holds the fixed binary layouts exchanged with the servo
// controller board. Everything is big-endian with no padding.
package wire

import "strconv"

// ProtocolVersion is shared between the firmware and this binding.
const ProtocolVersion = "0.2"

const (
	HeaderSize = 4
	MaxPacket  = 64
	MaxPayload = MaxPacket - HeaderSize

	MaxOutputs        = 24
	MaxInputs         = 12
	IONameLen         = 20
	FlashSlots        = 16
	MaxSequenceFrames = 64
)

// USB identifiers of the board and of the DFU bootloader it reboots into.
const (
	BoardVID      = 0x03EB
	BoardPID      = 0xA380
	BootloaderVID = 0x03EB
	BootloaderPID = 0x2FF6
)

// Module selects the firmware subsystem a packet is routed to.
type Module uint8

const (
	Trace Module = iota
	System
	Core
	CoreCalibration
	SysConf
	APICtrl
	APIIO
	PosCtrl
	SeqCtrl
	UserFlash
)

var moduleNames = [...]string{
	"trace", "system", "core", "core_calibration", "sys_conf",
	"api_ctrl", "api_io", "pos_ctrl", "seq_ctrl", "user_flash",
}

func (m Module) String() string {
	if int(m) < len(moduleNames) {
		return moduleNames[m]
	}
	return "module(" + strconv.Itoa(int(m)) + ")"
}

// Command is a module specific opcode. Values overlap between modules.
type Command uint8

// Trace
const (
	CmdTraceLog Command = iota
	CmdTraceMemoryDump
)

// System
const (
	CmdRestartBootloader Command = iota
	CmdReqSoftVersion
)

// Core
const (
	CmdSetCoreMode Command = iota
	CmdReqInputNb
	CmdReqOutputNb
	CmdReqInputValue
	CmdReqOutputValue
	CmdReqInputActive
	CmdReqOutputActive
)

// CoreCalibration
const (
	CmdSetOutputCalibRaw Command = iota
	CmdSetInputCalibCenter
)

// SysConf
const (
	CmdSaveSysConf Command = iota
	CmdLoadSysConf
	CmdSetInputMapping
	CmdSetOutputMapping
	CmdReqInputMapping
	CmdReqOutputMapping
	CmdSetInputName
	CmdSetOutputName
	CmdReqInputName
	CmdReqOutputName
	CmdSetOutputMaxSpeed
	CmdReqOutputMaxSpeed
	CmdReqInputActiveBM
	CmdReqOutputActiveBM
	CmdSetInputActiveBM
	CmdSetOutputActiveBM
	CmdReqInputCalibValue
	CmdReqOutputCalibValue
	CmdSetInputCalibValue
	CmdSetOutputCalibValue
)

// APICtrl
const (
	CmdSetOutputGoal Command = iota
	CmdReqOutputGoal
	CmdSetControlBM
	CmdReqControlBM
)

// PosCtrl
const (
	CmdLoadFrame Command = iota
	CmdDisableFrame
)

// SeqCtrl
const (
	CmdPlaySlot Command = iota
	CmdUploadSlotStart
	CmdUploadSlotFrame
	CmdUploadSlotEnd
	CmdDownloadSlot
	CmdDownloadSlotFrame
)

// UserFlash
const (
	CmdReqOverview Command = iota
	CmdReqOverviewAll
	CmdSetDescription
)
