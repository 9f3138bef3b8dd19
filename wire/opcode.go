// Package wire implements the length-prefixed binary protocol spoken
// between the job manager and the task manager: framed stream endpoints
// (TCP or UNIX-domain), big-endian 64-bit integers, and the push/pull/
// terminate handshakes.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire

// Opcode is a 64-bit big-endian value. The range is chosen so that a
// truncated or misaligned frame is unlikely to collide with a valid one.
type Opcode int64

const (
	MsgSendTask Opcode = 0x0201 // JM->TM: "I want to push tasks"
	MsgSendMore Opcode = 0x0202 // TM->JM: "send another task"
	MsgSendFull Opcode = 0x0203 // TM->JM: "I'm full, stop"
	MsgSendRjct Opcode = 0x0204 // TM->JM: "last task rejected"

	MsgReadResult Opcode = 0x0101 // JM->TM request, and TM->JM per-result ack
	MsgReadEmpty  Opcode = 0x0000 // TM->JM: "no more results"

	MsgTerminate Opcode = 0xFFFF // JM->TM: "shut down immediately"
)

func (o Opcode) String() string {
	switch o {
	case MsgSendTask:
		return "send_task"
	case MsgSendMore:
		return "send_more"
	case MsgSendFull:
		return "send_full"
	case MsgSendRjct:
		return "send_rjct"
	case MsgReadResult:
		return "read_result"
	case MsgReadEmpty:
		return "read_empty"
	case MsgTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Status upper-32-bit framework-level failure flags. A zero lower-32-bit
// value indicates worker success; these sentinels live in the upper half
// so a real (signed) user-module status can share the same int64.
const (
	StatusModuleError    int64 = -0x100000000 // 0xFFFFFFFF00000000: module_error
	StatusModuleNoAnswer int64 = -0x200000000 // 0xFFFFFFFE00000000: module_noans
	StatusModuleCtxErr   int64 = -0x300000000 // 0xFFFFFFFD00000000: module_ctxer
)

const upper32Mask int64 = -0x100000000 // 0xFFFFFFFF00000000
const lower32Mask int64 = 0xFFFFFFFF

// UpperFlag extracts the upper 32 bits of a result status (as a signed
// value comparable against the Status* constants above).
func UpperFlag(status int64) int64 { return status & upper32Mask }

// LowerFailed reports whether the lower 32 bits of status are non-zero,
// i.e. the user worker itself reported a failure.
func LowerFailed(status int64) bool { return status&lower32Mask != 0 }
