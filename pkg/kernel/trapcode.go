// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernel

// TrapKind classifies a decoded trap-opcode immediate (spec.md §4.1).
type TrapKind int

const (
	// TrapSyscall: id equals the immediate, range 0x00..0x7F.
	TrapSyscall TrapKind = iota
	// TrapTLSRead: destination register = immediate - 0x80, range 0x80..0x9E.
	TrapTLSRead
	// TrapReady is the 0xFF ready-rendezvous immediate.
	TrapReady
	// TrapUnknown is fatal per spec.md §4.1 ("Others | Fatal").
	TrapUnknown
)

const (
	trapReadyImm   = 0xFF
	trapTLSBase    = 0x80
	trapTLSMax     = 0x9E
	trapSyscallMax = 0x7F
)

// ClassifyTrap decodes the 16-bit trap-opcode immediate per the table in
// spec.md §4.1.
func ClassifyTrap(imm uint16) TrapKind {
	switch {
	case imm <= trapSyscallMax:
		return TrapSyscall
	case imm >= trapTLSBase && imm <= trapTLSMax:
		return TrapTLSRead
	case imm == trapReadyImm:
		return TrapReady
	default:
		return TrapUnknown
	}
}

// TLSReadDestReg returns the destination register index for a TrapTLSRead
// immediate (imm - 0x80).
func TLSReadDestReg(imm uint16) int {
	return int(imm) - trapTLSBase
}

// trapOpWordPattern is the fixed top-11-bit pattern and zeroed bottom 5 bits
// of the 32-bit trap opcode word (spec.md §6). The middle 16 bits carry the
// immediate.
const trapOpWordPattern uint32 = 0x6A2 << 21 // arbitrary reserved brk-class encoding

// EncodeTrapWord packs imm into the fixed 32-bit trap opcode format.
func EncodeTrapWord(imm uint16) uint32 {
	return trapOpWordPattern | (uint32(imm) << 5)
}

// DecodeTrapWord extracts the 16-bit immediate from a 32-bit trap opcode
// word, returning ok=false if the fixed top/bottom bits don't match the
// expected pattern.
func DecodeTrapWord(word uint32) (imm uint16, ok bool) {
	if word&^(uint32(0xFFFF)<<5) != trapOpWordPattern {
		return 0, false
	}
	return uint16((word >> 5) & 0xFFFF), true
}
