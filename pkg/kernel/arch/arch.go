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

// Package arch provides the register-file abstraction for guest ARM64
// threads: a snapshot of general-purpose registers plus the accessor
// methods syscall handlers use to read arguments and write results.
//
// Grounded on pkg/sentry/arch/arch.go's SyscallArgument/SyscallArguments
// accessor shape (Pointer/Int/Uint/Int64/Uint64/SizeT), re-targeted from the
// x86-64/arm64 Linux syscall ABI to the guest console's trap-opcode ABI: six
// argument registers, one return-value register, PC, SP, and a TLS base
// register.
package arch

// NumGPRs is the number of general-purpose registers modeled (X0-X30 on
// AArch64; only the subset the ABI and trap dispatch need is named below,
// the rest are carried in Regs for completeness).
const NumGPRs = 31

// RegisterFile is a snapshot of one guest thread's register state, captured
// at a trap boundary and written back before resumption.
type RegisterFile struct {
	// Regs holds X0..X30 (argument/return/scratch registers).
	Regs [NumGPRs]uint64

	// PC is the program counter at the trap.
	PC uint64

	// SP is the stack pointer.
	SP uint64

	// TLS is the thread-local-storage base register (TPIDR_EL0 on AArch64).
	TLS uint64

	// PState carries the processor state flags (NZCV, etc.) across a trap.
	PState uint64
}

// SyscallArgument is a single syscall argument register, named after the
// accessor methods' C-type semantics rather than the underlying Go type, to
// keep conversions between sizes and signedness explicit at call sites.
type SyscallArgument struct {
	Value uint64
}

// SyscallArguments is the fixed set of syscall argument registers (X0-X5 on
// the guest ABI).
type SyscallArguments [6]SyscallArgument

// Args extracts the syscall argument registers from a RegisterFile.
func (r *RegisterFile) Args() SyscallArguments {
	var a SyscallArguments
	for i := range a {
		a[i] = SyscallArgument{Value: r.Regs[i]}
	}
	return a
}

// SetReturn writes a syscall's single return value into X0.
func (r *RegisterFile) SetReturn(v uint64) {
	r.Regs[0] = v
}

// SetReturnPair writes a two-register return value (result code in X0,
// output value in X1), the shape most kernel-object syscalls use.
func (r *RegisterFile) SetReturnPair(code, value uint64) {
	r.Regs[0] = code
	r.Regs[1] = value
}

// Pointer returns the argument as a guest address.
func (a SyscallArgument) Pointer() uint64 { return a.Value }

// Int returns the int32 representation of a 32-bit signed argument.
func (a SyscallArgument) Int() int32 { return int32(a.Value) }

// Uint returns the uint32 representation of a 32-bit unsigned argument.
func (a SyscallArgument) Uint() uint32 { return uint32(a.Value) }

// Int64 returns the int64 representation of a 64-bit signed argument.
func (a SyscallArgument) Int64() int64 { return int64(a.Value) }

// Uint64 returns the raw 64-bit unsigned argument.
func (a SyscallArgument) Uint64() uint64 { return a.Value }

// SizeT returns the uint representation of a size_t-shaped argument.
func (a SyscallArgument) SizeT() uint { return uint(a.Value) }

// Handle returns the argument as a raw 32-bit handle value.
func (a SyscallArgument) Handle() uint32 { return uint32(a.Value) }
