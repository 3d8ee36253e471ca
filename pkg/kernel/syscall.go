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

import (
	"fmt"

	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/pkg/kernel/arch"
)

// MaxSyscalls is the dense syscall table size named by spec.md §4.1 ("A
// dense table of at most 128 entries").
const MaxSyscalls = 128

// SupportLevel mirrors the teacher's kernel.SupportLevel (syscalls.go):
// whether a syscall entry is a full implementation, a partial one, or
// unimplemented.
type SupportLevel int

// Support levels, grounded on pkg/sentry/syscalls/syscalls.go's
// Supported/PartiallySupported/Error constructors.
const (
	SupportFull SupportLevel = iota
	SupportPartial
	SupportUnimplemented
)

// Fn is a syscall handler: it reads arguments from and writes results to
// regs directly (the register snapshot doubles as both the input and
// output channel, per spec.md §4.1).
type Fn func(k *Kernel, t *Thread, regs *arch.RegisterFile) error

// Syscall describes one entry in the dense syscall table, grounded on
// pkg/sentry/syscalls/syscalls.go's kernel.Syscall shape (Name, Fn,
// SupportLevel, Note), minus the seccheck-point/URL documentation plumbing
// that has no analog in this core.
type Syscall struct {
	Name         string
	Fn           Fn
	SupportLevel SupportLevel
	Note         string
}

// Supported returns a syscall entry that is fully implemented.
func Supported(name string, fn Fn) Syscall {
	return Syscall{Name: name, Fn: fn, SupportLevel: SupportFull, Note: "fully supported."}
}

// PartiallySupported returns a syscall entry with a partial implementation.
func PartiallySupported(name string, fn Fn, note string) Syscall {
	return Syscall{Name: name, Fn: fn, SupportLevel: SupportPartial, Note: note}
}

// Unimplemented returns a syscall entry that always reports the guest error
// err without terminating the process (spec.md §4.1 "get-info answers ...
// unknown ids return a distinguished unimplemented error code without
// terminating" generalizes to any syscall stub built this way).
func Unimplemented(name string, err errs.GuestError, note string) Syscall {
	return Syscall{
		Name: name,
		Fn: func(k *Kernel, t *Thread, regs *arch.RegisterFile) error {
			regs.SetReturn(uint64(err.Value()))
			return nil
		},
		SupportLevel: SupportUnimplemented,
		Note:         fmt.Sprintf("%s Returns %s.", note, err.Error()),
	}
}

// Table is the dense syscall dispatch table. A missing entry (nil Fn) for
// an id in range is a fatal error carrying the id, per spec.md §4.1.
type Table [MaxSyscalls]*Syscall

// NewTable builds a Table from sparse (id, syscall) registrations.
func NewTable(entries map[int]Syscall) *Table {
	var t Table
	for id, sc := range entries {
		if id < 0 || id >= MaxSyscalls {
			panic(fmt.Sprintf("syscall id %d out of table range", id))
		}
		sc := sc
		t[id] = &sc
	}
	return &t
}

// Lookup returns the syscall registered at id, or nil if the table has no
// entry there.
func (t *Table) Lookup(id int) *Syscall {
	if id < 0 || id >= MaxSyscalls {
		return nil
	}
	return t[id]
}
