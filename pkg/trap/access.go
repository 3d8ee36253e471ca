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

package trap

import (
	"runtime/debug"

	"github.com/hollowcore/hle/internal/errs"
)

// Guard runs fn, a Go-level access to [addr, addr+length) inside the
// managed region, ensuring every trap group covering that range has had a
// chance to run its OnRead/OnWrite callback first.
//
// The source platform installs a SIGSEGV handler and lets the host MMU
// raise the fault mid-instruction (trap_manager.cpp's TrapHandler). Go
// offers no supported way to do that: the runtime reserves synchronous
// fault signals for its own use, and os/signal.Notify explicitly refuses to
// let user code intercept SIGSEGV/SIGBUS (see the os/signal package docs).
// Guard instead resolves every address it is given proactively, before the
// access runs, which is possible here because the caller always knows the
// address and direction up front (there is no guest JIT raising faults at
// arbitrary PCs — spec.md §1 Non-goals). runtime/debug.SetPanicOnFault is
// kept as a backstop: if fn still faults (a race against a concurrent Arm,
// or a bug in a collaborator's own bookkeeping), it is recovered and
// reported as a Fatal instead of crashing the process outright.
func (m *Manager) Guard(addr Addr, length uintptr, isWrite bool, fn func()) (err error) {
	end := addr + Addr(length)
	for a := addr.AlignDown(m.pageSize); a < end; a += m.pageSize {
		if handled, herr := m.HandleFault(a, isWrite); herr != nil {
			return herr
		} else if !handled {
			// No trap group claims this page; it is either unmanaged
			// memory (fine) or genuinely inaccessible, in which case fn
			// itself will fault and the backstop below converts it.
			continue
		}
	}

	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)
	defer func() {
		if r := recover(); r != nil {
			err = errs.NewFatal("trap: guarded access faulted after resolution", nil)
		}
	}()
	fn()
	return nil
}
