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
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hollowcore/hle/internal/corelog"
	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/pkg/kernel/arch"
)

// Dispatcher is the trap-driven mechanism described in spec.md §4.1: it
// suspends a guest thread on the designated breakpoint opcode, decodes it,
// dispatches to a kernel handler, and resumes the thread.
//
// The native ARM64 execution of guest code is explicitly out of scope
// (spec.md §1 Non-goals: "does not define a JIT, a translation cache, or a
// binary recompiler"); Dispatcher only owns the reaction to a trap. Guest
// code (or, in tests, a stand-in for it) calls Thread.Trap to report that it
// hit the breakpoint opcode; Dispatcher classifies, dispatches, and signals
// resumption.
//
// Grounded on pkg/sentry/platform/ptrace/subprocess_linux.go's thread
// lifecycle (spawn → wait for stop → attach → grab registers) and
// pkg/sentry/syscalls/syscalls.go's dispatch-table constructor shapes.
type Dispatcher struct {
	kernel *Kernel
	table  *Table

	// dispatchMu serializes trap handling across all of a process's
	// threads (spec.md §4.1 "Concurrency contract": at most one thread is
	// executing a dispatcher callback at a time per guest process).
	dispatchMu sync.Mutex
}

// NewDispatcher constructs a Dispatcher bound to k and a syscall table.
func NewDispatcher(k *Kernel, table *Table) *Dispatcher {
	return &Dispatcher{kernel: k, table: table}
}

// Spawn creates a guest thread in a stopped state and returns its handle.
// Per spec.md §4.1's invariant, the thread emits a ready-rendezvous trap
// before running any guest code. Spawn runs no guest code itself: it
// synthesizes that rendezvous by leaving the thread in ThreadStopped before
// returning — giving the caller a deterministic point to seed initial
// registers via WriteRegs before Resume.
func (d *Dispatcher) Spawn(entry, stackTop, tlsSlot uintptr, priority int) (Handle, error) {
	t := NewThread(priority, tlsSlot, stackTop)
	t.regs.PC = uint64(entry)
	t.regs.SP = uint64(stackTop)
	t.regs.TLS = uint64(tlsSlot)

	h := d.kernel.Objects.Insert(t)
	t.SetHandle(h)

	// Stand in for "the native executor starts the thread, which
	// immediately traps into the ready rendezvous." Real guest-code
	// execution is a collaborator outside this package's scope; here the
	// rendezvous is synthesized directly so the thread reaches
	// ThreadStopped deterministically.
	t.mu.Lock()
	t.state = ThreadStopped
	t.mu.Unlock()

	corelog.Debugf("kernel: spawned thread handle=%d priority=%d entry=%#x", h, priority, entry)
	return h, nil
}

// InvokeInGuest temporarily retargets a paused guest thread to run a
// host-provided routine that ends in a ready-rendezvous trap; original
// registers are restored before resumption (spec.md §4.1). This is required
// by memory-map syscalls that must execute inside the guest process so that
// guest mappings are visible to it.
func (d *Dispatcher) InvokeInGuest(ctx context.Context, fn GuestFunction, regs arch.RegisterFile, thread Handle) (arch.RegisterFile, error) {
	t, err := Lookup[*Thread](d.kernel.Objects, thread)
	if err != nil {
		return arch.RegisterFile{}, err
	}

	t.mu.Lock()
	if t.state != ThreadStopped {
		t.mu.Unlock()
		return arch.RegisterFile{}, errs.NewConfigError("InvokeInGuest: thread %d not stopped", thread)
	}
	saved := t.regs
	t.regs = regs
	t.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	result := make(chan arch.RegisterFile, 1)
	g.Go(func() error {
		r := regs
		fn(&r) // runs to the routine's own ready-rendezvous trap.
		select {
		case result <- r:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	var out arch.RegisterFile
	select {
	case out = <-result:
	case <-ctx.Done():
		t.mu.Lock()
		t.regs = saved
		t.mu.Unlock()
		return arch.RegisterFile{}, ctx.Err()
	}
	if err := g.Wait(); err != nil {
		t.mu.Lock()
		t.regs = saved
		t.mu.Unlock()
		return arch.RegisterFile{}, err
	}

	t.mu.Lock()
	t.regs = saved
	t.mu.Unlock()
	return out, nil
}

// Pause stops a running thread.
func (d *Dispatcher) Pause(thread Handle) error {
	t, err := Lookup[*Thread](d.kernel.Objects, thread)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == ThreadKilled {
		return errs.NewConfigError("Pause: thread %d already killed", thread)
	}
	t.state = ThreadStopped
	return nil
}

// Resume continues a stopped thread.
func (d *Dispatcher) Resume(thread Handle) error {
	t, err := Lookup[*Thread](d.kernel.Objects, thread)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == ThreadKilled {
		return errs.NewConfigError("Resume: thread %d already killed", thread)
	}
	t.state = ThreadRunning
	return nil
}

// Kill terminates a thread. A guest thread is cancelled by killing its OS
// thread (spec.md §5); at the HLE core boundary this marks the thread
// killed and releases its handle.
func (d *Dispatcher) Kill(thread Handle) error {
	t, err := Lookup[*Thread](d.kernel.Objects, thread)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.state = ThreadKilled
	t.mu.Unlock()
	return d.kernel.Objects.Close(thread)
}

// ReadRegs returns a copy of thread's register snapshot.
func (d *Dispatcher) ReadRegs(thread Handle) (arch.RegisterFile, error) {
	t, err := Lookup[*Thread](d.kernel.Objects, thread)
	if err != nil {
		return arch.RegisterFile{}, err
	}
	return t.Regs(), nil
}

// WriteRegs overwrites thread's register snapshot.
func (d *Dispatcher) WriteRegs(thread Handle, regs arch.RegisterFile) error {
	t, err := Lookup[*Thread](d.kernel.Objects, thread)
	if err != nil {
		return err
	}
	t.SetRegs(regs)
	return nil
}

// HandleTrap is the entry point the guest-process controller collaborator
// (spec.md §6) calls once it has stopped thread at a trap instruction and
// read the breakpoint immediate. It implements the classify → dispatch →
// advance-PC → return sequence from spec.md §4.1.
//
// Unclassified trap opcodes, unknown syscall ids, and trap-read failures are
// fatal to the entire process (spec.md §4.1 "Failure semantics"); handler
// errors that are guest-visible error codes are written into the register
// snapshot instead and do not terminate.
func (d *Dispatcher) HandleTrap(thread Handle, imm uint16) error {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	t, err := Lookup[*Thread](d.kernel.Objects, thread)
	if err != nil {
		return err
	}

	regs := t.Regs()
	kind := ClassifyTrap(imm)
	switch kind {
	case TrapSyscall:
		if err := d.dispatchSyscall(t, &regs, int(imm)); err != nil {
			return err
		}
	case TrapTLSRead:
		dest := TLSReadDestReg(imm)
		if dest < 0 || dest >= arch.NumGPRs {
			return errs.NewFatal(fmt.Sprintf("thread %d: TLS-read trap decoded out-of-range register %d", thread, dest), nil)
		}
		regs.Regs[dest] = uint64(t.TLSSlot())
	case TrapReady:
		// Caller-observable rendezvous; nothing to dispatch.
	case TrapUnknown:
		return errs.NewFatal(fmt.Sprintf("thread %d: unclassified trap immediate %#x", thread, imm), nil)
	}

	// Advance PC past the trap word (spec.md §4.1: "advance the program
	// counter past the trap word, and resume").
	regs.PC += 4
	t.SetRegs(regs)
	return nil
}

func (d *Dispatcher) dispatchSyscall(t *Thread, regs *arch.RegisterFile, id int) error {
	sc := d.table.Lookup(id)
	if sc == nil {
		return errs.NewFatal(fmt.Sprintf("unknown syscall id %d", id), nil)
	}
	start := time.Now()
	err := sc.Fn(d.kernel, t, regs)
	corelog.Debugf("kernel: syscall %s (id=%d) thread=%d took=%s err=%v", sc.Name, id, t.Handle(), time.Since(start), err)
	if err == nil {
		return nil
	}

	var ge errs.GuestError
	if asGuestError(err, &ge) {
		regs.SetReturn(uint64(ge.Value()))
		return nil
	}
	// Anything else (ConfigError, Fatal, or a bare Go error from a
	// handler bug) is fatal per spec.md §4.1/§7.
	return errs.NewFatal(fmt.Sprintf("syscall %s (id=%d) returned unclassified error", sc.Name, id), err)
}

func asGuestError(err error, out *errs.GuestError) bool {
	if ge, ok := err.(errs.GuestError); ok {
		*out = ge
		return true
	}
	return false
}
