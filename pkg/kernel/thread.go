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
	"sync"

	"github.com/hollowcore/hle/pkg/kernel/arch"
)

// ThreadState is the lifecycle state of a guest thread.
type ThreadState int

// Thread states named by spec.md §3 ("spawned thread must start in a stopped
// state") and §4.1 ("pause/resume/kill").
const (
	ThreadCreated ThreadState = iota
	ThreadStopped
	ThreadRunning
	ThreadKilled
)

// GuestFunction is a host-provided routine run inside a paused guest thread
// by InvokeInGuest; it must end by emitting a ready-rendezvous trap (spec.md
// §4.1).
type GuestFunction func(regs *arch.RegisterFile)

// Thread is a native, OS-thread-backed guest thread: a kernel handle, a
// priority, a TLS slot address, a stack region, and the register snapshot
// captured at its last trap.
//
// Grounded on pkg/sentry/platform/ptrace/subprocess_linux.go's thread
// lifecycle (attach, wait-for-stop, grabInitRegs), reworked from "ptraced
// host child process" to "goroutine pinned to an OS thread that blocks on a
// start gate" since this core runs guest ARM64 code natively rather than
// re-executing it inside a traced subprocess.
type Thread struct {
	handle Handle

	mu       sync.Mutex
	state    ThreadState
	priority int // 0-63, lower is higher priority (spec.md §3)
	tlsSlot  uintptr
	stackTop uintptr

	regs arch.RegisterFile
}

// NewThread constructs a thread in the Created state; it does not start
// executing guest code until the Dispatcher's execution loop is started for
// it.
func NewThread(priority int, tlsSlot, stackTop uintptr) *Thread {
	return &Thread{
		state:    ThreadCreated,
		priority: priority,
		tlsSlot:  tlsSlot,
		stackTop: stackTop,
	}
}

// Kind implements Object.
func (*Thread) Kind() Kind { return KindThread }

// Close implements Object; it is invoked by ObjectTable.Close whenever a
// handle to the thread is closed.
func (t *Thread) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = ThreadKilled
	return nil
}

// Handle returns the thread's table handle, set once by the dispatcher
// after ObjectTable.Insert.
func (t *Thread) Handle() Handle { return t.handle }

// SetHandle is called once, right after insertion, by Dispatcher.Spawn or
// the create_thread handler.
func (t *Thread) SetHandle(h Handle) { t.handle = h }

// State returns the current lifecycle state.
func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Priority returns the guest-assigned priority (0-63, lower is higher).
func (t *Thread) Priority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// SetPriority updates the guest-assigned priority. HostPriority gives its
// linear mapping onto the host nice range; nothing in this package applies
// that mapping to a host thread.
func (t *Thread) SetPriority(p int) {
	t.mu.Lock()
	t.priority = p
	t.mu.Unlock()
}

// TLSSlot returns the guest address of this thread's 512-byte TLS region
// (spec.md §3, §6).
func (t *Thread) TLSSlot() uintptr { return t.tlsSlot }

// Regs returns a copy of the thread's last-captured register snapshot.
func (t *Thread) Regs() arch.RegisterFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.regs
}

// SetRegs overwrites the thread's register snapshot, used by WriteRegs and
// by the dispatcher after a handler runs.
func (t *Thread) SetRegs(r arch.RegisterFile) {
	t.mu.Lock()
	t.regs = r
	t.mu.Unlock()
}

// Start transitions a created/stopped thread to Running, used by the
// start_thread syscall handler (grounded on svc.cpp's StartThread calling
// KThread::Start()). A no-op on an already-killed thread.
func (t *Thread) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != ThreadKilled {
		t.state = ThreadRunning
	}
}

// Stop transitions a thread to Stopped unless it has been killed.
func (t *Thread) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != ThreadKilled {
		t.state = ThreadStopped
	}
}

// HostPriority linearly remaps the guest's 0-63 priority range (lower is
// higher) onto the host's nice-value range [-20, 19] per spec.md §5
// ("host priorities are mapped linearly from the guest's 0-63 range to the
// host's permitted range").
func HostPriority(guestPriority int) int {
	if guestPriority < 0 {
		guestPriority = 0
	}
	if guestPriority > 63 {
		guestPriority = 63
	}
	const hostMin, hostMax = -20, 19
	span := hostMax - hostMin
	return hostMin + (guestPriority*span)/63
}
