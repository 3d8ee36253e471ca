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

// Package hostmem provides the one concrete GuestMemory/trap.Protector pair
// cmd/hled wires the core against: a single mmap'd anonymous region
// standing in for guest physical memory (spec.md §1 excludes a guest
// address-space/JIT implementation, so this core never multiplexes
// multiple guest processes over it — one flat arena is enough to let
// pkg/trap install real page protections and pkg/kernel's memory-reading
// syscalls and send-sync-request operate on real backing pages rather than
// a fake in-process slice no mprotect could ever apply to).
package hostmem

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/pkg/trap"
)

func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Arena is an anonymous mmap'd region addressed by guest-relative offsets.
// It implements both pkg/kernel.GuestMemory and pkg/trap.Protector, since
// both collaborators ultimately operate on the same backing pages.
type Arena struct {
	base []byte
}

// NewArena mmaps size bytes (rounded up to the host's natural page size by
// the kernel) as a read/write anonymous, private region.
func NewArena(size int) (*Arena, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errs.NewFatal("hostmem: mmap failed", err)
	}
	return &Arena{base: b}, nil
}

// Close unmaps the arena. Not safe to call while any trap group still
// references addresses within it.
func (a *Arena) Close() error {
	return unix.Munmap(a.base)
}

// Addr returns the arena's base address as a trap.Addr, suitable for
// building the Interval a caller registers with pkg/trap.Manager.
func (a *Arena) Addr() trap.Addr {
	return trap.Addr(uintptrOf(a.base))
}

// Len returns the arena's size in bytes.
func (a *Arena) Len() int { return len(a.base) }

// CopyInBytes implements pkg/kernel.GuestMemory.
func (a *Arena) CopyInBytes(addr uintptr, dst []byte) (int, error) {
	off, err := a.offset(addr, len(dst))
	if err != nil {
		return 0, err
	}
	return copy(dst, a.base[off:off+len(dst)]), nil
}

// CopyOutBytes implements pkg/kernel.GuestMemory.
func (a *Arena) CopyOutBytes(addr uintptr, src []byte) (int, error) {
	off, err := a.offset(addr, len(src))
	if err != nil {
		return 0, err
	}
	return copy(a.base[off:off+len(src)], src), nil
}

// Mprotect implements pkg/trap.Protector by calling unix.Mprotect on the
// slice of the arena the interval [addr, addr+length) covers.
func (a *Arena) Mprotect(addr trap.Addr, length uintptr, prot int) error {
	off, err := a.offset(uintptr(addr), int(length))
	if err != nil {
		return err
	}
	return unix.Mprotect(a.base[off:off+int(length)], prot)
}

func (a *Arena) offset(addr uintptr, length int) (int, error) {
	base := uintptrOf(a.base)
	if addr < base || addr-base > uintptr(len(a.base)) || int(addr-base)+length > len(a.base) {
		return 0, errs.ErrInvalidAddress
	}
	return int(addr - base), nil
}
