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
	"unsafe"

	"github.com/hollowcore/hle/internal/errs"
	"golang.org/x/sys/unix"
)

// AnonRegion is the production Protector: one anonymous mmap backing the
// entire managed address range, reprotected a sub-range at a time via
// mprotect. Grounded on pkg/tcpip/link/fdbased/mmap.go's use of
// unix.Mmap/unsafe.Pointer arithmetic over a ring buffer, adapted here to a
// single flat region instead of a ring of fixed-size frames.
type AnonRegion struct {
	base Addr
	buf  []byte
}

// NewAnonRegion reserves size bytes of anonymous memory and reports the
// address it landed at (the kernel chooses it; callers needing a specific
// guest-visible base must remap or copy through this region rather than
// assume one).
func NewAnonRegion(size uintptr) (*AnonRegion, error) {
	buf, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errs.NewFatal("trap: mmap region", err)
	}
	return &AnonRegion{
		base: Addr(uintptr(unsafe.Pointer(&buf[0]))),
		buf:  buf,
	}, nil
}

// Base returns the host address the region was mapped at.
func (r *AnonRegion) Base() Addr { return r.base }

// Bytes exposes the backing slice for callers that need to read/write guest
// memory directly (the GuestMemory collaborator named in pkg/kernel).
func (r *AnonRegion) Bytes() []byte { return r.buf }

// Mprotect implements Protector by reslicing the backing buffer to
// [addr, addr+length) and calling unix.Mprotect on that view; slicing does
// not copy, so the syscall still applies to the underlying mapped pages.
func (r *AnonRegion) Mprotect(addr Addr, length uintptr, prot int) error {
	off := uintptr(addr - r.base)
	if off > uintptr(len(r.buf)) || off+length > uintptr(len(r.buf)) {
		return errs.NewConfigError("trap: mprotect range [%#x, %#x) outside managed region", addr, addr+Addr(length))
	}
	if err := unix.Mprotect(r.buf[off:off+length], prot); err != nil {
		return errs.NewFatal("trap: mprotect", err)
	}
	return nil
}

// Unmap releases the region. Not expected to run during normal operation
// (the region lives for the process's lifetime); provided for test
// cleanup.
func (r *AnonRegion) Unmap() error {
	return unix.Munmap(r.buf)
}
