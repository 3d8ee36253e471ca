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

// Package nvdrv is a minimal stand-in for original_source's nvdrv device
// nodes (nvdrv/devices/nvmap.*, nvhost_as_gpu.* in original_source), named
// in SPEC_FULL.md §7 as the believable upstream source of the CPU address
// spans pkg/gpu/texture.GuestTextureDescriptor.GuestBase ultimately comes
// from on the real platform: a guest ioctl's "nvmap alloc" names a host
// buffer by a small integer handle, then "nvmap get address" resolves that
// handle back to the guest virtual address range backing it.
//
// Only that handle<->range indirection is modeled; page kinds, compression
// tags, and the rest of nvmap's ioctl surface are out of scope (spec.md §1
// excludes Vulkan-driver-specifics beyond what the texture manager needs).
package nvdrv

import (
	"sync"

	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/pkg/trap"
)

// MapHandle identifies one nvmap allocation, analogous to original_source's
// NvMapHandle id returned from an NVMAP_IOC_CREATE ioctl.
type MapHandle uint32

// mapping is one nvmap allocation: the guest address range it was bound to
// via NVMAP_IOC_ALLOC, plus its declared size.
type mapping struct {
	base trap.Addr
	size uint64
}

// Nvmap is the nvmap device node stub: guest code allocates a handle,
// binds it to a guest address range, and later resolves the handle back to
// that range — the only part of the real ioctl surface a texture lookup
// needs.
type Nvmap struct {
	mu      sync.Mutex
	handles map[MapHandle]*mapping
	next    MapHandle
}

// NewNvmap returns an empty Nvmap device.
func NewNvmap() *Nvmap {
	return &Nvmap{handles: make(map[MapHandle]*mapping), next: 1}
}

// Create allocates a new, unbound handle of the given size (NVMAP_IOC_CREATE).
func (n *Nvmap) Create(size uint64) MapHandle {
	n.mu.Lock()
	defer n.mu.Unlock()
	h := n.next
	n.next++
	n.handles[h] = &mapping{size: size}
	return h
}

// Alloc binds h to a guest address range (NVMAP_IOC_ALLOC). base must
// already be the resolved guest virtual address of the backing allocation;
// this stub does not itself perform guest memory reservation.
func (n *Nvmap) Alloc(h MapHandle, base trap.Addr) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	m, ok := n.handles[h]
	if !ok {
		return errs.ErrInvalidHandle
	}
	m.base = base
	return nil
}

// GetAddress resolves h back to its guest address range (NVMAP_IOC_GET_ID
// / the address query half of the real ioctl pair), returning the base
// address and size an nvhost_as_gpu "map buffer" call would hand the GPU.
func (n *Nvmap) GetAddress(h MapHandle) (base trap.Addr, size uint64, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	m, ok := n.handles[h]
	if !ok {
		return 0, 0, errs.ErrInvalidHandle
	}
	if m.base == 0 {
		return 0, 0, errs.NewGuestError(1, 200) // handle never bound via Alloc
	}
	return m.base, m.size, nil
}

// Free releases h. Unlike pkg/gpu/texture's refcounted Texture/View,
// original_source's nvmap handles are refcounted per-process by the
// driver; this stub only needs single-owner semantics since it is not on
// the hot render path.
func (n *Nvmap) Free(h MapHandle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.handles, h)
}
