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

package texture

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hollowcore/hle/internal/config"
	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/pkg/trap"
)

// Manager is the Find-Or-Create texture cache (spec.md §4.3), one per GPU
// channel: guest GPU commands name textures by guest address range and
// format, and Manager resolves each such descriptor to a View over a
// cached host Texture, creating one only when no existing texture (or
// sub-range of one) already covers the request.
//
// Grounded on the original source's TextureManager/PresentationTexture
// lookup (original_source/.../gpu/texture/texture_manager.cpp)'s sorted
// address-range scan; reimplemented here as a sorted slice rather than
// the original's intrusive tree, since Go's sort.Search over a slice gives
// the same O(log n) starting point for the backward overlap walk.
type Manager struct {
	mu    sync.Mutex
	cfg   *config.Config
	traps *trap.Manager

	// textures is kept sorted by Desc.GuestBase ascending.
	textures []*Texture

	renderPass atomic.Int64
	nextTag    atomic.Uint64
}

// NewManager constructs an empty texture cache backed by traps for guest
// memory synchronization.
func NewManager(cfg *config.Config, traps *trap.Manager) *Manager {
	return &Manager{cfg: cfg, traps: traps}
}

// NextContextTag allocates a fresh ContextTag for a new GPU submission
// context.
func (m *Manager) NextContextTag() ContextTag {
	return ContextTag(m.nextTag.Add(1))
}

// BeginRenderPass allocates a fresh render-pass identifier for
// Texture.LastRenderPass bookkeeping.
func (m *Manager) BeginRenderPass() int64 {
	return m.renderPass.Add(1)
}

// guestRange returns the [start, end) guest address range a descriptor
// occupies. Multi-layer/mip textures are addressed by their full
// footprint: the per-layer size (layerStride, which includes every mip
// level when there is more than one) times layer count — each layer's mip
// chain is guest-packed immediately after that layer's base level,
// matching the source platform's pool layout.
func (d GuestTextureDescriptor) guestRange() (start, end trap.Addr) {
	perLayer := d.layerSize()
	if d.MipLevels > 1 {
		perLayer = d.layerStride()
	}
	size := perLayer * d.LayerCount
	return d.GuestBase, d.GuestBase + trap.Addr(size)
}

// Lookup resolves desc to a View, reusing an existing Texture (or a
// sub-range View over one) when a suitable candidate already covers the
// requested guest range, per spec.md §4.3's four-step classification:
// binary search to an insertion point, walk backwards while candidates
// overlap, classify each as a full match / layer-mip match / plain
// overlap, and prefer a layer-mip match over a full match when both
// exist — the weaker alternative is evicted.
func (m *Manager) Lookup(desc GuestTextureDescriptor) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start, end := desc.guestRange()

	idx := sort.Search(len(m.textures), func(i int) bool {
		return m.textures[i].Desc.GuestBase >= start
	})

	var fullMatch, layerMipMatch *Texture
	var matchedLayer, matchedMip int
	var overlapping []*Texture

	classify := func(cand *Texture, cs, ce trap.Addr) {
		switch {
		case cs == start && ce == end && cand.Desc.Format.Compatible(desc.Format) && cand.Desc.Tiling == desc.Tiling:
			fullMatch = cand
		case cs <= start && end <= ce && cand.Desc.Format.Compatible(desc.Format) && cand.Desc.Tiling == desc.Tiling:
			if layer, mip, ok := cand.Desc.findLayerMip(int(start-cs), desc.layerSize()); ok {
				layerMipMatch = cand
				matchedLayer, matchedMip = layer, mip
			}
		}
	}

	for i := idx - 1; i >= 0; i-- {
		cand := m.textures[i]
		cs, ce := cand.Desc.guestRange()
		if ce <= start {
			// This candidate ends before [start,end); the list is sorted by
			// start address, so an earlier one may still reach into it.
			continue
		}
		if cs >= end {
			continue
		}
		overlapping = append(overlapping, cand)
		classify(cand, cs, ce)
	}
	// idx onward may also overlap (desc extends past an existing texture
	// that starts within it); scan forward too.
	for i := idx; i < len(m.textures); i++ {
		cand := m.textures[i]
		cs, ce := cand.Desc.guestRange()
		if cs >= end {
			break
		}
		overlapping = append(overlapping, cand)
		classify(cand, cs, ce)
	}

	// Prefer the layer-mip match: it lets the guest address a sub-range
	// of an existing texture without evicting the rest of it.
	chosen := layerMipMatch
	if chosen == nil {
		chosen = fullMatch
	}

	if chosen != nil {
		m.evictOthers(overlapping, chosen)
		if chosen == layerMipMatch {
			view := NewView(chosen, matchedMip, 1, matchedLayer, 1, desc.Format)
			return view, nil
		}
		view := NewView(chosen, 0, chosen.Desc.MipLevels, 0, chosen.Desc.LayerCount, desc.Format)
		return view, nil
	}

	// No usable candidate: any overlapping texture is now stale and must
	// be replaced outright (spec.md §4.3's "unresolvable overlap ->
	// silently replace older").
	m.evictOthers(overlapping, nil)

	t := NewTexture(desc, m.cfg)
	if err := m.registerTrap(t); err != nil {
		return nil, err
	}
	m.insert(t)
	return NewView(t, 0, t.Desc.MipLevels, 0, t.Desc.LayerCount, desc.Format), nil
}

// evictOthers removes every texture in candidates other than keep from
// the manager's index and drops the manager's own strong reference to it.
func (m *Manager) evictOthers(candidates []*Texture, keep *Texture) {
	for _, cand := range candidates {
		if cand == keep {
			continue
		}
		m.remove(cand)
		m.traps.Delete(cand.trapGroup)
		cand.DecRef(nil)
	}
}

func (m *Manager) insert(t *Texture) {
	m.textures = append(m.textures, t)
	sort.Slice(m.textures, func(i, j int) bool {
		return m.textures[i].Desc.GuestBase < m.textures[j].Desc.GuestBase
	})
}

func (m *Manager) remove(t *Texture) {
	for i, cand := range m.textures {
		if cand == t {
			m.textures = append(m.textures[:i], m.textures[i+1:]...)
			return
		}
	}
}

// registerTrap installs a guest-memory trap group over t's guest range,
// initially WriteOnly (spec.md §4.3: a Clean texture only needs to notice
// guest writes). A write fault marks t CpuDirty. ArmGpuDirtyRead additionally
// arms ReadWrite so guest reads are also trapped until the manager
// resolves them back to Clean (see ArmGpuDirtyRead below); the actual byte
// movement on that path belongs to the GPU scheduler's readback
// completion (pkg/gpu/scheduler), which holds the real guest-memory and
// staging-buffer handles — this package's OnRead only drives the
// state-machine transition and demotion bookkeeping it governs.
func (m *Manager) registerTrap(t *Texture) error {
	start, end := t.Desc.guestRange()
	cbs := trap.Callbacks{
		Lock:   func() { t.Lock(trapLockTag) },
		Unlock: func() { t.Unlock(trapLockTag) },
		OnWrite: func(trap.Addr) bool {
			t.MarkCpuDirty()
			return true
		},
		OnRead: func(trap.Addr) bool {
			if !t.NoteGuestRead(time.Now()) {
				return true
			}
			t.dirty = Clean
			return m.traps.Arm(t.trapGroup, trap.WriteOnly) == nil
		},
	}
	id, err := m.traps.Register([]trap.Interval{{Start: start, End: end}}, trap.WriteOnly, cbs)
	if err != nil {
		return errs.NewFatal("texture: failed to register guest trap", err)
	}
	t.trapGroup = id
	return nil
}

// ArmGpuDirtyRead transitions t to GpuDirty after a render pass writes its
// host image, and arms its trap ReadWrite so the next guest read (or
// enough reads to cross the demotion threshold) is observed.
func (m *Manager) ArmGpuDirtyRead(t *Texture, renderPass int64) error {
	t.MarkGpuDirty(renderPass)
	return m.traps.Arm(t.trapGroup, trap.ReadWrite)
}
