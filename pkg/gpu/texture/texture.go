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
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/hollowcore/hle/internal/config"
	"github.com/hollowcore/hle/internal/refcount"
	"github.com/hollowcore/hle/pkg/trap"
)

// Tiling selects how a texture's backing guest memory is laid out.
type Tiling int

const (
	// PitchLinear is a plain row-major raster layout with a fixed row
	// stride.
	PitchLinear Tiling = iota
	// BlockLinear is the Morton-tiled GOB layout, see layout.go.
	BlockLinear
)

// DirtyState is the texture's guest/host synchronization state (spec.md
// §4.3's three-state machine):
//
//	Clean:    guest and host copies agree; no sync needed on access.
//	CpuDirty: the guest wrote through its trap; host copy must be
//	          refreshed from guest memory before the GPU reads it.
//	GpuDirty: the GPU rendered to the host copy; guest memory must be
//	          refreshed from the host copy before the guest reads it.
type DirtyState int

const (
	Clean DirtyState = iota
	CpuDirty
	GpuDirty
)

func (d DirtyState) String() string {
	switch d {
	case Clean:
		return "clean"
	case CpuDirty:
		return "cpu-dirty"
	case GpuDirty:
		return "gpu-dirty"
	default:
		return "unknown"
	}
}

// Role records how a texture was last bound, for render-pass bookkeeping
// and pipeline-barrier stage selection.
type Role int

const (
	RoleNone Role = iota
	RoleSampled
	RoleRenderTarget
)

// GuestTextureDescriptor is everything a guest GPU command needs to name a
// texture: its backing guest address range, dimensions, format, and
// tiling parameters.
type GuestTextureDescriptor struct {
	GuestBase  trap.Addr
	Width      int
	Height     int
	Depth      int
	MipLevels  int
	LayerCount int
	Format     Format
	Tiling     Tiling

	// Block-linear tiling parameters; ignored when Tiling == PitchLinear.
	GobBlockHeight int
	GobBlockDepth  int

	// Pitch, in bytes, between successive rows; only meaningful for
	// PitchLinear. Block-linear row pitch is derived (layout.go).
	Pitch int
}

// layerSize returns the guest storage footprint of a single layer/mip
// level, per the descriptor's tiling mode.
func (d GuestTextureDescriptor) layerSize() int {
	switch d.Tiling {
	case BlockLinear:
		return BlockLinearLayerSize(d.Width, d.Height, d.Depth,
			d.Format.BlockWidth, d.Format.BlockHeight, d.Format.BytesPerBlock,
			d.GobBlockHeight, d.GobBlockDepth)
	default:
		return d.Pitch * ceilDiv(d.Height, d.Format.BlockHeight)
	}
}

// mipDims halves Width/Height/Depth level times, floored at 1, per the
// standard mipmap chain convention.
func (d GuestTextureDescriptor) mipDims(level int) (w, h, depth int) {
	shrink := func(v int) int {
		v >>= uint(level)
		if v < 1 {
			v = 1
		}
		return v
	}
	return shrink(d.Width), shrink(d.Height), shrink(d.Depth)
}

// mipLevelSize returns one layer's storage footprint at the given mip
// level, recomputing the level's own dimensions and (for block-linear)
// row pitch rather than reusing level 0's, matching how a guest-packed mip
// chain actually shrinks per level.
func (d GuestTextureDescriptor) mipLevelSize(level int) int {
	w, h, depth := d.mipDims(level)
	switch d.Tiling {
	case BlockLinear:
		return BlockLinearLayerSize(w, h, depth,
			d.Format.BlockWidth, d.Format.BlockHeight, d.Format.BytesPerBlock,
			d.GobBlockHeight, d.GobBlockDepth)
	default:
		rowBytes := ceilDiv(w, d.Format.BlockWidth) * d.Format.BytesPerBlock
		return rowBytes * ceilDiv(h, d.Format.BlockHeight) * depth
	}
}

// layerStride returns the guest byte distance between successive layers:
// the sum of every mip level's footprint, since a layer's mip chain is
// guest-packed immediately after that layer's base level.
func (d GuestTextureDescriptor) layerStride() int {
	total := 0
	levels := d.MipLevels
	if levels < 1 {
		levels = 1
	}
	for m := 0; m < levels; m++ {
		total += d.mipLevelSize(m)
	}
	return total
}

// layerMipOffset returns the guest byte offset of (layer, mip) relative to
// the texture's GuestBase.
func (d GuestTextureDescriptor) layerMipOffset(layer, mip int) int {
	off := layer * d.layerStride()
	for m := 0; m < mip; m++ {
		off += d.mipLevelSize(m)
	}
	return off
}

// findLayerMip searches d's (layer, mip) grid for the entry whose guest
// offset (relative to d's GuestBase) equals relOffset and whose own
// mipLevelSize equals wantSize — spec.md §4.3 step 2's layer-mip match
// test. ok is false when no such entry exists.
func (d GuestTextureDescriptor) findLayerMip(relOffset, wantSize int) (layer, mip int, ok bool) {
	layers := d.LayerCount
	if layers < 1 {
		layers = 1
	}
	levels := d.MipLevels
	if levels < 1 {
		levels = 1
	}
	for l := 0; l < layers; l++ {
		for m := 0; m < levels; m++ {
			if d.layerMipOffset(l, m) == relOffset && d.mipLevelSize(m) == wantSize {
				return l, m, true
			}
		}
	}
	return 0, 0, false
}

// Texture is one host-side GPU image backing a span of guest memory,
// together with the bookkeeping the manager needs to keep the two in sync
// and to schedule barriers correctly across render passes.
//
// Grounded on the original source's Texture/TextureView pair
// (original_source/.../gpu/texture/texture.{h,cpp}), generalized per
// spec.md §9: the intrusive recursive mutex becomes contextLock, and
// outgoing view references become refcount.Refs rather than intrusive
// shared_ptr cycles.
type Texture struct {
	refcount.Refs
	lock *contextLock

	Desc GuestTextureDescriptor

	// Image is the host-side Vulkan image backing this texture. Left as
	// the zero value (vk.NullHandle) until the GPU allocator
	// (pkg/gpu/vkdriver) binds real device memory to it.
	Image vk.Image

	dirty DirtyState

	// trapGroup is this texture's registered guest-memory trap, armed
	// according to dirty, or 0 before the texture is wired to a live
	// trap.Manager.
	trapGroup trap.GroupID

	// Demotion bookkeeping (spec.md §4.3): once GPU-dirty reads reach
	// config.TextureDemoteReads and at least config.TextureDemoteWaitMillis
	// has elapsed since the first of them, the texture demotes from "sync to guest on every read" to a single
	// deferred writeback.
	gpuDirtyReads   int
	gpuDirtySince   time.Time
	demoted         bool
	demoteReads     int
	demoteWait      time.Duration

	// Render-pass bookkeeping.
	LastRenderPass int64
	Role           Role
	pendingStages  vk.PipelineStageFlags
}

// NewTexture constructs a Texture in the Clean state, with one reference
// held on behalf of the caller (mirroring refcount.Refs.Init's convention).
func NewTexture(desc GuestTextureDescriptor, cfg *config.Config) *Texture {
	t := &Texture{
		Desc:        desc,
		lock:        newContextLock(),
		dirty:       Clean,
		demoteReads: cfg.TextureDemoteReads,
		demoteWait:  time.Duration(cfg.TextureDemoteWaitMillis) * time.Millisecond,
	}
	t.Refs.Init()
	return t
}

// Lock acquires this texture's context-tagged lock.
func (t *Texture) Lock(tag ContextTag) { t.lock.Lock(tag) }

// Unlock releases this texture's context-tagged lock.
func (t *Texture) Unlock(tag ContextTag) { t.lock.Unlock(tag) }

// DirtyState returns the texture's current synchronization state.
func (t *Texture) DirtyState() DirtyState { return t.dirty }

// MarkCpuDirty transitions to CpuDirty: the guest wrote through its trap,
// so the host copy needs a refresh on next GPU access. Called from the
// trap group's OnWrite callback with the texture's lock already held by
// the fault-handling context tag.
func (t *Texture) MarkCpuDirty() {
	t.dirty = CpuDirty
	t.gpuDirtyReads = 0
	t.demoted = false
}

// MarkGpuDirty transitions to GpuDirty after a render pass writes the host
// copy: guest memory is now stale until SyncHostToGuest runs. renderPass
// identifies the submission for LastRenderPass bookkeeping.
func (t *Texture) MarkGpuDirty(renderPass int64) {
	t.dirty = GpuDirty
	t.LastRenderPass = renderPass
	t.gpuDirtyReads = 0
	t.gpuDirtySince = time.Time{}
	t.demoted = false
}

// NoteGuestRead accounts one guest-side read against a GpuDirty texture.
// Rather than pay a full host->guest sync on the very first read fault, a
// GpuDirty texture is left armed (and the guest sees its pre-render
// contents a little longer) until enough reads accumulate over enough
// elapsed time — at which point NoteGuestRead reports true and the caller
// performs the single deferred writeback spec.md §4.3 describes, batching
// what would otherwise be one sync per read fault into one sync total.
func (t *Texture) NoteGuestRead(now time.Time) (writeback bool) {
	if t.dirty != GpuDirty {
		return false
	}
	if t.gpuDirtyReads == 0 {
		t.gpuDirtySince = now
	}
	t.gpuDirtyReads++
	if t.gpuDirtyReads >= t.demoteReads && now.Sub(t.gpuDirtySince) >= t.demoteWait {
		t.demoted = true
		return true
	}
	return false
}

// SyncHostToGuest writes the texture's host-side bytes (already read back
// from the GPU by the caller, e.g. via a staging buffer) into guest
// memory using this texture's tiling, then marks the texture Clean.
func (t *Texture) SyncHostToGuest(guest, host []byte) {
	t.copyHostGuest(guest, host, swizzleDir)
	t.dirty = Clean
}

// SyncGuestToHost reads guest memory into the texture's host-side bytes
// using this texture's tiling, then marks the texture Clean.
func (t *Texture) SyncGuestToHost(guest, host []byte) {
	t.copyHostGuest(guest, host, deswizzleDir)
	t.dirty = Clean
}

func (t *Texture) copyHostGuest(guest, host []byte, dir copyDirection) {
	d := t.Desc
	switch d.Tiling {
	case BlockLinear:
		copyBlockLinear(dir, host, guest, BlockLinearParams{
			Width: d.Width, Height: d.Height, Depth: d.Depth,
			FmtBlockW: d.Format.BlockWidth, FmtBlockH: d.Format.BlockHeight,
			BytesPerBlock: d.Format.BytesPerBlock, GobBlockHeight: d.GobBlockHeight,
			GobBlockDepth: d.GobBlockDepth,
		})
	default:
		rowBytes := ceilDiv(d.Width, d.Format.BlockWidth) * d.Format.BytesPerBlock
		rows := ceilDiv(d.Height, d.Format.BlockHeight)
		p := PitchLinearParams{RowBytes: rowBytes, RowCount: rows}
		switch dir {
		case deswizzleDir:
			p.SrcStride, p.DstStride = d.Pitch, rowBytes
			CopyPitchLinear(host, guest, p)
		default:
			p.SrcStride, p.DstStride = rowBytes, d.Pitch
			CopyPitchLinear(guest, host, p)
		}
	}
}

// PendingReadStages reports the Vulkan pipeline stages that must complete
// before this texture's host memory may be safely read back to the guest —
// Role determines whether that's the fragment stage (sampled) or the
// color/depth output stage (render target).
func (t *Texture) PendingReadStages() vk.PipelineStageFlags {
	switch t.Role {
	case RoleRenderTarget:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
			vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
	case RoleSampled:
		return vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	default:
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
}
