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
	"testing"

	"github.com/hollowcore/hle/internal/config"
	"github.com/hollowcore/hle/pkg/trap"
)

// fakeProtector is a no-op trap.Protector: these tests exercise the
// texture cache's bookkeeping, not host page protection (pkg/trap has its
// own Protector coverage).
type fakeProtector struct{}

func (fakeProtector) Mprotect(trap.Addr, uintptr, int) error { return nil }

func newTestManager() *Manager {
	traps := trap.NewManager(0x1000, fakeProtector{})
	return NewManager(config.Default(), traps)
}

func TestLookupCreatesNewTextureOnFirstRequest(t *testing.T) {
	m := newTestManager()
	desc := GuestTextureDescriptor{
		GuestBase: 0x10000, Width: 32, Height: 32, Depth: 1,
		MipLevels: 1, LayerCount: 1, Format: RGBA8Unorm, Tiling: PitchLinear,
		Pitch: 32 * 4,
	}
	v, err := m.Lookup(desc)
	if err != nil {
		t.Fatal(err)
	}
	if v.Texture() == nil {
		t.Fatal("Lookup returned a View with no backing texture")
	}
	if len(m.textures) != 1 {
		t.Fatalf("manager has %d textures, want 1", len(m.textures))
	}
}

func TestLookupReusesIdenticalDescriptor(t *testing.T) {
	m := newTestManager()
	desc := GuestTextureDescriptor{
		GuestBase: 0x20000, Width: 32, Height: 32, Depth: 1,
		MipLevels: 1, LayerCount: 1, Format: RGBA8Unorm, Tiling: PitchLinear,
		Pitch: 32 * 4,
	}
	v1, err := m.Lookup(desc)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := m.Lookup(desc)
	if err != nil {
		t.Fatal(err)
	}
	if v1.Texture() != v2.Texture() {
		t.Fatal("two Lookups of the identical descriptor produced different host textures")
	}
	if len(m.textures) != 1 {
		t.Fatalf("manager has %d textures, want 1 (second lookup should not have created a new one)", len(m.textures))
	}
}

func TestLookupReplacesIncompatibleOverlap(t *testing.T) {
	m := newTestManager()
	base := GuestTextureDescriptor{
		GuestBase: 0x30000, Width: 32, Height: 32, Depth: 1,
		MipLevels: 1, LayerCount: 1, Format: RGBA8Unorm, Tiling: PitchLinear,
		Pitch: 32 * 4,
	}
	first, err := m.Lookup(base)
	if err != nil {
		t.Fatal(err)
	}

	incompatible := base
	incompatible.Format = BC1Unorm // different compatClass, same guest base
	second, err := m.Lookup(incompatible)
	if err != nil {
		t.Fatal(err)
	}
	if first.Texture() == second.Texture() {
		t.Fatal("an incompatible overlapping descriptor should have replaced the prior texture, not reused it")
	}
	if len(m.textures) != 1 {
		t.Fatalf("manager has %d textures, want 1 (stale texture should have been evicted)", len(m.textures))
	}
}

func TestLookupLayerMipMatchReturnsMatchedSubRange(t *testing.T) {
	m := newTestManager()
	t1 := GuestTextureDescriptor{
		GuestBase: 0x50000, Width: 256, Height: 256, Depth: 1,
		MipLevels: 4, LayerCount: 4, Format: RGBA8Unorm, Tiling: BlockLinear,
		GobBlockHeight: 1, GobBlockDepth: 1,
	}
	first, err := m.Lookup(t1)
	if err != nil {
		t.Fatal(err)
	}

	// T2 names exactly T1's layer 1, mip 2: same base address plus that
	// (layer, mip)'s offset within T1, and that mip level's own size.
	t2 := GuestTextureDescriptor{
		GuestBase: t1.GuestBase + trap.Addr(t1.layerMipOffset(1, 2)),
		Width:     64, Height: 64, Depth: 1,
		MipLevels: 1, LayerCount: 1, Format: RGBA8Unorm, Tiling: BlockLinear,
		GobBlockHeight: 1, GobBlockDepth: 1,
	}
	second, err := m.Lookup(t2)
	if err != nil {
		t.Fatal(err)
	}

	if second.Texture() != first.Texture() {
		t.Fatal("a layer-mip match should reuse the existing texture, not allocate a new one")
	}
	if second.LayerBase != 1 || second.LayerCount != 1 {
		t.Fatalf("LayerBase/LayerCount = %d/%d, want 1/1", second.LayerBase, second.LayerCount)
	}
	if second.MipBase != 2 || second.MipCount != 1 {
		t.Fatalf("MipBase/MipCount = %d/%d, want 2/1", second.MipBase, second.MipCount)
	}
	if len(m.textures) != 1 {
		t.Fatalf("manager has %d textures, want 1 (layer-mip match must not evict the matched texture)", len(m.textures))
	}
}

func TestArmGpuDirtyReadTransitionsState(t *testing.T) {
	m := newTestManager()
	desc := GuestTextureDescriptor{
		GuestBase: 0x40000, Width: 16, Height: 16, Depth: 1,
		MipLevels: 1, LayerCount: 1, Format: RGBA8Unorm, Tiling: PitchLinear,
		Pitch: 16 * 4,
	}
	v, err := m.Lookup(desc)
	if err != nil {
		t.Fatal(err)
	}
	tex := v.Texture()
	if err := m.ArmGpuDirtyRead(tex, 42); err != nil {
		t.Fatal(err)
	}
	if tex.DirtyState() != GpuDirty {
		t.Fatalf("DirtyState = %v, want GpuDirty", tex.DirtyState())
	}
	if tex.LastRenderPass != 42 {
		t.Fatalf("LastRenderPass = %d, want 42", tex.LastRenderPass)
	}
}
