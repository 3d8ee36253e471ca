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
	"time"

	"github.com/hollowcore/hle/internal/config"
)

func testDescriptor() GuestTextureDescriptor {
	return GuestTextureDescriptor{
		GuestBase: 0x1000, Width: 64, Height: 64, Depth: 1,
		MipLevels: 1, LayerCount: 1, Format: RGBA8Unorm, Tiling: PitchLinear,
		Pitch: 64 * 4,
	}
}

func TestTextureStartsClean(t *testing.T) {
	tex := NewTexture(testDescriptor(), config.Default())
	if tex.DirtyState() != Clean {
		t.Fatalf("DirtyState = %v, want Clean", tex.DirtyState())
	}
}

func TestMarkCpuDirtyThenMarkGpuDirty(t *testing.T) {
	tex := NewTexture(testDescriptor(), config.Default())
	tex.MarkCpuDirty()
	if tex.DirtyState() != CpuDirty {
		t.Fatalf("DirtyState = %v, want CpuDirty", tex.DirtyState())
	}
	tex.MarkGpuDirty(1)
	if tex.DirtyState() != GpuDirty {
		t.Fatalf("DirtyState = %v, want GpuDirty", tex.DirtyState())
	}
	if tex.LastRenderPass != 1 {
		t.Fatalf("LastRenderPass = %d, want 1", tex.LastRenderPass)
	}
}

func TestNoteGuestReadIgnoredWhenNotGpuDirty(t *testing.T) {
	cfg := config.Default()
	cfg.TextureDemoteReads = 1
	cfg.TextureDemoteWaitMillis = 0
	tex := NewTexture(testDescriptor(), cfg)
	if tex.NoteGuestRead(time.Now()) {
		t.Fatal("NoteGuestRead fired a writeback on a Clean texture")
	}
}

func TestNoteGuestReadWritebackAfterThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.TextureDemoteReads = 3
	cfg.TextureDemoteWaitMillis = 0
	tex := NewTexture(testDescriptor(), cfg)
	tex.MarkGpuDirty(1)

	for i := 0; i < 2; i++ {
		if tex.NoteGuestRead(time.Now()) {
			t.Fatalf("writeback fired early on read %d", i)
		}
	}
	if !tex.NoteGuestRead(time.Now()) {
		t.Fatal("writeback did not fire once the read threshold was reached")
	}
}

func TestSyncRoundTripPitchLinear(t *testing.T) {
	tex := NewTexture(testDescriptor(), config.Default())
	guest := make([]byte, tex.Desc.Pitch*tex.Desc.Height)
	for i := range guest {
		guest[i] = byte(i)
	}
	host := make([]byte, tex.Desc.Width*tex.Desc.Height*tex.Desc.Format.BytesPerBlock)
	tex.SyncGuestToHost(guest, host)
	if tex.DirtyState() != Clean {
		t.Fatalf("DirtyState after SyncGuestToHost = %v, want Clean", tex.DirtyState())
	}

	roundTripped := make([]byte, len(guest))
	tex.SyncHostToGuest(roundTripped, host)
	for y := 0; y < tex.Desc.Height; y++ {
		rowBytes := tex.Desc.Width * tex.Desc.Format.BytesPerBlock
		want := guest[y*tex.Desc.Pitch : y*tex.Desc.Pitch+rowBytes]
		got := roundTripped[y*tex.Desc.Pitch : y*tex.Desc.Pitch+rowBytes]
		for i := range want {
			if want[i] != got[i] {
				t.Fatalf("row %d byte %d: got %d want %d", y, i, got[i], want[i])
			}
		}
	}
}
