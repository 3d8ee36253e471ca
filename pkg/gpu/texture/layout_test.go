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
	"bytes"
	"testing"
)

// params for a 256x256 RGBA8 (bpp=4) block-linear image with block height
// 4 GOBs and block depth 1 — the scenario spec.md §8 Scenario A names.
func scenarioAParams() BlockLinearParams {
	return BlockLinearParams{
		Width: 256, Height: 256, Depth: 1,
		FmtBlockW: 1, FmtBlockH: 1, BytesPerBlock: 4,
		GobBlockHeight: 4, GobBlockDepth: 1,
	}
}

func TestBlockLinearLayerSizeMatchesScenarioA(t *testing.T) {
	got := BlockLinearLayerSize(256, 256, 1, 1, 1, 4, 4, 1)
	want := 256 * 256 * 4 // evenly divisible image: exactly width*height*bpp
	if got != want {
		t.Fatalf("BlockLinearLayerSize = %d, want %d", got, want)
	}
}

func TestSwizzleDeswizzleRoundTrip(t *testing.T) {
	p := scenarioAParams()
	size := BlockLinearLayerSize(p.Width, p.Height, p.Depth, p.FmtBlockW, p.FmtBlockH, p.BytesPerBlock, p.GobBlockHeight, p.GobBlockDepth)

	linear := make([]byte, size)
	for i := range linear {
		linear[i] = byte(i)
	}

	tiled := make([]byte, size)
	Swizzle(linear, tiled, p)

	roundTripped := make([]byte, size)
	Deswizzle(roundTripped, tiled, p)

	if !bytes.Equal(linear, roundTripped) {
		t.Fatal("deswizzle(swizzle(buf)) != buf")
	}
}

func TestSwizzleConsumesEveryTiledByte(t *testing.T) {
	p := scenarioAParams()
	size := BlockLinearLayerSize(p.Width, p.Height, p.Depth, p.FmtBlockW, p.FmtBlockH, p.BytesPerBlock, p.GobBlockHeight, p.GobBlockDepth)

	linear := make([]byte, size)
	for i := range linear {
		linear[i] = 0xAB
	}
	tiled := make([]byte, size)
	Swizzle(linear, tiled, p)

	for i, b := range tiled {
		if b != 0xAB {
			t.Fatalf("tiled[%d] = %#x, want 0xab (every tiled byte should have been written, no unconsumed padding for an evenly-divisible image)", i, b)
		}
	}
}

func TestGobSectorOffsetsTileTheFullGob(t *testing.T) {
	seen := make(map[[2]int]bool)
	for i := 0; i < sectorsPerGob; i++ {
		x, y := gobSectorOffset(i)
		if x < 0 || x >= gobWidthBytes || y < 0 || y >= gobHeightLines {
			t.Fatalf("sector %d -> (%d,%d) out of GOB bounds", i, x, y)
		}
		seen[[2]int{x, y}] = true
	}
	if len(seen) != sectorsPerGob {
		t.Fatalf("sector offsets collide: got %d distinct positions, want %d", len(seen), sectorsPerGob)
	}
}

func TestCopyPitchLinearDifferentStrides(t *testing.T) {
	src := []byte{
		1, 2, 3, 4, 0xff, 0xff,
		5, 6, 7, 8, 0xff, 0xff,
	}
	dst := make([]byte, 4*2)
	CopyPitchLinear(dst, src, PitchLinearParams{RowBytes: 4, RowCount: 2, SrcStride: 6, DstStride: 4})
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(dst, want) {
		t.Fatalf("CopyPitchLinear = %v, want %v", dst, want)
	}
}
