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

// Package texture implements the texture manager and block-linear/
// pitch-linear layout engine (spec.md §4.3): a content-addressed
// Find-Or-Create lookup over guest memory spans, a dirty-state machine
// keeping guest and GPU-side copies in sync, and the Morton-swizzle layout
// math Nvidia-class GPUs use for tiled images.
package texture

import vk "github.com/vulkan-go/vulkan"

// Format describes one supported guest pixel format: its storage size, the
// Vulkan format it's uploaded as, which image aspects it covers, its
// compressed block footprint (1x1 for uncompressed formats), a component
// swizzle, and whether it stores stencil before depth (a handful of
// combined depth/stencil formats do).
type Format struct {
	Name          string
	BytesPerBlock int
	VkFormat      vk.Format
	AspectMask    vk.ImageAspectFlags
	BlockWidth    int
	BlockHeight   int
	Swizzle       [4]vk.ComponentSwizzle
	StencilFirst  bool

	// compatClass groups formats that are bit-compatible for aliasing
	// purposes (spec.md §4.3 "format is bit-compatible"): same total bits
	// per block and same aspect, differing only in how components are
	// interpreted (e.g. RGBA8 Unorm vs RGBA8 Uint).
	compatClass int
}

// Compatible reports whether a and b may alias the same host texture
// storage (spec.md §4.3's "format is bit-compatible" test).
func (a Format) Compatible(b Format) bool {
	return a.compatClass == b.compatClass && a.BytesPerBlock == b.BytesPerBlock &&
		a.BlockWidth == b.BlockWidth && a.BlockHeight == b.BlockHeight
}

// A representative format table; additional entries are straightforward to
// add in the same shape. Swizzle identity is {R,G,B,A} unless noted.
var (
	identitySwizzle = [4]vk.ComponentSwizzle{
		vk.ComponentSwizzleR, vk.ComponentSwizzleG, vk.ComponentSwizzleB, vk.ComponentSwizzleA,
	}

	RGBA8Unorm = Format{
		Name: "RGBA8_UNORM", BytesPerBlock: 4, VkFormat: vk.FormatR8g8b8a8Unorm,
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BlockWidth: 1, BlockHeight: 1, Swizzle: identitySwizzle, compatClass: 1,
	}
	RGBA8Uint = Format{
		Name: "RGBA8_UINT", BytesPerBlock: 4, VkFormat: vk.FormatR8g8b8a8Uint,
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BlockWidth: 1, BlockHeight: 1, Swizzle: identitySwizzle, compatClass: 1,
	}
	BC1Unorm = Format{
		Name: "BC1_UNORM", BytesPerBlock: 8, VkFormat: vk.FormatBc1RgbaUnormBlock,
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BlockWidth: 4, BlockHeight: 4, Swizzle: identitySwizzle, compatClass: 2,
	}
	D24UnormS8Uint = Format{
		Name: "D24_UNORM_S8_UINT", BytesPerBlock: 4, VkFormat: vk.FormatD24UnormS8Uint,
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectDepthBit) | vk.ImageAspectFlags(vk.ImageAspectStencilBit),
		BlockWidth: 1, BlockHeight: 1, Swizzle: identitySwizzle, compatClass: 3, StencilFirst: false,
	}
)
