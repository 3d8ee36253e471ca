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

import vk "github.com/vulkan-go/vulkan"

// View is a reinterpretation of a sub-range of a Texture's mip levels and
// array layers, optionally through a bit-compatible format (spec.md §4.3's
// Find-Or-Create may return either a brand-new texture or a View over an
// existing one when the guest's request only partially overlaps it).
//
// Per spec.md §9's redesign note ("cyclic references between texture
// views and textures that complicate teardown ordering ... model views as
// non-owning indices into a slot table plus a strong count on the parent"):
// View holds a plain pointer back to its parent (Go's collector handles
// the resulting cycle without help), but every View construction takes a
// strong reference via parent.IncRef, and Release drops it via DecRef —
// the parent's Vulkan image is never torn down while a View still exists,
// exactly as an index-plus-count design would enforce, without requiring
// an actual slot-table indirection.
type View struct {
	parent *Texture

	MipBase, MipCount     int
	LayerBase, LayerCount int
	Format                Format
	ImageView             vk.ImageView
}

// NewView takes a strong reference on parent and returns a View over the
// given mip/layer range reinterpreted as format (which must be
// format.Compatible with parent.Desc.Format unless the caller has already
// validated a deliberate aliasing reinterpretation).
func NewView(parent *Texture, mipBase, mipCount, layerBase, layerCount int, format Format) *View {
	parent.IncRef()
	return &View{
		parent:     parent,
		MipBase:    mipBase,
		MipCount:   mipCount,
		LayerBase:  layerBase,
		LayerCount: layerCount,
		Format:     format,
	}
}

// Texture returns the parent texture this view reinterprets.
func (v *View) Texture() *Texture { return v.parent }

// Release drops this view's strong reference on its parent. destroy is
// invoked if this was the parent's last reference (the caller is
// expected to tear down GPU resources there).
func (v *View) Release(destroy func()) {
	v.parent.DecRef(destroy)
	v.parent = nil
}
