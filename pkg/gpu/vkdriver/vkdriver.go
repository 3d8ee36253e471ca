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

// Package vkdriver is the Vulkan memory allocator collaborator named in
// spec.md §6: it wraps github.com/vulkan-go/vulkan buffer/image allocation
// and layout transitions behind the small surface pkg/gpu/texture and
// pkg/gpu/scheduler actually need, rather than exposing the whole Vulkan
// API to callers.
package vkdriver

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/hollowcore/hle/internal/errs"
)

// Driver owns a logical device and physical device memory properties
// needed to allocate and bind device memory.
type Driver struct {
	physical vk.PhysicalDevice
	device   vk.Device
}

// New wraps an already-created logical device.
func New(physical vk.PhysicalDevice, device vk.Device) *Driver {
	return &Driver{physical: physical, device: device}
}

// StagingBuffer is host-visible, host-coherent memory used to move texture
// bytes between guest memory and a device-local Image.
type StagingBuffer struct {
	Buffer vk.Buffer
	Memory vk.DeviceMemory
	Size   vk.DeviceSize
}

// AllocateStaging allocates a host-visible buffer of size bytes suitable
// for CPU-side reads and writes (spec.md §5.7).
func (d *Driver) AllocateStaging(size int) (*StagingBuffer, error) {
	bufInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if res := vk.CreateBuffer(d.device, &bufInfo, nil, &buf); res != vk.Success {
		return nil, errs.NewFatal("vkdriver: CreateBuffer failed", nil)
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buf, &req)
	req.Deref()

	typeIdx, err := d.findMemoryType(req.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIdx,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &allocInfo, nil, &mem); res != vk.Success {
		return nil, errs.NewFatal("vkdriver: AllocateMemory failed", nil)
	}
	if res := vk.BindBufferMemory(d.device, buf, mem, 0); res != vk.Success {
		return nil, errs.NewFatal("vkdriver: BindBufferMemory failed", nil)
	}

	return &StagingBuffer{Buffer: buf, Memory: mem, Size: vk.DeviceSize(size)}, nil
}

// Map returns a host-addressable view of the staging buffer's memory.
func (d *Driver) Map(s *StagingBuffer) ([]byte, error) {
	var ptr unsafe.Pointer
	if res := vk.MapMemory(d.device, s.Memory, 0, s.Size, 0, &ptr); res != vk.Success {
		return nil, errs.NewFatal("vkdriver: MapMemory failed", nil)
	}
	return unsafe.Slice((*byte)(ptr), int(s.Size)), nil
}

// Unmap releases a previously Map'd staging buffer.
func (d *Driver) Unmap(s *StagingBuffer) {
	vk.UnmapMemory(d.device, s.Memory)
}

// ImageDesc is the minimal shape pkg/gpu/texture needs to request a
// device-local image.
type ImageDesc struct {
	Width, Height, Depth int
	MipLevels            int
	ArrayLayers          int
	Format               vk.Format
	Usage                vk.ImageUsageFlags
}

// Image is a device-local Vulkan image plus its bound memory.
type Image struct {
	Handle vk.Image
	Memory vk.DeviceMemory
}

// AllocateImage creates a device-local 2D (or 3D, when Depth > 1) image
// per desc and binds device-local memory to it.
func (d *Driver) AllocateImage(desc ImageDesc) (*Image, error) {
	imageType := vk.ImageType2d
	if desc.Depth > 1 {
		imageType = vk.ImageType3d
	}

	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imageType,
		Format:    desc.Format,
		Extent: vk.Extent3D{
			Width:  uint32(desc.Width),
			Height: uint32(desc.Height),
			Depth:  uint32(desc.Depth),
		},
		MipLevels:     uint32(desc.MipLevels),
		ArrayLayers:   uint32(desc.ArrayLayers),
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         desc.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if res := vk.CreateImage(d.device, &info, nil, &img); res != vk.Success {
		return nil, errs.NewFatal("vkdriver: CreateImage failed", nil)
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img, &req)
	req.Deref()

	typeIdx, err := d.findMemoryType(req.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIdx,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &allocInfo, nil, &mem); res != vk.Success {
		return nil, errs.NewFatal("vkdriver: AllocateMemory failed", nil)
	}
	if res := vk.BindImageMemory(d.device, img, mem, 0); res != vk.Success {
		return nil, errs.NewFatal("vkdriver: BindImageMemory failed", nil)
	}

	return &Image{Handle: img, Memory: mem}, nil
}

// findMemoryType picks the first memory type in typeBits whose property
// flags are a superset of want.
func (d *Driver) findMemoryType(typeBits uint32, want vk.MemoryPropertyFlags) (uint32, error) {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &props)
	props.Deref()

	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		props.MemoryTypes[i].Deref()
		if props.MemoryTypes[i].PropertyFlags&want == want {
			return i, nil
		}
	}
	return 0, errs.NewFatal(fmt.Sprintf("vkdriver: no memory type matches bits=%#x want=%#x", typeBits, want), nil)
}
