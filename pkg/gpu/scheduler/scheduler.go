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

// Package scheduler implements the GPU command-queue collaborator named in
// spec.md §6: bounded in-flight command buffer submission and the one-shot
// Fence a Texture holds onto until its render pass (or readback) completes.
package scheduler

import (
	"context"
	"sync"

	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/sync/semaphore"

	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/internal/refcount"
)

// CommandBuffer is the recording handle passed to a Submit callback.
type CommandBuffer struct {
	Handle vk.CommandBuffer
}

// Fence is a one-shot synchronization object: Wait blocks until the
// submission it was returned from completes, exactly once. It embeds
// refcount.Refs, initialized to one reference when Submit creates it, so a
// holder can IncRef it while waiting and DecRef once Wait returns;
// pkg/gpu/texture does not hold Fences.
type Fence struct {
	refcount.Refs

	device vk.Device
	handle vk.Fence

	mu     sync.Mutex
	waited bool
}

func newFence(device vk.Device, handle vk.Fence) *Fence {
	f := &Fence{device: device, handle: handle}
	f.Refs.Init()
	return f
}

// Wait blocks until the fence signals or ctx is done, whichever comes
// first. Once a Wait has seen the fence signal, later calls return nil
// without re-entering the driver; after a failed or cancelled Wait, the
// next call waits on the driver again.
func (f *Fence) Wait(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.waited {
		return nil
	}

	done := make(chan vk.Result, 1)
	go func() {
		done <- vk.WaitForFences(f.device, 1, []vk.Fence{f.handle}, vk.True, ^uint64(0))
	}()

	select {
	case res := <-done:
		if res != vk.Success {
			return errs.NewFatal("scheduler: fence wait failed", nil)
		}
		f.waited = true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler submits recorded command buffers to a single Vulkan queue,
// bounding the number in flight with a weighted semaphore (spec.md §5.7;
// golang.org/x/sync is a direct teacher dependency).
type Scheduler struct {
	device vk.Device
	queue  vk.Queue
	pool   vk.CommandPool

	inFlight *semaphore.Weighted
}

// NewScheduler constructs a Scheduler bounding concurrent in-flight command
// buffers to maxInFlight.
func NewScheduler(device vk.Device, queue vk.Queue, pool vk.CommandPool, maxInFlight int64) *Scheduler {
	return &Scheduler{
		device:   device,
		queue:    queue,
		pool:     pool,
		inFlight: semaphore.NewWeighted(maxInFlight),
	}
}

// Submit allocates a command buffer, records it via record, submits it to
// the queue, and returns a Fence signaled on completion. Acquiring the
// in-flight semaphore blocks (respecting ctx) once maxInFlight submissions
// are outstanding.
func (s *Scheduler) Submit(ctx context.Context, record func(CommandBuffer)) (*Fence, error) {
	if err := s.inFlight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	release := func() { s.inFlight.Release(1) }

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        s.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(s.device, &allocInfo, buffers); res != vk.Success {
		release()
		return nil, errs.NewFatal("scheduler: AllocateCommandBuffers failed", nil)
	}
	cb := buffers[0]

	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if res := vk.BeginCommandBuffer(cb, &beginInfo); res != vk.Success {
		release()
		return nil, errs.NewFatal("scheduler: BeginCommandBuffer failed", nil)
	}

	record(CommandBuffer{Handle: cb})

	if res := vk.EndCommandBuffer(cb); res != vk.Success {
		release()
		return nil, errs.NewFatal("scheduler: EndCommandBuffer failed", nil)
	}

	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var vkFence vk.Fence
	if res := vk.CreateFence(s.device, &fenceInfo, nil, &vkFence); res != vk.Success {
		release()
		return nil, errs.NewFatal("scheduler: CreateFence failed", nil)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb},
	}
	if res := vk.QueueSubmit(s.queue, 1, []vk.SubmitInfo{submitInfo}, vkFence); res != vk.Success {
		release()
		return nil, errs.NewFatal("scheduler: QueueSubmit failed", nil)
	}

	f := newFence(s.device, vkFence)
	go func() {
		_ = f.Wait(context.Background())
		release()
	}()
	return f, nil
}
