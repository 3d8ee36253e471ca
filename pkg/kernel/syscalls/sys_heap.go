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

// Package syscalls holds the dense syscall table's handler bodies, one file
// per syscall family, grounded on pkg/sentry/syscalls/linux's sys_*.go
// layout.
package syscalls

import (
	"github.com/hollowcore/hle/pkg/kernel"
	"github.com/hollowcore/hle/pkg/kernel/arch"
)

// SetHeapSize implements set_heap_size (original_source svc.cpp
// SetHeapSize, SVC 0x01): grows or shrinks the guest heap to the requested
// size and returns its base address. This core has no memory-map
// collaborator (spec.md §1 Non-goals), so the base is always
// kernel.HeapBase; only the bookkeeping size changes.
func SetHeapSize(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	args := regs.Args()
	size := uintptr(args[0].SizeT())
	aligned := (size + kernel.PageSize - 1) &^ (kernel.PageSize - 1)
	k.SetHeapSize(kernel.HeapBase, aligned)
	regs.SetReturnPair(0, uint64(kernel.HeapBase))
	return nil
}
