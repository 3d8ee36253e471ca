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

package syscalls

import (
	"github.com/hollowcore/hle/internal/corelog"
	"github.com/hollowcore/hle/pkg/kernel"
	"github.com/hollowcore/hle/pkg/kernel/arch"
)

// CreateThread implements create_thread (original_source svc.cpp
// CreateThread, SVC 0x08): entry in X1, stack top in X3, priority in W4
// (the source platform's ABI reserves X2 for the thread's initial argument,
// which this core has nothing to do with since it doesn't run the created
// thread's entry point itself). A fresh TLS slot is allocated internally
// since TLS-page accounting belongs to the thread-pool collaborator
// (spec.md §1 Non-goals).
func CreateThread(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	args := regs.Args()
	entry := args[1].Pointer()
	stackTop := args[3].Pointer()
	priority := int(args[4].Int())

	tls := k.AllocTLS()
	nt := kernel.NewThread(priority, tls, stackTop)
	nt.SetRegs(arch.RegisterFile{PC: entry, SP: stackTop, TLS: tls})

	h := k.Objects.Insert(nt)
	nt.SetHandle(h)

	corelog.Debugf("syscalls: create_thread handle=%d entry=%#x priority=%d", h, entry, priority)
	regs.SetReturnPair(0, uint64(h))
	return nil
}

// StartThread implements start_thread (SVC 0x09): transitions the named
// thread handle to running.
func StartThread(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	h := kernel.Handle(regs.Args()[0].Handle())
	target, err := kernel.Lookup[*kernel.Thread](k.Objects, h)
	if err != nil {
		return err
	}
	target.Start()
	regs.SetReturn(0)
	return nil
}

// ExitThread implements exit_thread (SVC 0x0a): kills the calling thread.
func ExitThread(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	_ = k.Objects.Close(t.Handle())
	return nil
}

// GetThreadPriority implements get_thread_priority (SVC 0x0c).
func GetThreadPriority(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	h := kernel.Handle(regs.Args()[0].Handle())
	target, err := kernel.Lookup[*kernel.Thread](k.Objects, h)
	if err != nil {
		return err
	}
	regs.SetReturnPair(0, uint64(target.Priority()))
	return nil
}

// SetThreadPriority implements set_thread_priority (SVC 0x0d).
func SetThreadPriority(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	args := regs.Args()
	h := kernel.Handle(args[0].Handle())
	target, err := kernel.Lookup[*kernel.Thread](k.Objects, h)
	if err != nil {
		return err
	}
	target.SetPriority(int(args[1].Int()))
	regs.SetReturn(0)
	return nil
}
