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
	"github.com/hollowcore/hle/pkg/kernel"
	"github.com/hollowcore/hle/pkg/kernel/arch"
)

// CloseHandle implements close_handle (original_source svc.cpp CloseHandle,
// SVC 0x16). ObjectTable.Close already draws the distinction spec.md §4.1
// requires: a Thread/Process's refcount reaching zero triggers its Close
// (an orderly kill), any other kind is a plain decrement.
func CloseHandle(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	h := kernel.Handle(regs.Args()[0].Handle())
	if err := k.Objects.Close(h); err != nil {
		return err
	}
	regs.SetReturn(0)
	return nil
}
