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

// ExitProcess implements exit_process (original_source svc.cpp ExitProcess,
// SVC 0x07): tears down the process's own kernel object. The dispatcher's
// caller is responsible for killing any remaining threads once this
// returns, mirroring os->KillThread(main_thread) only terminating the main
// thread directly in the source platform.
func ExitProcess(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	k.ExitProcess(0)
	return nil
}
