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
	"errors"

	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/pkg/kernel"
	"github.com/hollowcore/hle/pkg/kernel/arch"
)

// GetInfo implements get_info (original_source svc.cpp GetInfo, SVC 0x29):
// info-id in W1, sub-id in X3 (the source platform's ABI; W0/X2 carry the
// output handle slot some info ids use, unused by the subset this core
// answers). Unknown ids answer the unimplemented guest error without
// terminating the process (spec.md §4.1).
func GetInfo(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	args := regs.Args()
	key := kernel.InfoKey{InfoID: args[1].Uint64(), SubID: args[3].Uint64()}

	value, err := k.GetInfo(key)
	if err != nil {
		var ge errs.GuestError
		if errors.As(err, &ge) {
			regs.SetReturn(uint64(ge.Value()))
			return nil
		}
		return err
	}
	regs.SetReturnPair(0, value)
	return nil
}
