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
	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/pkg/kernel"
	"github.com/hollowcore/hle/pkg/kernel/arch"
)

// portNameSize is the fixed width of a connect-to-named-port name
// (original_source common.h `constant::port_size`, 0x8).
const portNameSize = 0x8

// smHandle is the reserved handle value sm: resolves to (original_source
// common.h `constant::sm_handle`, 0xd000). Only sm: is modeled directly;
// every other named service connects through send-sync-request once it
// holds this session handle, matching the source platform's two-step
// "connect to sm:, then get-service-handle through it" bootstrap.
const smHandle = 0xd000

// tlsCommandBufferSize is the IPC command buffer carried in each thread's
// TLS slot (original_source common.h `constant::tls_ipc_size`, 0x100).
const tlsCommandBufferSize = 0x100

// ConnectToNamedPort implements connect_to_named_port (original_source
// svc.cpp ConnectToNamedPort, SVC 0x1f): the port name address is read from
// X1, matching the source platform's handler even though X0 is the
// conventional first argument register elsewhere in this table.
func ConnectToNamedPort(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	if k.Mem == nil {
		return errs.NewConfigError("connect_to_named_port: no guest-memory collaborator configured")
	}
	args := regs.Args()
	var name [portNameSize]byte
	if _, err := k.Mem.CopyInBytes(uintptr(args[1].Pointer()), name[:]); err != nil {
		return err
	}

	if name[0] == 's' && name[1] == 'm' && name[2] == ':' {
		regs.SetReturnPair(0, smHandle)
		return nil
	}
	corelog.Warningf("syscalls: connect_to_named_port: unknown port %q", name)
	return errs.ErrNotFound
}

// SendSyncRequest implements send_sync_request (original_source svc.cpp
// SendSyncRequest, SVC 0x21): reads the calling thread's TLS command
// buffer and hands it to the IPC router collaborator (spec.md §6), writing
// the response back into the same buffer.
func SendSyncRequest(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	if k.Mem == nil || k.Router == nil {
		return errs.NewConfigError("send_sync_request: no guest-memory or IPC router collaborator configured")
	}

	var buf [tlsCommandBufferSize]byte
	if _, err := k.Mem.CopyInBytes(t.TLSSlot(), buf[:]); err != nil {
		return err
	}

	resp, err := k.Router.HandleRequest(buf[:])
	if err != nil {
		return err
	}
	if _, err := k.Mem.CopyOutBytes(t.TLSSlot(), resp); err != nil {
		return err
	}
	regs.SetReturn(0)
	return nil
}

// OutputDebugString implements output_debug_string (original_source
// svc.cpp OutputDebugString): address in X0, length in X1; written straight
// to the core's own log rather than a guest-visible console.
func OutputDebugString(k *kernel.Kernel, t *kernel.Thread, regs *arch.RegisterFile) error {
	if k.Mem == nil {
		return errs.NewConfigError("output_debug_string: no guest-memory collaborator configured")
	}
	args := regs.Args()
	length := args[1].SizeT()
	buf := make([]byte, length)
	if _, err := k.Mem.CopyInBytes(uintptr(args[0].Pointer()), buf); err != nil {
		return err
	}
	corelog.Infof("guest: %s", string(buf))
	regs.SetReturn(0)
	return nil
}
