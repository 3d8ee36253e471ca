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
	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/pkg/kernel"
)

// SVC ids, named after original_source's kernel/svc.h svcTable layout —
// the dense table this core mirrors 1:1 for the handlers it implements.
const (
	svcSetHeapSize        = 0x01
	svcExitProcess        = 0x07
	svcCreateThread       = 0x08
	svcStartThread        = 0x09
	svcExitThread         = 0x0a
	svcGetThreadPriority  = 0x0c
	svcSetThreadPriority  = 0x0d
	svcCloseHandle        = 0x16
	svcConnectToNamedPort = 0x1f
	svcSendSyncRequest    = 0x21
	svcOutputDebugString  = 0x27
	svcGetInfo            = 0x29
)

// NewTable builds the dense 128-entry syscall table (spec.md §4.1: "at most
// 128 entries"). Every index in [0, kernel.MaxSyscalls) gets an entry —
// implemented syscalls get their real handler, everything else gets an
// Unimplemented stand-in — so a table lookup never returns nil and the
// fatal "missing handler" path in Dispatcher.dispatchSyscall is reserved
// for genuinely out-of-range ids.
func NewTable() *kernel.Table {
	entries := make(map[int]kernel.Syscall, kernel.MaxSyscalls)
	for id := 0; id < kernel.MaxSyscalls; id++ {
		entries[id] = kernel.Unimplemented(unknownName(id), errs.ErrNotImplemented,
			"Not part of the syscall subset this core implements.")
	}

	entries[svcSetHeapSize] = kernel.Supported("set_heap_size", SetHeapSize)
	entries[svcExitProcess] = kernel.Supported("exit_process", ExitProcess)
	entries[svcCreateThread] = kernel.Supported("create_thread", CreateThread)
	entries[svcStartThread] = kernel.Supported("start_thread", StartThread)
	entries[svcExitThread] = kernel.Supported("exit_thread", ExitThread)
	entries[svcGetThreadPriority] = kernel.Supported("get_thread_priority", GetThreadPriority)
	entries[svcSetThreadPriority] = kernel.Supported("set_thread_priority", SetThreadPriority)
	entries[svcCloseHandle] = kernel.Supported("close_handle", CloseHandle)
	entries[svcConnectToNamedPort] = kernel.PartiallySupported("connect_to_named_port", ConnectToNamedPort,
		"Only the sm: bootstrap port resolves; all other names return not-found.")
	entries[svcSendSyncRequest] = kernel.Supported("send_sync_request", SendSyncRequest)
	entries[svcOutputDebugString] = kernel.Supported("output_debug_string", OutputDebugString)
	entries[svcGetInfo] = kernel.Supported("get_info", GetInfo)

	return kernel.NewTable(entries)
}

func unknownName(id int) string {
	const hex = "0123456789abcdef"
	return "svc_0x" + string([]byte{hex[id>>4&0xf], hex[id&0xf]})
}
