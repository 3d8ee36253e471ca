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
	"bytes"
	"errors"
	"testing"

	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/pkg/kernel"
	"github.com/hollowcore/hle/pkg/kernel/arch"
)

// fakeMemory is a flat byte-addressed guest memory stand-in for tests; it
// is not a real implementation of the guest-process controller collaborator
// (spec.md §6), just enough to exercise the syscall handlers that read or
// write guest-addressed buffers.
type fakeMemory struct {
	buf [0x10000]byte
}

func (m *fakeMemory) CopyInBytes(addr uintptr, dst []byte) (int, error) {
	return copy(dst, m.buf[addr:]), nil
}

func (m *fakeMemory) CopyOutBytes(addr uintptr, src []byte) (int, error) {
	return copy(m.buf[addr:], src), nil
}

// fakeRouter is a minimal pkg/ipc.Router stand-in.
type fakeRouter struct {
	resp []byte
	err  error
}

func (r *fakeRouter) HandleRequest(tlsBuf []byte) ([]byte, error) { return r.resp, r.err }

func TestTableHasNoNilSlots(t *testing.T) {
	table := NewTable()
	for id := 0; id < kernel.MaxSyscalls; id++ {
		if table.Lookup(id) == nil {
			t.Fatalf("syscall table has a nil entry at id %#x", id)
		}
	}
}

func TestSetHeapSizeReturnsPageAlignedBase(t *testing.T) {
	k := kernel.New(nil, nil)
	var regs arch.RegisterFile
	regs.Regs[0] = 0x200000
	if err := SetHeapSize(k, nil, &regs); err != nil {
		t.Fatal(err)
	}
	if regs.Regs[0] != 0 {
		t.Fatalf("result code = %d, want success", regs.Regs[0])
	}
	base := regs.Regs[1]
	if base%kernel.PageSize != 0 {
		t.Fatalf("base %#x is not page-aligned", base)
	}
	if k.Heap().Size != 0x200000 {
		t.Fatalf("heap size = %#x, want 0x200000", k.Heap().Size)
	}
}

func TestCreateThreadThenStartThread(t *testing.T) {
	k := kernel.New(nil, nil)
	var regs arch.RegisterFile
	regs.Regs[1] = 0x1000 // entry
	regs.Regs[3] = 0x9000 // stack top
	regs.Regs[4] = 20     // priority

	if err := CreateThread(k, nil, &regs); err != nil {
		t.Fatal(err)
	}
	handle := kernel.Handle(regs.Regs[1])
	th, err := kernel.Lookup[*kernel.Thread](k.Objects, handle)
	if err != nil {
		t.Fatal(err)
	}
	if th.State() != kernel.ThreadCreated {
		t.Fatalf("new thread state = %v, want Created", th.State())
	}

	var startRegs arch.RegisterFile
	startRegs.Regs[0] = uint64(handle)
	if err := StartThread(k, nil, &startRegs); err != nil {
		t.Fatal(err)
	}
	if th.State() != kernel.ThreadRunning {
		t.Fatalf("thread state after start = %v, want Running", th.State())
	}
}

func TestCloseHandleInvalidHandleIsGuestError(t *testing.T) {
	k := kernel.New(nil, nil)
	var regs arch.RegisterFile
	regs.Regs[0] = 0xDEAD
	err := CloseHandle(k, nil, &regs)
	var ge errs.GuestError
	if !errors.As(err, &ge) {
		t.Fatalf("expected a GuestError, got %T: %v", err, err)
	}
}

func TestGetInfoRoundTripsHeapSize(t *testing.T) {
	k := kernel.New(nil, nil)
	k.SetHeapSize(kernel.HeapBase, 0x30000)

	var regs arch.RegisterFile
	regs.Regs[1] = 5 // HeapRegionSize
	if err := GetInfo(k, nil, &regs); err != nil {
		t.Fatal(err)
	}
	if regs.Regs[0] != 0 {
		t.Fatalf("result = %d, want success", regs.Regs[0])
	}
	if regs.Regs[1] != 0x30000 {
		t.Fatalf("value = %#x, want 0x30000", regs.Regs[1])
	}
}

func TestGetInfoUnknownIDDoesNotTerminate(t *testing.T) {
	k := kernel.New(nil, nil)
	var regs arch.RegisterFile
	regs.Regs[1] = 0xFF
	if err := GetInfo(k, nil, &regs); err != nil {
		t.Fatalf("unknown get-info id returned a process-fatal error: %v", err)
	}
	if regs.Regs[0] == 0 {
		t.Fatal("expected a non-success result code for an unknown info id")
	}
}

func TestConnectToNamedPortResolvesSMBootstrap(t *testing.T) {
	mem := &fakeMemory{}
	copy(mem.buf[0x1000:], "sm:\x00\x00\x00\x00\x00")
	k := kernel.New(mem, nil)

	var regs arch.RegisterFile
	regs.Regs[1] = 0x1000
	if err := ConnectToNamedPort(k, nil, &regs); err != nil {
		t.Fatal(err)
	}
	if regs.Regs[0] != 0 {
		t.Fatalf("result = %d, want success", regs.Regs[0])
	}
	if regs.Regs[1] != smHandle {
		t.Fatalf("handle = %#x, want %#x", regs.Regs[1], uint64(smHandle))
	}
}

func TestConnectToNamedPortUnknownPortIsNotFound(t *testing.T) {
	mem := &fakeMemory{}
	copy(mem.buf[0x1000:], "xx:\x00\x00\x00\x00\x00")
	k := kernel.New(mem, nil)

	var regs arch.RegisterFile
	regs.Regs[1] = 0x1000
	err := ConnectToNamedPort(k, nil, &regs)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSendSyncRequestRoundTripsTLSBuffer(t *testing.T) {
	mem := &fakeMemory{}
	req := bytes.Repeat([]byte{0xAB}, tlsCommandBufferSize)
	copy(mem.buf[0x3000:], req)

	resp := bytes.Repeat([]byte{0xCD}, tlsCommandBufferSize)
	router := &fakeRouter{resp: resp}
	k := kernel.New(mem, router)

	th := kernel.NewThread(31, 0x3000, 0x9000)
	var regs arch.RegisterFile
	if err := SendSyncRequest(k, th, &regs); err != nil {
		t.Fatal(err)
	}
	if regs.Regs[0] != 0 {
		t.Fatalf("result = %d, want success", regs.Regs[0])
	}
	got := mem.buf[0x3000 : 0x3000+tlsCommandBufferSize]
	if !bytes.Equal(got, resp) {
		t.Fatal("TLS buffer was not overwritten with the router's response")
	}
}

func TestExitProcessMarksExiting(t *testing.T) {
	k := kernel.New(nil, nil)
	var regs arch.RegisterFile
	if err := ExitProcess(k, nil, &regs); err != nil {
		t.Fatal(err)
	}
	if !k.Exiting() {
		t.Fatal("Exiting() false after exit_process")
	}
}
