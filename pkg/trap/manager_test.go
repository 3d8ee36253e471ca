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

package trap

import (
	"sync"
	"testing"

	"golang.org/x/sys/unix"
)

// fakeProtector records every Mprotect call instead of touching real pages,
// so manager tests can assert on reprotection decisions without mapping
// memory.
type fakeProtector struct {
	mu    sync.Mutex
	calls []protectCall
}

type protectCall struct {
	addr Addr
	len  uintptr
	prot int
}

func (p *fakeProtector) Mprotect(addr Addr, length uintptr, prot int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, protectCall{addr, length, prot})
	return nil
}

func (p *fakeProtector) last() (protectCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return protectCall{}, false
	}
	return p.calls[len(p.calls)-1], true
}

func lockingCallbacks() (*sync.Mutex, Callbacks) {
	var mu sync.Mutex
	return &mu, Callbacks{
		Lock:    mu.Lock,
		Unlock:  mu.Unlock,
		OnRead:  func(Addr) bool { return true },
		OnWrite: func(Addr) bool { return true },
	}
}

func TestRegisterReprotectsImmediately(t *testing.T) {
	prot := &fakeProtector{}
	m := NewManager(0x1000, prot)
	_, cbs := lockingCallbacks()

	if _, err := m.Register([]Interval{{Start: 0x1000, End: 0x2000}}, ReadWrite, cbs); err != nil {
		t.Fatal(err)
	}
	last, ok := prot.last()
	if !ok {
		t.Fatal("Register did not reprotect")
	}
	if last.prot != unix.PROT_NONE {
		t.Fatalf("prot = %#x, want PROT_NONE for ReadWrite", last.prot)
	}
}

func TestArmChangesProtection(t *testing.T) {
	prot := &fakeProtector{}
	m := NewManager(0x1000, prot)
	_, cbs := lockingCallbacks()

	id, err := m.Register([]Interval{{Start: 0x1000, End: 0x2000}}, WriteOnly, cbs)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Arm(id, ReadWrite); err != nil {
		t.Fatal(err)
	}
	last, _ := prot.last()
	if last.prot != unix.PROT_NONE {
		t.Fatalf("prot after Arm(ReadWrite) = %#x, want PROT_NONE", last.prot)
	}
}

func TestDeleteRelaxesProtectionWhenNoGroupsRemain(t *testing.T) {
	prot := &fakeProtector{}
	m := NewManager(0x1000, prot)
	_, cbs := lockingCallbacks()

	id, err := m.Register([]Interval{{Start: 0x1000, End: 0x2000}}, ReadWrite, cbs)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(id); err != nil {
		t.Fatal(err)
	}
	last, _ := prot.last()
	if last.prot != unix.PROT_READ|unix.PROT_WRITE {
		t.Fatalf("prot after Delete = %#x, want PROT_READ|PROT_WRITE", last.prot)
	}
}

func TestHandleFaultInvokesCallbacksAndReprotects(t *testing.T) {
	prot := &fakeProtector{}
	m := NewManager(0x1000, prot)

	var mu sync.Mutex
	var sawWrite Addr
	cbs := Callbacks{
		Lock:   mu.Lock,
		Unlock: mu.Unlock,
		OnRead: func(Addr) bool { return true },
		OnWrite: func(addr Addr) bool {
			sawWrite = addr
			return true
		},
	}
	if _, err := m.Register([]Interval{{Start: 0x1000, End: 0x2000}}, ReadWrite, cbs); err != nil {
		t.Fatal(err)
	}

	handled, err := m.HandleFault(0x1500, true)
	if err != nil {
		t.Fatal(err)
	}
	if !handled {
		t.Fatal("expected the fault to be handled")
	}
	if sawWrite != 0x1500 {
		t.Fatalf("OnWrite saw %#x, want 0x1500", sawWrite)
	}

	last, ok := prot.last()
	if !ok {
		t.Fatal("HandleFault did not reprotect")
	}
	if last.prot != unix.PROT_READ|unix.PROT_WRITE {
		t.Fatalf("prot after a successful write fault = %#x, want PROT_READ|PROT_WRITE (group demoted to None)", last.prot)
	}
}

func TestHandleFaultReadDemotesGroupToWriteOnly(t *testing.T) {
	prot := &fakeProtector{}
	m := NewManager(0x1000, prot)

	var mu sync.Mutex
	cbs := Callbacks{
		Lock:    mu.Lock,
		Unlock:  mu.Unlock,
		OnRead:  func(Addr) bool { return true },
		OnWrite: func(Addr) bool { return true },
	}
	id, err := m.Register([]Interval{{Start: 0x1000, End: 0x2000}}, ReadWrite, cbs)
	if err != nil {
		t.Fatal(err)
	}

	handled, err := m.HandleFault(0x1500, false)
	if err != nil {
		t.Fatal(err)
	}
	if !handled {
		t.Fatal("expected the fault to be handled")
	}

	last, ok := prot.last()
	if !ok {
		t.Fatal("HandleFault did not reprotect")
	}
	if last.prot != unix.PROT_READ {
		t.Fatalf("prot after a successful read fault = %#x, want PROT_READ (group demoted to WriteOnly)", last.prot)
	}

	g, _ := m.im.Get(id)
	if g.Protection != WriteOnly {
		t.Fatalf("group protection = %v, want WriteOnly", g.Protection)
	}
}

func TestHandleFaultUnmanagedAddressNotHandled(t *testing.T) {
	prot := &fakeProtector{}
	m := NewManager(0x1000, prot)
	handled, err := m.HandleFault(0xDEAD0000, false)
	if err != nil {
		t.Fatal(err)
	}
	if handled {
		t.Fatal("expected handled=false for an address with no registered group")
	}
}

func TestHandleFaultReadOnlyIgnoresWriteOnlyGroup(t *testing.T) {
	prot := &fakeProtector{}
	m := NewManager(0x1000, prot)
	var mu sync.Mutex
	readInvoked := false
	cbs := Callbacks{
		Lock:   mu.Lock,
		Unlock: mu.Unlock,
		OnRead: func(Addr) bool { readInvoked = true; return true },
	}
	if _, err := m.Register([]Interval{{Start: 0x1000, End: 0x2000}}, WriteOnly, cbs); err != nil {
		t.Fatal(err)
	}
	handled, err := m.HandleFault(0x1500, false)
	if err != nil {
		t.Fatal(err)
	}
	if handled {
		t.Fatal("a WriteOnly group must not claim a read fault")
	}
	if readInvoked {
		t.Fatal("OnRead must not be invoked for a WriteOnly group on a read fault")
	}
}

func TestHandleFaultExhaustedRetriesIsFatal(t *testing.T) {
	prot := &fakeProtector{}
	m := NewManager(0x1000, prot)
	var mu sync.Mutex
	cbs := Callbacks{
		Lock:    mu.Lock,
		Unlock:  mu.Unlock,
		OnWrite: func(Addr) bool { return false }, // always reports "would block"
		OnRead:  func(Addr) bool { return false },
	}
	if _, err := m.Register([]Interval{{Start: 0x1000, End: 0x2000}}, ReadWrite, cbs); err != nil {
		t.Fatal(err)
	}
	_, err := m.HandleFault(0x1500, true)
	if err == nil {
		t.Fatal("expected a Fatal error once the retry window is exhausted")
	}
}
