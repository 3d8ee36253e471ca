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

package hostmem

import "testing"

func TestCopyOutThenCopyInRoundTrip(t *testing.T) {
	a, err := NewArena(4096)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer a.Close()

	want := []byte("hello guest memory")
	addr := uintptr(a.Addr()) + 16
	if _, err := a.CopyOutBytes(addr, want); err != nil {
		t.Fatalf("CopyOutBytes: %v", err)
	}

	got := make([]byte, len(want))
	if _, err := a.CopyInBytes(addr, got); err != nil {
		t.Fatalf("CopyInBytes: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCopyOutOutOfRangeFails(t *testing.T) {
	a, err := NewArena(4096)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer a.Close()

	if _, err := a.CopyOutBytes(uintptr(a.Addr())+4096, []byte{1}); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestMprotectReadOnlyThenRestore(t *testing.T) {
	a, err := NewArena(4096)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer a.Close()

	const protRead = 0x1
	const protWrite = 0x2
	if err := a.Mprotect(a.Addr(), 4096, protRead); err != nil {
		t.Fatalf("Mprotect(read-only): %v", err)
	}
	if err := a.Mprotect(a.Addr(), 4096, protRead|protWrite); err != nil {
		t.Fatalf("Mprotect(restore): %v", err)
	}
}
