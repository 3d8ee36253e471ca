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

package nvdrv

import (
	"testing"

	"github.com/hollowcore/hle/pkg/trap"
)

func TestCreateAllocGetAddressRoundTrip(t *testing.T) {
	n := NewNvmap()
	h := n.Create(0x4000)
	if err := n.Alloc(h, trap.Addr(0x7f0000000000)); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	base, size, err := n.GetAddress(h)
	if err != nil {
		t.Fatalf("GetAddress: %v", err)
	}
	if base != trap.Addr(0x7f0000000000) || size != 0x4000 {
		t.Fatalf("GetAddress = (%#x, %#x), want (%#x, %#x)", base, size, 0x7f0000000000, 0x4000)
	}
}

func TestGetAddressBeforeAllocFails(t *testing.T) {
	n := NewNvmap()
	h := n.Create(0x1000)
	if _, _, err := n.GetAddress(h); err == nil {
		t.Fatal("expected error resolving an unbound handle")
	}
}

func TestGetAddressUnknownHandleFails(t *testing.T) {
	n := NewNvmap()
	if _, _, err := n.GetAddress(999); err == nil {
		t.Fatal("expected error for unknown handle")
	}
}

func TestFreeInvalidatesHandle(t *testing.T) {
	n := NewNvmap()
	h := n.Create(0x1000)
	n.Free(h)
	if _, _, err := n.GetAddress(h); err == nil {
		t.Fatal("expected error after Free")
	}
}
