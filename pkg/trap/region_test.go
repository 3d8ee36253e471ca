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
	"testing"

	"golang.org/x/sys/unix"
)

func TestAnonRegionMprotectRoundTrip(t *testing.T) {
	r, err := NewAnonRegion(0x4000)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Unmap()

	r.Bytes()[0] = 0xAB
	if r.Bytes()[0] != 0xAB {
		t.Fatal("region not writable before any reprotection")
	}

	if err := r.Mprotect(r.Base(), 0x1000, unix.PROT_READ); err != nil {
		t.Fatal(err)
	}
	if r.Bytes()[0] != 0xAB {
		t.Fatal("region lost its contents across a protection change")
	}
}

func TestAnonRegionMprotectOutOfRange(t *testing.T) {
	r, err := NewAnonRegion(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Unmap()

	if err := r.Mprotect(r.Base()+0x2000, 0x1000, unix.PROT_NONE); err == nil {
		t.Fatal("expected an error reprotecting outside the mapped region")
	}
}
