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
)

func TestGuardResolvesFaultBeforeRunningFn(t *testing.T) {
	prot := &fakeProtector{}
	m := NewManager(0x1000, prot)
	var mu sync.Mutex
	resolved := false
	cbs := Callbacks{
		Lock:    mu.Lock,
		Unlock:  mu.Unlock,
		OnWrite: func(Addr) bool { resolved = true; return true },
	}
	if _, err := m.Register([]Interval{{Start: 0x1000, End: 0x2000}}, WriteOnly, cbs); err != nil {
		t.Fatal(err)
	}

	ran := false
	if err := m.Guard(0x1500, 0x10, true, func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	if !resolved {
		t.Fatal("Guard did not resolve the covering trap group before running fn")
	}
	if !ran {
		t.Fatal("Guard did not run fn")
	}
}

func TestGuardUnmanagedRangeStillRunsFn(t *testing.T) {
	prot := &fakeProtector{}
	m := NewManager(0x1000, prot)
	ran := false
	if err := m.Guard(0x9000, 0x10, false, func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("Guard did not run fn over unmanaged memory")
	}
}
