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

import "sync/atomic"

// GroupID names a registered trap group; returned by Register, consumed by
// Arm/Delete.
type GroupID uint64

var nextGroupID atomic.Uint64

func allocGroupID() GroupID {
	return GroupID(nextGroupID.Add(1))
}

// Callbacks is the collaborator triple a trap group is registered with,
// mirroring trap_manager.h's CallbackEntry: Lock is taken before either
// read/write callback runs and must never be held across a call back into
// the trap manager (spec.md §4.2's reentry guarantee); OnRead/OnWrite return
// false to request the fault be retried after Lock is released and
// reacquired (the "would block" path of HandleTrap).
type Callbacks struct {
	Lock    func()
	Unlock  func()
	OnRead  func(addr Addr) bool
	OnWrite func(addr Addr) bool
}

// Group is a set of guest intervals sharing one protection level and one
// callback triple — the unit HandleFault resolves a fault to. Equivalent to
// one CallbackEntry plus its TrapHandle's interval set in trap_manager.h.
type Group struct {
	ID         GroupID
	Intervals  []Interval
	Protection Protection
	Callbacks  Callbacks
}
