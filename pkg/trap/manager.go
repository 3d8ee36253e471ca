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
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/hollowcore/hle/internal/errs"
)

// Protector applies host page protection to a range of the managed address
// space. The production implementation (AnonRegion, region.go) backs it
// with mmap'd/mprotect'd host memory; tests use a recording fake.
type Protector interface {
	Mprotect(addr Addr, length uintptr, prot int) error
}

// errRetry signals HandleFault's attempt loop that the group set protecting
// addr changed out from under it, or a callback reported it would block;
// either way the fault should be retried from the top rather than treated
// as resolved or as a hard failure.
var errRetry = errors.New("trap: fault handling must retry")

// maxFaultRetryWindow bounds how long HandleFault will keep retrying a
// fault whose owning group set won't stabilize, or whose OnRead/OnWrite
// callback keeps reporting it would block, before giving up. Exceeding it
// means some collaborator is stuck (e.g. a lock callback never converges),
// which spec.md §4.2 treats as an environmental Fatal condition rather than
// something a guest thread can be left spinning on forever.
const maxFaultRetryWindow = 250 * time.Millisecond

// Manager is the page-protection-based trap manager (spec.md §4.2),
// grounded on trap_manager.{h,cpp}'s TrapManager class: CreateTrap/
// TrapRegions/RemoveTrap/DeleteTrap become Register/Arm/Delete, and
// HandleTrap becomes HandleFault.
type Manager struct {
	mu        sync.Mutex
	im        *IntervalMap
	pageSize  Addr
	protector Protector
}

// NewManager constructs a Manager over intervals aligned to pageSize (the
// host's actual page size in production; a test-friendly power of two in
// unit tests), reprotecting through protector.
func NewManager(pageSize Addr, protector Protector) *Manager {
	return &Manager{
		im:        NewIntervalMap(),
		pageSize:  pageSize,
		protector: protector,
	}
}

// Register installs a new trap group over intervals at protection,
// immediately reprotecting the affected pages, and returns its id.
// Equivalent to TrapManager::CreateTrap followed by an implicit
// TrapRegions (trap_manager.cpp installs the initial protection at creation
// time rather than requiring a separate arm call).
func (m *Manager) Register(intervals []Interval, protection Protection, cbs Callbacks) (GroupID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.im.Insert(intervals, protection, cbs)
	if err != nil {
		return 0, err
	}
	g, _ := m.im.Get(id)
	if err := m.reprotectLocked(g.Intervals); err != nil {
		m.im.Remove(id)
		return 0, err
	}
	return id, nil
}

// Arm changes a registered group's protection level and reprotects its
// intervals to match. Equivalent to TrapManager::TrapRegions.
func (m *Manager) Arm(id GroupID, protection Protection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.im.Get(id)
	if !ok {
		return errs.NewConfigError("trap: Arm of unknown group %d", id)
	}
	g.Protection = protection
	return m.reprotectLocked(g.Intervals)
}

// Delete removes a group and reprotects the intervals it vacates (to
// whatever protection level the remaining overlapping groups, if any,
// still require). Equivalent to TrapManager::DeleteTrap.
func (m *Manager) Delete(id GroupID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.im.Get(id)
	if !ok {
		return nil
	}
	intervals := append([]Interval(nil), g.Intervals...)
	m.im.Remove(id)
	return m.reprotectLocked(intervals)
}

// reprotectLocked recomputes and applies host page protection for each
// interval, independently, based on the strictest protection level among
// all groups currently overlapping it. Must be called with mu held.
// Equivalent to trap_manager.cpp's ReprotectIntervals.
func (m *Manager) reprotectLocked(intervals []Interval) error {
	for _, iv := range intervals {
		aligned := iv.AlignOut(m.pageSize)
		level := None
		for _, g := range m.im.Range(aligned) {
			level = strictest(level, g.Protection)
		}
		if err := m.protector.Mprotect(aligned.Start, uintptr(aligned.Size()), hostProt(level)); err != nil {
			return errs.NewFatal("trap: mprotect failed", err)
		}
	}
	return nil
}

// HandleFault resolves a host page fault at addr (isWrite distinguishes a
// write fault from a read fault) by locating the trap group(s) covering it,
// taking their Lock callbacks, invoking OnRead/OnWrite, and reprotecting.
// It reports handled=false when no registered group covers addr — the
// caller's signal handler must then treat the fault as a genuine guest
// crash rather than a trap event.
//
// Port of trap_manager.cpp's TrapManager::HandleTrap. That function's loop
// body is reproduced here as an attempt closure retried with bounded
// exponential backoff (github.com/cenkalti/backoff) in place of HandleTrap's
// unbounded spin: spec.md §4.2 requires the manager's own trapMutex never be
// held across a foreign Lock() call (steps 2-3 below drop it before taking
// group locks, and re-validate the group set after reacquiring it, exactly
// as trap_manager.cpp does after its own MutexLock release/reacquire
// around the callback invocation).
func (m *Manager) HandleFault(addr Addr, isWrite bool) (bool, error) {
	var handledAny bool

	attempt := func() error {
		query := Interval{Start: addr, End: addr + 1}

		m.mu.Lock()
		groups, _ := m.im.RecursiveAlignedRange(query, m.pageSize)
		needed := faultingGroups(groups, addr, isWrite)
		m.mu.Unlock()

		if len(needed) == 0 {
			return nil
		}
		handledAny = true

		for _, g := range needed {
			g.Callbacks.Lock()
		}
		defer func() {
			for _, g := range needed {
				g.Callbacks.Unlock()
			}
		}()

		m.mu.Lock()
		current, _ := m.im.RecursiveAlignedRange(query, m.pageSize)
		if !sameGroupSet(faultingGroups(current, addr, isWrite), needed) {
			m.mu.Unlock()
			return errRetry
		}
		m.mu.Unlock()

		for _, g := range needed {
			var ok bool
			if isWrite {
				ok = g.Callbacks.OnWrite(addr)
			} else {
				ok = g.Callbacks.OnRead(addr)
			}
			if !ok {
				return errRetry
			}
		}

		m.mu.Lock()
		// Demote each satisfied group's protection (spec.md §4.2 steps 4-5):
		// a write fault drops all the way to None, a read fault only drops to
		// WriteOnly. Leaving g.Protection unchanged here would make
		// reprotectLocked reinstall the same restrictive level and the guest
		// access would re-fault forever.
		for _, g := range needed {
			if isWrite {
				g.Protection = None
			} else {
				g.Protection = WriteOnly
			}
		}
		_, aligned := m.im.RecursiveAlignedRange(query, m.pageSize)
		err := m.reprotectLocked(aligned)
		m.mu.Unlock()
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxElapsedTime = maxFaultRetryWindow
	err := backoff.Retry(func() error {
		if err := attempt(); err != nil {
			if err == errRetry {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, b)

	if err != nil {
		if err == errRetry {
			return false, errs.NewFatal("trap: fault handling did not converge", nil)
		}
		return false, err
	}
	return handledAny, nil
}

// faultingGroups filters groups to those that actually trap this access:
// WriteOnly groups ignore reads, and a group whose own intervals don't
// cover addr (it was only pulled in by RecursiveAlignedRange's neighbor
// widening) doesn't need its callback invoked for this particular fault.
func faultingGroups(groups []*Group, addr Addr, isWrite bool) []*Group {
	out := make([]*Group, 0, len(groups))
	for _, g := range groups {
		if g.Protection == None {
			continue // not currently trapped; reprotectLocked would allow this access outright
		}
		if !groupCovers(g, addr) {
			continue
		}
		if !isWrite && g.Protection == WriteOnly {
			continue
		}
		out = append(out, g)
	}
	return out
}

func groupCovers(g *Group, addr Addr) bool {
	for _, iv := range g.Intervals {
		if iv.Contains(addr) {
			return true
		}
	}
	return false
}

func sameGroupSet(a, b []*Group) bool {
	if len(a) != len(b) {
		return false
	}
	ids := make(map[GroupID]bool, len(a))
	for _, g := range a {
		ids[g.ID] = true
	}
	for _, g := range b {
		if !ids[g.ID] {
			return false
		}
	}
	return true
}
