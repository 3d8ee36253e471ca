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
	"github.com/google/btree"
	"github.com/hollowcore/hle/internal/errs"
)

// entry is one (interval, owning group) pair stored in the B-tree index,
// equivalent to interval_map.h's Entry (an Interval plus a handle back to
// its owning EntryGroup). Ordered by End first, matching the index
// interval_map.h builds its lower_bound searches against.
type entry struct {
	start, end Addr
	group      GroupID
}

func entryLess(a, b entry) bool {
	if a.end != b.end {
		return a.end < b.end
	}
	if a.start != b.start {
		return a.start < b.start
	}
	return a.group < b.group
}

// IntervalMap is the B-tree-backed overlapping interval index trap groups
// are registered in. A hand-written replacement for interval_map.h's
// IntervalMap<AddressType, EntryType> template: that container is built
// around a non-overlapping-segment invariant (see runsc/fsgofer and
// pkg/sentry/mm's generated Set templates for the Go equivalent of that
// shape), but trap groups here may legitimately overlap — two GPU resources
// can alias the same guest pages — so this index is keyed on raw (start,
// end) pairs in a github.com/google/btree.BTreeG rather than forced into a
// non-overlapping-segment Set.
type IntervalMap struct {
	tree   *btree.BTreeG[entry]
	groups map[GroupID]*Group
}

// NewIntervalMap constructs an empty index.
func NewIntervalMap() *IntervalMap {
	return &IntervalMap{
		tree:   btree.NewG(32, entryLess),
		groups: make(map[GroupID]*Group),
	}
}

// Insert registers a new group covering intervals, sharing protection and
// cbs, and returns its id. intervals must be non-empty and individually
// valid (Start < End); violations are a ConfigError, matching
// interval_map.h's caller contract that Insert is never handed a malformed
// interval by a correct TrapManager.
func (im *IntervalMap) Insert(intervals []Interval, protection Protection, cbs Callbacks) (GroupID, error) {
	if len(intervals) == 0 {
		return 0, errs.NewConfigError("trap: Insert with no intervals")
	}
	for _, iv := range intervals {
		if iv.Start >= iv.End {
			return 0, errs.NewConfigError("trap: invalid interval [%#x, %#x)", iv.Start, iv.End)
		}
	}
	id := allocGroupID()
	g := &Group{
		ID:         id,
		Intervals:  append([]Interval(nil), intervals...),
		Protection: protection,
		Callbacks:  cbs,
	}
	im.groups[id] = g
	for _, iv := range intervals {
		im.tree.ReplaceOrInsert(entry{start: iv.Start, end: iv.End, group: id})
	}
	return id, nil
}

// Remove deletes a previously registered group. A no-op if id is unknown
// (Delete on an already-deleted group is not an error — mirrors
// TrapManager::DeleteTrap's idempotence).
func (im *IntervalMap) Remove(id GroupID) {
	g, ok := im.groups[id]
	if !ok {
		return
	}
	for _, iv := range g.Intervals {
		im.tree.Delete(entry{start: iv.Start, end: iv.End, group: id})
	}
	delete(im.groups, id)
}

// Get returns the group registered under id, if any.
func (im *IntervalMap) Get(id GroupID) (*Group, bool) {
	g, ok := im.groups[id]
	return g, ok
}

// Point returns every group with an interval containing addr, equivalent to
// interval_map.h's IntervalMap::Get (point form).
func (im *IntervalMap) Point(addr Addr) []*Group {
	return im.Range(Interval{Start: addr, End: addr + 1})
}

// Range returns every distinct group with at least one interval overlapping
// r, equivalent to interval_map.h's IntervalMap::GetRange.
func (im *IntervalMap) Range(r Interval) []*Group {
	if r.Start >= r.End {
		return nil
	}
	seen := make(map[GroupID]bool)
	var out []*Group
	// Entries are ordered by End ascending, so the smallest entry that can
	// possibly overlap r is the first one whose End is strictly greater
	// than r.Start (End == r.Start touches but does not overlap a
	// half-open interval).
	pivot := entry{start: 0, end: r.Start + 1, group: 0}
	im.tree.AscendGreaterOrEqual(pivot, func(e entry) bool {
		if e.start < r.End {
			if !seen[e.group] {
				seen[e.group] = true
				if g, ok := im.groups[e.group]; ok {
					out = append(out, g)
				}
			}
		}
		return true
	})
	return out
}

// exclusivelyOwns reports whether g is the only group overlapping a.
func (im *IntervalMap) exclusivelyOwns(a Interval, g *Group) bool {
	owners := im.Range(a)
	return len(owners) == 1 && owners[0].ID == g.ID
}

// RecursiveAlignedRange answers "which page-aligned intervals must be
// reprotected, and which groups do they belong to, to service a fault in
// r". It returns every group overlapping r (so HandleFault can run their
// callbacks) and a coalesced set of page-aligned intervals that is safe to
// reprotect in one pass: r itself, plus any other interval owned
// exclusively by one of those groups (reprotecting it now can't expose an
// address that group doesn't actually own, and pre-covers addresses likely
// to fault the same way again).
//
// This is a simplified port of interval_map.h's GetAlignedRecursiveRange:
// that method additionally recurses outward through chains of
// exclusively-owned neighbors so a single fault can pre-arm an entire
// chain of pages belonging to the same resource. This version stops after
// one pass over the initially-intersecting groups' own intervals — still
// correct (HandleFault will simply take an extra fault to reach the rest of
// a long chain) but not maximally fault-minimizing. See DESIGN.md.
func (im *IntervalMap) RecursiveAlignedRange(r Interval, pageSize Addr) ([]*Group, []Interval) {
	aligned := r.AlignOut(pageSize)
	groups := im.Range(aligned)
	covered := []Interval{aligned}
	for _, g := range groups {
		for _, iv := range g.Intervals {
			a := iv.AlignOut(pageSize)
			if a.Overlaps(aligned) || im.exclusivelyOwns(a, g) {
				covered = append(covered, a)
			}
		}
	}
	return groups, coalesce(covered)
}
