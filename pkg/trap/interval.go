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

// Package trap implements a page-protection-based memory trap manager: guest
// memory regions are registered with a protection level and reprotected via
// mprotect, and Guard (access.go) resolves each access through HandleFault
// to the callback group that owns the address before the access runs; no
// SIGSEGV handler is installed (spec.md §4.2).
//
// Grounded on original_source's skyline/common/trap_manager.{h,cpp} (the
// TrapManager class) and skyline/common/interval_map.h (the IntervalMap
// container TrapManager indexes its regions with).
package trap

import "github.com/hollowcore/hle/internal/errs"

// Addr is a guest (or host-shadow) address. Kept as its own type, rather
// than a bare uintptr, so interval arithmetic can't be confused with a
// register value elsewhere in the core.
type Addr uintptr

// AlignDown rounds addr down to the nearest multiple of alignment.
func (a Addr) AlignDown(alignment Addr) Addr { return a &^ (alignment - 1) }

// AlignUp rounds addr up to the nearest multiple of alignment.
func (a Addr) AlignUp(alignment Addr) Addr { return (a + alignment - 1) &^ (alignment - 1) }

// Interval is a half-open address range [Start, End). Mirrors
// interval_map.h's Interval struct (there, `start`/`end` fields with a
// sub-address `operator<` used to drive the container's lower_bound
// searches).
type Interval struct {
	Start Addr
	End   Addr
}

// NewInterval validates and constructs a half-open interval. A Start >= End
// interval can never be satisfied by any fault and almost always indicates a
// caller bug, so it is reported as a ConfigError rather than silently
// accepted (spec.md §4.2 "misaligned or out-of-range interval registration is
// a ConfigError, not a guest-visible error").
func NewInterval(start, end Addr) (Interval, error) {
	if start >= end {
		return Interval{}, errs.NewConfigError("trap: empty or inverted interval [%#x, %#x)", start, end)
	}
	return Interval{Start: start, End: end}, nil
}

// Size returns End - Start.
func (iv Interval) Size() Addr { return iv.End - iv.Start }

// Overlaps reports whether iv and other share at least one address.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && other.Start < iv.End
}

// Contains reports whether addr falls within iv.
func (iv Interval) Contains(addr Addr) bool {
	return iv.Start <= addr && addr < iv.End
}

// AlignOut expands iv to the smallest interval that contains it and is
// aligned to alignment at both ends (interval_map.h's
// GetAlignedRecursiveRange rounds the query the same way before walking the
// index).
func (iv Interval) AlignOut(alignment Addr) Interval {
	return Interval{Start: iv.Start.AlignDown(alignment), End: iv.End.AlignUp(alignment)}
}

// adjacentOrOverlapping reports whether a and b can be merged into one
// interval without including any address neither owned.
func adjacentOrOverlapping(a, b Interval) bool {
	return a.Start <= b.End && b.Start <= a.End
}

// coalesce merges a set of (possibly overlapping or touching) intervals into
// the minimal equivalent set, matching the coalescing pass at the end of
// interval_map.h's GetAlignedRecursiveRange.
func coalesce(intervals []Interval) []Interval {
	if len(intervals) < 2 {
		return intervals
	}
	sorted := append([]Interval(nil), intervals...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Start > sorted[j].Start; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	out := sorted[:1]
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if adjacentOrOverlapping(*last, iv) {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
