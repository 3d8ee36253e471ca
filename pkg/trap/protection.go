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

import "golang.org/x/sys/unix"

// Protection is the level of host page protection a Group's intervals are
// reprotected to. Named and ordered exactly like trap_manager.h's
// TrapProtection enum: None is the least restrictive, ReadWrite the most.
type Protection int

const (
	// None means the region is not currently trapped; a fault there is a
	// genuine guest bug, not a trap-manager event.
	None Protection = iota
	// WriteOnly traps writes but permits reads (used to track dirtying
	// without losing read access, e.g. a GPU resource being written by the
	// CPU while its contents are still readable).
	WriteOnly
	// ReadWrite traps both reads and writes.
	ReadWrite
)

func (p Protection) String() string {
	switch p {
	case None:
		return "none"
	case WriteOnly:
		return "write-only"
	case ReadWrite:
		return "read-write"
	default:
		return "invalid"
	}
}

// strictest returns whichever of a, b traps more.
func strictest(a, b Protection) Protection {
	if b > a {
		return b
	}
	return a
}

// hostProt maps a Protection to the host mprotect permission bits, mirroring
// trap_manager.cpp's ReprotectIntervals: None allows read+write(+exec isn't
// modeled, this core never executes out of trapped regions), WriteOnly
// allows read only, ReadWrite allows neither.
func hostProt(p Protection) int {
	switch p {
	case WriteOnly:
		return unix.PROT_READ
	case ReadWrite:
		return unix.PROT_NONE
	default:
		return unix.PROT_READ | unix.PROT_WRITE
	}
}
