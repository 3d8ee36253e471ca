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

package texture

import "sync"

// ContextTag identifies the logical caller holding a texture lock — one per
// guest-facing GPU submission context. Zero is never issued to a caller and
// means "unlocked" internally.
type ContextTag uint64

// trapLockTag is the reserved tag the guest-memory trap's Lock/Unlock
// callbacks use (fault handling has no guest submission context of its
// own). It is distinct from every tag Manager.NextContextTag hands out,
// which starts counting at 1 and never reaches the max uint64.
const trapLockTag ContextTag = ^ContextTag(0)

// contextLock replaces the original source's intrusive recursive mutex
// (spec.md §9: "Locks embedded in texture objects that re-enter through
// pointer-chasing back into the owning object ... Replace intrusive
// recursive mutexes with an explicit context-tag counter: acquiring with a
// tag equal to the current holder is a no-op refcount bump"). holder/depth
// are guarded by mu itself, with cond used to block a contending context
// until the current holder's depth drops to zero.
type contextLock struct {
	mu     sync.Mutex
	cond   *sync.Cond
	holder ContextTag
	depth  int
}

// newContextLock returns a ready-to-use contextLock. The zero value is not
// usable — cond must be bound to mu.
func newContextLock() *contextLock {
	l := &contextLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Lock acquires the lock for tag. If tag already holds it, this is a
// refcount bump rather than a blocking re-lock; any other tag blocks until
// depth returns to zero.
func (l *contextLock) Lock(tag ContextTag) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.depth > 0 && l.holder != tag {
		l.cond.Wait()
	}
	l.holder = tag
	l.depth++
}

// Unlock releases one level of tag's hold, waking a blocked contender once
// depth reaches zero.
func (l *contextLock) Unlock(tag ContextTag) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth == 0 || l.holder != tag {
		panic("texture: Unlock by a context that does not hold the lock")
	}
	l.depth--
	if l.depth == 0 {
		l.holder = 0
		l.cond.Broadcast()
	}
}
