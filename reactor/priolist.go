// Copyright 2024 The Nanoplane Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reactor

// PipeSet is a small round-robin membership list shared by the patterns
// that dispatch by rotation: load-balanced send (PUSH, REQ). It is plain
// data, driven entirely
// by the protocol packages, with no locking: those packages only ever
// touch it from the reactor goroutine, and it is exported so push and
// req can both consume one shared implementation instead of each
// hand-rolling the same order/next bookkeeping.
type PipeSet struct {
	order []uint32
	pos   map[uint32]int
	next  int
}

func NewPipeSet() *PipeSet {
	return &PipeSet{pos: make(map[uint32]int)}
}

// Add admits id to the rotation if it is not already a member.
func (s *PipeSet) Add(id uint32) {
	if _, ok := s.pos[id]; ok {
		return
	}
	s.pos[id] = len(s.order)
	s.order = append(s.order, id)
}

// Remove drops id from the rotation, if present.
func (s *PipeSet) Remove(id uint32) {
	i, ok := s.pos[id]
	if !ok {
		return
	}
	last := len(s.order) - 1
	s.order[i] = s.order[last]
	s.pos[s.order[i]] = i
	s.order = s.order[:last]
	delete(s.pos, id)
	if s.next > last {
		s.next = 0
	}
}

func (s *PipeSet) Len() int { return len(s.order) }

func (s *PipeSet) IDs() []uint32 { return s.order }

// Next returns the i'th candidate starting from the current rotation
// cursor without advancing it, wrapping modulo the set's size. Used by
// dispatch loops that need to try every member starting from the
// cursor before giving up on the current message.
func (s *PipeSet) Next(i int) uint32 {
	n := len(s.order)
	return s.order[(s.next+i)%n]
}

// Advance moves the rotation cursor forward by i+1 positions, wrapping
// modulo the set's size. Called once a dispatch loop picks the
// candidate at offset i so the next call starts past it.
func (s *PipeSet) Advance(i int) {
	n := len(s.order)
	if n == 0 {
		return
	}
	s.next = (s.next + i + 1) % n
}

// Rotate returns the next member in round-robin order, advancing the
// cursor, or false if the set is empty.
func (s *PipeSet) Rotate() (uint32, bool) {
	n := len(s.order)
	if n == 0 {
		return 0, false
	}
	if s.next >= n {
		s.next = 0
	}
	id := s.order[s.next]
	s.next = (s.next + 1) % n
	return id, true
}
