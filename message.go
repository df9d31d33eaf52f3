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

package nanoplane

import (
	"encoding/binary"
	"sync"
)

// Message encapsulates the two byte regions protocols exchange. Header
// holds protocol control frames (correlation IDs, backtrace hops); it
// starts empty and is invisible to applications unless they opted into a
// protocol's raw mode. Body is the payload. Header and Body are always
// backed by distinct arrays, so a protocol prepending a correlation ID to
// Header on the send path can never clobber live Body bytes.
//
// Messages are reference counted so that broadcast sends (PUB, BUS,
// SURVEYOR) can hand the same Body to many pipes without copying it.
type Message struct {
	Header []byte
	Body   []byte

	// Pipe is set on receive to the pipe the message arrived on.
	Pipe Pipe

	hbuf   []byte
	bbuf   []byte
	refcnt int32
}

var messagePool = sync.Pool{
	New: func() interface{} { return &Message{} },
}

// NewMessage allocates a Message with Body capacity sz. The returned
// message has a single reference; callers that fan it out to multiple
// pipes must call Dup for each extra reference and Free for each one they
// are done with.
func NewMessage(sz int) *Message {
	m := messagePool.Get().(*Message)
	if cap(m.bbuf) < sz {
		m.bbuf = make([]byte, sz)
	}
	m.bbuf = m.bbuf[:sz]
	m.Body = m.bbuf
	if cap(m.hbuf) == 0 {
		m.hbuf = make([]byte, 0, 32)
	}
	m.Header = m.hbuf[:0]
	m.Pipe = nil
	m.refcnt = 1
	return m
}

// Dup adds a reference to the message and returns it. The header and body
// slices are shared, not copied; a protocol that needs to mutate Header
// independently per-pipe (e.g. prefixing a pipe hop) must copy first.
func (m *Message) Dup() *Message {
	m.refcnt++
	return m
}

// Free releases a reference. Once the last reference is released the
// backing storage is returned to the pool.
func (m *Message) Free() {
	m.refcnt--
	if m.refcnt > 0 {
		return
	}
	messagePool.Put(m)
}

// PutUint32BE appends a 32-bit big-endian value to the header. REQ uses it
// to prepend a request ID (high bit set) before a pipe's Header is
// transmitted ahead of Body; SURVEYOR uses it the same way for survey IDs.
func (m *Message) PutUint32BE(v uint32) {
	m.Header = append(m.Header, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// TrimUint32 moves a 32-bit value from the front of the body to the end of
// the header. Used by REQ to pull a reply's correlation ID out of the body
// for comparison, and by REP/RESPONDENT as the single-hop building block of
// TrimBackTrace.
func (m *Message) TrimUint32() error {
	if len(m.Body) < 4 {
		return ErrGarbled
	}
	m.Header = append(m.Header, m.Body[:4]...)
	m.Body = m.Body[4:]
	return nil
}

// TrimBackTrace moves the backtrace from the body to the header, repeating
// TrimUint32 until a frame with the high-order bit set (the request or
// survey ID) has moved. Used by REP/RESPONDENT on receive (spec §6).
func (m *Message) TrimBackTrace() error {
	for {
		if err := m.TrimUint32(); err != nil {
			return err
		}
		if m.Header[len(m.Header)-4]&0x80 != 0 {
			return nil
		}
	}
}

// UntrimBackTrace is the send-side inverse of TrimBackTrace: it moves the
// captured header back in front of the body, in the order it was
// captured, and returns the first 4 bytes (the ID of the pipe the
// original request arrived on) with those bytes removed from Body so only
// the remaining backtrace, if any, and the reply payload are left to
// transmit. Used by REP/RESPONDENT on send (spec §6).
func (m *Message) UntrimBackTrace() (uint32, error) {
	if len(m.Header) < 4 {
		return 0, ErrGarbled
	}
	nb := make([]byte, len(m.Header)+len(m.Body))
	n := copy(nb, m.Header)
	copy(nb[n:], m.Body)
	m.Body = nb
	m.Header = m.Header[:0]
	id := binary.BigEndian.Uint32(m.Body[:4])
	m.Body = m.Body[4:]
	return id, nil
}
