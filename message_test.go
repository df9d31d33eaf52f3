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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMessageRefCount(t *testing.T) {
	Convey("Given a fresh message", t, func() {
		m := NewMessage(4)
		copy(m.Body, []byte("abcd"))

		Convey("Dup adds a reference that must be freed separately", func() {
			d := m.Dup()
			So(d, ShouldEqual, m)
			m.Free()
			So(m.Body, ShouldResemble, []byte("abcd"))
			m.Free()
		})
	})
}

func TestPutAndTrimUint32(t *testing.T) {
	Convey("Given a message with a body", t, func() {
		m := NewMessage(0)
		m.Body = append(m.Body, []byte("hello")...)

		Convey("PutUint32BE appends to Header, not Body", func() {
			m.PutUint32BE(0x80000001)
			So(m.Header, ShouldResemble, []byte{0x80, 0, 0, 1})
			So(m.Body, ShouldResemble, []byte("hello"))
		})

		Convey("TrimUint32 moves four body bytes onto Header", func() {
			m.Body = append([]byte{0x80, 0, 0, 2}, m.Body...)
			err := m.TrimUint32()
			So(err, ShouldBeNil)
			So(m.Header, ShouldResemble, []byte{0x80, 0, 0, 2})
			So(m.Body, ShouldResemble, []byte("hello"))
		})

		Convey("TrimUint32 on a short body reports ErrGarbled", func() {
			m.Body = []byte{1, 2}
			err := m.TrimUint32()
			So(err, ShouldEqual, ErrGarbled)
		})
	})
}

func TestBackTraceRoundTrip(t *testing.T) {
	Convey("Given a message carrying a two-hop backtrace ahead of an ID frame", t, func() {
		m := NewMessage(0)
		// hop 1 (EID 7), hop 2 (EID 9), then the request ID with the high bit set.
		m.Body = append(m.Body, 0, 0, 0, 7)
		m.Body = append(m.Body, 0, 0, 0, 9)
		m.Body = append(m.Body, 0x80, 0, 0, 0x2a)
		m.Body = append(m.Body, []byte("payload")...)

		Convey("TrimBackTrace moves all three frames onto Header", func() {
			err := m.TrimBackTrace()
			So(err, ShouldBeNil)
			So(len(m.Header), ShouldEqual, 12)
			So(m.Body, ShouldResemble, []byte("payload"))

			Convey("UntrimBackTrace returns the first hop and restores the rest", func() {
				id, err := m.UntrimBackTrace()
				So(err, ShouldBeNil)
				So(id, ShouldEqual, uint32(7))
				So(len(m.Header), ShouldEqual, 0)
				So(m.Body, ShouldResemble, append([]byte{0, 0, 0, 9, 0x80, 0, 0, 0x2a}, []byte("payload")...))
			})
		})

		Convey("TrimBackTrace on a body with no high-bit frame runs out and errors", func() {
			m2 := NewMessage(0)
			m2.Body = append(m2.Body, 0, 0, 0, 1, 0, 0, 0, 2)
			err := m2.TrimBackTrace()
			So(err, ShouldEqual, ErrGarbled)
		})
	})
}
