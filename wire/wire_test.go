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

package wire

import (
	"net"
	"testing"

	"github.com/nanoplane/nanoplane"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHandshakeAndFraming(t *testing.T) {
	Convey("Given a connected pair of in-memory net.Conns", t, func() {
		c1, c2 := net.Pipe()

		type result struct {
			pipe nanoplane.TranPipe
			err  error
		}
		rc1 := make(chan result, 1)
		rc2 := make(chan result, 1)

		go func() {
			p, err := NewStreamPipe(c1, nanoplane.ProtoPair, 0)
			rc1 <- result{p, err}
		}()
		go func() {
			p, err := NewStreamPipe(c2, nanoplane.ProtoPair, 0)
			rc2 <- result{p, err}
		}()

		r1 := <-rc1
		r2 := <-rc2

		Convey("The handshake succeeds on both sides for a matching peer protocol", func() {
			So(r1.err, ShouldBeNil)
			So(r2.err, ShouldBeNil)

			Convey("A message sent on one side arrives intact on the other", func() {
				m := nanoplane.NewMessage(0)
				m.Body = append(m.Body, []byte("toto raoul simone")...)
				done := make(chan error, 1)
				go func() { done <- r1.pipe.SendMsg(m) }()

				got, err := r2.pipe.RecvMsg()
				So(<-done, ShouldBeNil)
				So(err, ShouldBeNil)
				So(got.Body, ShouldResemble, []byte("toto raoul simone"))
			})

			Convey("Header and Body both travel as one frame", func() {
				m := nanoplane.NewMessage(0)
				m.Header = append(m.Header, 0x80, 0, 0, 1)
				m.Body = append(m.Body, []byte("hi")...)
				done := make(chan error, 1)
				go func() { done <- r1.pipe.SendMsg(m) }()

				got, err := r2.pipe.RecvMsg()
				So(<-done, ShouldBeNil)
				So(err, ShouldBeNil)
				So(got.Body, ShouldResemble, append([]byte{0x80, 0, 0, 1}, []byte("hi")...))
			})
		})
	})

	Convey("Given a peer that greets with a mismatched protocol number", t, func() {
		c1, c2 := net.Pipe()

		type result struct {
			pipe nanoplane.TranPipe
			err  error
		}
		rc1 := make(chan result, 1)
		rc2 := make(chan result, 1)
		go func() {
			p, err := NewStreamPipe(c1, nanoplane.ProtoPair, 0)
			rc1 <- result{p, err}
		}()
		go func() {
			p, err := NewStreamPipe(c2, nanoplane.ProtoPub, 0)
			rc2 <- result{p, err}
		}()

		r1 := <-rc1
		r2 := <-rc2

		Convey("Both sides report ErrProtocolMismatch", func() {
			So(r1.err, ShouldEqual, nanoplane.ErrProtocolMismatch)
			So(r2.err, ShouldEqual, nanoplane.ErrProtocolMismatch)
		})
	})
}

func TestRecvMaxSizeEnforced(t *testing.T) {
	Convey("Given a pipe capped at 4 bytes of body", t, func() {
		c1, c2 := net.Pipe()

		type result struct {
			pipe nanoplane.TranPipe
			err  error
		}
		rc1 := make(chan result, 1)
		rc2 := make(chan result, 1)
		go func() {
			p, err := NewStreamPipe(c1, nanoplane.ProtoPair, 0)
			rc1 <- result{p, err}
		}()
		go func() {
			p, err := NewStreamPipe(c2, nanoplane.ProtoPair, 4)
			rc2 <- result{p, err}
		}()
		r1 := <-rc1
		r2 := <-rc2
		So(r1.err, ShouldBeNil)
		So(r2.err, ShouldBeNil)

		Convey("A longer body is rejected with ErrTooLong", func() {
			m := nanoplane.NewMessage(0)
			m.Body = append(m.Body, []byte("toolong")...)
			go r1.pipe.SendMsg(m)

			_, err := r2.pipe.RecvMsg()
			So(err, ShouldEqual, nanoplane.ErrTooLong)
		})
	})
}
