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

// Package reactor_test exercises the universal properties that belong to
// the reactor itself rather than to any one protocol: at-most-once
// pending, deadline honesty, and reconnect after the peer is restored
// (spec §8, properties 2, 3, 9).
package reactor_test

import (
	"testing"
	"time"

	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/protocol/pair"
	"github.com/nanoplane/nanoplane/reactor"
	_ "github.com/nanoplane/nanoplane/transport/tcp"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDeadlineHonesty(t *testing.T) {
	Convey("Given a PAIR socket with no attached peer and a 100ms send deadline", t, func() {
		sess := reactor.NewSession()
		defer sess.Close()

		s, err := pair.NewSocket(sess)
		So(err, ShouldBeNil)
		defer s.Close()
		So(s.SetOption(nanoplane.OptionSendDeadline, 100*time.Millisecond), ShouldBeNil)
		So(s.Listen("tcp://127.0.0.1:32901"), ShouldBeNil)

		Convey("Send fails with ErrSendTimeout at roughly the deadline", func() {
			start := time.Now()
			err := s.Send([]byte("hello"))
			elapsed := time.Since(start)
			So(err, ShouldEqual, nanoplane.ErrSendTimeout)
			So(elapsed, ShouldBeGreaterThanOrEqualTo, 90*time.Millisecond)
			So(elapsed, ShouldBeLessThan, 400*time.Millisecond)
		})
	})
}

func TestAtMostOncePending(t *testing.T) {
	Convey("Given a connected PAIR pair", t, func() {
		addr := "tcp://127.0.0.1:32902"
		sess := reactor.NewSession()
		defer sess.Close()

		a, err := pair.NewSocket(sess)
		So(err, ShouldBeNil)
		defer a.Close()
		So(a.Listen(addr), ShouldBeNil)

		b, err := pair.NewSocket(sess)
		So(err, ShouldBeNil)
		defer b.Close()
		So(b.Dial(addr), ShouldBeNil)
		time.Sleep(100 * time.Millisecond)

		Convey("a second Recv issued while one is already pending on a different goroutine is rejected, and the first still resolves", func(c C) {
			So(b.SetOption(nanoplane.OptionRecvDeadline, time.Second), ShouldBeNil)

			done := make(chan string, 1)
			go func() {
				m, err := b.Recv()
				c.So(err, ShouldBeNil)
				done <- string(m)
			}()
			time.Sleep(50 * time.Millisecond) // let the Recv land as pending first

			_, err := b.Recv()
			So(err, ShouldEqual, nanoplane.ErrProtoState)

			So(a.Send([]byte("first")), ShouldBeNil)
			So(<-done, ShouldEqual, "first")
		})
	})
}

func TestReconnectAfterPeerRestored(t *testing.T) {
	Convey("Given a connect-side PAIR socket with a short reconnect interval", t, func() {
		addr := "tcp://127.0.0.1:32903"
		sess := reactor.NewSession()
		defer sess.Close()

		srv, err := pair.NewSocket(sess)
		So(err, ShouldBeNil)
		defer srv.Close()
		So(srv.Listen(addr), ShouldBeNil)

		cli, err := pair.NewSocket(sess)
		So(err, ShouldBeNil)
		defer cli.Close()
		So(cli.SetOption(nanoplane.OptionReconnectTime, 20*time.Millisecond), ShouldBeNil)
		So(cli.Dial(addr), ShouldBeNil)
		time.Sleep(100 * time.Millisecond)

		Convey("killing and restoring the listener lets a retried send land again", func() {
			So(srv.Close(), ShouldBeNil)
			time.Sleep(50 * time.Millisecond)

			srv2, err := pair.NewSocket(sess)
			So(err, ShouldBeNil)
			defer srv2.Close()
			So(srv2.Listen(addr), ShouldBeNil)

			So(srv2.SetOption(nanoplane.OptionRecvDeadline, 2*time.Second), ShouldBeNil)

			var lastErr error
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				if lastErr = cli.Send([]byte("ping")); lastErr == nil {
					break
				}
				time.Sleep(20 * time.Millisecond)
			}
			So(lastErr, ShouldBeNil)

			m, err := srv2.Recv()
			So(err, ShouldBeNil)
			So(string(m), ShouldEqual, "ping")
		})
	})
}
