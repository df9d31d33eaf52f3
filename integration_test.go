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

// Package nanoplane_test exercises the six concrete scenarios against
// real TCP sockets, the way the teacher's top-level pair_test.go,
// pipeline_test.go, reqrep_test.go, pubsub_test.go, survey_test.go and
// bus_test.go each exercise one pattern end to end.
package nanoplane_test

import (
	"testing"
	"time"

	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/protocol/bus"
	"github.com/nanoplane/nanoplane/protocol/pair"
	"github.com/nanoplane/nanoplane/protocol/pub"
	"github.com/nanoplane/nanoplane/protocol/pull"
	"github.com/nanoplane/nanoplane/protocol/push"
	"github.com/nanoplane/nanoplane/protocol/rep"
	"github.com/nanoplane/nanoplane/protocol/req"
	"github.com/nanoplane/nanoplane/protocol/respondent"
	"github.com/nanoplane/nanoplane/protocol/sub"
	"github.com/nanoplane/nanoplane/protocol/surveyor"
	"github.com/nanoplane/nanoplane/reactor"
	_ "github.com/nanoplane/nanoplane/transport/tcp"

	. "github.com/smartystreets/goconvey/convey"
)

func sendStr(t *testing.T, sock nanoplane.Socket, s string) {
	if err := sock.Send([]byte(s)); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func recvStr(t *testing.T, sock nanoplane.Socket) string {
	b, err := sock.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	return string(b)
}

func TestPairEcho(t *testing.T) {
	Convey("Given a bound PAIR socket A and a connected PAIR socket B", t, func() {
		addr := "tcp://127.0.0.1:32801"
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

		Convey("A.send is received verbatim by B, and B.send is received verbatim by A", func() {
			sendStr(t, a, "toto raoul simone")
			So(recvStr(t, b), ShouldEqual, "toto raoul simone")

			sendStr(t, b, "pong")
			So(recvStr(t, a), ShouldEqual, "pong")
		})
	})
}

func TestPipelineFanout(t *testing.T) {
	Convey("Given one bound PUSH and three connected PULLs", t, func() {
		addr := "tcp://127.0.0.1:32802"
		sess := reactor.NewSession()
		defer sess.Close()

		p, err := push.NewSocket(sess)
		So(err, ShouldBeNil)
		defer p.Close()
		So(p.Listen(addr), ShouldBeNil)

		pulls := make([]nanoplane.Socket, 3)
		for i := range pulls {
			s, err := pull.NewSocket(sess)
			So(err, ShouldBeNil)
			defer s.Close()
			So(s.Dial(addr), ShouldBeNil)
			pulls[i] = s
		}
		time.Sleep(100 * time.Millisecond) // allow all three to finish connecting

		Convey("nine sends of the same payload land three apiece", func(c C) {
			counts := make([]int, 3)
			done := make(chan struct{})
			for i, s := range pulls {
				go func(i int, s nanoplane.Socket) {
					for j := 0; j < 3; j++ {
						b, err := s.Recv()
						c.So(err, ShouldBeNil)
						c.So(b, ShouldResemble, []byte("123456789"))
						counts[i]++
					}
					done <- struct{}{}
				}(i, s)
			}

			for i := 0; i < 9; i++ {
				sendStr(t, p, "123456789")
			}

			for range pulls {
				<-done
			}
			So(counts[0], ShouldEqual, 3)
			So(counts[1], ShouldEqual, 3)
			So(counts[2], ShouldEqual, 3)
		})
	})
}

func TestReqRepDateExchange(t *testing.T) {
	Convey("Given a bound REP and a connected REQ", t, func() {
		addr := "tcp://127.0.0.1:32803"
		sess := reactor.NewSession()
		defer sess.Close()

		r, err := rep.NewSocket(sess)
		So(err, ShouldBeNil)
		defer r.Close()
		So(r.Listen(addr), ShouldBeNil)

		q, err := req.NewSocket(sess)
		So(err, ShouldBeNil)
		defer q.Close()
		So(q.Dial(addr), ShouldBeNil)

		Convey("REQ's request is answered by REP and matched back to REQ", func() {
			sendStr(t, q, "DATE")
			So(recvStr(t, r), ShouldEqual, "DATE")

			sendStr(t, r, "2018-01-12")
			So(recvStr(t, q), ShouldEqual, "2018-01-12")
		})
	})
}

func TestPubSubPrefix(t *testing.T) {
	Convey("Given a bound PUB and two connected SUBs with distinct subscriptions", t, func() {
		addr := "tcp://127.0.0.1:32804"
		sess := reactor.NewSession()
		defer sess.Close()

		p, err := pub.NewSocket(sess)
		So(err, ShouldBeNil)
		defer p.Close()
		So(p.Listen(addr), ShouldBeNil)

		s1, err := sub.NewSocket(sess)
		So(err, ShouldBeNil)
		defer s1.Close()
		So(s1.SetOption(nanoplane.OptionSubscribe, "raoul"), ShouldBeNil)
		So(s1.Dial(addr), ShouldBeNil)

		s2, err := sub.NewSocket(sess)
		So(err, ShouldBeNil)
		defer s2.Close()
		So(s2.SetOption(nanoplane.OptionSubscribe, "simone"), ShouldBeNil)
		So(s2.Dial(addr), ShouldBeNil)

		time.Sleep(100 * time.Millisecond)

		Convey("Each SUB receives only the message matching its own prefix", func() {
			s1.SetOption(nanoplane.OptionRecvDeadline, 300*time.Millisecond)
			s2.SetOption(nanoplane.OptionRecvDeadline, 300*time.Millisecond)

			sendStr(t, p, "raoul: bonjour")
			sendStr(t, p, "simone: salut")
			sendStr(t, p, "other: ignored")

			So(recvStr(t, s1), ShouldEqual, "raoul: bonjour")
			So(recvStr(t, s2), ShouldEqual, "simone: salut")

			_, err := s1.Recv()
			So(err, ShouldEqual, nanoplane.ErrRecvTimeout)
			_, err = s2.Recv()
			So(err, ShouldEqual, nanoplane.ErrRecvTimeout)
		})
	})
}

func TestSurveyDeadline(t *testing.T) {
	Convey("Given a SURVEYOR with a 200ms deadline and two connected RESPONDENTs", t, func() {
		addr := "tcp://127.0.0.1:32805"
		sess := reactor.NewSession()
		defer sess.Close()

		sv, err := surveyor.NewSocket(sess)
		So(err, ShouldBeNil)
		defer sv.Close()
		So(sv.SetOption(nanoplane.OptionSurveyTime, 200*time.Millisecond), ShouldBeNil)
		So(sv.Listen(addr), ShouldBeNil)

		fast, err := respondent.NewSocket(sess)
		So(err, ShouldBeNil)
		defer fast.Close()
		So(fast.Dial(addr), ShouldBeNil)

		slow, err := respondent.NewSocket(sess)
		So(err, ShouldBeNil)
		defer slow.Close()
		So(slow.Dial(addr), ShouldBeNil)

		time.Sleep(100 * time.Millisecond)

		Convey("the fast reply is delivered and the late one is dropped, never delivered", func(c C) {
			sendStr(t, sv, "vote?")

			go func() {
				b := recvStr(t, fast)
				c.So(b, ShouldEqual, "vote?")
				sendStr(t, fast, "yes")
			}()
			go func() {
				time.Sleep(400 * time.Millisecond)
				b, err := slow.Recv()
				if err != nil {
					return
				}
				c.So(string(b), ShouldEqual, "vote?")
				sendStr(t, slow, "no")
			}()

			So(recvStr(t, sv), ShouldEqual, "yes")

			_, err := sv.Recv()
			So(err, ShouldEqual, nanoplane.ErrRecvTimeout)

			// the late reply must never surface on a subsequent survey.
			time.Sleep(500 * time.Millisecond)
			sv.SetOption(nanoplane.OptionSurveyTime, 200*time.Millisecond)
			sendStr(t, sv, "vote2?")
			_, err = sv.Recv()
			So(err, ShouldEqual, nanoplane.ErrRecvTimeout)
		})
	})
}

func TestBusRing(t *testing.T) {
	Convey("Given four BUS nodes all connected to one another", t, func() {
		addrs := []string{
			"tcp://127.0.0.1:32806",
			"tcp://127.0.0.1:32807",
			"tcp://127.0.0.1:32808",
			"tcp://127.0.0.1:32809",
		}
		sess := reactor.NewSession()
		defer sess.Close()

		nodes := make([]nanoplane.Socket, 4)
		for i := range nodes {
			s, err := bus.NewSocket(sess)
			So(err, ShouldBeNil)
			defer s.Close()
			So(s.Listen(addrs[i]), ShouldBeNil)
			nodes[i] = s
		}
		// Every node dials every later node, so every pair of nodes ends
		// up with exactly one pipe between them (a bus mesh, not a chain
		// that would need application-level forwarding).
		for i := range nodes {
			for j := i + 1; j < len(nodes); j++ {
				So(nodes[i].Dial(addrs[j]), ShouldBeNil)
			}
		}
		time.Sleep(200 * time.Millisecond)

		Convey("node 3's broadcast reaches 0, 1, 2 exactly once and never itself", func() {
			for _, n := range nodes {
				n.SetOption(nanoplane.OptionRecvDeadline, 300*time.Millisecond)
			}

			sendStr(t, nodes[3], "hi")

			for i := 0; i < 3; i++ {
				So(recvStr(t, nodes[i]), ShouldEqual, "hi")
				_, err := nodes[i].Recv()
				So(err, ShouldEqual, nanoplane.ErrRecvTimeout)
			}
			_, err := nodes[3].Recv()
			So(err, ShouldEqual, nanoplane.ErrRecvTimeout)
		})
	})
}
