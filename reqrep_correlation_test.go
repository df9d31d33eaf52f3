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

package nanoplane_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/protocol/rep"
	"github.com/nanoplane/nanoplane/protocol/req"
	"github.com/nanoplane/nanoplane/reactor"

	. "github.com/smartystreets/goconvey/convey"
)

// TestReqRepCorrelation exercises spec §8 property 6: for any interleaving
// of M concurrent REQ sockets over one REP, each REQ receives exactly the
// reply to its own request.
func TestReqRepCorrelation(t *testing.T) {
	Convey("Given one REP bound and eight REQ sockets connected to it", t, func() {
		addr := "tcp://127.0.0.1:32810"
		sess := reactor.NewSession()
		defer sess.Close()

		r, err := rep.NewSocket(sess)
		So(err, ShouldBeNil)
		defer r.Close()
		So(r.Listen(addr), ShouldBeNil)

		const n = 8
		reqs := make([]nanoplane.Socket, n)
		for i := range reqs {
			s, err := req.NewSocket(sess)
			So(err, ShouldBeNil)
			defer s.Close()
			So(s.Dial(addr), ShouldBeNil)
			reqs[i] = s
		}
		time.Sleep(150 * time.Millisecond)

		Convey("each REQ's own payload comes back echoed, never another's", func() {
			var wg sync.WaitGroup
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					payload := fmt.Sprintf("req-%d", i)
					if err := reqs[i].Send([]byte(payload)); err != nil {
						errs[i] = err
						return
					}
					b, err := reqs[i].Recv()
					if err != nil {
						errs[i] = err
						return
					}
					if string(b) != payload {
						errs[i] = fmt.Errorf("got %q, want %q", b, payload)
					}
				}(i)
			}

			// The single REP echoes back whatever it receives, regardless
			// of which REQ it came from; correlation is entirely on the
			// wire (backtrace + request ID), not on server-side tracking.
			done := make(chan struct{})
			go func() {
				for i := 0; i < n; i++ {
					m, err := r.RecvMsg()
					if err != nil {
						close(done)
						return
					}
					r.SendMsg(m)
				}
				close(done)
			}()

			wg.Wait()
			<-done

			for i, err := range errs {
				So(err, ShouldBeNil, fmt.Sprintf("req %d", i))
			}
		})
	})
}
