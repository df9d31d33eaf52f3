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

import (
	"time"

	"github.com/nanoplane/nanoplane"
)

// pendingOp is the bookkeeping for one in-flight Send or Recv: the façade
// call is blocked on rc, and tm will fire CancelSend/CancelRecv if the
// deadline elapses first.
type pendingOp struct {
	rc chan reply
	tm *timerEntry
}

// socket is the reactor-resident half of one application Socket: the
// Protocol instance, its endpoints and pipes, outstanding pending ops, and
// the generic options every protocol shares. Every field is touched only
// from the run goroutine that owns it.
type socket struct {
	id    uint32
	r     *run
	proto nanoplane.Protocol
	info  nanoplane.Info

	closed bool

	sendDeadline time.Duration
	recvDeadline time.Duration
	recvMaxSize  int
	reconnMin    time.Duration
	reconnMax    time.Duration
	linger       time.Duration
	noDelay      bool

	endpoints map[uint32]*endpoint
	pipes     map[uint32]*pipeConn

	sendPending *pendingOp
	recvPending *pendingOp

	portHook nanoplane.PortHook
}

func newSocket(r *run, id uint32, proto nanoplane.Protocol) *socket {
	s := &socket{
		id:           id,
		r:            r,
		proto:        proto,
		info:         proto.Info(),
		reconnMin:    100 * time.Millisecond,
		reconnMax:    0,
		recvMaxSize:  1 << 20,
		endpoints:    make(map[uint32]*endpoint),
		pipes:        make(map[uint32]*pipeConn),
	}
	proto.Init(s)
	return s
}

// ProtocolSocket implementation. These are only ever invoked synchronously
// from within the run goroutine's dispatch of a Protocol method, so no
// locking is needed.

func (s *socket) CompleteSend(err error) {
	op := s.sendPending
	if op == nil {
		return
	}
	s.sendPending = nil
	s.r.timers.cancel(op.tm)
	op.rc <- reply{err: err}
}

func (s *socket) CompleteRecv(m *nanoplane.Message, err error) {
	op := s.recvPending
	if op == nil {
		if m != nil {
			m.Free()
		}
		return
	}
	s.recvPending = nil
	s.r.timers.cancel(op.tm)
	op.rc <- reply{msg: m, err: err}
}

func (s *socket) ArmTimer(id int, d time.Duration) {
	s.r.armProtoTimer(s, id, d)
}

func (s *socket) CancelTimer(id int) {
	s.r.cancelProtoTimer(s, id)
}

func (s *socket) Now() time.Time {
	return time.Now()
}

// failPendingSend/Recv resolve an outstanding op with err without going
// through CompleteSend/Recv, used when the socket itself is torn down.
func (s *socket) failPendingSend(err error) {
	if s.sendPending == nil {
		return
	}
	op := s.sendPending
	s.sendPending = nil
	s.r.timers.cancel(op.tm)
	s.proto.CancelSend()
	op.rc <- reply{err: err}
}

func (s *socket) failPendingRecv(err error) {
	if s.recvPending == nil {
		return
	}
	op := s.recvPending
	s.recvPending = nil
	s.r.timers.cancel(op.tm)
	s.proto.CancelRecv()
	op.rc <- reply{err: err}
}
