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

// Package pair implements the PAIR protocol: a single bidirectional
// connection between exactly two sockets. A second pipe attaching while
// one is already active is rejected (spec's PAIR [MODULE]).
package pair

import (
	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/reactor"
)

const (
	Self     = nanoplane.ProtoPair
	Peer     = nanoplane.ProtoPair
	SelfName = "pair"
	PeerName = "pair"
)

// recvQLen bounds the backlog held for an application that isn't calling
// Recv fast enough, the same tradeoff bus.go/pull.go/sub.go make; PAIR
// only ever has one peer, so in practice this rarely grows past one or
// two, but it is unbounded-arrival-rate safe the way a single slot (the
// teacher's xpair.go rcvmsg) is not.
const recvQLen = 128

type proto struct {
	sock nanoplane.ProtocolSocket
	peer nanoplane.ProtocolPipe

	sendBusy  bool
	queued    *nanoplane.Message
	waitReply bool

	recvQ       []*nanoplane.Message
	recvWaiting bool

	// raw has no effect on PAIR's own behavior: there is no correlation
	// to strip either way. Tracked only so GetOption reflects what a
	// Device just set via Start (spec §4.3.7).
	raw bool
}

// NewProtocol returns a fresh PAIR state machine.
func NewProtocol() nanoplane.Protocol {
	return &proto{}
}

// NewSocket allocates a PAIR socket on sess.
func NewSocket(sess *reactor.Session) (nanoplane.Socket, error) {
	return sess.NewSocket(NewProtocol())
}

func (p *proto) Init(sock nanoplane.ProtocolSocket) { p.sock = sock }

func (p *proto) Info() nanoplane.Info {
	return nanoplane.Info{Self: Self, Peer: Peer, SelfName: SelfName, PeerName: PeerName}
}

func (p *proto) AddPipe(pp nanoplane.ProtocolPipe) error {
	if p.peer != nil {
		return nanoplane.ErrProtoState
	}
	p.peer = pp
	if p.queued != nil && !p.sendBusy {
		p.flush()
	}
	return nil
}

func (p *proto) RemovePipe(pp nanoplane.ProtocolPipe) {
	if p.peer != pp {
		return
	}
	p.peer = nil
	p.sendBusy = false
}

func (p *proto) HandlePipeEvent(pp nanoplane.ProtocolPipe, ev nanoplane.PipeEvent) {
	switch ev.Kind {
	case nanoplane.EvReceived:
		p.deliver(ev.Msg)
	case nanoplane.EvSent:
		p.sendBusy = false
		if p.waitReply {
			p.waitReply = false
			p.sock.CompleteSend(nil)
		}
		p.flush()
	}
}

// deliver buffers a received message for the application instead of
// freeing it when no Recv is outstanding yet, so a message that arrives
// before the app calls Recv is not silently dropped (the teacher's
// xpair.go keeps one rcvmsg slot for the same reason: "to avoid dropping
// messages"; here the buffer is the same recvQ/recvWaiting pair every
// other fair-queued protocol in this tree already uses).
func (p *proto) deliver(m *nanoplane.Message) {
	if p.recvWaiting {
		p.recvWaiting = false
		p.sock.CompleteRecv(m, nil)
		return
	}
	if len(p.recvQ) >= recvQLen {
		m.Free()
		return
	}
	p.recvQ = append(p.recvQ, m)
}

func (p *proto) flush() {
	if p.queued == nil || p.sendBusy || p.peer == nil {
		return
	}
	m := p.queued
	p.queued = nil
	p.sendBusy = true
	p.peer.Send(m)
}

func (p *proto) HandleTimer(int) {}

func (p *proto) Send(m *nanoplane.Message) (pending bool, err error) {
	p.queued = m
	p.waitReply = true
	p.flush()
	return true, nil
}

func (p *proto) CancelSend() {
	p.waitReply = false
	if p.queued != nil {
		p.queued.Free()
		p.queued = nil
	}
}

func (p *proto) Recv() (m *nanoplane.Message, pending bool, err error) {
	if len(p.recvQ) > 0 {
		m = p.recvQ[0]
		p.recvQ = p.recvQ[1:]
		return m, false, nil
	}
	p.recvWaiting = true
	return nil, true, nil
}

func (p *proto) CancelRecv() {
	p.recvWaiting = false
}

func (p *proto) SetOption(name string, value interface{}) error {
	if name != nanoplane.OptionRaw {
		return nanoplane.ErrBadOption
	}
	v, ok := value.(bool)
	if !ok {
		return nanoplane.ErrBadValue
	}
	p.raw = v
	return nil
}

func (p *proto) GetOption(name string) (interface{}, error) {
	if name == nanoplane.OptionRaw {
		return p.raw, nil
	}
	return nil, nanoplane.ErrBadOption
}
