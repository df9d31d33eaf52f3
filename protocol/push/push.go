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

// Package push implements the push half of the PIPELINE pattern:
// load-balanced send across attached pipes in round-robin order. A pipe
// that is already mid-send is skipped for the current message, same as
// the teacher's xpush readyq (protocol/xpush/xpush.go): an unready pipe
// just drops to the back of the cycle rather than blocking the others.
package push

import (
	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/reactor"
)

const (
	Self     = nanoplane.ProtoPush
	Peer     = nanoplane.ProtoPull
	SelfName = "push"
	PeerName = "pull"
)

type pushPipe struct {
	pp   nanoplane.ProtocolPipe
	busy bool
}

type proto struct {
	sock  nanoplane.ProtocolSocket
	pipes map[uint32]*pushPipe
	order *reactor.PipeSet

	queued     *nanoplane.Message
	waitReply  bool
	sendingID  uint32
	hasSending bool

	raw bool
}

func NewProtocol() nanoplane.Protocol {
	return &proto{pipes: make(map[uint32]*pushPipe), order: reactor.NewPipeSet()}
}

func NewSocket(sess *reactor.Session) (nanoplane.Socket, error) {
	return sess.NewSocket(NewProtocol())
}

func (p *proto) Init(sock nanoplane.ProtocolSocket) { p.sock = sock }

func (p *proto) Info() nanoplane.Info {
	return nanoplane.Info{Self: Self, Peer: Peer, SelfName: SelfName, PeerName: PeerName}
}

func (p *proto) AddPipe(pp nanoplane.ProtocolPipe) error {
	id := pp.ID()
	p.pipes[id] = &pushPipe{pp: pp}
	p.order.Add(id)
	p.dispatch()
	return nil
}

func (p *proto) RemovePipe(pp nanoplane.ProtocolPipe) {
	id := pp.ID()
	delete(p.pipes, id)
	p.order.Remove(id)
	if p.hasSending && p.sendingID == id {
		p.hasSending = false
	}
}

func (p *proto) HandlePipeEvent(pp nanoplane.ProtocolPipe, ev nanoplane.PipeEvent) {
	switch ev.Kind {
	case nanoplane.EvReceived:
		ev.Msg.Free() // PUSH has no recv direction
	case nanoplane.EvSent:
		id := pp.ID()
		if bp, ok := p.pipes[id]; ok {
			bp.busy = false
		}
		if p.hasSending && p.sendingID == id {
			p.hasSending = false
			if p.waitReply {
				p.waitReply = false
				p.sock.CompleteSend(nil)
			}
		}
		p.dispatch()
	}
}

// dispatch hands the queued message to the next ready pipe in round-robin
// order, if any, and if none is already in flight.
func (p *proto) dispatch() {
	if p.queued == nil || p.hasSending {
		return
	}
	n := p.order.Len()
	for i := 0; i < n; i++ {
		id := p.order.Next(i)
		bp := p.pipes[id]
		if bp == nil || bp.busy {
			continue
		}
		p.order.Advance(i)
		bp.busy = true
		p.hasSending = true
		p.sendingID = id
		m := p.queued
		p.queued = nil
		bp.pp.Send(m)
		return
	}
}

func (p *proto) HandleTimer(int) {}

func (p *proto) Send(m *nanoplane.Message) (pending bool, err error) {
	p.queued = m
	p.waitReply = true
	p.dispatch()
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
	return nil, false, nanoplane.ErrProtoOp
}

func (p *proto) CancelRecv() {}

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
