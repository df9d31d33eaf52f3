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

// Package bus implements the BUS protocol: every message received is
// forwarded to the application, and every sent message is broadcast to
// every other attached pipe. There is no request/reply correlation and no
// subscription filtering; a BUS socket's only peer is another BUS.
package bus

import (
	"encoding/binary"

	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/reactor"
)

const (
	Self     = nanoplane.ProtoBus
	Peer     = nanoplane.ProtoBus
	SelfName = "bus"
	PeerName = "bus"
)

// recvQLen bounds the fair-queue backlog held for an application that
// isn't calling Recv fast enough; once full, further arrivals are dropped
// rather than held forever (same tradeoff the teacher's recvq channels
// make with a fixed capacity).
const recvQLen = 128

type busPipe struct {
	pp   nanoplane.ProtocolPipe
	busy bool
}

type proto struct {
	sock  nanoplane.ProtocolSocket
	pipes map[uint32]*busPipe

	recvQ       []*nanoplane.Message
	recvWaiting bool

	raw bool
}

func NewProtocol() nanoplane.Protocol {
	return &proto{pipes: make(map[uint32]*busPipe)}
}

func NewSocket(sess *reactor.Session) (nanoplane.Socket, error) {
	return sess.NewSocket(NewProtocol())
}

func (p *proto) Init(sock nanoplane.ProtocolSocket) { p.sock = sock }

func (p *proto) Info() nanoplane.Info {
	return nanoplane.Info{Self: Self, Peer: Peer, SelfName: SelfName, PeerName: PeerName}
}

func (p *proto) AddPipe(pp nanoplane.ProtocolPipe) error {
	p.pipes[pp.ID()] = &busPipe{pp: pp}
	return nil
}

func (p *proto) RemovePipe(pp nanoplane.ProtocolPipe) {
	delete(p.pipes, pp.ID())
}

func (p *proto) HandlePipeEvent(pp nanoplane.ProtocolPipe, ev nanoplane.PipeEvent) {
	bp, ok := p.pipes[pp.ID()]
	if !ok {
		if ev.Kind == nanoplane.EvReceived {
			ev.Msg.Free()
		}
		return
	}
	switch ev.Kind {
	case nanoplane.EvReceived:
		// Every arrival is tagged with its pipe of origin so a raw-mode
		// device forwarding this message on can later exclude that pipe
		// from its broadcast; a cooked application never sees the tag
		// (xbus.go's receiver/RecvHook split).
		ev.Msg.PutUint32BE(pp.ID())
		if !p.raw {
			ev.Msg.Header = ev.Msg.Header[:0]
		}
		p.deliver(ev.Msg)
	case nanoplane.EvSent:
		bp.busy = false
	}
}

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

func (p *proto) HandleTimer(int) {}

// Send broadcasts m to every pipe that is not already mid-send; a busy
// pipe simply misses this broadcast (spec's broadcast set: "a pipe that
// signals blocked drops out of the current broadcast"). A raw-mode device
// that is forwarding a message it received still carries that message's
// 4-byte pipe-of-origin tag in Header; Send reads it as the sender to
// exclude from this broadcast and strips it before the message goes back
// out on the wire, so a forwarded message never echoes back to the pipe
// it came from (xbus.go's sender/broadcast split). An ordinary
// application Send carries no such tag, so sender stays 0, which never
// matches a real pipe ID (pipe IDs are allocated starting at 1).
func (p *proto) Send(m *nanoplane.Message) (pending bool, err error) {
	defer m.Free()
	if len(p.pipes) == 0 {
		return false, nanoplane.ErrNotConnected
	}
	var sender uint32
	if len(m.Header) >= 4 {
		sender = binary.BigEndian.Uint32(m.Header[:4])
		m.Header = m.Header[4:]
	}
	for _, bp := range p.pipes {
		if bp.busy || bp.pp.ID() == sender {
			continue
		}
		bp.busy = true
		bp.pp.Send(m.Dup())
	}
	return false, nil
}

func (p *proto) CancelSend() {}

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
