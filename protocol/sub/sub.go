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

// Package sub implements the subscribe half of PUB/SUB. A SUB receives a
// message iff some registered prefix is a prefix of the message body; with
// no subscriptions at all, it receives nothing and Recv blocks forever
// (spec's SUB.recv, §4.3.4).
package sub

import (
	"bytes"

	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/reactor"
)

const (
	Self     = nanoplane.ProtoSub
	Peer     = nanoplane.ProtoPub
	SelfName = "sub"
	PeerName = "pub"
)

// recvQLen bounds the fair-queue backlog; see protocol/bus for the same
// tradeoff.
const recvQLen = 128

type proto struct {
	sock  nanoplane.ProtocolSocket
	pipes map[uint32]nanoplane.ProtocolPipe
	subs  [][]byte

	recvQ       []*nanoplane.Message
	recvWaiting bool

	raw bool
}

func NewProtocol() nanoplane.Protocol {
	return &proto{pipes: make(map[uint32]nanoplane.ProtocolPipe)}
}

func NewSocket(sess *reactor.Session) (nanoplane.Socket, error) {
	return sess.NewSocket(NewProtocol())
}

func (p *proto) Init(sock nanoplane.ProtocolSocket) { p.sock = sock }

func (p *proto) Info() nanoplane.Info {
	return nanoplane.Info{Self: Self, Peer: Peer, SelfName: SelfName, PeerName: PeerName}
}

func (p *proto) AddPipe(pp nanoplane.ProtocolPipe) error {
	p.pipes[pp.ID()] = pp
	return nil
}

func (p *proto) RemovePipe(pp nanoplane.ProtocolPipe) {
	delete(p.pipes, pp.ID())
}

func (p *proto) HandlePipeEvent(pp nanoplane.ProtocolPipe, ev nanoplane.PipeEvent) {
	if ev.Kind != nanoplane.EvReceived {
		return
	}
	if !p.matches(ev.Msg) {
		ev.Msg.Free()
		return
	}
	if p.recvWaiting {
		p.recvWaiting = false
		p.sock.CompleteRecv(ev.Msg, nil)
		return
	}
	if len(p.recvQ) >= recvQLen {
		ev.Msg.Free()
		return
	}
	p.recvQ = append(p.recvQ, ev.Msg)
}

func (p *proto) matches(m *nanoplane.Message) bool {
	for _, sub := range p.subs {
		if bytes.HasPrefix(m.Body, sub) {
			return true
		}
	}
	return false
}

func (p *proto) HandleTimer(int) {}

func (p *proto) Send(m *nanoplane.Message) (pending bool, err error) {
	m.Free()
	return false, nanoplane.ErrProtoOp
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
	if name == nanoplane.OptionRaw {
		v, ok := value.(bool)
		if !ok {
			return nanoplane.ErrBadValue
		}
		p.raw = v
		return nil
	}
	var topic []byte
	switch name {
	case nanoplane.OptionSubscribe, nanoplane.OptionUnsubscribe:
		switch v := value.(type) {
		case []byte:
			topic = v
		case string:
			topic = []byte(v)
		default:
			return nanoplane.ErrBadValue
		}
	default:
		return nanoplane.ErrBadOption
	}

	switch name {
	case nanoplane.OptionSubscribe:
		for _, s := range p.subs {
			if bytes.Equal(s, topic) {
				return nil
			}
		}
		p.subs = append(p.subs, topic)
		return nil
	case nanoplane.OptionUnsubscribe:
		for i, s := range p.subs {
			if bytes.Equal(s, topic) {
				p.subs = append(p.subs[:i], p.subs[i+1:]...)
				p.pruneQueue()
				return nil
			}
		}
		return nanoplane.ErrBadValue
	}
	return nanoplane.ErrBadOption
}

// pruneQueue drops already-queued messages that no longer match any
// subscription after an unsubscribe, mirroring the teacher's rationale in
// sub.go's unsubscribe (stale matches shouldn't surface after the caller
// asked to stop seeing them).
func (p *proto) pruneQueue() {
	kept := p.recvQ[:0]
	for _, m := range p.recvQ {
		if p.matches(m) {
			kept = append(kept, m)
		} else {
			m.Free()
		}
	}
	p.recvQ = kept
}

func (p *proto) GetOption(name string) (interface{}, error) {
	if name == nanoplane.OptionRaw {
		return p.raw, nil
	}
	return nil, nanoplane.ErrBadOption
}
