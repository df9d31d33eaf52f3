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

// Package pub implements the publish half of PUB/SUB: broadcast-only send,
// no header manipulation, no receive. Subscription filtering lives
// entirely on the SUB side (see protocol/sub).
package pub

import (
	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/reactor"
)

const (
	Self     = nanoplane.ProtoPub
	Peer     = nanoplane.ProtoSub
	SelfName = "pub"
	PeerName = "sub"
)

type pubPipe struct {
	pp   nanoplane.ProtocolPipe
	busy bool
}

type proto struct {
	sock  nanoplane.ProtocolSocket
	pipes map[uint32]*pubPipe

	raw bool
}

func NewProtocol() nanoplane.Protocol {
	return &proto{pipes: make(map[uint32]*pubPipe)}
}

func NewSocket(sess *reactor.Session) (nanoplane.Socket, error) {
	return sess.NewSocket(NewProtocol())
}

func (p *proto) Init(sock nanoplane.ProtocolSocket) { p.sock = sock }

func (p *proto) Info() nanoplane.Info {
	return nanoplane.Info{Self: Self, Peer: Peer, SelfName: SelfName, PeerName: PeerName}
}

func (p *proto) AddPipe(pp nanoplane.ProtocolPipe) error {
	p.pipes[pp.ID()] = &pubPipe{pp: pp}
	return nil
}

func (p *proto) RemovePipe(pp nanoplane.ProtocolPipe) {
	delete(p.pipes, pp.ID())
}

func (p *proto) HandlePipeEvent(pp nanoplane.ProtocolPipe, ev nanoplane.PipeEvent) {
	switch ev.Kind {
	case nanoplane.EvReceived:
		ev.Msg.Free() // PUB has no recv direction; drop anything that arrives
	case nanoplane.EvSent:
		if bp, ok := p.pipes[pp.ID()]; ok {
			bp.busy = false
		}
	}
}

func (p *proto) HandleTimer(int) {}

func (p *proto) Send(m *nanoplane.Message) (pending bool, err error) {
	defer m.Free()
	if len(p.pipes) == 0 {
		return false, nanoplane.ErrNotConnected
	}
	for _, bp := range p.pipes {
		if bp.busy {
			continue
		}
		bp.busy = true
		bp.pp.Send(m.Dup())
	}
	return false, nil
}

func (p *proto) CancelSend() {}

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
