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

// Package respondent implements the reply side of SURVEYOR/RESPONDENT.
// It captures a backtrace the same way REP does (spec §6): the most
// recent Recv's backtrace is retained until the next Send consumes it,
// overwritten by a later Recv if no reply was sent in between (the
// teacher's respondent.go keeps exactly one surveyID/surveyOk slot for
// the same reason).
package respondent

import (
	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/reactor"
)

const (
	Self     = nanoplane.ProtoRespondent
	Peer     = nanoplane.ProtoSurveyor
	SelfName = "respondent"
	PeerName = "surveyor"
)

const recvQLen = 128

type recvItem struct {
	m  *nanoplane.Message
	bt []byte
}

type proto struct {
	sock  nanoplane.ProtocolSocket
	pipes map[uint32]nanoplane.ProtocolPipe

	busyPipes map[uint32]bool

	recvQ       []recvItem
	recvWaiting bool

	backtrace []byte

	pendingSendMsg    *nanoplane.Message
	pendingSendPipeID uint32
	waitReply         bool

	// raw has no effect on RESPONDENT's own behavior, same reasoning as
	// REP; tracked only so GetOption reflects what Device.Start set.
	raw bool
}

func NewProtocol() nanoplane.Protocol {
	return &proto{
		pipes:     make(map[uint32]nanoplane.ProtocolPipe),
		busyPipes: make(map[uint32]bool),
	}
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
	id := pp.ID()
	delete(p.pipes, id)
	delete(p.busyPipes, id)
	if p.pendingSendPipeID != id {
		return
	}
	if p.pendingSendMsg != nil {
		p.pendingSendMsg.Free()
		p.pendingSendMsg = nil
	}
	if p.waitReply {
		p.waitReply = false
		p.sock.CompleteSend(nanoplane.ErrNotConnected)
	}
}

func (p *proto) HandlePipeEvent(pp nanoplane.ProtocolPipe, ev nanoplane.PipeEvent) {
	switch ev.Kind {
	case nanoplane.EvReceived:
		p.handleSurvey(pp, ev.Msg)
	case nanoplane.EvSent:
		id := pp.ID()
		p.busyPipes[id] = false
		if p.waitReply && p.pendingSendMsg == nil && id == p.pendingSendPipeID {
			p.waitReply = false
			p.sock.CompleteSend(nil)
		}
		p.dispatch()
	}
}

func (p *proto) handleSurvey(pp nanoplane.ProtocolPipe, m *nanoplane.Message) {
	m.PutUint32BE(pp.ID())
	if err := m.TrimBackTrace(); err != nil {
		pp.Close()
		return
	}
	bt := append([]byte(nil), m.Header...)
	m.Header = m.Header[:0]
	if p.recvWaiting {
		p.recvWaiting = false
		p.backtrace = bt
		p.sock.CompleteRecv(m, nil)
		return
	}
	if len(p.recvQ) >= recvQLen {
		m.Free()
		return
	}
	p.recvQ = append(p.recvQ, recvItem{m: m, bt: bt})
}

func (p *proto) dispatch() {
	if p.pendingSendMsg == nil {
		return
	}
	id := p.pendingSendPipeID
	if p.busyPipes[id] {
		return
	}
	pp, ok := p.pipes[id]
	if !ok {
		m := p.pendingSendMsg
		p.pendingSendMsg = nil
		m.Free()
		if p.waitReply {
			p.waitReply = false
			p.sock.CompleteSend(nanoplane.ErrNotConnected)
		}
		return
	}
	p.busyPipes[id] = true
	m := p.pendingSendMsg
	p.pendingSendMsg = nil
	pp.Send(m)
}

func (p *proto) HandleTimer(int) {}

func (p *proto) Send(m *nanoplane.Message) (pending bool, err error) {
	if p.backtrace == nil {
		m.Free()
		return false, nanoplane.ErrProtoState
	}
	bt := p.backtrace
	p.backtrace = nil
	m.Header = append(m.Header, bt...)
	outID, uerr := m.UntrimBackTrace()
	if uerr != nil {
		m.Free()
		return false, nanoplane.ErrProtoState
	}
	if _, ok := p.pipes[outID]; !ok {
		m.Free()
		return false, nanoplane.ErrNotConnected
	}
	p.pendingSendPipeID = outID
	p.pendingSendMsg = m
	p.waitReply = true
	p.dispatch()
	return true, nil
}

func (p *proto) CancelSend() {
	p.waitReply = false
	if p.pendingSendMsg != nil {
		p.pendingSendMsg.Free()
		p.pendingSendMsg = nil
	}
}

func (p *proto) Recv() (m *nanoplane.Message, pending bool, err error) {
	if len(p.recvQ) > 0 {
		item := p.recvQ[0]
		p.recvQ = p.recvQ[1:]
		p.backtrace = item.bt
		return item.m, false, nil
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
