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

// Package surveyor implements the survey side of SURVEYOR/RESPONDENT: a
// broadcast Send tagged with a survey ID (same high-bit convention as
// REQ, spec §6), followed by a collection window (OptionSurveyTime)
// during which matching replies are fair-queued for Recv. Replies that
// arrive after the window closes, or that carry a stale survey ID, are
// dropped silently rather than delivered (spec's SURVEY deadline
// scenario, §8).
package surveyor

import (
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/reactor"
)

const (
	Self     = nanoplane.ProtoSurveyor
	Peer     = nanoplane.ProtoRespondent
	SelfName = "surveyor"
	PeerName = "respondent"
)

const timerDeadline = 1
const recvQLen = 128

type surveyorPipe struct {
	pp   nanoplane.ProtocolPipe
	busy bool
}

type proto struct {
	sock  nanoplane.ProtocolSocket
	pipes map[uint32]*surveyorPipe

	seq        uint32
	surveyTime time.Duration

	surveyID uint32
	active   bool // collection window open
	expired  bool // window closed; further Recv calls fail immediately

	recvQ       []*nanoplane.Message
	recvWaiting bool

	// raw disables survey-ID generation and filtering: Send forwards m's
	// Header as supplied (by a Device's paired raw RESPONDENT socket)
	// and Recv hands back whatever arrives unfiltered, Header intact
	// (spec §4.3.7).
	raw bool
}

func NewProtocol() nanoplane.Protocol {
	return &proto{
		pipes: make(map[uint32]*surveyorPipe),
		seq:   rand.New(rand.NewSource(time.Now().UnixNano())).Uint32(),
	}
}

func NewSocket(sess *reactor.Session) (nanoplane.Socket, error) {
	return sess.NewSocket(NewProtocol())
}

func (p *proto) Init(sock nanoplane.ProtocolSocket) { p.sock = sock }

func (p *proto) Info() nanoplane.Info {
	return nanoplane.Info{Self: Self, Peer: Peer, SelfName: SelfName, PeerName: PeerName}
}

func (p *proto) nextID() uint32 {
	v := p.seq | 0x80000000
	p.seq++
	return v
}

func (p *proto) AddPipe(pp nanoplane.ProtocolPipe) error {
	p.pipes[pp.ID()] = &surveyorPipe{pp: pp}
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
		p.handleReply(ev.Msg)
	case nanoplane.EvSent:
		bp.busy = false
	}
}

func (p *proto) handleReply(m *nanoplane.Message) {
	if p.raw {
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
		return
	}
	if err := m.TrimUint32(); err != nil {
		m.Pipe.Close()
		return
	}
	id := binary.BigEndian.Uint32(m.Header)
	m.Header = m.Header[:0]
	if !p.active || p.expired || id != p.surveyID {
		m.Free()
		return
	}
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

func (p *proto) HandleTimer(id int) {
	if id != timerDeadline {
		return
	}
	p.expired = true
	if p.recvWaiting {
		p.recvWaiting = false
		p.sock.CompleteRecv(nil, nanoplane.ErrRecvTimeout)
	}
}

func (p *proto) closeSurvey() {
	p.active = false
	p.expired = false
	p.sock.CancelTimer(timerDeadline)
	for _, m := range p.recvQ {
		m.Free()
	}
	p.recvQ = nil
	if p.recvWaiting {
		p.recvWaiting = false
		p.sock.CompleteRecv(nil, nanoplane.ErrCanceled)
	}
}

// Send broadcasts m, tagged with a fresh survey ID, to every pipe that
// is not mid-send, and opens a new collection window. A survey still in
// progress is abandoned: its remaining replies, queued or pending, are
// discarded (spec §4.3.6, one survey in flight per socket).
func (p *proto) Send(m *nanoplane.Message) (pending bool, err error) {
	if len(p.pipes) == 0 {
		m.Free()
		return false, nanoplane.ErrNotConnected
	}
	if p.raw {
		for _, bp := range p.pipes {
			if bp.busy {
				continue
			}
			bp.busy = true
			bp.pp.Send(m.Dup())
		}
		m.Free()
		return false, nil
	}
	if p.active {
		p.closeSurvey()
	}
	id := p.nextID()
	m.PutUint32BE(id)
	p.surveyID = id
	p.active = true
	p.expired = false
	for _, bp := range p.pipes {
		if bp.busy {
			continue
		}
		bp.busy = true
		bp.pp.Send(m.Dup())
	}
	m.Free()
	if p.surveyTime > 0 {
		p.sock.ArmTimer(timerDeadline, p.surveyTime)
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
	if !p.raw && (!p.active || p.expired) {
		return nil, false, nanoplane.ErrRecvTimeout
	}
	p.recvWaiting = true
	return nil, true, nil
}

func (p *proto) CancelRecv() {
	p.recvWaiting = false
}

func (p *proto) SetOption(name string, value interface{}) error {
	switch name {
	case nanoplane.OptionSurveyTime:
		d, ok := value.(time.Duration)
		if !ok {
			return nanoplane.ErrBadValue
		}
		p.surveyTime = d
		if p.active && !p.expired {
			if d > 0 {
				p.sock.ArmTimer(timerDeadline, d)
			} else {
				p.sock.CancelTimer(timerDeadline)
			}
		}
		return nil
	case nanoplane.OptionRaw:
		v, ok := value.(bool)
		if !ok {
			return nanoplane.ErrBadValue
		}
		p.raw = v
		return nil
	}
	return nanoplane.ErrBadOption
}

func (p *proto) GetOption(name string) (interface{}, error) {
	switch name {
	case nanoplane.OptionSurveyTime:
		return p.surveyTime, nil
	case nanoplane.OptionRaw:
		return p.raw, nil
	}
	return nil, nanoplane.ErrBadOption
}
