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

// Package req implements the request side of REQ/REP: a single
// outstanding request at a time, load-balanced over attached pipes, with
// an optional periodic resend (OptionRetryTime) while no reply has
// arrived. Grounded on the teacher's req.go resend/reschedule pair, moved
// onto the reactor's timer instead of a goroutine-owned time.Timer.
package req

import (
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/reactor"
)

const (
	Self     = nanoplane.ProtoReq
	Peer     = nanoplane.ProtoRep
	SelfName = "req"
	PeerName = "rep"
)

const timerResend = 1

type reqPipe struct {
	pp   nanoplane.ProtocolPipe
	busy bool
}

type proto struct {
	sock  nanoplane.ProtocolSocket
	pipes map[uint32]*reqPipe
	order *reactor.PipeSet

	seq       uint32
	retryTime time.Duration

	pendingID  uint32
	retained   *nanoplane.Message // kept for resend, nil once a reply matches
	queued     *nanoplane.Message // dispatched as soon as a pipe is ready
	waitReply  bool               // Send() itself still pending an EvSent
	sendingID  uint32
	hasSending bool

	recvWaiting bool
	replyReady  *nanoplane.Message

	// raw disables ID generation and reply correlation entirely: Send
	// forwards m's Header as supplied (by a Device's paired raw REP
	// socket), load-balanced the same way, and Recv hands back whatever
	// arrives with its Header intact. Set via SetOption(OptionRaw, true)
	// before a Device switches both of its sockets into raw mode (spec
	// §4.3.7).
	raw bool
}

func NewProtocol() nanoplane.Protocol {
	return &proto{
		pipes: make(map[uint32]*reqPipe),
		order: reactor.NewPipeSet(),
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

// nextID returns the next request ID with the high bit set, which marks
// the frame as a request/survey ID rather than an intermediate backtrace
// hop (spec §6).
func (p *proto) nextID() uint32 {
	v := p.seq | 0x80000000
	p.seq++
	return v
}

func (p *proto) AddPipe(pp nanoplane.ProtocolPipe) error {
	id := pp.ID()
	p.pipes[id] = &reqPipe{pp: pp}
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
		p.handleReply(ev.Msg)
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

func (p *proto) handleReply(m *nanoplane.Message) {
	if p.raw {
		if p.recvWaiting {
			p.recvWaiting = false
			p.sock.CompleteRecv(m, nil)
			return
		}
		if p.replyReady != nil {
			p.replyReady.Free()
		}
		p.replyReady = m
		return
	}
	if err := m.TrimUint32(); err != nil {
		m.Pipe.Close()
		return
	}
	if p.retained == nil {
		m.Free() // no outstanding request; a stray or already-settled reply
		return
	}
	if binary.BigEndian.Uint32(m.Header) != p.pendingID {
		m.Free()
		return
	}
	p.sock.CancelTimer(timerResend)
	p.retained.Free()
	p.retained = nil
	m.Header = m.Header[:0]
	if p.replyReady != nil {
		// A duplicate arrived (e.g. a resend that both copies answered);
		// keep the first, drop the rest.
		m.Free()
		return
	}
	if p.recvWaiting {
		p.recvWaiting = false
		p.sock.CompleteRecv(m, nil)
		return
	}
	p.replyReady = m
}

// dispatch hands the queued request to the next ready pipe in round-robin
// order.
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

func (p *proto) HandleTimer(id int) {
	if id != timerResend || p.retained == nil {
		return
	}
	m := p.retained.Dup()
	p.queued = m
	p.dispatch()
	if p.retryTime > 0 {
		p.sock.ArmTimer(timerResend, p.retryTime)
	}
}

func (p *proto) Send(m *nanoplane.Message) (pending bool, err error) {
	if len(p.pipes) == 0 {
		m.Free()
		return false, nanoplane.ErrNotConnected
	}
	if p.raw {
		p.queued = m
		p.waitReply = true
		p.dispatch()
		return true, nil
	}
	if p.retained != nil {
		// Spec invariant: at most one outstanding request ID; a new Send
		// abandons whatever the previous one was waiting on.
		p.retained.Free()
		p.retained = nil
		p.sock.CancelTimer(timerResend)
		if p.replyReady != nil {
			p.replyReady.Free()
			p.replyReady = nil
		}
	}
	id := p.nextID()
	m.PutUint32BE(id)
	p.pendingID = id
	p.retained = m.Dup()
	p.waitReply = true
	p.queued = m
	p.dispatch()
	if p.retryTime > 0 {
		p.sock.ArmTimer(timerResend, p.retryTime)
	}
	return true, nil
}

func (p *proto) CancelSend() {
	p.waitReply = false
	if p.queued != nil {
		p.queued.Free()
		p.queued = nil
		if p.retained != nil {
			p.retained.Free()
			p.retained = nil
		}
		p.sock.CancelTimer(timerResend)
	}
}

func (p *proto) Recv() (m *nanoplane.Message, pending bool, err error) {
	if p.replyReady != nil {
		m = p.replyReady
		p.replyReady = nil
		return m, false, nil
	}
	p.recvWaiting = true
	return nil, true, nil
}

func (p *proto) CancelRecv() {
	p.recvWaiting = false
}

func (p *proto) SetOption(name string, value interface{}) error {
	switch name {
	case nanoplane.OptionRetryTime:
		d, ok := value.(time.Duration)
		if !ok {
			return nanoplane.ErrBadValue
		}
		p.retryTime = d
		if p.retained != nil {
			if d > 0 {
				p.sock.ArmTimer(timerResend, d)
			} else {
				p.sock.CancelTimer(timerResend)
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
	case nanoplane.OptionRetryTime:
		return p.retryTime, nil
	case nanoplane.OptionRaw:
		return p.raw, nil
	}
	return nil, nanoplane.ErrBadOption
}
