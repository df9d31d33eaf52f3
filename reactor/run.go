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
	"strings"
	"time"

	"github.com/nanoplane/nanoplane"
)

// run is the engine behind one Session: a single goroutine owns every
// field below, and is the only goroutine that ever touches a socket,
// pipeConn, or endpoint's mutable state. Everything else — façade calls,
// pipe I/O completions, dial/accept attempts — arrives as a message on
// reqs or events. This is the Go-idiomatic reshaping of the spec's
// single-threaded, non-blocking reactor: net.Conn has no readiness-poll
// API, so the blocking I/O moves out into per-pipe goroutines instead of
// being multiplexed in this one (spec §2, §4.4).
type run struct {
	sess *Session

	reqs   chan request
	events chan engineEvent
	done   chan struct{}

	sockets map[uint32]*socket

	nextSockID uint32
	nextEID    uint32
	nextPipeID uint32

	timers      *timers
	protoTimers map[protoTimerKey]*timerEntry
}

type protoTimerKey struct {
	sid uint32
	id  int
}

func newRun(sess *Session) *run {
	return &run{
		sess:        sess,
		reqs:        sess.reqs,
		events:      make(chan engineEvent, 64),
		done:        sess.done,
		sockets:     make(map[uint32]*socket),
		timers:      newTimers(),
		protoTimers: make(map[protoTimerKey]*timerEntry),
	}
}

func (r *run) loop() {
	defer close(r.done)
	for {
		r.timers.fireExpired(time.Now())
		var timeC <-chan time.Time
		if d, ok := r.timers.nextDeadline(); ok {
			wait := time.Until(d)
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			timeC = timer.C
		}
		select {
		case ev := <-r.events:
			r.handleEvent(ev)
		case req := <-r.reqs:
			if sd, ok := req.(*reqShutdown); ok {
				r.shutdownAll()
				sd.rc <- reply{}
				return
			}
			r.handleRequest(req)
		case <-timeC:
		}
	}
}

func (r *run) allocSockID() uint32 { r.nextSockID++; return r.nextSockID }
func (r *run) allocEID() uint32    { r.nextEID++; return r.nextEID }
func (r *run) allocPipeID() uint32 { r.nextPipeID++; return r.nextPipeID }

func schemeOf(addr string) (string, error) {
	i := strings.Index(addr, "://")
	if i <= 0 {
		return "", nanoplane.ErrBadAddr
	}
	return addr[:i], nil
}

// handleRequest dispatches one façade call. Every variant replies exactly
// once, synchronously, except reqSend/reqRecv which may instead register a
// pendingOp resolved later by CompleteSend/CompleteRecv or a timeout.
func (r *run) handleRequest(req request) {
	switch q := req.(type) {
	case *reqNewSocket:
		id := r.allocSockID()
		s := newSocket(r, id, q.proto)
		r.sockets[id] = s
		q.rc <- reply{sid: id}

	case *reqCloseSocket:
		s := r.sockets[q.sid]
		if s == nil {
			q.rc <- reply{err: nanoplane.ErrClosed}
			return
		}
		r.closeSocket(s)
		q.rc <- reply{}

	case *reqSend:
		r.handleSend(q)

	case *reqRecv:
		r.handleRecv(q)

	case *reqSetOption:
		r.handleSetOption(q)

	case *reqGetOption:
		r.handleGetOption(q)

	case *reqGetInfo:
		s := r.sockets[q.sid]
		if s == nil {
			q.rc <- reply{err: nanoplane.ErrClosed}
			return
		}
		q.rc <- reply{value: s.info}

	case *reqSetPortHook:
		s := r.sockets[q.sid]
		if s == nil {
			q.rc <- reply{err: nanoplane.ErrClosed}
			return
		}
		old := s.portHook
		s.portHook = q.hook
		q.rc <- reply{value: old}

	case *reqNewDialer:
		r.handleNewDialer(q)

	case *reqDialerStart:
		r.handleDialerStart(q)

	case *reqNewListener:
		r.handleNewListener(q)

	case *reqListenerStart:
		r.handleListenerStart(q)

	case *reqEndpointClose:
		r.handleEndpointClose(q)

	case *reqEndpointOption:
		r.handleEndpointOption(q)
	}
}

func (r *run) handleSend(q *reqSend) {
	s := r.sockets[q.sid]
	if s == nil || s.closed {
		q.msg.Free()
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	if s.sendPending != nil {
		q.msg.Free()
		q.rc <- reply{err: nanoplane.ErrProtoState}
		return
	}
	pending, err := s.proto.Send(q.msg)
	if !pending {
		q.rc <- reply{err: err}
		return
	}
	op := &pendingOp{rc: q.rc}
	if s.sendDeadline > 0 {
		op.tm = r.timers.add(time.Now().Add(s.sendDeadline), func() {
			s.sendPending = nil
			s.proto.CancelSend()
			op.rc <- reply{err: nanoplane.ErrSendTimeout}
		})
	}
	s.sendPending = op
}

func (r *run) handleRecv(q *reqRecv) {
	s := r.sockets[q.sid]
	if s == nil || s.closed {
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	if s.recvPending != nil {
		q.rc <- reply{err: nanoplane.ErrProtoState}
		return
	}
	m, pending, err := s.proto.Recv()
	if !pending {
		q.rc <- reply{msg: m, err: err}
		return
	}
	op := &pendingOp{rc: q.rc}
	if s.recvDeadline > 0 {
		op.tm = r.timers.add(time.Now().Add(s.recvDeadline), func() {
			s.recvPending = nil
			s.proto.CancelRecv()
			op.rc <- reply{err: nanoplane.ErrRecvTimeout}
		})
	}
	s.recvPending = op
}

func (r *run) handleSetOption(q *reqSetOption) {
	s := r.sockets[q.sid]
	if s == nil {
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	switch q.name {
	case nanoplane.OptionSendDeadline:
		d, ok := q.value.(time.Duration)
		if !ok {
			q.rc <- reply{err: nanoplane.ErrBadValue}
			return
		}
		s.sendDeadline = d
	case nanoplane.OptionRecvDeadline:
		d, ok := q.value.(time.Duration)
		if !ok {
			q.rc <- reply{err: nanoplane.ErrBadValue}
			return
		}
		s.recvDeadline = d
	case nanoplane.OptionRecvMaxSize:
		n, ok := q.value.(int)
		if !ok {
			q.rc <- reply{err: nanoplane.ErrBadValue}
			return
		}
		s.recvMaxSize = n
		r.propagateEndpointOption(s, nanoplane.OptionRecvMaxSize, n)
	case nanoplane.OptionReconnectTime:
		d, ok := q.value.(time.Duration)
		if !ok {
			q.rc <- reply{err: nanoplane.ErrBadValue}
			return
		}
		s.reconnMin = d
	case nanoplane.OptionMaxReconnectTime:
		d, ok := q.value.(time.Duration)
		if !ok {
			q.rc <- reply{err: nanoplane.ErrBadValue}
			return
		}
		s.reconnMax = d
	case nanoplane.OptionNoDelay:
		b, ok := q.value.(bool)
		if !ok {
			q.rc <- reply{err: nanoplane.ErrBadValue}
			return
		}
		s.noDelay = b
		r.propagateEndpointOption(s, nanoplane.OptionNoDelay, b)
	case nanoplane.OptionLinger:
		d, ok := q.value.(time.Duration)
		if !ok {
			q.rc <- reply{err: nanoplane.ErrBadValue}
			return
		}
		s.linger = d
	default:
		q.rc <- reply{err: s.proto.SetOption(q.name, q.value)}
		return
	}
	q.rc <- reply{}
}

func (r *run) handleGetOption(q *reqGetOption) {
	s := r.sockets[q.sid]
	if s == nil {
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	switch q.name {
	case nanoplane.OptionSendDeadline:
		q.rc <- reply{value: s.sendDeadline}
	case nanoplane.OptionRecvDeadline:
		q.rc <- reply{value: s.recvDeadline}
	case nanoplane.OptionRecvMaxSize:
		q.rc <- reply{value: s.recvMaxSize}
	case nanoplane.OptionReconnectTime:
		q.rc <- reply{value: s.reconnMin}
	case nanoplane.OptionMaxReconnectTime:
		q.rc <- reply{value: s.reconnMax}
	case nanoplane.OptionNoDelay:
		q.rc <- reply{value: s.noDelay}
	case nanoplane.OptionLinger:
		q.rc <- reply{value: s.linger}
	default:
		v, err := s.proto.GetOption(q.name)
		q.rc <- reply{value: v, err: err}
	}
}

func (r *run) propagateEndpointOption(s *socket, name string, value interface{}) {
	for _, ep := range s.endpoints {
		if ep.isDial {
			ep.dialer.SetOption(name, value)
		} else if ep.listener != nil {
			ep.listener.SetOption(name, value)
		}
	}
}

func (r *run) handleNewDialer(q *reqNewDialer) {
	s := r.sockets[q.sid]
	if s == nil || s.closed {
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	scheme, err := schemeOf(q.addr)
	if err != nil {
		q.rc <- reply{err: err}
		return
	}
	tr := nanoplane.GetTransport(scheme)
	if tr == nil {
		q.rc <- reply{err: nanoplane.ErrBadTran}
		return
	}
	td, err := tr.NewDialer(q.addr, s.info.Self)
	if err != nil {
		q.rc <- reply{err: err}
		return
	}
	td.SetOption(nanoplane.OptionRecvMaxSize, s.recvMaxSize)
	td.SetOption(nanoplane.OptionNoDelay, s.noDelay)
	for k, v := range q.opts {
		if err := td.SetOption(k, v); err != nil {
			q.rc <- reply{err: err}
			return
		}
	}
	eid := r.allocEID()
	ep := &endpoint{
		id:       eid,
		sock:     s,
		sess:     r.sess,
		addr:     q.addr,
		isDial:   true,
		dialer:   td,
		closeSig: make(chan struct{}),
		redial:   make(chan struct{}, 1),
	}
	s.endpoints[eid] = ep
	q.rc <- reply{eid: eid}
}

func (r *run) handleDialerStart(q *reqDialerStart) {
	s := r.sockets[q.sid]
	if s == nil {
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	ep := s.endpoints[q.eid]
	if ep == nil || !ep.isDial {
		q.rc <- reply{err: nanoplane.ErrBadOption}
		return
	}
	if !ep.started {
		ep.started = true
		go ep.dialLoop(r.events)
	}
	q.rc <- reply{}
}

func (r *run) handleNewListener(q *reqNewListener) {
	s := r.sockets[q.sid]
	if s == nil || s.closed {
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	scheme, err := schemeOf(q.addr)
	if err != nil {
		q.rc <- reply{err: err}
		return
	}
	tr := nanoplane.GetTransport(scheme)
	if tr == nil {
		q.rc <- reply{err: nanoplane.ErrBadTran}
		return
	}
	tl, err := tr.NewListener(q.addr, s.info.Self)
	if err != nil {
		q.rc <- reply{err: err}
		return
	}
	tl.SetOption(nanoplane.OptionRecvMaxSize, s.recvMaxSize)
	tl.SetOption(nanoplane.OptionNoDelay, s.noDelay)
	for k, v := range q.opts {
		if err := tl.SetOption(k, v); err != nil {
			q.rc <- reply{err: err}
			return
		}
	}
	eid := r.allocEID()
	ep := &endpoint{
		id:       eid,
		sock:     s,
		sess:     r.sess,
		addr:     q.addr,
		isDial:   false,
		listener: tl,
		closeSig: make(chan struct{}),
	}
	s.endpoints[eid] = ep
	q.rc <- reply{eid: eid}
}

func (r *run) handleListenerStart(q *reqListenerStart) {
	s := r.sockets[q.sid]
	if s == nil {
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	ep := s.endpoints[q.eid]
	if ep == nil || ep.isDial {
		q.rc <- reply{err: nanoplane.ErrBadOption}
		return
	}
	if !ep.started {
		if err := ep.listener.Listen(); err != nil {
			q.rc <- reply{err: err}
			return
		}
		ep.started = true
		go ep.acceptLoop(r.events)
	}
	q.rc <- reply{}
}

func (r *run) handleEndpointClose(q *reqEndpointClose) {
	s := r.sockets[q.sid]
	if s == nil {
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	ep := s.endpoints[q.eid]
	if ep == nil {
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	delete(s.endpoints, q.eid)
	r.stopEndpoint(ep)
	if ep.listener != nil {
		ep.listener.Close()
	}
	q.rc <- reply{}
}

func (r *run) handleEndpointOption(q *reqEndpointOption) {
	s := r.sockets[q.sid]
	if s == nil {
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	ep := s.endpoints[q.eid]
	if ep == nil {
		q.rc <- reply{err: nanoplane.ErrClosed}
		return
	}
	if q.get {
		var v interface{}
		var err error
		if ep.isDial {
			v, err = ep.dialer.GetOption(q.name)
		} else {
			v, err = ep.listener.GetOption(q.name)
		}
		q.rc <- reply{value: v, err: err}
		return
	}
	var err error
	if ep.isDial {
		err = ep.dialer.SetOption(q.name, q.value)
	} else {
		err = ep.listener.SetOption(q.name, q.value)
	}
	q.rc <- reply{err: err}
}

func (r *run) handleEvent(ev engineEvent) {
	s := r.sockets[ev.sockID]
	if s == nil {
		if ev.tran != nil {
			ev.tran.Close()
		}
		if ev.msg != nil {
			ev.msg.Free()
		}
		return
	}
	switch ev.kind {
	case evConnEstablished:
		r.handleConnEstablished(s, ev)
	case evPipeSent:
		if p := s.pipes[ev.pipeID]; p != nil {
			s.proto.HandlePipeEvent(p, nanoplane.PipeEvent{Kind: nanoplane.EvSent})
		}
	case evPipeReceived:
		p := s.pipes[ev.pipeID]
		if p == nil {
			ev.msg.Free()
			return
		}
		s.proto.HandlePipeEvent(p, nanoplane.PipeEvent{Kind: nanoplane.EvReceived, Msg: ev.msg})
	case evPipeError:
		if p := s.pipes[ev.pipeID]; p != nil {
			r.dropPipe(s, p, ev.err)
		}
	}
}

func (r *run) handleConnEstablished(s *socket, ev engineEvent) {
	ep := s.endpoints[ev.eid]
	if ep == nil || ep.closed || s.closed {
		ev.tran.Close()
		return
	}
	pid := r.allocPipeID()
	p := newPipeConn(s, ep, pid, ev.tran)
	if s.portHook != nil && !s.portHook(nanoplane.PortActionAdd, pipeHandle{p}) {
		ev.tran.Close()
		if ep.isDial {
			ep.notifyPipeDown()
		}
		return
	}
	if err := s.proto.AddPipe(p); err != nil {
		ev.tran.Close()
		if ep.isDial {
			ep.notifyPipeDown()
		}
		return
	}
	s.pipes[pid] = p
	p.start(r.events)
	s.proto.HandlePipeEvent(p, nanoplane.PipeEvent{Kind: nanoplane.EvAttached})
}

func (r *run) dropPipe(s *socket, p *pipeConn, err error) {
	delete(s.pipes, p.id)
	s.proto.RemovePipe(p)
	if s.portHook != nil {
		s.portHook(nanoplane.PortActionRemove, pipeHandle{p})
	}
	p.Close()
	if p.ep.isDial && !p.ep.closed {
		p.ep.notifyPipeDown()
	}
}

func (r *run) armProtoTimer(s *socket, id int, d time.Duration) {
	key := protoTimerKey{s.id, id}
	if old, ok := r.protoTimers[key]; ok {
		r.timers.cancel(old)
	}
	e := r.timers.add(time.Now().Add(d), func() {
		delete(r.protoTimers, key)
		s.proto.HandleTimer(id)
	})
	r.protoTimers[key] = e
}

func (r *run) cancelProtoTimer(s *socket, id int) {
	key := protoTimerKey{s.id, id}
	if e, ok := r.protoTimers[key]; ok {
		r.timers.cancel(e)
		delete(r.protoTimers, key)
	}
}

// closeSocket honors OptionLinger: pipes stop accepting new work right
// away, but teardown of the protocol and its pipes is deferred so a writer
// goroutine already mid-flush gets a chance to finish (spec §6, LINGER).
func (r *run) closeSocket(s *socket) {
	if s.closed {
		return
	}
	s.closed = true
	s.failPendingSend(nanoplane.ErrClosed)
	s.failPendingRecv(nanoplane.ErrClosed)
	for _, ep := range s.endpoints {
		r.stopEndpoint(ep)
		if ep.listener != nil {
			ep.listener.Close()
		}
	}
	if s.linger <= 0 {
		r.teardownSocket(s)
		return
	}
	r.timers.add(time.Now().Add(s.linger), func() {
		r.teardownSocket(s)
	})
}

func (r *run) teardownSocket(s *socket) {
	if _, ok := r.sockets[s.id]; !ok {
		return
	}
	for _, p := range s.pipes {
		s.proto.RemovePipe(p)
		p.Close()
	}
	s.pipes = make(map[uint32]*pipeConn)
	delete(r.sockets, s.id)
}

func (r *run) stopEndpoint(ep *endpoint) {
	if ep.closed {
		return
	}
	ep.closed = true
	close(ep.closeSig)
}

func (r *run) shutdownAll() {
	for _, s := range r.sockets {
		s.closed = true
		s.failPendingSend(nanoplane.ErrClosed)
		s.failPendingRecv(nanoplane.ErrClosed)
		for _, ep := range s.endpoints {
			r.stopEndpoint(ep)
			if ep.listener != nil {
				ep.listener.Close()
			}
		}
		r.teardownSocket(s)
	}
}
