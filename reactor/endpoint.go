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

// endpoint is one EID: either a dial-side endpoint that redials with
// backoff across pipe failures, or a bind-side endpoint that accepts any
// number of pipes. Grounded on the teacher's dialer()/listener() goroutines
// (core.go), adapted to report connection attempts through the reactor's
// single events channel instead of calling back directly into socket state.
type endpoint struct {
	id     uint32
	sock   *socket
	sess   *Session
	addr   string
	isDial bool

	dialer   nanoplane.TranDialer
	listener nanoplane.TranListener

	started  bool
	closed   bool
	closeSig chan struct{}
	redial   chan struct{}

	df *dialerFacade
	lf *listenerFacade
}

func (e *endpoint) facade() nanoplane.Dialer {
	if e.df == nil {
		e.df = &dialerFacade{sid: e.sock.id, eid: e.id, addr: e.addr, sess: e.sess}
	}
	return e.df
}

func (e *endpoint) facadeListener() nanoplane.Listener {
	if e.lf == nil {
		e.lf = &listenerFacade{sid: e.sock.id, eid: e.id, addr: e.addr, sess: e.sess}
	}
	return e.lf
}

// notifyPipeDown wakes a blocked dial loop so it redials immediately
// instead of waiting out a reconnect timer it never armed (the connection
// had succeeded; it was the live pipe that later died).
func (e *endpoint) notifyPipeDown() {
	select {
	case e.redial <- struct{}{}:
	default:
	}
}

func (e *endpoint) dialLoop(events chan<- engineEvent) {
	rtime := e.sock.reconnMin
	if rtime <= 0 {
		rtime = 100 * time.Millisecond
	}
	for {
		tp, err := e.dialer.Dial()
		if err != nil {
			select {
			case <-e.closeSig:
				return
			case <-time.After(rtime):
			}
			if e.sock.reconnMax > 0 {
				rtime *= 2
				if rtime > e.sock.reconnMax {
					rtime = e.sock.reconnMax
				}
			}
			continue
		}
		rtime = e.sock.reconnMin
		if rtime <= 0 {
			rtime = 100 * time.Millisecond
		}
		select {
		case events <- engineEvent{kind: evConnEstablished, sockID: e.sock.id, eid: e.id, tran: tp}:
		case <-e.closeSig:
			tp.Close()
			return
		}
		select {
		case <-e.closeSig:
			return
		case <-e.redial:
		}
	}
}

func (e *endpoint) acceptLoop(events chan<- engineEvent) {
	for {
		tp, err := e.listener.Accept()
		if err != nil {
			select {
			case <-e.closeSig:
				return
			default:
			}
			select {
			case <-e.closeSig:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		select {
		case events <- engineEvent{kind: evConnEstablished, sockID: e.sock.id, eid: e.id, tran: tp}:
		case <-e.closeSig:
			tp.Close()
			return
		}
	}
}

// dialerFacade is the application-visible nanoplane.Dialer handle; every
// method is one round trip through the run goroutine.
type dialerFacade struct {
	sid  uint32
	eid  uint32
	addr string
	sess *Session
}

func (d *dialerFacade) Dial() error {
	rc := make(chan reply, 1)
	r := d.sess.do(&reqDialerStart{sid: d.sid, eid: d.eid, rc: rc}, rc)
	return r.err
}

func (d *dialerFacade) Close() error {
	rc := make(chan reply, 1)
	r := d.sess.do(&reqEndpointClose{sid: d.sid, eid: d.eid, rc: rc}, rc)
	return r.err
}

func (d *dialerFacade) Address() string { return d.addr }

func (d *dialerFacade) SetOption(name string, value interface{}) error {
	rc := make(chan reply, 1)
	r := d.sess.do(&reqEndpointOption{sid: d.sid, eid: d.eid, name: name, value: value, rc: rc}, rc)
	return r.err
}

func (d *dialerFacade) GetOption(name string) (interface{}, error) {
	rc := make(chan reply, 1)
	r := d.sess.do(&reqEndpointOption{sid: d.sid, eid: d.eid, get: true, name: name, rc: rc}, rc)
	return r.value, r.err
}

// listenerFacade is the application-visible nanoplane.Listener handle.
type listenerFacade struct {
	sid  uint32
	eid  uint32
	addr string
	sess *Session
}

func (l *listenerFacade) Listen() error {
	rc := make(chan reply, 1)
	r := l.sess.do(&reqListenerStart{sid: l.sid, eid: l.eid, rc: rc}, rc)
	return r.err
}

func (l *listenerFacade) Close() error {
	rc := make(chan reply, 1)
	r := l.sess.do(&reqEndpointClose{sid: l.sid, eid: l.eid, rc: rc}, rc)
	return r.err
}

func (l *listenerFacade) Address() string { return l.addr }

func (l *listenerFacade) SetOption(name string, value interface{}) error {
	rc := make(chan reply, 1)
	r := l.sess.do(&reqEndpointOption{sid: l.sid, eid: l.eid, name: name, value: value, rc: rc}, rc)
	return r.err
}

func (l *listenerFacade) GetOption(name string) (interface{}, error) {
	rc := make(chan reply, 1)
	r := l.sess.do(&reqEndpointOption{sid: l.sid, eid: l.eid, get: true, name: name, rc: rc}, rc)
	return r.value, r.err
}
