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
	"sync"

	"github.com/nanoplane/nanoplane"
)

// pipeConn is the reactor-resident, live half of one handshaken
// connection. Its reader and writer goroutines do the blocking I/O; they
// report completions back onto the run's single fan-in events channel, the
// adaptation this library makes of the spec's non-blocking reactor model to
// Go's blocking net.Conn (spec §2, §4.2).
type pipeConn struct {
	id   uint32
	sock *socket
	ep   *endpoint
	tp   nanoplane.TranPipe

	sendc      chan *nanoplane.Message
	closeOnce  sync.Once
	closedc    chan struct{}
}

func newPipeConn(sock *socket, ep *endpoint, id uint32, tp nanoplane.TranPipe) *pipeConn {
	return &pipeConn{
		id:      id,
		sock:    sock,
		ep:      ep,
		tp:      tp,
		sendc:   make(chan *nanoplane.Message, 1),
		closedc: make(chan struct{}),
	}
}

func (p *pipeConn) start(events chan<- engineEvent) {
	go p.reader(events)
	go p.writer(events)
}

// ProtocolPipe implementation.

func (p *pipeConn) ID() uint32      { return p.id }
func (p *pipeConn) Address() string { return p.ep.addr }

func (p *pipeConn) GetOption(name string) (interface{}, error) {
	return p.tp.GetOption(name)
}

func (p *pipeConn) Send(m *nanoplane.Message) {
	select {
	case p.sendc <- m:
	case <-p.closedc:
		m.Free()
	}
}

func (p *pipeConn) Close() {
	p.closeOnce.Do(func() {
		close(p.closedc)
		p.tp.Close()
	})
}

// nanoplane.Pipe implementation (application-visible handle).

func (p *pipeConn) Dialer() nanoplane.Dialer {
	if p.ep.isDial {
		return p.ep.facade()
	}
	return nil
}

func (p *pipeConn) Listener() nanoplane.Listener {
	if !p.ep.isDial {
		return p.ep.facadeListener()
	}
	return nil
}

// pipeHandle adapts a pipeConn to nanoplane.Pipe for application-visible
// contexts (PortHook, Message.Pipe), where Close must report an error to
// satisfy the Pipe interface while the reactor-internal ProtocolPipe.Close
// stays synchronous and error-less.
type pipeHandle struct {
	*pipeConn
}

func (h pipeHandle) Close() error {
	h.pipeConn.Close()
	return nil
}

func (p *pipeConn) reader(events chan<- engineEvent) {
	for {
		m, err := p.tp.RecvMsg()
		if err != nil {
			p.reportError(events, err)
			return
		}
		m.Pipe = pipeHandle{p}
		select {
		case events <- engineEvent{kind: evPipeReceived, sockID: p.sock.id, pipeID: p.id, msg: m}:
		case <-p.closedc:
			m.Free()
			return
		}
	}
}

func (p *pipeConn) writer(events chan<- engineEvent) {
	for {
		select {
		case m := <-p.sendc:
			err := p.tp.SendMsg(m)
			m.Free()
			if err != nil {
				p.reportError(events, err)
				return
			}
			select {
			case events <- engineEvent{kind: evPipeSent, sockID: p.sock.id, pipeID: p.id}:
			case <-p.closedc:
				return
			}
		case <-p.closedc:
			return
		}
	}
}

func (p *pipeConn) reportError(events chan<- engineEvent, err error) {
	select {
	case events <- engineEvent{kind: evPipeError, sockID: p.sock.id, pipeID: p.id, err: err}:
	case <-p.closedc:
	}
}
