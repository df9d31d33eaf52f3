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

package nanoplane

import "time"

// PipeEventKind describes what happened to a pipe from the protocol's
// point of view.
type PipeEventKind int

const (
	// EvAttached fires once, after handshake succeeds and the pipe has
	// been admitted to the protocol's dispatch (spec §3 invariant 3).
	EvAttached PipeEventKind = iota
	// EvSent fires when a message handed to ProtocolPipe.Send has been
	// fully written; the pipe becomes eligible for the next send.
	EvSent
	// EvReceived fires when a full message has been read off the pipe.
	EvReceived
	// EvError names a pipe failure. The reactor does not deliver it: a
	// pipe that dies (I/O failure, oversize frame) is detached through
	// Protocol.RemovePipe instead.
	EvError
)

// PipeEvent is delivered to Protocol.HandlePipeEvent by the reactor.
type PipeEvent struct {
	Kind PipeEventKind
	Msg  *Message // valid only for EvReceived
	Err  error    // valid only for EvError
}

// ProtocolPipe is the interface protocols use to drive an individual pipe.
// All methods are only ever called from the reactor's single goroutine.
type ProtocolPipe interface {
	ID() uint32
	Address() string
	GetOption(name string) (interface{}, error)

	// Send hands a message to this pipe's writer. The protocol must not
	// call Send again for this pipe until it observes the matching
	// EvSent (i.e. it must honor the can-send gate itself by tracking
	// which pipes it has outstanding sends on).
	Send(m *Message)

	// Close tears the pipe down immediately.
	Close()
}

// ProtocolSocket is the callback surface a Protocol uses to resolve
// pending operations and to arm protocol-private timers (REQ resend,
// SURVEYOR deadline). It is supplied once, at Init.
type ProtocolSocket interface {
	// CompleteSend resolves the single pending Send registered with this
	// socket. A call after the pending Send already timed out is
	// silently ignored by the reactor (spec §7: late completions are
	// discarded).
	CompleteSend(err error)

	// CompleteRecv resolves the single pending Recv registered with
	// this socket, analogous to CompleteSend.
	CompleteRecv(m *Message, err error)

	// ArmTimer (re)schedules a protocol-private one-shot timer. When it
	// fires, Protocol.HandleTimer(id) is invoked from the reactor
	// goroutine. Arming an id that is already armed replaces it.
	ArmTimer(id int, d time.Duration)

	// CancelTimer cancels a previously armed timer; a no-op if it is
	// not armed or has already fired.
	CancelTimer(id int)

	// Now returns the reactor's notion of current time, used by
	// protocols computing absolute deadlines (e.g. SURVEYOR).
	Now() time.Time
}

// Protocol is the pattern-specific state machine every socket wraps. All
// methods are invoked only from the reactor's single goroutine; protocols
// never need their own locking. See spec §4.3.
type Protocol interface {
	// Init supplies the callback surface and is called exactly once,
	// before any pipe is attached.
	Init(sock ProtocolSocket)

	// AddPipe admits a newly handshaken pipe. Returning an error rejects
	// it (the reactor will Close it).
	AddPipe(p ProtocolPipe) error

	// RemovePipe detaches a pipe the reactor is tearing down. The
	// protocol must drop every reference to p.
	RemovePipe(p ProtocolPipe)

	// HandlePipeEvent delivers a readiness or data event for a pipe
	// already added via AddPipe.
	HandlePipeEvent(p ProtocolPipe, ev PipeEvent)

	// HandleTimer delivers the firing of a timer previously armed via
	// ProtocolSocket.ArmTimer.
	HandleTimer(id int)

	// Send begins sending m. If it completes synchronously (e.g.
	// broadcast to already-active pipes, or an immediate "not
	// connected" failure) it returns pending=false and the final error.
	// Otherwise it returns pending=true having registered whatever
	// internal state it needs, and must later call
	// ProtocolSocket.CompleteSend.
	Send(m *Message) (pending bool, err error)

	// CancelSend is called when a pending Send's deadline elapses
	// before the protocol completed it. The protocol must drop its
	// internal bookkeeping for that send; no further CompleteSend call
	// for it will be honored.
	CancelSend()

	// Recv begins receiving a message, with the same synchronous/
	// pending contract as Send.
	Recv() (m *Message, pending bool, err error)

	// CancelRecv is the Recv-side analogue of CancelSend.
	CancelRecv()

	// SetOption/GetOption handle protocol-specific options; unknown
	// names must return ErrBadOption so the socket layer can try its
	// own generic option set.
	SetOption(name string, value interface{}) error
	GetOption(name string) (interface{}, error)

	// Info describes this protocol and its expected peer.
	Info() Info
}
