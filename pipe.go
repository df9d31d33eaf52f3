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

// Pipe is the application-visible handle for one live byte-stream
// connection. Applications cannot send or receive through a Pipe
// directly; it exists for introspection (PortHook, Probe) and for Close.
type Pipe interface {
	// ID returns the dense, session-unique identifier for this pipe.
	ID() uint32

	// Address returns the URL this pipe's endpoint was dialed or bound
	// against.
	Address() string

	// GetOption returns a transport-specific option for this pipe.
	GetOption(name string) (interface{}, error)

	// Dialer returns the Dialer that produced this pipe, or nil if it
	// arrived via a Listener.
	Dialer() Dialer

	// Listener returns the Listener that accepted this pipe, or nil if
	// it was produced by a Dialer.
	Listener() Listener

	// Close tears the pipe down. If a dialer owns it and is still
	// active, the dialer will redial.
	Close() error
}

// PortAction describes why a PortHook fired.
type PortAction int

const (
	// PortActionAdd fires before a pipe is admitted to protocol
	// dispatch, letting the hook reject it.
	PortActionAdd PortAction = iota
	// PortActionRemove fires after a pipe has been detached.
	PortActionRemove
)

// PortHook is invoked when a pipe is added to or removed from a socket.
// Returning false from an Add callback rejects the pipe.
type PortHook func(action PortAction, p Pipe) bool

// TranPipe is the low-level interface a Transport's wire pipe exposes to
// the reactor: handshake and framing have already been performed by the
// time a TranPipe exists. See spec §4.1/§4.2.
type TranPipe interface {
	SendMsg(m *Message) error
	RecvMsg() (*Message, error)
	Close() error
	LocalProtocol() uint16
	RemoteProtocol() uint16
	GetOption(name string) (interface{}, error)
}

// TranDialer produces TranPipes by repeatedly attempting outbound
// connections.
type TranDialer interface {
	Dial() (TranPipe, error)
	SetOption(name string, value interface{}) error
	GetOption(name string) (interface{}, error)
}

// TranListener produces TranPipes by accepting inbound connections.
type TranListener interface {
	Listen() error
	Accept() (TranPipe, error)
	Close() error
	SetOption(name string, value interface{}) error
	GetOption(name string) (interface{}, error)
}

// Transport turns a URL scheme into dialers and listeners.
type Transport interface {
	Scheme() string
	NewDialer(addr string, lproto uint16) (TranDialer, error)
	NewListener(addr string, lproto uint16) (TranListener, error)
}
