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

// Socket is the thread-safe, blocking façade an application holds. Every
// method is a synchronous round-trip through the owning Session's reactor
// thread (spec §2, §5).
type Socket interface {
	Send(b []byte) error
	SendMsg(m *Message) error
	Recv() ([]byte, error)
	RecvMsg() (*Message, error)

	Close() error

	Dial(addr string) error
	DialOptions(addr string, opts map[string]interface{}) error
	NewDialer(addr string, opts map[string]interface{}) (Dialer, error)

	Listen(addr string) error
	ListenOptions(addr string, opts map[string]interface{}) error
	NewListener(addr string, opts map[string]interface{}) (Listener, error)

	SetOption(name string, value interface{}) error
	GetOption(name string) (interface{}, error)

	GetInfo() Info
	SetPortHook(hook PortHook) PortHook
}

// Dialer is a façade handle for one connect-side endpoint (EID). It
// persists across reconnects of the same logical endpoint.
type Dialer interface {
	Dial() error
	Close() error
	Address() string
	SetOption(name string, value interface{}) error
	GetOption(name string) (interface{}, error)
}

// Listener is a façade handle for one bind-side endpoint (EID).
type Listener interface {
	Listen() error
	Close() error
	Address() string
	SetOption(name string, value interface{}) error
	GetOption(name string) (interface{}, error)
}
