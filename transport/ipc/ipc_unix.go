// +build !windows

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

// Package ipc implements the IPC transport (scheme "ipc") on UNIX domain
// sockets on POSIX and on Windows named pipes on Windows; see
// ipc_windows.go for the latter half of this split.
package ipc

import (
	"net"
	"strings"
	"sync"

	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/wire"
)

func init() {
	nanoplane.RegisterTransport(&ipcTransport{})
}

type ipcTransport struct{}

func (*ipcTransport) Scheme() string { return "ipc" }

func (*ipcTransport) NewDialer(addr string, lproto uint16) (nanoplane.TranDialer, error) {
	a, err := resolve(addr)
	if err != nil {
		return nil, err
	}
	return &ipcDialer{addr: a, lproto: lproto, maxRecvSize: 1 << 20}, nil
}

func (*ipcTransport) NewListener(addr string, lproto uint16) (nanoplane.TranListener, error) {
	a, err := resolve(addr)
	if err != nil {
		return nil, err
	}
	return &ipcListener{addr: a, lproto: lproto, maxRecvSize: 1 << 20}, nil
}

func resolve(addr string) (*net.UnixAddr, error) {
	addr = strings.TrimPrefix(addr, "ipc://")
	a, err := net.ResolveUnixAddr("unix", addr)
	if err != nil {
		return nil, nanoplane.ErrBadAddr
	}
	return a, nil
}

type ipcDialer struct {
	mu          sync.Mutex
	addr        *net.UnixAddr
	lproto      uint16
	maxRecvSize int
}

func (d *ipcDialer) Dial() (nanoplane.TranPipe, error) {
	conn, err := net.DialUnix("unix", nil, d.addr)
	if err != nil {
		return nil, &nanoplane.IOError{Err: err}
	}
	d.mu.Lock()
	maxSz := d.maxRecvSize
	d.mu.Unlock()
	return wire.NewStreamPipe(conn, d.lproto, maxSz)
}

func (d *ipcDialer) SetOption(name string, value interface{}) error {
	return setIPCOption(&d.mu, &d.maxRecvSize, name, value)
}

func (d *ipcDialer) GetOption(name string) (interface{}, error) {
	return getIPCOption(&d.mu, d.maxRecvSize, name)
}

type ipcListener struct {
	mu          sync.Mutex
	addr        *net.UnixAddr
	lproto      uint16
	maxRecvSize int
	ln          *net.UnixListener
}

func (l *ipcListener) Listen() error {
	ln, err := net.ListenUnix("unix", l.addr)
	if err != nil {
		return &nanoplane.IOError{Err: err}
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()
	return nil
}

func (l *ipcListener) Accept() (nanoplane.TranPipe, error) {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return nil, nanoplane.ErrClosed
	}
	conn, err := ln.AcceptUnix()
	if err != nil {
		return nil, &nanoplane.IOError{Err: err}
	}
	l.mu.Lock()
	maxSz := l.maxRecvSize
	l.mu.Unlock()
	return wire.NewStreamPipe(conn, l.lproto, maxSz)
}

func (l *ipcListener) Close() error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (l *ipcListener) SetOption(name string, value interface{}) error {
	return setIPCOption(&l.mu, &l.maxRecvSize, name, value)
}

func (l *ipcListener) GetOption(name string) (interface{}, error) {
	if name == nanoplane.OptionLocalAddress {
		l.mu.Lock()
		addr := l.addr
		l.mu.Unlock()
		return addr.String(), nil
	}
	return getIPCOption(&l.mu, l.maxRecvSize, name)
}

func setIPCOption(mu *sync.Mutex, maxRecvSize *int, name string, value interface{}) error {
	mu.Lock()
	defer mu.Unlock()
	if name != nanoplane.OptionRecvMaxSize {
		return nanoplane.ErrBadOption
	}
	n, ok := value.(int)
	if !ok {
		return nanoplane.ErrBadValue
	}
	*maxRecvSize = n
	return nil
}

func getIPCOption(mu *sync.Mutex, maxRecvSize int, name string) (interface{}, error) {
	mu.Lock()
	defer mu.Unlock()
	if name != nanoplane.OptionRecvMaxSize {
		return nil, nanoplane.ErrBadOption
	}
	return maxRecvSize, nil
}
