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

// Package tcp implements the TCP transport (scheme "tcp").
package tcp

import (
	"net"
	"strings"
	"sync"

	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/wire"
)

func init() {
	nanoplane.RegisterTransport(&tcpTransport{})
}

type tcpTransport struct{}

func (*tcpTransport) Scheme() string { return "tcp" }

func (*tcpTransport) NewDialer(addr string, lproto uint16) (nanoplane.TranDialer, error) {
	a, err := resolve(addr)
	if err != nil {
		return nil, err
	}
	return &tcpDialer{addr: a, lproto: lproto, maxRecvSize: 1 << 20}, nil
}

func (*tcpTransport) NewListener(addr string, lproto uint16) (nanoplane.TranListener, error) {
	a, err := resolve(addr)
	if err != nil {
		return nil, err
	}
	return &tcpListener{addr: a, lproto: lproto, maxRecvSize: 1 << 20}, nil
}

func resolve(addr string) (*net.TCPAddr, error) {
	addr = strings.TrimPrefix(addr, "tcp://")
	a, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, nanoplane.ErrBadAddr
	}
	return a, nil
}

type tcpDialer struct {
	mu          sync.Mutex
	addr        *net.TCPAddr
	lproto      uint16
	maxRecvSize int
	noDelay     bool
}

func (d *tcpDialer) Dial() (nanoplane.TranPipe, error) {
	conn, err := net.DialTCP("tcp", nil, d.addr)
	if err != nil {
		return nil, &nanoplane.IOError{Err: err}
	}
	d.mu.Lock()
	noDelay, maxSz := d.noDelay, d.maxRecvSize
	d.mu.Unlock()
	conn.SetNoDelay(noDelay)
	return wire.NewStreamPipe(conn, d.lproto, maxSz)
}

func (d *tcpDialer) SetOption(name string, value interface{}) error {
	return setTCPOption(&d.mu, &d.maxRecvSize, &d.noDelay, name, value)
}

func (d *tcpDialer) GetOption(name string) (interface{}, error) {
	return getTCPOption(&d.mu, d.maxRecvSize, d.noDelay, name)
}

type tcpListener struct {
	mu          sync.Mutex
	addr        *net.TCPAddr
	lproto      uint16
	maxRecvSize int
	noDelay     bool
	ln          *net.TCPListener
}

func (l *tcpListener) Listen() error {
	ln, err := net.ListenTCP("tcp", l.addr)
	if err != nil {
		return &nanoplane.IOError{Err: err}
	}
	l.mu.Lock()
	l.ln = ln
	l.addr = ln.Addr().(*net.TCPAddr)
	l.mu.Unlock()
	return nil
}

func (l *tcpListener) Accept() (nanoplane.TranPipe, error) {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return nil, nanoplane.ErrClosed
	}
	conn, err := ln.AcceptTCP()
	if err != nil {
		return nil, &nanoplane.IOError{Err: err}
	}
	l.mu.Lock()
	noDelay, maxSz := l.noDelay, l.maxRecvSize
	l.mu.Unlock()
	conn.SetNoDelay(noDelay)
	return wire.NewStreamPipe(conn, l.lproto, maxSz)
}

func (l *tcpListener) Close() error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (l *tcpListener) SetOption(name string, value interface{}) error {
	return setTCPOption(&l.mu, &l.maxRecvSize, &l.noDelay, name, value)
}

func (l *tcpListener) GetOption(name string) (interface{}, error) {
	l.mu.Lock()
	addr := l.addr
	l.mu.Unlock()
	if name == nanoplane.OptionLocalAddress {
		return addr.String(), nil
	}
	return getTCPOption(&l.mu, l.maxRecvSize, l.noDelay, name)
}

func setTCPOption(mu *sync.Mutex, maxRecvSize *int, noDelay *bool, name string, value interface{}) error {
	mu.Lock()
	defer mu.Unlock()
	switch name {
	case nanoplane.OptionRecvMaxSize:
		n, ok := value.(int)
		if !ok {
			return nanoplane.ErrBadValue
		}
		*maxRecvSize = n
	case nanoplane.OptionNoDelay:
		b, ok := value.(bool)
		if !ok {
			return nanoplane.ErrBadValue
		}
		*noDelay = b
	default:
		return nanoplane.ErrBadOption
	}
	return nil
}

func getTCPOption(mu *sync.Mutex, maxRecvSize int, noDelay bool, name string) (interface{}, error) {
	mu.Lock()
	defer mu.Unlock()
	switch name {
	case nanoplane.OptionRecvMaxSize:
		return maxRecvSize, nil
	case nanoplane.OptionNoDelay:
		return noDelay, nil
	default:
		return nil, nanoplane.ErrBadOption
	}
}
