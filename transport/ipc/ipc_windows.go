// +build windows

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

// Package ipc implements the IPC transport (scheme "ipc") on Windows named
// pipes via go-winio; see ipc_unix.go for the POSIX half of this split.
package ipc

import (
	"net"
	"strings"
	"sync"

	"github.com/Microsoft/go-winio"
	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/wire"
)

// Windows named-pipe specific options, settable only on a Listener before
// Listen is called.
const (
	OptionSecurityDescriptor = "WIN-IPC-SECURITY-DESCRIPTOR"
	OptionInputBufferSize    = "WIN-IPC-INPUT-BUFFER-SIZE"
	OptionOutputBufferSize   = "WIN-IPC-OUTPUT-BUFFER-SIZE"
)

func init() {
	nanoplane.RegisterTransport(&ipcTransport{})
}

type ipcTransport struct{}

func (*ipcTransport) Scheme() string { return "ipc" }

func (*ipcTransport) NewDialer(addr string, lproto uint16) (nanoplane.TranDialer, error) {
	path := strings.TrimPrefix(addr, "ipc://")
	return &ipcDialer{path: path, lproto: lproto, maxRecvSize: 1 << 20}, nil
}

func (*ipcTransport) NewListener(addr string, lproto uint16) (nanoplane.TranListener, error) {
	path := strings.TrimPrefix(addr, "ipc://")
	return &ipcListener{
		path:        path,
		lproto:      lproto,
		maxRecvSize: 1 << 20,
		inBufSize:   4096,
		outBufSize:  4096,
	}, nil
}

type ipcDialer struct {
	mu          sync.Mutex
	path        string
	lproto      uint16
	maxRecvSize int
}

func (d *ipcDialer) Dial() (nanoplane.TranPipe, error) {
	conn, err := winio.DialPipe(`\\.\pipe\`+d.path, nil)
	if err != nil {
		return nil, &nanoplane.IOError{Err: err}
	}
	d.mu.Lock()
	maxSz := d.maxRecvSize
	d.mu.Unlock()
	return wire.NewStreamPipe(conn, d.lproto, maxSz)
}

func (d *ipcDialer) SetOption(name string, value interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name != nanoplane.OptionRecvMaxSize {
		return nanoplane.ErrBadOption
	}
	n, ok := value.(int)
	if !ok {
		return nanoplane.ErrBadValue
	}
	d.maxRecvSize = n
	return nil
}

func (d *ipcDialer) GetOption(name string) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name != nanoplane.OptionRecvMaxSize {
		return nil, nanoplane.ErrBadOption
	}
	return d.maxRecvSize, nil
}

type ipcListener struct {
	mu          sync.Mutex
	path        string
	lproto      uint16
	maxRecvSize int
	inBufSize   int32
	outBufSize  int32
	sddl        string
	ln          net.Listener
}

func (l *ipcListener) Listen() error {
	l.mu.Lock()
	cfg := &winio.PipeConfig{
		InputBufferSize:    l.inBufSize,
		OutputBufferSize:   l.outBufSize,
		SecurityDescriptor: l.sddl,
		MessageMode:        false,
	}
	path := l.path
	l.mu.Unlock()
	ln, err := winio.ListenPipe(`\\.\pipe\`+path, cfg)
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
	maxSz := l.maxRecvSize
	l.mu.Unlock()
	if ln == nil {
		return nil, nanoplane.ErrClosed
	}
	conn, err := ln.Accept()
	if err != nil {
		return nil, &nanoplane.IOError{Err: err}
	}
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
	l.mu.Lock()
	defer l.mu.Unlock()
	switch name {
	case nanoplane.OptionRecvMaxSize:
		n, ok := value.(int)
		if !ok {
			return nanoplane.ErrBadValue
		}
		l.maxRecvSize = n
	case OptionInputBufferSize:
		n, ok := value.(int32)
		if !ok {
			return nanoplane.ErrBadValue
		}
		l.inBufSize = n
	case OptionOutputBufferSize:
		n, ok := value.(int32)
		if !ok {
			return nanoplane.ErrBadValue
		}
		l.outBufSize = n
	case OptionSecurityDescriptor:
		s, ok := value.(string)
		if !ok {
			return nanoplane.ErrBadValue
		}
		l.sddl = s
	default:
		return nanoplane.ErrBadOption
	}
	return nil
}

func (l *ipcListener) GetOption(name string) (interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch name {
	case nanoplane.OptionRecvMaxSize:
		return l.maxRecvSize, nil
	case OptionInputBufferSize:
		return l.inBufSize, nil
	case OptionOutputBufferSize:
		return l.outBufSize, nil
	case OptionSecurityDescriptor:
		return l.sddl, nil
	default:
		return nil, nanoplane.ErrBadOption
	}
}
