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

// Package wire implements the byte-stream handshake and framing shared by
// every stream transport (TCP, IPC): the 8-byte SP/0 greeting and the
// 8-byte-length-prefixed frame that follows it. Transport packages layer
// their own dial/listen/accept on top of a net.Conn and hand it to
// NewStreamPipe to get a nanoplane.TranPipe.
package wire

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/nanoplane/nanoplane"
)

const (
	greetingSize = 8
	magic0       = 0x00
	magic1       = 'S'
	magic2       = 'P'
	version      = 0
	lenPrefix    = 8
)

// NewStreamPipe performs the greeting exchange over conn and, on success,
// returns a TranPipe that frames messages with an 8-byte big-endian length
// prefix. lproto is this side's protocol number; the peer's advertised
// number is validated against nanoplane.PeerProtocol(lproto) before the
// pipe is handed back, so a mismatched peer never reaches the reactor
// (spec §4.1, §4.2).
func NewStreamPipe(conn net.Conn, lproto uint16, maxRecvSize int) (nanoplane.TranPipe, error) {
	// Both ends write their greeting first, so the write runs alongside the
	// read; on an unbuffered conn (net.Pipe) sequential writes would block.
	sent := make(chan error, 1)
	go func() { sent <- sendGreeting(conn, lproto) }()
	rproto, err := recvGreeting(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := <-sent; err != nil {
		conn.Close()
		return nil, err
	}
	peer, ok := nanoplane.PeerProtocol(lproto)
	if !ok || rproto != peer {
		conn.Close()
		return nil, nanoplane.ErrProtocolMismatch
	}
	return &streamPipe{conn: conn, lproto: lproto, rproto: rproto, maxRecvSize: maxRecvSize}, nil
}

func sendGreeting(conn net.Conn, lproto uint16) error {
	var g [greetingSize]byte
	g[0] = magic0
	g[1] = magic1
	g[2] = magic2
	g[3] = version
	binary.BigEndian.PutUint16(g[4:6], lproto)
	_, err := conn.Write(g[:])
	return err
}

func recvGreeting(conn net.Conn) (uint16, error) {
	var g [greetingSize]byte
	if _, err := io.ReadFull(conn, g[:]); err != nil {
		return 0, &nanoplane.IOError{Err: err}
	}
	if g[1] != magic1 || g[2] != magic2 {
		return 0, nanoplane.ErrBadHeader
	}
	if g[3] != version {
		return 0, nanoplane.ErrBadVersion
	}
	return binary.BigEndian.Uint16(g[4:6]), nil
}

// streamPipe is the generic nanoplane.TranPipe over any net.Conn. The
// teacher's connpipe.go keeps the same split: handshake once, then a plain
// length-prefixed read/write loop reused by every stream-based transport.
type streamPipe struct {
	conn        net.Conn
	lproto      uint16
	rproto      uint16
	maxRecvSize int

	mu sync.Mutex // options set concurrently with pipe use, per transport
}

func (p *streamPipe) LocalProtocol() uint16  { return p.lproto }
func (p *streamPipe) RemoteProtocol() uint16 { return p.rproto }

func (p *streamPipe) Close() error {
	return p.conn.Close()
}

func (p *streamPipe) GetOption(name string) (interface{}, error) {
	if name == nanoplane.OptionLocalAddress {
		return p.conn.LocalAddr().String(), nil
	}
	return nil, nanoplane.ErrBadOption
}

// SendMsg writes the frame length, then Header, then Body, as one logical
// message (spec §1: "8-byte big-endian length prefix + header + body").
func (p *streamPipe) SendMsg(m *nanoplane.Message) error {
	total := uint64(len(m.Header) + len(m.Body))
	var lb [lenPrefix]byte
	binary.BigEndian.PutUint64(lb[:], total)
	if _, err := p.conn.Write(lb[:]); err != nil {
		return &nanoplane.IOError{Err: err}
	}
	if len(m.Header) > 0 {
		if _, err := p.conn.Write(m.Header); err != nil {
			return &nanoplane.IOError{Err: err}
		}
	}
	if len(m.Body) > 0 {
		if _, err := p.conn.Write(m.Body); err != nil {
			return &nanoplane.IOError{Err: err}
		}
	}
	return nil
}

// RecvMsg reads one frame into a fresh Message's Body; the wire layer has
// no opinion on where header bytes start within it; that split is made by
// the protocol layer via Message's trim helpers.
func (p *streamPipe) RecvMsg() (*nanoplane.Message, error) {
	var lb [lenPrefix]byte
	if _, err := io.ReadFull(p.conn, lb[:]); err != nil {
		return nil, &nanoplane.IOError{Err: err}
	}
	n := binary.BigEndian.Uint64(lb[:])
	p.mu.Lock()
	maxSize := p.maxRecvSize
	p.mu.Unlock()
	if maxSize > 0 && n > uint64(maxSize) {
		return nil, nanoplane.ErrTooLong
	}
	m := nanoplane.NewMessage(int(n))
	if n > 0 {
		if _, err := io.ReadFull(p.conn, m.Body); err != nil {
			m.Free()
			return nil, &nanoplane.IOError{Err: err}
		}
	}
	return m, nil
}

// SetMaxRecvSize changes the RECV-MAX-SIZE limit of an already-constructed
// pipe. The tcp and ipc transports do not call it: a change to a
// dialer's or listener's option applies only to pipes created after it.
func (p *streamPipe) SetMaxRecvSize(n int) {
	p.mu.Lock()
	p.maxRecvSize = n
	p.mu.Unlock()
}
