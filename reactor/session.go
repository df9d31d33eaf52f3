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

// Package reactor is the engine behind every nanoplane.Socket: one
// goroutine per Session owns all mutable protocol, pipe, and endpoint
// state, fed by per-pipe reader/writer goroutines and per-endpoint
// dial/accept goroutines that do the actual blocking I/O. Protocol
// packages call NewSocket to get a façade wrapping their
// nanoplane.Protocol implementation.
package reactor

import (
	"sync"

	"github.com/nanoplane/nanoplane"
)

// Session owns one reactor goroutine and every socket created from it.
// Created once per application, typically, and shared by every socket that
// application opens.
type Session struct {
	reqs chan request
	done chan struct{}

	closeOnce sync.Once
}

// NewSession starts a Session's reactor goroutine and returns immediately.
func NewSession() *Session {
	s := &Session{
		reqs: make(chan request),
		done: make(chan struct{}),
	}
	r := newRun(s)
	go r.loop()
	return s
}

// do sends req to the reactor goroutine and waits for its reply on rc.
// Every request variant's own rc field must be the same channel passed
// here. If the session is already shut down, it synthesizes ErrClosed
// rather than blocking forever on a reactor that will never answer.
func (s *Session) do(req request, rc chan reply) reply {
	select {
	case s.reqs <- req:
	case <-s.done:
		return reply{err: nanoplane.ErrClosed}
	}
	select {
	case r := <-rc:
		return r
	case <-s.done:
		return reply{err: nanoplane.ErrClosed}
	}
}

// NewSocket wraps proto in a new nanoplane.Socket backed by this Session.
func (s *Session) NewSocket(proto nanoplane.Protocol) (nanoplane.Socket, error) {
	rc := make(chan reply, 1)
	r := s.do(&reqNewSocket{proto: proto, rc: rc}, rc)
	if r.err != nil {
		return nil, r.err
	}
	return &socketFacade{sid: r.sid, sess: s}, nil
}

// Close shuts the Session's reactor down, forcibly tearing down every
// socket, pipe, and endpoint it still owns, and waits for it to exit.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		rc := make(chan reply, 1)
		select {
		case s.reqs <- &reqShutdown{rc: rc}:
			<-rc
		case <-s.done:
		}
	})
	<-s.done
	return nil
}
