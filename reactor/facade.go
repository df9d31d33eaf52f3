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

import "github.com/nanoplane/nanoplane"

// socketFacade is the application-visible nanoplane.Socket handle: a thin,
// concurrency-safe proxy that turns every call into one round trip through
// the owning Session's reactor goroutine (spec §2, §5).
type socketFacade struct {
	sid  uint32
	sess *Session
}

func (s *socketFacade) Send(b []byte) error {
	m := nanoplane.NewMessage(len(b))
	copy(m.Body, b)
	return s.SendMsg(m)
}

func (s *socketFacade) SendMsg(m *nanoplane.Message) error {
	rc := make(chan reply, 1)
	r := s.sess.do(&reqSend{sid: s.sid, msg: m, rc: rc}, rc)
	return r.err
}

func (s *socketFacade) Recv() ([]byte, error) {
	m, err := s.RecvMsg()
	if err != nil {
		return nil, err
	}
	b := append([]byte(nil), m.Body...)
	m.Free()
	return b, nil
}

func (s *socketFacade) RecvMsg() (*nanoplane.Message, error) {
	rc := make(chan reply, 1)
	r := s.sess.do(&reqRecv{sid: s.sid, rc: rc}, rc)
	if r.err != nil {
		return nil, r.err
	}
	return r.msg, nil
}

func (s *socketFacade) Close() error {
	rc := make(chan reply, 1)
	r := s.sess.do(&reqCloseSocket{sid: s.sid, rc: rc}, rc)
	return r.err
}

func (s *socketFacade) Dial(addr string) error {
	return s.DialOptions(addr, nil)
}

func (s *socketFacade) DialOptions(addr string, opts map[string]interface{}) error {
	d, err := s.NewDialer(addr, opts)
	if err != nil {
		return err
	}
	return d.Dial()
}

func (s *socketFacade) NewDialer(addr string, opts map[string]interface{}) (nanoplane.Dialer, error) {
	rc := make(chan reply, 1)
	r := s.sess.do(&reqNewDialer{sid: s.sid, addr: addr, opts: opts, rc: rc}, rc)
	if r.err != nil {
		return nil, r.err
	}
	return &dialerFacade{sid: s.sid, eid: r.eid, addr: addr, sess: s.sess}, nil
}

func (s *socketFacade) Listen(addr string) error {
	return s.ListenOptions(addr, nil)
}

func (s *socketFacade) ListenOptions(addr string, opts map[string]interface{}) error {
	l, err := s.NewListener(addr, opts)
	if err != nil {
		return err
	}
	return l.Listen()
}

func (s *socketFacade) NewListener(addr string, opts map[string]interface{}) (nanoplane.Listener, error) {
	rc := make(chan reply, 1)
	r := s.sess.do(&reqNewListener{sid: s.sid, addr: addr, opts: opts, rc: rc}, rc)
	if r.err != nil {
		return nil, r.err
	}
	return &listenerFacade{sid: s.sid, eid: r.eid, addr: addr, sess: s.sess}, nil
}

func (s *socketFacade) SetOption(name string, value interface{}) error {
	rc := make(chan reply, 1)
	r := s.sess.do(&reqSetOption{sid: s.sid, name: name, value: value, rc: rc}, rc)
	return r.err
}

func (s *socketFacade) GetOption(name string) (interface{}, error) {
	rc := make(chan reply, 1)
	r := s.sess.do(&reqGetOption{sid: s.sid, name: name, rc: rc}, rc)
	return r.value, r.err
}

func (s *socketFacade) GetInfo() nanoplane.Info {
	rc := make(chan reply, 1)
	r := s.sess.do(&reqGetInfo{sid: s.sid, rc: rc}, rc)
	info, _ := r.value.(nanoplane.Info)
	return info
}

func (s *socketFacade) SetPortHook(hook nanoplane.PortHook) nanoplane.PortHook {
	rc := make(chan reply, 1)
	r := s.sess.do(&reqSetPortHook{sid: s.sid, hook: hook, rc: rc}, rc)
	old, _ := r.value.(nanoplane.PortHook)
	return old
}
