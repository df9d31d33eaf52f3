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

// reply is the single response shape every request variant gets back on
// its own channel; only the fields relevant to the request are populated.
type reply struct {
	err   error
	sid   uint32
	eid   uint32
	msg   *nanoplane.Message
	value interface{}
}

type reqNewSocket struct {
	proto nanoplane.Protocol
	rc    chan reply
}

func (r *reqNewSocket) socketID() uint32 { return 0 }

type reqCloseSocket struct {
	sid uint32
	rc  chan reply
}

func (r *reqCloseSocket) socketID() uint32 { return r.sid }

type reqSend struct {
	sid uint32
	msg *nanoplane.Message
	rc  chan reply
}

func (r *reqSend) socketID() uint32 { return r.sid }

type reqRecv struct {
	sid uint32
	rc  chan reply
}

func (r *reqRecv) socketID() uint32 { return r.sid }

type reqSetOption struct {
	sid   uint32
	name  string
	value interface{}
	rc    chan reply
}

func (r *reqSetOption) socketID() uint32 { return r.sid }

type reqGetOption struct {
	sid  uint32
	name string
	rc   chan reply
}

func (r *reqGetOption) socketID() uint32 { return r.sid }

type reqGetInfo struct {
	sid uint32
	rc  chan reply
}

func (r *reqGetInfo) socketID() uint32 { return r.sid }

type reqSetPortHook struct {
	sid  uint32
	hook nanoplane.PortHook
	rc   chan reply
}

func (r *reqSetPortHook) socketID() uint32 { return r.sid }

type reqNewDialer struct {
	sid  uint32
	addr string
	opts map[string]interface{}
	rc   chan reply
}

func (r *reqNewDialer) socketID() uint32 { return r.sid }

type reqDialerStart struct {
	sid uint32
	eid uint32
	rc  chan reply
}

func (r *reqDialerStart) socketID() uint32 { return r.sid }

type reqNewListener struct {
	sid  uint32
	addr string
	opts map[string]interface{}
	rc   chan reply
}

func (r *reqNewListener) socketID() uint32 { return r.sid }

type reqListenerStart struct {
	sid uint32
	eid uint32
	rc  chan reply
}

func (r *reqListenerStart) socketID() uint32 { return r.sid }

type reqEndpointClose struct {
	sid uint32
	eid uint32
	rc  chan reply
}

func (r *reqEndpointClose) socketID() uint32 { return r.sid }

type reqEndpointOption struct {
	sid   uint32
	eid   uint32
	get   bool
	name  string
	value interface{}
	rc    chan reply
}

func (r *reqEndpointOption) socketID() uint32 { return r.sid }

type reqShutdown struct {
	rc chan reply
}

func (r *reqShutdown) socketID() uint32 { return 0 }
