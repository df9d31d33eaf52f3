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

// engineEventKind discriminates the single fan-in channel every pipe's
// reader/writer goroutine and every endpoint's dial/accept goroutine
// report through. The reactor goroutine is the only reader.
type engineEventKind int

const (
	evConnEstablished engineEventKind = iota
	evPipeSent
	evPipeReceived
	evPipeError
)

type engineEvent struct {
	kind   engineEventKind
	sockID uint32
	eid    uint32
	pipeID uint32
	tran   nanoplane.TranPipe
	msg    *nanoplane.Message
	err    error
}

// request is the discriminated union of façade calls marshaled onto the
// reactor goroutine. Every variant carries its own reply channel; see
// request.go.
type request interface {
	socketID() uint32
}
