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

import "sync"

var transportsLock sync.RWMutex
var transportsByScheme = map[string]Transport{}

// RegisterTransport makes a Transport available, by scheme, to every
// Session created afterwards. Transports register themselves from an
// init() in their own package the way the teacher's transport packages do.
func RegisterTransport(t Transport) {
	transportsLock.Lock()
	transportsByScheme[t.Scheme()] = t
	transportsLock.Unlock()
}

// GetTransport looks up a previously registered Transport by scheme.
func GetTransport(scheme string) Transport {
	transportsLock.RLock()
	defer transportsLock.RUnlock()
	return transportsByScheme[scheme]
}
