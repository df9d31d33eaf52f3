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

// Protocol numbers, as transmitted in the greeting. See spec §6.
const (
	ProtoPair       = uint16(16)
	ProtoPub        = uint16(32)
	ProtoSub        = uint16(33)
	ProtoReq        = uint16(48)
	ProtoRep        = uint16(49)
	ProtoPush       = uint16(80)
	ProtoPull       = uint16(81)
	ProtoSurveyor   = uint16(96)
	ProtoRespondent = uint16(97)
	ProtoBus        = uint16(112)
)

// PeerProtocol returns the protocol number a socket of kind self is allowed
// to peer with, and whether self is a recognized protocol at all.
func PeerProtocol(self uint16) (peer uint16, ok bool) {
	switch self {
	case ProtoPair:
		return ProtoPair, true
	case ProtoPub:
		return ProtoSub, true
	case ProtoSub:
		return ProtoPub, true
	case ProtoReq:
		return ProtoRep, true
	case ProtoRep:
		return ProtoReq, true
	case ProtoPush:
		return ProtoPull, true
	case ProtoPull:
		return ProtoPush, true
	case ProtoSurveyor:
		return ProtoRespondent, true
	case ProtoRespondent:
		return ProtoSurveyor, true
	case ProtoBus:
		return ProtoBus, true
	}
	return 0, false
}

// Info describes a protocol and its expected peer, returned by
// Protocol.Info.
type Info struct {
	Self     uint16
	Peer     uint16
	SelfName string
	PeerName string
}
