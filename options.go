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

// Option names recognized by SetOption/GetOption across sockets,
// endpoints, and transports. See spec §6.
const (
	// OptionRecvDeadline is the time.Duration until the next Recv times
	// out. Zero means no timeout.
	OptionRecvDeadline = "RECV-DEADLINE"

	// OptionSendDeadline is the time.Duration until the next Send times
	// out. Zero means no timeout.
	OptionSendDeadline = "SEND-DEADLINE"

	// OptionRecvMaxSize is the largest message body (plus header) this
	// socket will accept, as an int. Larger incoming frames terminate
	// the offending pipe. Zero means unlimited.
	OptionRecvMaxSize = "RECV-MAX-SIZE"

	// OptionReconnectTime is the base time.Duration a dial-side endpoint
	// waits before its first redial attempt after a failure.
	OptionReconnectTime = "RECONNECT-TIME"

	// OptionMaxReconnectTime caps the exponential backoff applied to
	// OptionReconnectTime. Zero disables backoff growth.
	OptionMaxReconnectTime = "MAX-RECONNECT-TIME"

	// OptionNoDelay disables Nagle's algorithm on TCP pipes. Value is a
	// bool.
	OptionNoDelay = "NO-DELAY"

	// OptionRetryTime is used by REQ: a time.Duration after which an
	// unanswered request is automatically resent. Zero disables resend.
	OptionRetryTime = "RETRY-TIME"

	// OptionSurveyTime is used by SURVEYOR: the time.Duration collection
	// window for a survey. Replies after the window are discarded.
	OptionSurveyTime = "SURVEY-TIME"

	// OptionSubscribe is used by SUB: value is a []byte or string prefix
	// to add to the subscription set.
	OptionSubscribe = "SUBSCRIBE"

	// OptionUnsubscribe is used by SUB: value is a []byte or string
	// prefix to remove from the subscription set.
	OptionUnsubscribe = "UNSUBSCRIBE"

	// OptionLinger is the time.Duration a closed socket keeps its pipes
	// open before tearing them down, so a message already handed to a
	// pipe's writer can finish. Close itself returns without waiting, and
	// a Send still pending at Close fails with ErrClosed.
	OptionLinger = "LINGER"

	// OptionLocalAddress reports the address a listener actually bound
	// to, useful when the requested port was 0.
	OptionLocalAddress = "LOCAL-ADDRESS"

	// OptionRaw toggles raw mode (device-transparent header handling).
	// Every protocol accepts it; it changes the behavior of REQ, SURVEYOR
	// and BUS only, and is stored without effect on the others.
	OptionRaw = "RAW"
)
