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

// Device pairs two raw-mode sockets and shuttles messages between them
// until either side errors, forming a forwarding loop (spec §4.3.7). A nil
// second socket establishes a loopback device on the first.
type Device struct {
	mu      sync.Mutex
	s1, s2  Socket
	lastErr error
	active  int
	done    chan struct{}
}

// NewDevice validates that s1 and s2 are compatible raw peers and returns a
// Device. Forwarding is not started until Start.
func NewDevice(s1, s2 Socket) (*Device, error) {
	if s1 == nil {
		s1 = s2
	}
	if s2 == nil {
		s2 = s1
	}
	if s1 == nil {
		return nil, ErrClosed
	}
	i1, i2 := s1.GetInfo(), s2.GetInfo()
	if i1.Peer != i2.Self || i2.Peer != i1.Self {
		return nil, ErrBadProto
	}
	return &Device{s1: s1, s2: s2}, nil
}

// Start switches both sockets into raw mode and begins forwarding in both
// directions.
func (d *Device) Start() error {
	if err := d.s1.SetOption(OptionRaw, true); err != nil {
		return err
	}
	if err := d.s2.SetOption(OptionRaw, true); err != nil {
		return err
	}
	d.mu.Lock()
	d.active = 2
	d.done = make(chan struct{})
	d.mu.Unlock()
	go d.forward(d.s1, d.s2)
	go d.forward(d.s2, d.s1)
	return nil
}

// Stop closes both underlying sockets, which unblocks any pending Recv and
// ends forwarding. Once stopped, the device and its sockets may not be
// reused.
func (d *Device) Stop() error {
	d.s1.Close()
	d.s2.Close()
	return nil
}

// Done returns a channel that is closed once both forwarding goroutines
// have exited.
func (d *Device) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// LastError returns the error that stopped forwarding, if any.
func (d *Device) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Device) forward(src, dst Socket) {
	defer d.finish()
	for {
		m, err := src.RecvMsg()
		if err != nil {
			d.fail(err)
			return
		}
		if err := dst.SendMsg(m); err != nil {
			d.fail(err)
			return
		}
	}
}

func (d *Device) fail(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}

func (d *Device) finish() {
	d.mu.Lock()
	d.active--
	done := d.active <= 0
	ch := d.done
	d.mu.Unlock()
	if done && ch != nil {
		close(ch)
	}
}
