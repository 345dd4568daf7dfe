//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package sim

import (
	"io"
	"sync"
)

// Wire is an in-memory serial line. The device side implements hal.Transport;
// the host side queues input and collects output.
type Wire struct {
	mu     sync.Mutex
	in     []byte
	out    []byte
	closed bool
}

// Send queues bytes for the device.
func (w *Wire) Send(b ...byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.in = append(w.in, b...)
}

// CloseInput makes the device read io.EOF once the queued input is drained.
func (w *Wire) CloseInput() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// Output returns and clears what the device sent so far.
func (w *Wire) Output() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	o := w.out
	w.out = nil
	return o
}

func (w *Wire) ByteAvailable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.in) > 0 || w.closed
}

func (w *Wire) ReadByte() (byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.in) == 0 {
		if w.closed {
			return 0, io.EOF
		}
		return 0, io.ErrNoProgress
	}
	b := w.in[0]
	w.in = w.in[1:]
	return b, nil
}

func (w *Wire) WriteByte(b byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.out = append(w.out, b)
	return nil
}
