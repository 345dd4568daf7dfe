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
// Package receiver implements the device side of the update protocol: a
// byte-at-a-time state machine that assembles one frame from the host.
package receiver

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/uartboot/bootloader/hal"
	"github.com/mongoose-os/uartboot/bootloader/protocol"
)

// ErrResetRequested is returned when the host sent the reset command while the
// receiver was waiting for a frame.
var ErrResetRequested = errors.New("reset requested by host")

type State int

const (
	StateReady State = iota
	StateAddress
	StatePayload
	StateChecksum
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateAddress:
		return "ADDRESS"
	case StatePayload:
		return "PAYLOAD"
	case StateChecksum:
		return "CHECKSUM"
	case StateComplete:
		return "COMPLETE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Frame is one fully received unit.
type Frame struct {
	Addr     uint32
	Payload  []byte
	Checksum uint32
}

type Options struct {
	// IdleTimeout returns a receiver stuck in the middle of a frame to READY
	// after this much silence. Zero waits forever.
	IdleTimeout time.Duration
	// PollInterval is passed to hal.Pause between transport polls.
	PollInterval time.Duration
}

type Receiver struct {
	t    hal.Transport
	f    protocol.Framing
	opts Options

	state    State
	addr     uint32
	buf      []byte
	offset   int
	checksum uint32

	lastByte time.Time
}

func New(t hal.Transport, f protocol.Framing, opts Options) (*Receiver, error) {
	if err := f.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	r := &Receiver{
		t:    t,
		f:    f,
		opts: opts,
		buf:  make([]byte, f.DataSize),
	}
	r.Reset()
	return r, nil
}

func (r *Receiver) State() State {
	return r.state
}

// Reset abandons any partially received frame.
func (r *Receiver) Reset() {
	r.state = StateReady
	r.offset = 0
}

// Step consumes a single byte, sending whatever acknowledgement the
// transition calls for.
func (r *Receiver) Step(b byte) error {
	glog.V(3).Infof("%s <- 0x%02x", r.state, b)
	switch r.state {
	case StateReady:
		switch protocol.Command(b) {
		case protocol.CmdReset:
			return errors.Trace(ErrResetRequested)
		case protocol.CmdSOF:
			r.addr = 0
			r.offset = 0
			for i := range r.buf {
				r.buf[i] = 0xff
			}
			r.state = StateAddress
			return r.reply(protocol.CmdAck)
		default:
			glog.V(2).Infof("ignoring 0x%02x while ready", b)
		}
	case StateAddress:
		r.addr |= uint32(b) << uint(r.offset)
		r.offset += 8
		if r.offset == 8*protocol.AddressBytes {
			r.state = StatePayload
			r.offset = 0
			return r.reply(protocol.CmdAck)
		}
	case StatePayload:
		r.buf[r.offset] = b
		r.offset++
		if r.offset == r.f.PayloadBytes() {
			r.state = StateChecksum
			r.offset = 0
			r.checksum = 0
			return r.reply(protocol.CmdAck)
		}
	case StateChecksum:
		r.checksum |= uint32(b) << uint(r.offset)
		r.offset += 8
		if r.offset == 8*r.f.ChecksumBytes {
			r.state = StateComplete
			return r.reply(protocol.CmdFlash)
		}
	case StateComplete:
		return errors.Errorf("frame not consumed")
	}
	return nil
}

// Frame returns the completed frame. The payload is a copy.
func (r *Receiver) Frame() (*Frame, error) {
	if r.state != StateComplete {
		return nil, errors.Errorf("no complete frame, state %s", r.state)
	}
	p := make([]byte, len(r.buf))
	copy(p, r.buf)
	return &Frame{Addr: r.addr, Payload: p, Checksum: r.checksum}, nil
}

// Receive blocks until a frame has been received, the host requested a reset
// (ErrResetRequested), the transport failed or ctx is done.
// The receiver is back in READY when it returns.
func (r *Receiver) Receive(ctx context.Context) (*Frame, error) {
	r.Reset()
	r.lastByte = time.Now()
	for r.state != StateComplete {
		if err := hal.WaitUntil(ctx, r.byteAvailable, r.opts.PollInterval); err != nil {
			return nil, errors.Trace(err)
		}
		b, err := r.t.ReadByte()
		if err != nil {
			return nil, errors.Annotatef(err, "read in state %s", r.state)
		}
		r.lastByte = time.Now()
		if err := r.Step(b); err != nil {
			r.Reset()
			return nil, errors.Trace(err)
		}
	}
	fr, err := r.Frame()
	r.Reset()
	if err != nil {
		return nil, errors.Trace(err)
	}
	glog.V(1).Infof("frame 0x%06x crc 0x%08x", fr.Addr, fr.Checksum)
	return fr, nil
}

func (r *Receiver) byteAvailable() bool {
	if r.t.ByteAvailable() {
		return true
	}
	if r.opts.IdleTimeout > 0 && r.state != StateReady && time.Since(r.lastByte) > r.opts.IdleTimeout {
		glog.Warningf("idle in state %s for more than %s, dropping frame", r.state, r.opts.IdleTimeout)
		r.Reset()
	}
	return false
}

func (r *Receiver) reply(c protocol.Command) error {
	glog.V(3).Infof("%s -> %s", r.state, c)
	return errors.Annotatef(r.t.WriteByte(byte(c)), "send %s", c)
}
