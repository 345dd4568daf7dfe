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
// Package upload is the host side of the update protocol.
package upload

import (
	"context"
	"io"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/uartboot/bootloader/protocol"
	"github.com/mongoose-os/uartboot/common/ourutil"
	"github.com/mongoose-os/uartboot/image"
	"github.com/mongoose-os/uartboot/transport"
)

var (
	// ErrNack is returned when the device rejected a frame after programming it.
	ErrNack = errors.New("frame rejected by device")
	// ErrUnexpectedReply is returned when the device replied with something
	// other than what the protocol expects at that point.
	ErrUnexpectedReply = errors.New("unexpected reply")
)

type Options struct {
	Framing protocol.Framing
	// Timeout is how long to wait for each reply.
	Timeout time.Duration
	// Attempts is the number of tries per erase block.
	Attempts int
	// Progress is called after every acknowledged frame.
	Progress func(done, total int)
}

type Client struct {
	s    *transport.Stream
	opts Options
}

func NewClient(rw io.ReadWriter, opts Options) (*Client, error) {
	if err := opts.Framing.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	return &Client{s: transport.NewStream("device", rw), opts: opts}, nil
}

func (c *Client) expect(ctx context.Context, what string, want protocol.Command) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	var got protocol.Command
	for {
		b, err := c.s.ReadByteContext(ctx)
		if err != nil {
			if errors.Cause(err) == context.DeadlineExceeded {
				return errors.Errorf("%s: no reply in %s", what, c.opts.Timeout)
			}
			return errors.Annotatef(err, "%s", what)
		}
		got = protocol.Command(b)
		// The status byte of a bootloader that started before we connected.
		if got == protocol.StatusReady && want != protocol.StatusReady {
			glog.V(1).Infof("%s: skipping %s", what, got)
			continue
		}
		break
	}
	glog.V(3).Infof("%s: %s", what, got)
	switch {
	case got == want:
		return nil
	case got == protocol.CmdNack && want == protocol.CmdAck:
		return errors.Trace(ErrNack)
	}
	return errors.Annotatef(ErrUnexpectedReply, "%s: got %s, want %s", what, got, want)
}

func (c *Client) send(ctx context.Context, what string, data []byte, want protocol.Command) error {
	if err := c.s.WriteAll(data); err != nil {
		return errors.Annotatef(err, "%s", what)
	}
	return errors.Trace(c.expect(ctx, what, want))
}

// WaitReady waits for the status byte the bootloader sends when it starts.
func (c *Client) WaitReady(ctx context.Context) error {
	return errors.Trace(c.expect(ctx, "bootloader start", protocol.StatusReady))
}

// Enter sends seq, the application's "reboot to bootloader" command, and
// waits for the bootloader to come up.
func (c *Client) Enter(ctx context.Context, seq []byte) error {
	if junk := c.s.Discard(); len(junk) > 0 {
		glog.V(1).Infof("discarded %s", ourutil.LimitStr(junk, 16))
	}
	if err := c.s.WriteAll(seq); err != nil {
		return errors.Annotatef(err, "failed to send init sequence")
	}
	if err := c.WaitReady(ctx); err != nil {
		return errors.Annotatef(err, "failed to enter bootloader, is the init sequence right?")
	}
	return nil
}

// WriteFrame transfers one frame and returns the device's verdict: nil,
// ErrNack or another error.
func (c *Client) WriteFrame(ctx context.Context, addr uint32, payload []byte) error {
	a, d, crc, err := protocol.EncodeFrame(c.opts.Framing, addr, payload)
	if err != nil {
		return errors.Trace(err)
	}
	if err := c.send(ctx, "SOF", []byte{byte(protocol.CmdSOF)}, protocol.CmdAck); err != nil {
		return errors.Trace(err)
	}
	if err := c.send(ctx, "address", a, protocol.CmdAck); err != nil {
		return errors.Trace(err)
	}
	if err := c.send(ctx, "data", d, protocol.CmdAck); err != nil {
		return errors.Trace(err)
	}
	if err := c.send(ctx, "checksum", crc, protocol.CmdFlash); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.expect(ctx, "flash", protocol.CmdAck))
}

// WriteImage writes frames in order. A rejected frame restarts its erase
// block from the first frame, which erases the block again. The attempt
// counter is reset whenever a block completes.
func (c *Client) WriteImage(ctx context.Context, frames []image.Frame, eraseBlockSize uint32) error {
	if len(frames) == 0 {
		return errors.Errorf("nothing to write")
	}
	if frames[0].Addr%eraseBlockSize != 0 {
		return errors.Errorf("first frame (0x%x) is not at an erase block boundary", frames[0].Addr)
	}
	start := time.Now()
	attempt := 1
	for i := 0; i < len(frames); {
		f := frames[i]
		err := c.WriteFrame(ctx, f.Addr, f.Data)
		if err == nil {
			i++
			if c.opts.Progress != nil {
				c.opts.Progress(i, len(frames))
			}
			if i < len(frames) && frames[i].Addr%eraseBlockSize == 0 {
				attempt = 1
			}
			continue
		}
		if errors.Cause(err) != ErrNack {
			return errors.Annotatef(err, "frame 0x%x", f.Addr)
		}
		err = errors.Annotatef(err, "frame 0x%x (attempt %d/%d)", f.Addr, attempt, c.opts.Attempts)
		if attempt >= c.opts.Attempts {
			return err
		}
		glog.Warningf("%s", err)
		attempt++
		for i > 0 && frames[i].Addr%eraseBlockSize != 0 {
			i--
		}
	}
	total := len(frames) * len(frames[0].Data)
	seconds := time.Since(start).Seconds()
	ourutil.Reportf("Wrote %d bytes in %.2f seconds (%.2f KBit/sec)", total, seconds, float64(total)*8/1024/seconds)
	return nil
}

// Reboot asks the bootloader to leave update mode.
func (c *Client) Reboot(ctx context.Context) error {
	return errors.Annotatef(c.s.WriteAll([]byte{byte(protocol.CmdReset)}), "failed to send reset")
}
