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
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/uartboot/cli/flags"
	"github.com/mongoose-os/uartboot/common/ourio"
	"github.com/mongoose-os/uartboot/common/ourutil"
	"github.com/mongoose-os/uartboot/config"
	"github.com/mongoose-os/uartboot/image"
	"github.com/mongoose-os/uartboot/transport"
	"github.com/mongoose-os/uartboot/upload"
)

func loadProfile() (*config.Profile, error) {
	p, err := config.Get(*flags.Profile)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if *flags.Framing != "" {
		p.Framing = *flags.Framing
		if err := p.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return p, nil
}

type device struct {
	*upload.Client
	conn io.Closer
}

func (d *device) Close() error {
	return d.conn.Close()
}

func connect(ctx context.Context, p *config.Profile) (*device, error) {
	baud := *flags.BaudRate
	if baud == 0 {
		baud = p.BaudRate
	}
	rw, err := transport.Open(ctx, *flags.Port, transport.SerialOptions{
		BaudRate:             baud,
		SetControlLines:      *flags.SetControlLines,
		InvertedControlLines: *flags.InvertedControlLines,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	f, err := p.ProtocolFraming()
	if err != nil {
		rw.Close()
		return nil, errors.Trace(err)
	}
	c, err := upload.NewClient(rw, upload.Options{
		Framing:  f,
		Timeout:  *flags.Timeout,
		Attempts: *flags.Attempts,
		Progress: progress,
	})
	if err != nil {
		rw.Close()
		return nil, errors.Trace(err)
	}
	return &device{Client: c, conn: rw}, nil
}

func progress(done, total int) {
	fmt.Fprintf(os.Stderr, "\r  %3d%% (%d/%d frames)", done*100/total, done, total)
	if done == total {
		fmt.Fprintf(os.Stderr, "\n")
	}
}

func enterBootloader(ctx context.Context, d *device) error {
	seq, err := flags.BLInitSeq()
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Sending bootloader init sequence (%d bytes)...", len(seq))
	return errors.Trace(d.Enter(ctx, seq))
}

func loadImage(p *config.Profile) (*image.Image, error) {
	if flag.NArg() < 2 {
		return nil, errors.Errorf("image file name is required")
	}
	addr := p.ApplicationStart
	if *flags.Addr != "" {
		a, err := flags.ParseUint32(*flags.Addr)
		if err != nil {
			return nil, errors.Annotatef(err, "--addr")
		}
		addr = a
	}
	fill, err := flags.FillByte()
	if err != nil {
		return nil, errors.Trace(err)
	}
	im, err := image.Load(flag.Arg(1), addr, fill)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return im.Check(p, *flags.Strict)
}

func flash(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return errors.Trace(err)
	}
	im, err := loadImage(p)
	if err != nil {
		return errors.Trace(err)
	}
	fill, _ := flags.FillByte()
	frames := im.Frames(p.DataSize, p.EraseBlockSize(), fill)
	ourutil.Reportf("Profile %s", p)
	ourutil.Reportf("Image: %d bytes @ 0x%x, %d frames", len(im.Data), im.Addr, len(frames))

	d, err := connect(ctx, p)
	if err != nil {
		return errors.Trace(err)
	}
	defer d.Close()
	if *flags.BLInit != "" {
		if err := enterBootloader(ctx, d); err != nil {
			return errors.Trace(err)
		}
	}
	ourutil.Reportf("Writing...")
	if err := d.WriteImage(ctx, frames, p.EraseBlockSize()); err != nil {
		return errors.Annotatef(err, "failed to write image")
	}
	if !*flags.NoReboot {
		ourutil.Reportf("Booting firmware...")
		if err := d.Reboot(ctx); err != nil {
			return errors.Trace(err)
		}
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "All done!\n")
	return nil
}

func enter(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return errors.Trace(err)
	}
	d, err := connect(ctx, p)
	if err != nil {
		return errors.Trace(err)
	}
	defer d.Close()
	if err := enterBootloader(ctx, d); err != nil {
		return errors.Trace(err)
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "Bootloader is ready\n")
	return nil
}

func reboot(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return errors.Trace(err)
	}
	d, err := connect(ctx, p)
	if err != nil {
		return errors.Trace(err)
	}
	defer d.Close()
	return errors.Trace(d.Reboot(ctx))
}

func convert(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return errors.Trace(err)
	}
	im, err := loadImage(p)
	if err != nil {
		return errors.Trace(err)
	}
	out := *flags.Output
	if flag.NArg() > 2 {
		out = flag.Arg(2)
	}
	if out == "" {
		return errors.Errorf("output file name is required")
	}
	f, err := os.Create(out)
	if err != nil {
		return errors.Trace(err)
	}
	if err := image.WriteHex(f, im); err != nil {
		f.Close()
		return errors.Annotatef(err, "%s", out)
	}
	if err := f.Close(); err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Wrote %d bytes @ 0x%x to %s", len(im.Data), im.Addr, out)
	return nil
}

func showProfile(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return errors.Trace(err)
	}
	if *flags.Output != "" {
		changed, err := ourio.WriteYAMLFileIfDifferent(*flags.Output, p, 0644)
		if err != nil {
			return errors.Trace(err)
		}
		if changed {
			ourutil.Reportf("Wrote %s", *flags.Output)
		}
		return nil
	}
	data, err := p.YAML()
	if err != nil {
		return errors.Trace(err)
	}
	os.Stdout.Write(data)
	ourutil.Reportf("Built-in profiles: %v", config.Builtin())
	return nil
}
