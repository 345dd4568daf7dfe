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
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flock "github.com/theckman/go-flock"

	"github.com/mongoose-os/uartboot/bootloader/hal"
	"github.com/mongoose-os/uartboot/bootloader/sentinel"
	"github.com/mongoose-os/uartboot/bootloader/session"
	"github.com/mongoose-os/uartboot/bootloader/sim"
	"github.com/mongoose-os/uartboot/common/ourio"
	"github.com/mongoose-os/uartboot/config"
	"github.com/mongoose-os/uartboot/transport"
)

// flashFile persists the flash array between runs. The lock keeps two
// simulators from sharing one file.
type flashFile struct {
	path string
	lock *flock.Flock
}

func openFlashFile(path string, f *sim.Flash) (*flashFile, error) {
	lock := flock.NewFlock(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Annotatef(err, "failed to lock %s", path)
	}
	if !locked {
		return nil, errors.Errorf("%s is in use by another simulator", path)
	}
	ff := &flashFile{path: path, lock: lock}
	data, err := ioutil.ReadFile(path)
	switch {
	case err == nil:
		if err := f.Restore(data); err != nil {
			lock.Unlock()
			return nil, errors.Annotatef(err, "%s", path)
		}
		glog.Infof("loaded %d bytes of flash from %s", len(data), path)
	case os.IsNotExist(err):
		if err := ff.save(f); err != nil {
			lock.Unlock()
			return nil, errors.Trace(err)
		}
		glog.Infof("created %s", path)
	default:
		lock.Unlock()
		return nil, errors.Trace(err)
	}
	return ff, nil
}

func (ff *flashFile) save(f *sim.Flash) error {
	changed, err := ourio.WriteFileIfDifferent(ff.path, f.Bytes(), 0644)
	if err != nil {
		return errors.Annotatef(err, "failed to save flash")
	}
	if changed {
		glog.V(1).Infof("saved flash to %s", ff.path)
	}
	return nil
}

func (ff *flashFile) Close(f *sim.Flash) error {
	err := ff.save(f)
	ff.lock.Unlock()
	return errors.Trace(err)
}

// device runs the boot sequence of a simulated chip against whatever is
// connected to it.
type device struct {
	profile *config.Profile
	chip    *sim.Chip
	cfg     session.Config
	trigger []byte
	poll    time.Duration
	flash   *flashFile

	mu        sync.Mutex
	boots     int
	connected string
}

func newDevice(p *config.Profile, trigger []byte, poll time.Duration) (*device, error) {
	chip, err := sim.NewChip(p.SimGeometry())
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &device{
		profile: p,
		chip:    chip,
		cfg:     p.SessionConfig(),
		trigger: trigger,
		poll:    poll,
	}, nil
}

func (d *device) sentinel() *sentinel.Sentinel {
	return sentinel.New(d.chip.Retained, d.chip.CPU, d.cfg.Magic)
}

func (d *device) setConnected(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = name
}

func (d *device) reset() error {
	d.chip.WarmReset()
	if d.flash != nil {
		return errors.Trace(d.flash.save(d.chip.Flash))
	}
	return nil
}

// serve boots the chip until the connection fails or ctx is done. Resets
// requested by the bootloader or the application reboot the chip in place.
func (d *device) serve(ctx context.Context, name string, s *transport.Stream) error {
	d.setConnected(name)
	defer d.setConnected("")
	for {
		d.mu.Lock()
		d.boots++
		boot := d.boots
		d.mu.Unlock()
		glog.Infof("boot #%d, %s", boot, d.sentinel().Mode())

		err := session.Boot(ctx, d.chip.Board(s, d.poll), d.cfg)
		if errors.Cause(err) == hal.ErrJumpReturned {
			err = d.runApplication(ctx, s)
		}
		if errors.Cause(err) != hal.ErrResetReturned {
			return errors.Trace(err)
		}
		if err := d.reset(); err != nil {
			return errors.Trace(err)
		}
	}
}

// runApplication stands in for the firmware: it consumes input until the
// trigger sequence shows up and then reboots into the bootloader.
func (d *device) runApplication(ctx context.Context, s *transport.Stream) error {
	glog.Infof("application running from 0x%x", d.chip.CPU.State().JumpTarget)
	var window []byte
	for {
		b, err := s.ReadByteContext(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if len(d.trigger) == 0 {
			continue
		}
		window = append(window, b)
		if len(window) > len(d.trigger) {
			window = window[1:]
		}
		if bytes.Equal(window, d.trigger) {
			glog.Infof("application got the bootloader request")
			return errors.Trace(d.sentinel().RequestUpdate())
		}
	}
}

// Status is what the /status endpoint reports.
type Status struct {
	Profile   string     `json:"profile"`
	Mode      string     `json:"mode"`
	Boots     int        `json:"boots"`
	Connected string     `json:"connected,omitempty"`
	Chip      sim.Status `json:"chip"`
}

func (d *device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Profile:   d.profile.String(),
		Mode:      d.sentinel().Mode().String(),
		Boots:     d.boots,
		Connected: d.connected,
		Chip:      d.chip.Snapshot(),
	}
}
