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
// Package sentinel implements the boot-mode request shared by the bootloader
// and the application across a warm reset.
//
// The request lives in a few words of RAM that the startup code does not
// initialize. A single magic word could appear by chance in RAM after a cold
// power-on, so the magic is replicated into every word and only a full match
// counts as a request.
package sentinel

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/uartboot/bootloader/hal"
)

const (
	// Words is the number of retained words holding the request.
	Words = 4
	// DefaultMagic is the request value used by the reference firmware.
	DefaultMagic = 0xdeadbeef
)

// Mode is the decision read from the sentinel.
type Mode int

const (
	RunApplication Mode = iota
	RequestUpdate
)

func (m Mode) String() string {
	switch m {
	case RunApplication:
		return "run-application"
	case RequestUpdate:
		return "request-update"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

type Sentinel struct {
	mem   hal.RetainedMemory
	cpu   hal.CPU
	magic uint32
}

// New returns a sentinel backed by mem. magic must not be zero: zero is what
// ClearRequest writes.
func New(mem hal.RetainedMemory, cpu hal.CPU, magic uint32) *Sentinel {
	if magic == 0 {
		panic("sentinel magic cannot be zero")
	}
	return &Sentinel{mem: mem, cpu: cpu, magic: magic}
}

// Mode reads all the words; only all of them carrying the magic is a request.
func (s *Sentinel) Mode() Mode {
	for i := 0; i < Words; i++ {
		if s.mem.LoadWord(i) != s.magic {
			return RunApplication
		}
	}
	return RequestUpdate
}

func (s *Sentinel) IsUpdateRequested() bool {
	return s.Mode() == RequestUpdate
}

// RequestUpdate arms the request and resets the system. It does not return on
// hardware; a hosted CPU gets hal.ErrResetReturned back.
func (s *Sentinel) RequestUpdate() error {
	s.store(s.magic)
	glog.Infof("update requested, resetting")
	s.cpu.SystemReset()
	return errors.Trace(hal.ErrResetReturned)
}

// ClearRequest disarms the request so that the next boot runs the application.
func (s *Sentinel) ClearRequest() {
	s.store(0)
	glog.V(1).Infof("update request cleared")
}

func (s *Sentinel) store(v uint32) {
	for i := 0; i < Words; i++ {
		s.mem.StoreWord(i, v)
	}
}
