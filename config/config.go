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
// Package config describes a target chip: flash geometry, where the
// application lives and the protocol parameters its bootloader was built
// with. Profiles are YAML documents; a few are built in.
package config

import (
	"fmt"
	"io/ioutil"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/mongoose-os/uartboot/bootloader/protocol"
	"github.com/mongoose-os/uartboot/bootloader/session"
	"github.com/mongoose-os/uartboot/bootloader/sim"
)

const (
	FramingFull   = "full"
	FramingLegacy = "legacy"
)

type Profile struct {
	Name              string `yaml:"name"`
	FlashSize         uint32 `yaml:"flash_size"`
	PageSize          uint32 `yaml:"page_size"`
	PagesInEraseBlock uint32 `yaml:"pages_in_erase_block"`
	ApplicationStart  uint32 `yaml:"application_start"`
	DataSize          int    `yaml:"data_size"`
	RequestMagic      uint32 `yaml:"request_magic"`
	BaudRate          uint   `yaml:"baud_rate"`
	// Framing is "full" or "legacy".
	Framing string `yaml:"framing"`
	// IdleTimeout is a duration string, empty for none.
	IdleTimeout string `yaml:"idle_timeout,omitempty"`
}

var builtin = map[string]Profile{
	"samd10d14": {
		Name:              "samd10d14",
		FlashSize:         16 * 1024,
		PageSize:          64,
		PagesInEraseBlock: 4,
		ApplicationStart:  0x400,
		DataSize:          64,
		RequestMagic:      0xdeadbeef,
		BaudRate:          57600,
		Framing:           FramingFull,
	},
	"samd10d13": {
		Name:              "samd10d13",
		FlashSize:         8 * 1024,
		PageSize:          64,
		PagesInEraseBlock: 4,
		ApplicationStart:  0x400,
		DataSize:          64,
		RequestMagic:      0xdeadbeef,
		BaudRate:          57600,
		Framing:           FramingFull,
	},
	"samd21g18": {
		Name:              "samd21g18",
		FlashSize:         256 * 1024,
		PageSize:          64,
		PagesInEraseBlock: 4,
		ApplicationStart:  0x400,
		DataSize:          64,
		RequestMagic:      0xdeadbeef,
		BaudRate:          115200,
		Framing:           FramingFull,
	},
}

// DefaultName is the profile used when none is given.
const DefaultName = "samd10d14"

func Default() *Profile {
	p := builtin[DefaultName]
	return &p
}

// Builtin returns the names of the built-in profiles.
func Builtin() []string {
	var names []string
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns a built-in profile by name or loads one from a YAML file.
// An empty name is the default profile.
func Get(nameOrPath string) (*Profile, error) {
	if nameOrPath == "" {
		return Default(), nil
	}
	if p, ok := builtin[strings.ToLower(nameOrPath)]; ok {
		return &p, nil
	}
	return Load(nameOrPath)
}

func Load(path string) (*Profile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read profile")
	}
	p, err := Parse(data)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", path)
	}
	return p, nil
}

// Parse reads a profile. Fields that are not set keep their default values.
func Parse(data []byte) (*Profile, error) {
	p := Default()
	p.Name = ""
	if err := yaml.UnmarshalStrict(data, p); err != nil {
		return nil, errors.Annotatef(err, "invalid profile")
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return p, nil
}

func (p *Profile) Validate() error {
	if p.PageSize == 0 || p.PageSize%4 != 0 {
		return errors.Errorf("page_size must be a non-zero multiple of 4, got %d", p.PageSize)
	}
	if p.PagesInEraseBlock == 0 {
		return errors.Errorf("pages_in_erase_block must be non-zero")
	}
	bs := p.EraseBlockSize()
	if p.FlashSize == 0 || p.FlashSize%bs != 0 {
		return errors.Errorf("flash_size (%d) must be a multiple of the erase block size (%d)", p.FlashSize, bs)
	}
	if p.FlashSize-1 > protocol.MaxAddress {
		return errors.Errorf("flash_size (%d) is not addressable with %d address bytes", p.FlashSize, protocol.AddressBytes)
	}
	if p.ApplicationStart%bs != 0 || p.ApplicationStart >= p.FlashSize {
		return errors.Errorf("application_start (0x%x) must be erase block aligned and inside flash", p.ApplicationStart)
	}
	f, err := p.ProtocolFraming()
	if err != nil {
		return errors.Trace(err)
	}
	if err := f.Validate(); err != nil {
		return errors.Annotatef(err, "data_size")
	}
	if bs%uint32(p.DataSize) != 0 {
		return errors.Errorf("erase block size (%d) must be a multiple of data_size (%d)", bs, p.DataSize)
	}
	if p.RequestMagic == 0 {
		return errors.Errorf("request_magic cannot be zero")
	}
	if p.BaudRate == 0 {
		return errors.Errorf("baud_rate cannot be zero")
	}
	if _, err := p.IdleTimeoutDuration(); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (p *Profile) EraseBlockSize() uint32 {
	return p.PageSize * p.PagesInEraseBlock
}

func (p *Profile) ProtocolFraming() (protocol.Framing, error) {
	switch strings.ToLower(p.Framing) {
	case "", FramingFull:
		return protocol.DefaultFraming(p.DataSize), nil
	case FramingLegacy:
		return protocol.LegacyFraming(p.DataSize), nil
	}
	return protocol.Framing{}, errors.Errorf("unknown framing %q, must be %q or %q", p.Framing, FramingFull, FramingLegacy)
}

func (p *Profile) IdleTimeoutDuration() (time.Duration, error) {
	if p.IdleTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.IdleTimeout)
	if err != nil || d < 0 {
		return 0, errors.Errorf("invalid idle_timeout %q", p.IdleTimeout)
	}
	return d, nil
}

// SessionConfig is the device side view of the profile.
// The profile must be valid.
func (p *Profile) SessionConfig() session.Config {
	f, _ := p.ProtocolFraming()
	it, _ := p.IdleTimeoutDuration()
	return session.Config{
		Framing:        f,
		EraseBlockSize: p.EraseBlockSize(),
		AppStart:       p.ApplicationStart,
		Magic:          p.RequestMagic,
		IdleTimeout:    it,
	}
}

func (p *Profile) SimGeometry() sim.Geometry {
	return sim.Geometry{
		FlashSize:         p.FlashSize,
		PageSize:          p.PageSize,
		PagesInEraseBlock: p.PagesInEraseBlock,
	}
}

func (p *Profile) YAML() ([]byte, error) {
	data, err := yaml.Marshal(p)
	return data, errors.Trace(err)
}

func (p *Profile) String() string {
	return fmt.Sprintf("%s: %d KiB flash, %d-byte erase blocks, app @ 0x%x, %s framing, %d baud",
		p.Name, p.FlashSize/1024, p.EraseBlockSize(), p.ApplicationStart, p.Framing, p.BaudRate)
}
