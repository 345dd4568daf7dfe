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
	"fmt"
	"math/rand"
	"time"

	"github.com/juju/errors"

	"github.com/mongoose-os/uartboot/bootloader/hal"
)

// RetainedWords is the size of the retained RAM area.
const RetainedWords = 4

type Geometry struct {
	FlashSize         uint32
	PageSize          uint32
	PagesInEraseBlock uint32
	// LockRegionSize defaults to 1/16 of the flash.
	LockRegionSize uint32
	// BusyPolls is how many status polls each controller command takes.
	BusyPolls int
}

func (g Geometry) EraseBlockSize() uint32 {
	return g.PageSize * g.PagesInEraseBlock
}

func (g Geometry) Validate() error {
	bs := g.EraseBlockSize()
	switch {
	case g.PageSize == 0 || g.PageSize%4 != 0:
		return errors.Errorf("page size must be a non-zero multiple of 4, got %d", g.PageSize)
	case g.PagesInEraseBlock == 0:
		return errors.Errorf("pages in erase block must be non-zero")
	case g.FlashSize == 0 || g.FlashSize%bs != 0:
		return errors.Errorf("flash size %d is not a multiple of the erase block size %d", g.FlashSize, bs)
	case g.LockRegionSize != 0 && g.LockRegionSize%bs != 0:
		return errors.Errorf("lock region size %d is not a multiple of the erase block size %d", g.LockRegionSize, bs)
	}
	return nil
}

// Chip bundles the simulated peripherals.
type Chip struct {
	Geometry Geometry
	Flash    *Flash
	NVM      *NVM
	CRC      *CRCEngine
	CPU      *CPU
	Retained *RetainedRAM
}

func NewChip(g Geometry) (*Chip, error) {
	if err := g.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if g.LockRegionSize == 0 {
		g.LockRegionSize = g.FlashSize / 16
		if g.LockRegionSize < g.EraseBlockSize() {
			g.LockRegionSize = g.EraseBlockSize()
		}
	}
	f := NewFlash(g.FlashSize, g.EraseBlockSize())
	return &Chip{
		Geometry: g,
		Flash:    f,
		NVM:      NewNVM(f, g.LockRegionSize, g.BusyPolls),
		CRC:      NewCRCEngine(f, g.BusyPolls),
		CPU:      &CPU{},
		Retained: NewRetainedRAM(RetainedWords),
	}, nil
}

// Board wires the chip and t into the capability set the bootloader uses.
func (c *Chip) Board(t hal.Transport, pollInterval time.Duration) hal.Board {
	return hal.Board{
		Transport:    t,
		NVM:          c.NVM,
		Integrity:    c.CRC,
		CPU:          c.CPU,
		Retained:     c.Retained,
		PollInterval: pollInterval,
	}
}

// WarmReset restores peripheral state that a system reset clears. Flash and
// retained RAM survive.
func (c *Chip) WarmReset() {
	c.NVM.Reset()
}

// PowerOn additionally scrambles retained RAM when rnd is not nil.
func (c *Chip) PowerOn(rnd *rand.Rand) {
	c.WarmReset()
	if rnd != nil {
		c.Retained.Randomize(rnd)
	}
}

// Status is a point-in-time view of the chip.
type Status struct {
	FlashSize      uint32         `json:"flash_size"`
	EraseBlockSize uint32         `json:"erase_block_size"`
	CPU            CPUState       `json:"cpu"`
	LastTransfer   string         `json:"last_transfer"`
	Retained       []uint32       `json:"retained"`
	Erases         map[string]int `json:"erases"`
	Writes         int            `json:"writes"`
}

func (c *Chip) Snapshot() Status {
	cs := c.CPU.State()
	erases := map[string]int{}
	for addr, n := range c.NVM.Erases() {
		erases[fmt.Sprintf("0x%06x", addr)] = n
	}
	return Status{
		FlashSize:      c.Geometry.FlashSize,
		EraseBlockSize: c.Geometry.EraseBlockSize(),
		CPU:            cs,
		LastTransfer:   cs.Last.String(),
		Retained:       c.Retained.Words(),
		Erases:         erases,
		Writes:         c.NVM.Writes(),
	}
}
