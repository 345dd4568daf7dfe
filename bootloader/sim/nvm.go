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
	"sync"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// NVM is the program memory controller.
// Lock regions are all locked on reset. Every command keeps the controller
// busy for BusyPolls calls of Ready.
type NVM struct {
	mu         sync.Mutex
	flash      *Flash
	regionSize uint32
	locked     []bool
	busyPolls  int
	busy       int
	erases     map[uint32]int
	writes     int
}

func NewNVM(flash *Flash, lockRegionSize uint32, busyPolls int) *NVM {
	n := &NVM{
		flash:      flash,
		regionSize: lockRegionSize,
		locked:     make([]bool, (flash.Size()+lockRegionSize-1)/lockRegionSize),
		busyPolls:  busyPolls,
		erases:     map[uint32]int{},
	}
	n.Reset()
	return n
}

// Reset restores the power-on controller state. Erase counters are kept.
func (n *NVM) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.locked {
		n.locked[i] = true
	}
	n.busy = 0
}

// command starts a controller command. Rejected commands leave the busy
// state untouched.
func (n *NVM) command(name string, addr uint32) error {
	if addr >= n.flash.Size() {
		return errors.Errorf("%s 0x%x: out of range", name, addr)
	}
	if n.busy > 0 {
		return errors.Errorf("%s 0x%x: controller busy", name, addr)
	}
	n.busy = n.busyPolls
	return nil
}

func (n *NVM) UnlockRegion(addr uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.command("unlock", addr); err != nil {
		return errors.Trace(err)
	}
	n.locked[addr/n.regionSize] = false
	return nil
}

func (n *NVM) EraseBlock(addr uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if addr < n.flash.Size() && n.locked[addr/n.regionSize] {
		return errors.Errorf("erase 0x%x: region locked", addr)
	}
	if err := n.command("erase", addr); err != nil {
		return errors.Trace(err)
	}
	if err := n.flash.Erase(addr); err != nil {
		return errors.Trace(err)
	}
	n.erases[addr]++
	glog.V(2).Infof("erased 0x%06x (%d)", addr, n.erases[addr])
	return nil
}

// WriteWord goes through the page buffer and does not check busy status.
func (n *NVM) WriteWord(addr uint32, value uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if addr >= n.flash.Size() {
		return errors.Errorf("write 0x%x: out of range", addr)
	}
	if n.locked[addr/n.regionSize] {
		return errors.Errorf("write 0x%x: region locked", addr)
	}
	if err := n.flash.Program(addr, value); err != nil {
		return errors.Trace(err)
	}
	n.busy = n.busyPolls
	n.writes++
	return nil
}

func (n *NVM) Ready() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.busy > 0 {
		n.busy--
		return false
	}
	return true
}

// ReadWord returns 0 for addresses outside the array.
func (n *NVM) ReadWord(addr uint32) uint32 {
	v, err := n.flash.Word(addr)
	if err != nil {
		return 0
	}
	return v
}

// Erases returns a copy of the per-block erase counters.
func (n *NVM) Erases() map[uint32]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	m := make(map[uint32]int, len(n.erases))
	for k, v := range n.erases {
		m[k] = v
	}
	return m
}

func (n *NVM) Writes() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.writes
}
