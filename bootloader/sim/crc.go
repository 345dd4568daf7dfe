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
	"hash/crc32"
	"sync"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// CRCEngine models the device service unit CRC: the register starts at the
// seed, bits are processed reflected and no final inversion is applied.
// Ranges outside flash raise a bus error.
type CRCEngine struct {
	mu        sync.Mutex
	flash     *Flash
	busyPolls int
	busy      int
	berr      bool
	result    uint32
}

func NewCRCEngine(flash *Flash, busyPolls int) *CRCEngine {
	return &CRCEngine{flash: flash, busyPolls: busyPolls}
}

func (e *CRCEngine) StartCRC32(addr, length, seed uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if addr%4 != 0 || length%4 != 0 {
		return errors.Errorf("crc range 0x%x+%d is not word aligned", addr, length)
	}
	e.busy = e.busyPolls
	e.berr = false
	e.result = seed
	data, err := e.flash.Read(addr, length)
	if err != nil {
		glog.V(2).Infof("crc bus error: %s", err)
		e.berr = true
		return nil
	}
	e.result = ^crc32.Update(^seed, crc32.IEEETable, data)
	return nil
}

func (e *CRCEngine) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy > 0 {
		e.busy--
		return false
	}
	return true
}

func (e *CRCEngine) BusError() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.berr
}

func (e *CRCEngine) Result() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}
