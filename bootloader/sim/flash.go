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
// Package sim is a software model of the chip the bootloader runs on:
// NOR program memory behind a controller with lock regions and busy status,
// a CRC engine, a CPU that records control transfers and a few words of
// retained RAM.
package sim

import (
	"encoding/binary"
	"sync"

	"github.com/juju/errors"
)

// Erased is the value of an erased flash byte.
const Erased = 0xff

// Flash is NOR memory: erasing sets whole blocks to Erased, programming can
// only clear bits.
type Flash struct {
	mu        sync.Mutex
	data      []byte
	blockSize uint32
}

func NewFlash(size, blockSize uint32) *Flash {
	f := &Flash{data: make([]byte, size), blockSize: blockSize}
	for i := range f.data {
		f.data[i] = Erased
	}
	return f
}

func (f *Flash) Size() uint32 {
	return uint32(len(f.data))
}

func (f *Flash) BlockSize() uint32 {
	return f.blockSize
}

func (f *Flash) inRange(addr, n uint32) bool {
	return addr <= f.Size() && n <= f.Size()-addr
}

// Read returns a copy of n bytes at addr.
func (f *Flash) Read(addr, n uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.inRange(addr, n) {
		return nil, errors.Errorf("read 0x%x+%d out of range", addr, n)
	}
	b := make([]byte, n)
	copy(b, f.data[addr:addr+n])
	return b, nil
}

func (f *Flash) Word(addr uint32) (uint32, error) {
	b, err := f.Read(addr, 4)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Program ANDs v into the word at addr.
func (f *Flash) Program(addr, v uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr%4 != 0 || !f.inRange(addr, 4) {
		return errors.Errorf("bad program address 0x%x", addr)
	}
	old := binary.LittleEndian.Uint32(f.data[addr:])
	binary.LittleEndian.PutUint32(f.data[addr:], old&v)
	return nil
}

// Erase erases the block starting at addr.
func (f *Flash) Erase(addr uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr%f.blockSize != 0 || !f.inRange(addr, f.blockSize) {
		return errors.Errorf("bad erase address 0x%x", addr)
	}
	for i := addr; i < addr+f.blockSize; i++ {
		f.data[i] = Erased
	}
	return nil
}

// Bytes returns a copy of the whole array.
func (f *Flash) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.data...)
}

// Restore replaces the contents. A short image leaves the tail erased.
func (f *Flash) Restore(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(data) > len(f.data) {
		return errors.Errorf("image is %d bytes, flash is %d", len(data), len(f.data))
	}
	n := copy(f.data, data)
	for i := n; i < len(f.data); i++ {
		f.data[i] = Erased
	}
	return nil
}
