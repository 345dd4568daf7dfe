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
// Package hal describes the hardware capabilities the bootloader core is
// written against. Everything is synchronous: status is polled, never
// signalled, and no method is expected to be called concurrently.
package hal

import (
	"context"
	"runtime"
	"time"

	"github.com/juju/errors"
)

var (
	// ErrResetReturned is returned when CPU.SystemReset returned control to the
	// caller. Real hardware never gets here; hosted implementations do.
	ErrResetReturned = errors.New("system reset returned")
	// ErrJumpReturned is returned when CPU.Jump returned control to the caller.
	ErrJumpReturned = errors.New("jump to application returned")
)

// Transport is the byte-oriented serial link to the host.
type Transport interface {
	// ByteAvailable reports whether ReadByte will return without blocking.
	ByteAvailable() bool
	// ReadByte returns the next received byte.
	ReadByte() (byte, error)
	// WriteByte sends a single byte, blocking until the transmitter takes it.
	WriteByte(b byte) error
}

// NVMController is the program memory controller.
// Every command leaves the controller busy until Ready reports true.
type NVMController interface {
	// UnlockRegion clears the write protection of the lock region containing addr.
	UnlockRegion(addr uint32) error
	// EraseBlock erases the erase block starting at addr.
	EraseBlock(addr uint32) error
	// WriteWord programs a single 32-bit word. addr must be word-aligned.
	WriteWord(addr uint32, value uint32) error
	Ready() bool
	// ReadWord reads a word of program memory through the bus.
	ReadWord(addr uint32) uint32
}

// IntegrityEngine computes a CRC-32 over a memory range in hardware.
type IntegrityEngine interface {
	// StartCRC32 kicks off the computation over [addr, addr+length) using seed
	// as the initial value. Previous status is cleared.
	StartCRC32(addr, length, seed uint32) error
	Done() bool
	// BusError reports whether the last computation hit an inaccessible address.
	BusError() bool
	// Result returns the CRC register after Done reports true.
	Result() uint32
}

// CPU is the processor control needed to hand over to the application.
type CPU interface {
	SetStackPointer(sp uint32)
	SetVectorTable(base uint32)
	// Jump transfers control to addr. It does not return on hardware.
	Jump(addr uint32)
	// SystemReset requests a full system reset. It does not return on hardware.
	SystemReset()
}

// RetainedMemory is a handful of RAM words that survive a warm reset.
type RetainedMemory interface {
	LoadWord(i int) uint32
	StoreWord(i int, v uint32)
}

// Board bundles the capabilities of one chip.
type Board struct {
	Transport Transport
	NVM       NVMController
	Integrity IntegrityEngine
	CPU       CPU
	Retained  RetainedMemory

	// PollInterval is slept between status polls. Zero spins, which is what
	// the firmware does; hosted boards set it to avoid burning a core.
	PollInterval time.Duration
}

// WaitUntil busy-polls cond until it reports true or ctx is done.
func WaitUntil(ctx context.Context, cond func() bool, interval time.Duration) error {
	for !cond() {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		Pause(interval)
	}
	return nil
}

// Pause yields between two polls of a status flag.
func Pause(interval time.Duration) {
	if interval > 0 {
		time.Sleep(interval)
	} else {
		runtime.Gosched()
	}
}
