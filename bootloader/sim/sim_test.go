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
	"bytes"
	"context"
	"io"
	"math/rand"
	"testing"

	"github.com/juju/errors"

	"github.com/mongoose-os/uartboot/bootloader/hal"
	"github.com/mongoose-os/uartboot/bootloader/protocol"
)

var samd10 = Geometry{FlashSize: 16384, PageSize: 64, PagesInEraseBlock: 4, BusyPolls: 2}

func TestGeometryValidate(t *testing.T) {
	for i, c := range []struct {
		g  Geometry
		ok bool
	}{
		{samd10, true},
		{Geometry{FlashSize: 16384, PageSize: 0, PagesInEraseBlock: 4}, false},
		{Geometry{FlashSize: 16384, PageSize: 62, PagesInEraseBlock: 4}, false},
		{Geometry{FlashSize: 16384, PageSize: 64, PagesInEraseBlock: 0}, false},
		{Geometry{FlashSize: 1000, PageSize: 64, PagesInEraseBlock: 4}, false},
		{Geometry{FlashSize: 16384, PageSize: 64, PagesInEraseBlock: 4, LockRegionSize: 100}, false},
	} {
		err := c.g.Validate()
		if (err == nil) != c.ok {
			t.Fatalf("%d: %+v: got %v", i, c.g, err)
		}
	}
}

func TestFlashNOR(t *testing.T) {
	f := NewFlash(1024, 256)
	if w, _ := f.Word(0); w != 0xffffffff {
		t.Fatalf("fresh flash reads 0x%08x", w)
	}
	if err := f.Program(4, 0x12345678); err != nil {
		t.Fatalf("Program: %s", err)
	}
	// Programming only clears bits.
	if err := f.Program(4, 0xffff00ff); err != nil {
		t.Fatalf("Program: %s", err)
	}
	if w, _ := f.Word(4); w != 0x12340078 {
		t.Fatalf("got 0x%08x, want 0x12340078", w)
	}
	if err := f.Erase(0); err != nil {
		t.Fatalf("Erase: %s", err)
	}
	if w, _ := f.Word(4); w != 0xffffffff {
		t.Fatalf("erased word reads 0x%08x", w)
	}
	for i, err := range []error{
		f.Program(2, 0),
		f.Program(1024, 0),
		f.Erase(100),
		f.Erase(1024),
	} {
		if err == nil {
			t.Fatalf("%d: expected an error", i)
		}
	}
	if _, err := f.Read(1020, 8); err == nil {
		t.Fatalf("expected an error for a read past the end")
	}
	if err := f.Restore([]byte{1, 2}); err != nil {
		t.Fatalf("Restore: %s", err)
	}
	if b := f.Bytes(); b[0] != 1 || b[1] != 2 || b[2] != Erased || len(b) != 1024 {
		t.Fatalf("bad restored contents %x", b[:4])
	}
	if err := f.Restore(make([]byte, 2048)); err == nil {
		t.Fatalf("expected an error for an oversized image")
	}
}

func TestNVMLockAndBusy(t *testing.T) {
	c, err := NewChip(samd10)
	if err != nil {
		t.Fatalf("NewChip: %s", err)
	}
	n := c.NVM
	if err := n.EraseBlock(0x400); err == nil {
		t.Fatalf("erase of a locked region succeeded")
	}
	if err := n.WriteWord(0x400, 0); err == nil {
		t.Fatalf("write to a locked region succeeded")
	}
	if err := n.UnlockRegion(0x400); err != nil {
		t.Fatalf("UnlockRegion: %s", err)
	}
	if err := n.EraseBlock(0x400); err == nil {
		t.Fatalf("command accepted while busy")
	}
	if err := hal.WaitUntil(context.Background(), n.Ready, 0); err != nil {
		t.Fatalf("WaitUntil: %s", err)
	}
	if err := n.EraseBlock(0x400); err != nil {
		t.Fatalf("EraseBlock: %s", err)
	}
	hal.WaitUntil(context.Background(), n.Ready, 0)
	if err := n.WriteWord(0x7fc, 0x11223344); err != nil {
		t.Fatalf("WriteWord: %s", err)
	}
	if v := n.ReadWord(0x7fc); v != 0x11223344 {
		t.Fatalf("read back 0x%08x", v)
	}
	// Another lock region is still locked.
	if err := n.WriteWord(0x800, 0); err == nil {
		t.Fatalf("write to a locked region succeeded")
	}
	// A rejected command does not leave the controller busy.
	hal.WaitUntil(context.Background(), n.Ready, 0)
	if err := n.EraseBlock(0x800); err == nil {
		t.Fatalf("erase of a locked region succeeded")
	}
	if !n.Ready() {
		t.Fatalf("controller busy after a rejected erase")
	}
	if err := n.UnlockRegion(0x4000); err == nil {
		t.Fatalf("unlock out of range succeeded")
	}
	if !n.Ready() {
		t.Fatalf("controller busy after a rejected unlock")
	}
	if e := n.Erases(); len(e) != 1 || e[0x400] != 1 {
		t.Fatalf("erase counters %v", e)
	}
	c.WarmReset()
	if err := n.WriteWord(0x400, 0); err == nil {
		t.Fatalf("regions not relocked on reset")
	}
	if v := n.ReadWord(0x10000); v != 0 {
		t.Fatalf("out of range read 0x%08x", v)
	}
}

func TestCRCEngine(t *testing.T) {
	c, _ := NewChip(samd10)
	data := []byte("123456789abc")
	if err := c.Flash.Restore(append(make([]byte, 0x400), data...)); err != nil {
		t.Fatalf("Restore: %s", err)
	}
	for i, cs := range []struct {
		addr, length uint32
		berr         bool
		want         uint32
	}{
		{0x400, 12, false, protocol.Checksum(data)},
		{0x400, 64, false, protocol.Checksum(append(append([]byte(nil), data...), bytes.Repeat([]byte{0xff}, 52)...))},
		{0x3fc0, 64, false, protocol.Checksum(bytes.Repeat([]byte{0xff}, 64))},
		{0x3fc4, 64, true, 0},
		{0x10000, 4, true, 0},
	} {
		if err := c.CRC.StartCRC32(cs.addr, cs.length, protocol.ChecksumSeed); err != nil {
			t.Fatalf("%d: %s", i, err)
		}
		if c.CRC.Done() {
			t.Fatalf("%d: done without polling", i)
		}
		hal.WaitUntil(context.Background(), c.CRC.Done, 0)
		if c.CRC.BusError() != cs.berr {
			t.Fatalf("%d: bus error %t, want %t", i, c.CRC.BusError(), cs.berr)
		}
		if !cs.berr && c.CRC.Result() != cs.want {
			t.Fatalf("%d: crc 0x%08x, want 0x%08x", i, c.CRC.Result(), cs.want)
		}
	}
	if err := c.CRC.StartCRC32(0x402, 4, protocol.ChecksumSeed); err == nil {
		t.Fatalf("expected an error for an unaligned range")
	}
}

func TestRetainedAndCPU(t *testing.T) {
	c, _ := NewChip(samd10)
	c.Retained.StoreWord(0, 0xdeadbeef)
	c.WarmReset()
	if c.Retained.LoadWord(0) != 0xdeadbeef {
		t.Fatalf("retained RAM cleared by warm reset")
	}
	c.PowerOn(rand.New(rand.NewSource(1)))
	if w := c.Retained.Words(); len(w) != RetainedWords {
		t.Fatalf("got %d retained words", len(w))
	}
	c.CPU.SetStackPointer(0x20001000)
	c.CPU.SetVectorTable(0x400)
	c.CPU.Jump(0x4a1)
	c.CPU.SystemReset()
	s := c.Snapshot()
	if s.CPU.Jumps != 1 || s.CPU.Resets != 1 || s.CPU.JumpTarget != 0x4a1 || s.LastTransfer != "reset" {
		t.Fatalf("bad snapshot %+v", s)
	}
}

func TestWire(t *testing.T) {
	w := &Wire{}
	if w.ByteAvailable() {
		t.Fatalf("empty wire has a byte")
	}
	w.Send(1, 2)
	w.CloseInput()
	for _, want := range []byte{1, 2} {
		if !w.ByteAvailable() {
			t.Fatalf("no byte available")
		}
		if b, err := w.ReadByte(); err != nil || b != want {
			t.Fatalf("got %d %v, want %d", b, err, want)
		}
	}
	if _, err := w.ReadByte(); errors.Cause(err) != io.EOF {
		t.Fatalf("got %v, want EOF", err)
	}
	w.WriteByte(0x55)
	if o := w.Output(); !bytes.Equal(o, []byte{0x55}) {
		t.Fatalf("output %x", o)
	}
	if o := w.Output(); len(o) != 0 {
		t.Fatalf("output not cleared: %x", o)
	}
}
