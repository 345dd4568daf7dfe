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
// Package programmer writes received frames into program memory and verifies
// them with the integrity engine.
package programmer

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/uartboot/bootloader/hal"
	"github.com/mongoose-os/uartboot/bootloader/protocol"
)

type Options struct {
	// EraseBlockSize is the erase granularity in bytes. A frame whose address
	// is a multiple of it erases the block first.
	EraseBlockSize uint32
	// DataSize is the frame payload size and the verified range length.
	DataSize int
	// PollInterval is passed to hal.WaitUntil.
	PollInterval time.Duration
}

// Stats are per-session diagnostics.
type Stats struct {
	Frames int
	Acks   int
	Nacks  int
	// Erases counts erases per block start address.
	Erases map[uint32]int
}

type Programmer struct {
	nvm   hal.NVMController
	crc   hal.IntegrityEngine
	opts  Options
	stats Stats
}

func New(nvm hal.NVMController, crc hal.IntegrityEngine, opts Options) (*Programmer, error) {
	if opts.EraseBlockSize == 0 || opts.EraseBlockSize%4 != 0 {
		return nil, errors.Errorf("invalid erase block size %d", opts.EraseBlockSize)
	}
	if opts.DataSize <= 0 || opts.DataSize%4 != 0 {
		return nil, errors.Errorf("invalid data size %d", opts.DataSize)
	}
	return &Programmer{
		nvm:   nvm,
		crc:   crc,
		opts:  opts,
		stats: Stats{Erases: map[uint32]int{}},
	}, nil
}

// ProgramFrame erases (on a block boundary), programs and verifies one frame.
// The verdict is CmdAck or CmdNack; controller failures are a Nack. Only a
// done ctx is returned as an error.
func (p *Programmer) ProgramFrame(ctx context.Context, addr uint32, payload []byte, checksum uint32) (protocol.Command, error) {
	p.stats.Frames++
	ok, err := p.programFrame(ctx, addr, payload, checksum)
	if err != nil {
		if ctx.Err() != nil {
			return protocol.CmdNack, errors.Trace(err)
		}
		glog.Warningf("frame 0x%06x: %s", addr, err)
		// Words written before the failure may still be in flight.
		if err := p.waitReady(ctx); err != nil {
			return protocol.CmdNack, errors.Trace(err)
		}
		ok = false
	}
	if !ok {
		p.stats.Nacks++
		return protocol.CmdNack, nil
	}
	p.stats.Acks++
	return protocol.CmdAck, nil
}

func (p *Programmer) programFrame(ctx context.Context, addr uint32, payload []byte, checksum uint32) (bool, error) {
	if len(payload) != p.opts.DataSize {
		return false, errors.Errorf("payload is %d bytes, want %d", len(payload), p.opts.DataSize)
	}
	if addr%4 != 0 {
		return false, errors.Errorf("unaligned address")
	}
	if addr%p.opts.EraseBlockSize == 0 {
		glog.V(1).Infof("erasing block 0x%06x", addr)
		if err := p.nvm.UnlockRegion(addr); err != nil {
			return false, errors.Annotatef(err, "unlock")
		}
		if err := p.waitReady(ctx); err != nil {
			return false, errors.Trace(err)
		}
		if err := p.nvm.EraseBlock(addr); err != nil {
			return false, errors.Annotatef(err, "erase")
		}
		if err := p.waitReady(ctx); err != nil {
			return false, errors.Trace(err)
		}
		p.stats.Erases[addr]++
	}
	for i := 0; i < len(payload); i += 4 {
		if err := p.nvm.WriteWord(addr+uint32(i), binary.LittleEndian.Uint32(payload[i:])); err != nil {
			return false, errors.Annotatef(err, "write 0x%06x", addr+uint32(i))
		}
	}
	if err := p.waitReady(ctx); err != nil {
		return false, errors.Trace(err)
	}
	if err := p.crc.StartCRC32(addr, uint32(p.opts.DataSize), protocol.ChecksumSeed); err != nil {
		return false, errors.Annotatef(err, "crc")
	}
	if err := hal.WaitUntil(ctx, p.crc.Done, p.opts.PollInterval); err != nil {
		return false, errors.Trace(err)
	}
	if p.crc.BusError() {
		glog.Warningf("frame 0x%06x: bus error during verification", addr)
		return false, nil
	}
	if res := p.crc.Result(); res != checksum {
		glog.Warningf("frame 0x%06x: crc 0x%08x, host sent 0x%08x", addr, res, checksum)
		return false, nil
	}
	glog.V(1).Infof("frame 0x%06x ok", addr)
	return true, nil
}

func (p *Programmer) waitReady(ctx context.Context) error {
	return errors.Trace(hal.WaitUntil(ctx, p.nvm.Ready, p.opts.PollInterval))
}

// Stats returns a copy of the counters.
func (p *Programmer) Stats() Stats {
	s := p.stats
	s.Erases = make(map[uint32]int, len(p.stats.Erases))
	for k, v := range p.stats.Erases {
		s.Erases[k] = v
	}
	return s
}
