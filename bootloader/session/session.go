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
// Package session runs the device side of an update: it feeds received frames
// to the programmer until the host asks for a reset. Boot is the reset-time
// decision between the update session and the installed application.
package session

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/uartboot/bootloader/hal"
	"github.com/mongoose-os/uartboot/bootloader/launcher"
	"github.com/mongoose-os/uartboot/bootloader/programmer"
	"github.com/mongoose-os/uartboot/bootloader/protocol"
	"github.com/mongoose-os/uartboot/bootloader/receiver"
	"github.com/mongoose-os/uartboot/bootloader/sentinel"
)

type Config struct {
	Framing        protocol.Framing
	EraseBlockSize uint32
	// AppStart is where the application's vector table lives.
	AppStart uint32
	// Magic is the sentinel request value.
	Magic       uint32
	IdleTimeout time.Duration
}

type Session struct {
	board    hal.Board
	sentinel *sentinel.Sentinel
	rx       *receiver.Receiver
	prog     *programmer.Programmer
}

func (c Config) validate() error {
	if c.Magic == 0 {
		return errors.Errorf("request magic cannot be zero")
	}
	return nil
}

func New(board hal.Board, cfg Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	rx, err := receiver.New(board.Transport, cfg.Framing, receiver.Options{
		IdleTimeout:  cfg.IdleTimeout,
		PollInterval: board.PollInterval,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	prog, err := programmer.New(board.NVM, board.Integrity, programmer.Options{
		EraseBlockSize: cfg.EraseBlockSize,
		DataSize:       cfg.Framing.DataSize,
		PollInterval:   board.PollInterval,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Session{
		board:    board,
		sentinel: sentinel.New(board.Retained, board.CPU, cfg.Magic),
		rx:       rx,
		prog:     prog,
	}, nil
}

// Run announces readiness and serves frames until the host requests a reset,
// the transport fails or ctx is done. On a reset request the sentinel is
// cleared and the system reset; hosted CPUs get hal.ErrResetReturned.
func (s *Session) Run(ctx context.Context) error {
	glog.Infof("update session started")
	if err := s.board.Transport.WriteByte(byte(protocol.StatusReady)); err != nil {
		return errors.Annotatef(err, "failed to send ready status")
	}
	for {
		fr, err := s.rx.Receive(ctx)
		if err != nil {
			if errors.Cause(err) == receiver.ErrResetRequested {
				st := s.prog.Stats()
				glog.Infof("reset requested: %d frames, %d nacks", st.Frames, st.Nacks)
				s.sentinel.ClearRequest()
				s.board.CPU.SystemReset()
				return errors.Trace(hal.ErrResetReturned)
			}
			return errors.Trace(err)
		}
		res, err := s.prog.ProgramFrame(ctx, fr.Addr, fr.Payload, fr.Checksum)
		if err != nil {
			return errors.Trace(err)
		}
		if err := s.board.Transport.WriteByte(byte(res)); err != nil {
			return errors.Annotatef(err, "failed to send %s", res)
		}
	}
}

func (s *Session) Stats() programmer.Stats {
	return s.prog.Stats()
}

// Boot is what the reset handler does: serve an update when one was
// requested, launch the application otherwise. It does not return on
// hardware.
func Boot(ctx context.Context, board hal.Board, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return errors.Trace(err)
	}
	sn := sentinel.New(board.Retained, board.CPU, cfg.Magic)
	if sn.IsUpdateRequested() {
		s, err := New(board, cfg)
		if err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(s.Run(ctx))
	}
	return errors.Trace(launcher.New(board.NVM, board.CPU, sn, cfg.AppStart).TryLaunch())
}
