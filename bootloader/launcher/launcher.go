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
// Package launcher hands control over to the installed application.
package launcher

import (
	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/uartboot/bootloader/hal"
	"github.com/mongoose-os/uartboot/bootloader/sentinel"
)

// BlankWord is what an erased flash word reads as.
const BlankWord = 0xffffffff

type Launcher struct {
	nvm      hal.NVMController
	cpu      hal.CPU
	sentinel *sentinel.Sentinel
	appStart uint32
}

func New(nvm hal.NVMController, cpu hal.CPU, s *sentinel.Sentinel, appStart uint32) *Launcher {
	return &Launcher{nvm: nvm, cpu: cpu, sentinel: s, appStart: appStart}
}

// TryLaunch validates the application's vector table and jumps to its reset
// handler. A blank stack pointer means there is no application: an update is
// requested instead, which resets the system.
//
// On hardware TryLaunch never returns. Hosted CPUs record the transfer and
// get hal.ErrJumpReturned or hal.ErrResetReturned back.
func (l *Launcher) TryLaunch() error {
	sp := l.nvm.ReadWord(l.appStart)
	entry := l.nvm.ReadWord(l.appStart + 4)
	if sp == BlankWord {
		glog.Infof("no application at 0x%x, forcing update mode", l.appStart)
		return errors.Trace(l.sentinel.RequestUpdate())
	}
	glog.Infof("starting application at 0x%x: sp 0x%08x, entry 0x%08x", l.appStart, sp, entry)
	l.cpu.SetStackPointer(sp)
	l.cpu.SetVectorTable(l.appStart)
	l.cpu.Jump(entry)
	return errors.Trace(hal.ErrJumpReturned)
}
