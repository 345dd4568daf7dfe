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
	"math/rand"
	"sync"

	"github.com/golang/glog"
)

// Transfer is the last control transfer a CPU performed.
type Transfer int

const (
	TransferNone Transfer = iota
	TransferJump
	TransferReset
)

func (t Transfer) String() string {
	switch t {
	case TransferJump:
		return "jump"
	case TransferReset:
		return "reset"
	}
	return "none"
}

// CPU records control transfers instead of performing them.
type CPU struct {
	mu    sync.Mutex
	state CPUState
}

type CPUState struct {
	StackPointer uint32   `json:"sp"`
	VectorTable  uint32   `json:"vtor"`
	JumpTarget   uint32   `json:"jump_target"`
	Jumps        int      `json:"jumps"`
	Resets       int      `json:"resets"`
	Last         Transfer `json:"-"`
}

func (c *CPU) SetStackPointer(sp uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.StackPointer = sp
}

func (c *CPU) SetVectorTable(base uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.VectorTable = base
}

func (c *CPU) Jump(addr uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	glog.V(1).Infof("jump to 0x%08x, sp 0x%08x, vtor 0x%x", addr, c.state.StackPointer, c.state.VectorTable)
	c.state.JumpTarget = addr
	c.state.Jumps++
	c.state.Last = TransferJump
}

func (c *CPU) SystemReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	glog.V(1).Infof("system reset")
	c.state.Resets++
	c.state.Last = TransferReset
}

func (c *CPU) State() CPUState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RetainedRAM survives warm resets.
type RetainedRAM struct {
	mu    sync.Mutex
	words []uint32
}

func NewRetainedRAM(n int) *RetainedRAM {
	return &RetainedRAM{words: make([]uint32, n)}
}

func (r *RetainedRAM) LoadWord(i int) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.words[i]
}

func (r *RetainedRAM) StoreWord(i int, v uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.words[i] = v
}

// Randomize fills the words with garbage, as after a power-on.
func (r *RetainedRAM) Randomize(rnd *rand.Rand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.words {
		r.words[i] = rnd.Uint32()
	}
}

func (r *RetainedRAM) Words() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint32(nil), r.words...)
}
