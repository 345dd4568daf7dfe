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
// Package image loads firmware images on the host and cuts them into the
// frames the bootloader accepts.
package image

import (
	"bytes"
	"debug/elf"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/marcinbor85/gohex"

	"github.com/mongoose-os/uartboot/config"
)

// Image is a contiguous piece of flash contents.
type Image struct {
	Addr uint32
	Data []byte
	// Entry is the start address recorded in the file, if any.
	Entry    uint32
	HasEntry bool
}

func (im *Image) End() uint32 {
	return im.Addr + uint32(len(im.Data))
}

// fromMemory flattens all segments into one image, filling the gaps.
func fromMemory(mem *gohex.Memory, fill byte) (*Image, error) {
	segs := mem.GetDataSegments()
	if len(segs) == 0 {
		return nil, errors.Errorf("no data")
	}
	start, end := segs[0].Address, uint32(0)
	for _, s := range segs {
		if s.Address < start {
			start = s.Address
		}
		if e := s.Address + uint32(len(s.Data)); e > end {
			end = e
		}
	}
	if len(segs) > 1 {
		glog.V(1).Infof("%d segments, filling gaps with 0x%02x", len(segs), fill)
	}
	im := &Image{Addr: start, Data: mem.ToBinary(start, end-start, fill)}
	im.Entry, im.HasEntry = mem.GetStartAddress()
	return im, nil
}

// FromHex parses Intel HEX.
func FromHex(r io.Reader, fill byte) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, errors.Annotatef(err, "invalid hex")
	}
	im, err := fromMemory(mem, fill)
	return im, errors.Trace(err)
}

// FromBinary places raw contents at addr.
func FromBinary(data []byte, addr uint32) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.Errorf("no data")
	}
	return &Image{Addr: addr, Data: append([]byte(nil), data...)}, nil
}

// FromELF takes the allocated sections with contents, at their load
// addresses.
func FromELF(r io.ReaderAt, fill byte) (*Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Annotatef(err, "invalid ELF")
	}
	defer f.Close()
	mem := gohex.NewMemory()
	for _, s := range f.Sections {
		if s.Type != elf.SHT_PROGBITS || s.Flags&elf.SHF_ALLOC == 0 || s.Size == 0 {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, errors.Annotatef(err, "section %s", s.Name)
		}
		paddr := s.Addr
		for _, p := range f.Progs {
			if p.Type == elf.PT_LOAD && p.Off <= s.Offset && s.Offset < p.Off+p.Filesz {
				paddr = p.Paddr + s.Offset - p.Off
				break
			}
		}
		glog.V(1).Infof("section %s: 0x%x, %d bytes", s.Name, paddr, len(data))
		if err := mem.AddBinary(uint32(paddr), data); err != nil {
			return nil, errors.Annotatef(err, "section %s", s.Name)
		}
	}
	im, err := fromMemory(mem, fill)
	if err != nil {
		return nil, errors.Trace(err)
	}
	im.Entry, im.HasEntry = uint32(f.Entry), true
	return im, nil
}

// Load picks the format by extension: .hex and .ihex are Intel HEX, .elf is
// ELF, anything else is raw binary placed at addr.
func Load(path string, addr uint32, fill byte) (*Image, error) {
	var im *Image
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		var f *os.File
		if f, err = os.Open(path); err != nil {
			return nil, errors.Trace(err)
		}
		defer f.Close()
		im, err = FromHex(f, fill)
	case ".elf":
		var f *os.File
		if f, err = os.Open(path); err != nil {
			return nil, errors.Trace(err)
		}
		defer f.Close()
		im, err = FromELF(f, fill)
	default:
		var data []byte
		if data, err = ioutil.ReadFile(path); err != nil {
			return nil, errors.Trace(err)
		}
		im, err = FromBinary(data, addr)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "%s", path)
	}
	return im, nil
}

// WriteHex dumps the image as Intel HEX.
func WriteHex(w io.Writer, im *Image) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(im.Addr, im.Data); err != nil {
		return errors.Trace(err)
	}
	if im.HasEntry {
		mem.SetStartAddress(im.Entry)
	}
	return errors.Trace(mem.DumpIntelHex(w, 16))
}

// Check fits the image into the application area of p. Data below the
// application start or past the end of flash is an error in strict mode and
// is dropped with a warning otherwise.
func (im *Image) Check(p *config.Profile, strict bool) (*Image, error) {
	lo, hi := p.ApplicationStart, p.FlashSize
	start, end := im.Addr, im.End()
	if start < lo {
		if strict {
			return nil, errors.Errorf("image starts at 0x%x, inside the bootloader area (below 0x%x)", start, lo)
		}
		glog.Warningf("dropping %d bytes below 0x%x", min32(lo, end)-start, lo)
		start = lo
	}
	if end > hi {
		if strict {
			return nil, errors.Errorf("image ends at 0x%x, past the end of flash (0x%x)", end, hi)
		}
		glog.Warningf("dropping %d bytes past 0x%x", end-max32(hi, start), hi)
		end = hi
	}
	if start >= end {
		return nil, errors.Errorf("no data to flash in [0x%x, 0x%x)", lo, hi)
	}
	return &Image{
		Addr:     start,
		Data:     im.Data[start-im.Addr : end-im.Addr],
		Entry:    im.Entry,
		HasEntry: im.HasEntry,
	}, nil
}

// Frame is one bootloader frame worth of data.
type Frame struct {
	Addr uint32
	Data []byte
}

// Frames cuts the image into dataSize frames. The first frame is moved down
// to an align boundary and the last one is padded, both with fill.
func (im *Image) Frames(dataSize int, align uint32, fill byte) []Frame {
	if align < uint32(dataSize) {
		align = uint32(dataSize)
	}
	start := im.Addr - im.Addr%align
	end := im.End()
	if r := end % uint32(dataSize); r != 0 {
		end += uint32(dataSize) - r
	}
	data := bytes.Repeat([]byte{fill}, int(end-start))
	copy(data[im.Addr-start:], im.Data)
	var frames []Frame
	for a := start; a < end; a += uint32(dataSize) {
		frames = append(frames, Frame{Addr: a, Data: data[a-start : a-start+uint32(dataSize)]})
	}
	return frames
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
