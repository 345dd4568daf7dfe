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
package image

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mongoose-os/uartboot/config"
)

func TestFromHex(t *testing.T) {
	cases := []struct {
		data     string
		fail     bool
		addr     uint32
		contents string
		entry    uint32
	}{
		// 0
		{data: ":040000004F484149DB\n:00000001FF\n", addr: 0, contents: "OHAI"},
		// 1 - linear address
		{data: ":020000040800F2\n:040000004F484149DB\n:00000001FF\n", addr: 0x8000000, contents: "OHAI"},
		// 2 - gap filled, start address
		{
			data:     ":040400004F484149D7\n:020408002121B0\n:04000005000004A152\n:00000001FF\n",
			addr:     0x400,
			contents: "OHAI\xee\xee\xee\xee!!",
			entry:    0x4a1,
		},
		// 3 - bad checksum
		{data: ":040000004F484149DC\n:00000001FF\n", fail: true},
		// 4 - not hex
		{data: "hello\n", fail: true},
	}
	for i, c := range cases {
		im, err := FromHex(strings.NewReader(c.data), 0xee)
		if c.fail {
			if err == nil {
				t.Fatalf("%d: expected an error", i)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%d: %s", i, err)
		}
		if im.Addr != c.addr || string(im.Data) != c.contents {
			t.Fatalf("%d: got 0x%x %q, want 0x%x %q", i, im.Addr, im.Data, c.addr, c.contents)
		}
		if c.entry != 0 && (!im.HasEntry || im.Entry != c.entry) {
			t.Fatalf("%d: entry 0x%x (%t), want 0x%x", i, im.Entry, im.HasEntry, c.entry)
		}
	}
}

func TestWriteHexRoundTrip(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i * 3)
	}
	im := &Image{Addr: 0x1fff0, Data: data, Entry: 0x20001, HasEntry: true}
	var buf bytes.Buffer
	if err := WriteHex(&buf, im); err != nil {
		t.Fatalf("WriteHex: %s", err)
	}
	im2, err := FromHex(&buf, 0xff)
	if err != nil {
		t.Fatalf("FromHex: %s", err)
	}
	if im2.Addr != im.Addr || !bytes.Equal(im2.Data, im.Data) || im2.Entry != im.Entry {
		t.Fatalf("round trip mismatch: 0x%x %d 0x%x", im2.Addr, len(im2.Data), im2.Entry)
	}
}

// testELF builds a minimal ARM executable with code at 0x400.
func testELF(t *testing.T, code []byte) []byte {
	const (
		phoff  = 52
		textOf = phoff + 32
	)
	strtab := "\x00.text\x00.shstrtab\x00"
	strOff := textOf + len(code)
	shoff := (strOff + len(strtab) + 3) &^ 3
	var b bytes.Buffer
	hdr := elf.Header32{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     0x4a1,
		Phoff:     phoff,
		Shoff:     uint32(shoff),
		Ehsize:    52,
		Phentsize: 32,
		Phnum:     1,
		Shentsize: 40,
		Shnum:     3,
		Shstrndx:  2,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	binary.Write(&b, binary.LittleEndian, &hdr)
	binary.Write(&b, binary.LittleEndian, &elf.Prog32{
		Type:   uint32(elf.PT_LOAD),
		Off:    textOf,
		Vaddr:  0x400,
		Paddr:  0x400,
		Filesz: uint32(len(code)),
		Memsz:  uint32(len(code)),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Align:  4,
	})
	b.Write(code)
	b.WriteString(strtab)
	for b.Len() < shoff {
		b.WriteByte(0)
	}
	for _, s := range []elf.Section32{
		{},
		{Name: 1, Type: uint32(elf.SHT_PROGBITS), Flags: uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR), Addr: 0x400, Off: textOf, Size: uint32(len(code)), Addralign: 4},
		{Name: 7, Type: uint32(elf.SHT_STRTAB), Off: uint32(strOff), Size: uint32(len(strtab)), Addralign: 1},
	} {
		binary.Write(&b, binary.LittleEndian, &s)
	}
	return b.Bytes()
}

func TestFromELF(t *testing.T) {
	code := []byte{0xf0, 0x0f, 0x00, 0x20, 0xa1, 0x04, 0x00, 0x00}
	im, err := FromELF(bytes.NewReader(testELF(t, code)), 0xff)
	if err != nil {
		t.Fatalf("FromELF: %s", err)
	}
	if im.Addr != 0x400 || !bytes.Equal(im.Data, code) || im.Entry != 0x4a1 {
		t.Fatalf("got 0x%x %x entry 0x%x", im.Addr, im.Data, im.Entry)
	}
	if _, err := FromELF(bytes.NewReader([]byte("not an elf")), 0xff); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestLoad(t *testing.T) {
	dir, err := ioutil.TempDir("", "uartboot-image")
	if err != nil {
		t.Fatalf("%s", err)
	}
	defer os.RemoveAll(dir)
	code := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	files := map[string][]byte{
		"fw.hex": []byte(":040400004F484149D7\n:00000001FF\n"),
		"fw.elf": testELF(t, code),
		"fw.bin": code,
	}
	for name, data := range files {
		if err := ioutil.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatalf("%s", err)
		}
	}
	for i, c := range []struct {
		name string
		addr uint32
		data []byte
	}{
		{"fw.hex", 0x400, []byte("OHAI")},
		{"fw.elf", 0x400, code},
		{"fw.bin", 0x800, code},
	} {
		im, err := Load(filepath.Join(dir, c.name), 0x800, 0xff)
		if err != nil {
			t.Fatalf("%d: %s", i, err)
		}
		if im.Addr != c.addr || !bytes.Equal(im.Data, c.data) {
			t.Fatalf("%d: got 0x%x %x", i, im.Addr, im.Data)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.hex"), 0, 0xff); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestCheck(t *testing.T) {
	p := config.Default()
	for i, c := range []struct {
		addr     uint32
		size     int
		strict   bool
		fail     bool
		wantAddr uint32
		wantSize int
	}{
		{addr: 0x400, size: 100, wantAddr: 0x400, wantSize: 100},
		{addr: 0x400, size: 0x3c00, wantAddr: 0x400, wantSize: 0x3c00},
		{addr: 0, size: 0x500, strict: true, fail: true},
		{addr: 0, size: 0x500, wantAddr: 0x400, wantSize: 0x100},
		{addr: 0x3f00, size: 0x200, strict: true, fail: true},
		{addr: 0x3f00, size: 0x200, wantAddr: 0x3f00, wantSize: 0x100},
		{addr: 0, size: 0x100, fail: true},
		{addr: 0x4000, size: 0x100, fail: true},
	} {
		im := &Image{Addr: c.addr, Data: make([]byte, c.size)}
		for j := range im.Data {
			im.Data[j] = byte(uint32(j) + c.addr)
		}
		res, err := im.Check(p, c.strict)
		if c.fail {
			if err == nil {
				t.Fatalf("%d: expected an error", i)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%d: %s", i, err)
		}
		if res.Addr != c.wantAddr || len(res.Data) != c.wantSize {
			t.Fatalf("%d: got 0x%x+%d, want 0x%x+%d", i, res.Addr, len(res.Data), c.wantAddr, c.wantSize)
		}
		if res.Data[0] != byte(c.wantAddr) {
			t.Fatalf("%d: clipped at the wrong offset", i)
		}
	}
}

func TestFrames(t *testing.T) {
	im := &Image{Addr: 0x440, Data: bytes.Repeat([]byte{0xaa}, 70)}
	frames := im.Frames(64, 256, 0xff)
	// 0x400..0x4c0: the first block is re-sent from its start.
	if len(frames) != 3 {
		t.Fatalf("got %d frames", len(frames))
	}
	for i, f := range frames {
		if f.Addr != 0x400+uint32(i)*64 || len(f.Data) != 64 {
			t.Fatalf("%d: frame 0x%x+%d", i, f.Addr, len(f.Data))
		}
	}
	if !bytes.Equal(frames[0].Data, bytes.Repeat([]byte{0xff}, 64)) {
		t.Fatalf("leading padding %x", frames[0].Data)
	}
	if !bytes.Equal(frames[1].Data, bytes.Repeat([]byte{0xaa}, 64)) {
		t.Fatalf("frame 1 %x", frames[1].Data)
	}
	if frames[2].Data[5] != 0xaa || frames[2].Data[6] != 0xff || frames[2].Data[63] != 0xff {
		t.Fatalf("trailing padding %x", frames[2].Data)
	}
	if n := len((&Image{Addr: 0x400, Data: make([]byte, 256)}).Frames(64, 256, 0)); n != 4 {
		t.Fatalf("aligned image: %d frames", n)
	}
}
