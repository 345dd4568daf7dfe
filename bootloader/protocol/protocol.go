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
// Package protocol holds the wire vocabulary shared by the device and the
// host: single-byte commands and acknowledgements, the frame layout and the
// checksum both sides agree on.
package protocol

import (
	"fmt"
	"hash/crc32"

	"github.com/juju/errors"
)

// Command is a single control byte on the wire.
type Command byte

const (
	CmdSOF   Command = 0xa0
	CmdData  Command = 0xa1 // Reserved, never sent.
	CmdReset Command = 0xa2
	CmdAck   Command = 0x55
	CmdNack  Command = 0x66
	CmdFlash Command = 0x77

	// StatusReady is sent once by the device when the update session starts.
	StatusReady Command = 0x01
)

func (c Command) String() string {
	switch c {
	case CmdSOF:
		return "SOF"
	case CmdData:
		return "DATA"
	case CmdReset:
		return "RESET"
	case CmdAck:
		return "ACK"
	case CmdNack:
		return "NACK"
	case CmdFlash:
		return "FLASH"
	case StatusReady:
		return "READY"
	}
	return fmt.Sprintf("0x%02x", byte(c))
}

const (
	// AddressBytes is the size of the little-endian target address field.
	AddressBytes = 3
	// MaxAddress is the highest address a frame can carry.
	MaxAddress = 1<<(8*AddressBytes) - 1

	// ChecksumSeed is the initial value of the CRC register.
	ChecksumSeed = 0xffffffff
)

// Framing describes the per-frame field sizes.
type Framing struct {
	// DataSize is the payload size of every frame.
	DataSize int
	// ChecksumBytes is 4 for the full CRC-32 or 3 for the legacy 24-bit field.
	ChecksumBytes int
	// DropLastPayloadByte makes the receiver finish the payload one byte early,
	// leaving the last byte of the buffer uncaptured (legacy firmware).
	DropLastPayloadByte bool
}

// DefaultFraming is full 32-bit checksums and full payload capture.
func DefaultFraming(dataSize int) Framing {
	return Framing{DataSize: dataSize, ChecksumBytes: 4}
}

// LegacyFraming reproduces the reference firmware field for field.
func LegacyFraming(dataSize int) Framing {
	return Framing{DataSize: dataSize, ChecksumBytes: 3, DropLastPayloadByte: true}
}

// PayloadBytes is the number of payload bytes exchanged on the wire.
func (f Framing) PayloadBytes() int {
	if f.DropLastPayloadByte {
		return f.DataSize - 1
	}
	return f.DataSize
}

// ChecksumMask keeps the part of a checksum that fits in the wire field.
func (f Framing) ChecksumMask() uint32 {
	if f.ChecksumBytes >= 4 {
		return 0xffffffff
	}
	return 1<<(8*uint(f.ChecksumBytes)) - 1
}

func (f Framing) Validate() error {
	if f.DataSize < 4 || f.DataSize%4 != 0 || f.DataSize > 0xff {
		return errors.Errorf("data size must be a multiple of 4 in [4, 252], got %d", f.DataSize)
	}
	if f.ChecksumBytes != 3 && f.ChecksumBytes != 4 {
		return errors.Errorf("checksum must be 3 or 4 bytes, got %d", f.ChecksumBytes)
	}
	return nil
}

func (f Framing) String() string {
	s := fmt.Sprintf("data %d, crc%d", f.DataSize, 8*f.ChecksumBytes)
	if f.DropLastPayloadByte {
		s += ", drop-last"
	}
	return s
}

// Checksum computes what the device's integrity engine reports for data:
// reflected CRC-32 (IEEE) seeded with ChecksumSeed and without the final
// inversion.
func Checksum(data []byte) uint32 {
	return ^crc32.ChecksumIEEE(data)
}

// PutUintLE encodes the n low bytes of v, least significant first.
func PutUintLE(v uint32, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}

// EncodeFrame returns the bytes the host sends for one frame after SOF has
// been acknowledged: address, payload and checksum, each field separately.
func EncodeFrame(f Framing, addr uint32, payload []byte) (addrField, dataField, crcField []byte, err error) {
	if addr > MaxAddress {
		return nil, nil, nil, errors.Errorf("address 0x%x does not fit in %d bytes", addr, AddressBytes)
	}
	if len(payload) != f.DataSize {
		return nil, nil, nil, errors.Errorf("payload must be %d bytes, got %d", f.DataSize, len(payload))
	}
	crc := Checksum(payload)
	return PutUintLE(addr, AddressBytes), payload[:f.PayloadBytes()], PutUintLE(crc&f.ChecksumMask(), f.ChecksumBytes), nil
}
