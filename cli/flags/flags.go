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
package flags

import (
	"strconv"
	"time"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/uartboot/common/ourutil"
)

var (
	Port = flag.String("port", "", "Serial port where the device is connected. "+
		"tcp:host:port or unix:/path connect to a simulated device.")
	BaudRate = flag.Uint("baud-rate", 0, "Serial port speed. 0 means the profile's baud rate.")
	Profile  = flag.String("profile", "", "Device profile: a built-in name or a YAML file. Default: samd10d14.")
	Framing  = flag.String("framing", "", "Override the profile's framing: full or legacy.")

	Addr     = flag.String("addr", "", "Load address of raw binary images. Default: the application start.")
	Fill     = flag.String("fill", "0xff", "Value of the bytes that pad the image to whole frames")
	BLInit   = flag.String("bl-init", "", "Hex sequence the application recognizes as 'reboot to bootloader'.")
	Strict   = flag.BoolP("strict", "s", false, "Fail if the image has data outside of the application area instead of dropping it.")
	NoReboot = flag.Bool("no-reboot", false, "Stay in the bootloader after flashing.")
	Attempts = flag.Int("attempts", 3, "Attempts per erase block")
	Timeout  = flag.Duration("timeout", 3*time.Second, "Time to wait for each reply from the device")

	Output = flag.StringP("output", "o", "", "Output file")

	InvertedControlLines = flag.Bool("inverted-control-lines", false, "DTR and RTS control lines use inverted polarity")
	SetControlLines      = flag.Bool("set-control-lines", false, "Set RTS and DTR explicitly after opening the port")

	Verbose = flag.Bool("verbose", false, "Verbose output: log wire traffic to stderr")
)

// ParseUint32 accepts decimal and 0x-prefixed hex.
func ParseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}

func FillByte() (byte, error) {
	v, err := strconv.ParseUint(*Fill, 0, 8)
	if err != nil {
		return 0, errors.Errorf("invalid --fill %q", *Fill)
	}
	return byte(v), nil
}

// BLInitSeq decodes --bl-init. Spaces, colons and a 0x prefix are allowed.
func BLInitSeq() ([]byte, error) {
	seq, err := ourutil.ParseHexSeq(*BLInit)
	return seq, errors.Annotatef(err, "--bl-init")
}
