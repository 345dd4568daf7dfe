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
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/uartboot/common/pflagenv"
	"github.com/mongoose-os/uartboot/version"
)

const (
	envPrefix = "UARTBOOT_"
)

var (
	versionFlag = flag.Bool("version", false, "Print version and exit")
	helpFull    = flag.Bool("helpfull", false, "Show full help, including advanced flags")
)

var (
	commands = []command{
		{"flash", flash, `Write a firmware image (.hex, .elf or raw binary) to the device`, []string{"port"}, []string{"profile", "baud-rate", "bl-init", "addr", "fill", "strict", "no-reboot", "attempts", "timeout"}},
		{"enter", enter, `Send the --bl-init sequence and wait for the bootloader`, []string{"port", "bl-init"}, []string{"profile", "baud-rate", "timeout"}},
		{"reboot", reboot, `Make the bootloader leave update mode and start the application`, []string{"port"}, []string{"profile", "baud-rate"}},
		{"convert", convert, `Convert an image to Intel HEX, clipped to the application area`, nil, []string{"output", "profile", "addr", "strict", "fill"}},
		{"profile", showProfile, `Print the device profile as YAML`, []string{}, []string{"profile", "framing", "output"}},
	}
)

type command struct {
	name     string
	handler  handler
	short    string
	required []string
	optional []string
}

type handler func(ctx context.Context) error

func run(ctx context.Context) error {
	for _, c := range commands {
		if c.name == flag.Arg(0) {
			if err := checkFlags(c.required); err != nil {
				return errors.Trace(err)
			}
			if err := c.handler(ctx); err != nil {
				return errors.Trace(err)
			}
			return nil
		}
	}
	usage()
	return nil
}

func main() {
	initFlags()
	flag.Parse()
	applied, err := pflagenv.Parse(envPrefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if *helpFull {
		unhideFlags()
		usage()
		return
	} else if *versionFlag {
		fmt.Printf("%s\nVersion: %s\nBuild ID: %s\n", "UART bootloader tool", version.Version, version.BuildId)
		return
	}
	setVerbose()
	glog.Infof("%s", version.Banner("uartboot"))
	if len(applied) > 0 {
		glog.Infof("flags from environment: %v", applied)
	}

	if err := run(context.Background()); err != nil {
		glog.Infof("Error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
