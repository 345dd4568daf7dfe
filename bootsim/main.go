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
	goflag "flag"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/uartboot/common/ourutil"
	"github.com/mongoose-os/uartboot/common/pflagenv"
	"github.com/mongoose-os/uartboot/config"
	"github.com/mongoose-os/uartboot/transport"
	"github.com/mongoose-os/uartboot/version"
)

const (
	envPrefix = "BOOTSIM_"
)

var (
	port         = flag.String("port", "", "Serial port to serve the bootloader on")
	listen       = flag.String("listen", "", "Serve connections on tcp:host:port or unix:/path")
	baudRate     = flag.Uint("baud-rate", 0, "Serial port speed. 0 means the profile's baud rate.")
	flashPath    = flag.String("flash-file", "", "File that keeps the flash contents between runs")
	profile      = flag.String("profile", "", "Device profile: a built-in name or a YAML file")
	appTrigger   = flag.String("app-trigger", "", "Hex sequence that makes the simulated application reboot into the bootloader")
	coldBoot     = flag.Bool("cold-boot", false, "Start with random retained RAM, as after power-on")
	httpAddr     = flag.String("http", "", "Address of the status endpoint, e.g. 127.0.0.1:8080")
	pollInterval = flag.Duration("poll-interval", time.Millisecond, "How often the simulated CPU polls peripherals")
	versionFlag  = flag.Bool("version", false, "Print version and exit")
)

func run(ctx context.Context) error {
	if (*port == "") == (*listen == "") {
		return errors.Errorf("exactly one of --port and --listen is required")
	}
	p, err := config.Get(*profile)
	if err != nil {
		return errors.Trace(err)
	}
	trigger, err := ourutil.ParseHexSeq(*appTrigger)
	if err != nil {
		return errors.Annotatef(err, "--app-trigger")
	}
	d, err := newDevice(p, trigger, *pollInterval)
	if err != nil {
		return errors.Trace(err)
	}
	if *flashPath != "" {
		ff, err := openFlashFile(*flashPath, d.chip.Flash)
		if err != nil {
			return errors.Trace(err)
		}
		d.flash = ff
		defer ff.Close(d.chip.Flash)
	}
	if *coldBoot {
		d.chip.PowerOn(rand.New(rand.NewSource(time.Now().UnixNano())))
	} else {
		d.chip.PowerOn(nil)
	}
	glog.Infof("profile %s", p)

	if *httpAddr != "" {
		hs := &http.Server{Addr: *httpAddr, Handler: createHandler(d)}
		go func() {
			glog.Errorf("status endpoint: %s", hs.ListenAndServe())
		}()
		defer hs.Close()
		ourutil.Reportf("Status endpoint: http://%s/status", *httpAddr)
	}

	if *port != "" {
		baud := *baudRate
		if baud == 0 {
			baud = p.BaudRate
		}
		s, err := transport.OpenSerial(*port, transport.SerialOptions{BaudRate: baud})
		if err != nil {
			return errors.Trace(err)
		}
		defer s.Close()
		ourutil.Reportf("Serving %s", *port)
		err = d.serve(ctx, *port, transport.NewStream(*port, s))
		if errors.Cause(err) == context.Canceled {
			return nil
		}
		return errors.Trace(err)
	}
	l, err := transport.Listen(*listen)
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Listening on %s", *listen)
	return errors.Trace(serveListener(ctx, d, l))
}

// serveListener hands connections to the device one at a time, like a single
// UART would.
func serveListener(ctx context.Context, d *device, l net.Listener) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Trace(err)
		}
		name := conn.RemoteAddr().String()
		glog.Infof("%s connected", name)
		err = d.serve(ctx, name, transport.NewStream(name, conn))
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		glog.Infof("%s disconnected: %s", name, err)
	}
}

func main() {
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	flag.Parse()
	if _, err := pflagenv.Parse(envPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if *versionFlag {
		fmt.Printf("%s\nVersion: %s\nBuild ID: %s\n", "UART bootloader simulator", version.Version, version.BuildId)
		return
	}
	glog.Infof("%s", version.Banner("bootsim"))

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		glog.Infof("interrupted, shutting down")
		cancel()
	}()

	if err := run(ctx); err != nil {
		glog.Infof("Error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
