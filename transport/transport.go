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
// Package transport opens the byte streams the uploader and the device
// simulator talk over: serial ports and, for the simulator, sockets.
package transport

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cesanta/go-serial/serial"
	"github.com/golang/glog"
	"github.com/juju/errors"
)

const interCharacterTimeout = 200 * time.Millisecond

type SerialOptions struct {
	BaudRate uint
	// SetControlLines drives DTR and RTS after opening, InvertedControlLines
	// drives them low.
	SetControlLines      bool
	InvertedControlLines bool
}

// Serial is an open serial port.
type Serial struct {
	portName    string
	conn        serial.Serial
	lastEOFTime time.Time

	// Read and Write take closeLock for reading, Close takes it for writing:
	// the port does not survive Close racing with I/O.
	closeLock sync.RWMutex
	isClosed  bool
}

func OpenSerial(portName string, opts SerialOptions) (*Serial, error) {
	glog.Infof("Opening %s @ %d...", portName, opts.BaudRate)
	oo := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              opts.BaudRate,
		DataBits:              8,
		ParityMode:            serial.PARITY_NONE,
		StopBits:              1,
		InterCharacterTimeout: uint(interCharacterTimeout / time.Millisecond),
		MinimumReadSize:       0,
	}
	s, err := serial.Open(oo)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open %s", portName)
	}
	if opts.SetControlLines || opts.InvertedControlLines {
		v := opts.InvertedControlLines
		s.SetDTR(v)
		s.SetRTS(v)
	}
	s.Flush()
	return &Serial{portName: portName, conn: s}, nil
}

func (s *Serial) Read(buf []byte) (int, error) {
	s.closeLock.RLock()
	defer s.closeLock.RUnlock()
	if s.isClosed {
		return 0, io.EOF
	}
	n, err := s.conn.Read(buf)
	// The port reports io.EOF every interCharacterTimeout of silence. Two of
	// them in quick succession mean the port is really gone.
	if errors.Cause(err) == io.EOF {
		now := time.Now()
		if !s.lastEOFTime.Add(interCharacterTimeout / 2).After(now) {
			err = nil
		}
		s.lastEOFTime = now
	}
	return n, errors.Trace(err)
}

func (s *Serial) Write(buf []byte) (int, error) {
	s.closeLock.RLock()
	defer s.closeLock.RUnlock()
	if s.isClosed {
		return 0, errors.Errorf("%s is closed", s.portName)
	}
	n, err := s.conn.Write(buf)
	return n, errors.Trace(err)
}

func (s *Serial) Close() error {
	s.closeLock.Lock()
	defer s.closeLock.Unlock()
	if s.isClosed {
		return nil
	}
	glog.Infof("closing %s", s.portName)
	s.isClosed = true
	return errors.Trace(s.conn.Close())
}

func (s *Serial) String() string {
	return s.portName
}

// IsSocket reports whether addr names a socket rather than a serial port.
func IsSocket(addr string) bool {
	return strings.HasPrefix(addr, "tcp:") || strings.HasPrefix(addr, "unix:")
}

func splitAddr(addr string) (network, address string) {
	parts := strings.SplitN(addr, ":", 2)
	return parts[0], parts[1]
}

// Open connects to a device: "tcp:host:port" and "unix:/path" dial a socket,
// anything else is a serial port name.
func Open(ctx context.Context, addr string, opts SerialOptions) (io.ReadWriteCloser, error) {
	if !IsSocket(addr) {
		s, err := OpenSerial(addr, opts)
		return s, errors.Trace(err)
	}
	network, address := splitAddr(addr)
	var d net.Dialer
	c, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to connect to %s", addr)
	}
	glog.Infof("connected to %s", addr)
	return c, nil
}

// Listen is the server side of Open for sockets.
func Listen(addr string) (net.Listener, error) {
	if !IsSocket(addr) {
		return nil, errors.Errorf("%q is not a tcp: or unix: address", addr)
	}
	network, address := splitAddr(addr)
	l, err := net.Listen(network, address)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to listen on %s", addr)
	}
	return l, nil
}
