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
package transport

import (
	"context"
	"io"
	"sync"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/uartboot/common/ourutil"
)

// ErrNoData is returned by ReadByte when nothing has been received.
var ErrNoData = errors.New("no data available")

// Stream turns an io.ReadWriter into a byte-at-a-time line. A goroutine keeps
// reading into a buffer, so Stream satisfies hal.Transport (polled) as well
// as the blocking reads the host side needs.
type Stream struct {
	rw   io.ReadWriter
	name string

	mu     sync.Mutex
	buf    []byte
	err    error
	notify chan struct{}

	writeLock sync.Mutex
}

// NewStream starts the reader goroutine. It exits when rw returns an error.
func NewStream(name string, rw io.ReadWriter) *Stream {
	s := &Stream{rw: rw, name: name, notify: make(chan struct{}, 1)}
	go s.readLoop()
	return s
}

func (s *Stream) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := s.rw.Read(buf)
		if n > 0 {
			glog.V(4).Infof("%s <- %s", s.name, ourutil.LimitStr(buf[:n], 32))
		}
		s.mu.Lock()
		s.buf = append(s.buf, buf[:n]...)
		if err != nil {
			s.err = err
		}
		s.mu.Unlock()
		if n > 0 || err != nil {
			select {
			case s.notify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			glog.V(1).Infof("%s: reader exiting: %s", s.name, err)
			return
		}
	}
}

// ByteAvailable also reports true once the stream has failed, so that the
// failure surfaces from ReadByte.
func (s *Stream) ByteAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf) > 0 || s.err != nil
}

// ReadByte returns the next buffered byte without blocking.
func (s *Stream) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		if s.err != nil {
			return 0, errors.Trace(s.err)
		}
		return 0, errors.Trace(ErrNoData)
	}
	b := s.buf[0]
	s.buf = s.buf[1:]
	return b, nil
}

// ReadByteContext blocks until a byte arrives, the stream fails or ctx is done.
func (s *Stream) ReadByteContext(ctx context.Context) (byte, error) {
	for {
		b, err := s.ReadByte()
		if errors.Cause(err) != ErrNoData {
			return b, err
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return 0, errors.Trace(ctx.Err())
		}
	}
}

func (s *Stream) WriteByte(b byte) error {
	return s.WriteAll([]byte{b})
}

func (s *Stream) WriteAll(data []byte) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	glog.V(4).Infof("%s -> %s", s.name, ourutil.LimitStr(data, 32))
	for len(data) > 0 {
		n, err := s.rw.Write(data)
		if err != nil {
			return errors.Annotatef(err, "%s: write failed", s.name)
		}
		data = data[n:]
	}
	return nil
}

// Discard drops everything received so far and returns it.
func (s *Stream) Discard() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buf
	s.buf = nil
	return b
}
