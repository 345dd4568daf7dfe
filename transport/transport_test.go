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
	"net"
	"testing"
	"time"

	"github.com/juju/errors"
)

func TestStream(t *testing.T) {
	dev, host := net.Pipe()
	s := NewStream("test", dev)
	if s.ByteAvailable() {
		t.Fatalf("byte available on an idle stream")
	}
	if _, err := s.ReadByte(); errors.Cause(err) != ErrNoData {
		t.Fatalf("got %v, want ErrNoData", err)
	}
	go host.Write([]byte{1, 2, 3})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, want := range []byte{1, 2, 3} {
		b, err := s.ReadByteContext(ctx)
		if err != nil || b != want {
			t.Fatalf("got %d %v, want %d", b, err, want)
		}
	}

	got := make(chan []byte)
	go func() {
		buf := make([]byte, 2)
		io.ReadFull(host, buf)
		got <- buf
	}()
	if err := s.WriteByte(0x55); err != nil {
		t.Fatalf("WriteByte: %s", err)
	}
	if err := s.WriteAll([]byte{0x66}); err != nil {
		t.Fatalf("WriteAll: %s", err)
	}
	if b := <-got; b[0] != 0x55 || b[1] != 0x66 {
		t.Fatalf("host got %x", b)
	}

	short, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	if _, err := s.ReadByteContext(short); errors.Cause(err) != context.DeadlineExceeded {
		t.Fatalf("got %v, want deadline exceeded", err)
	}

	host.Close()
	if _, err := s.ReadByteContext(ctx); errors.Cause(err) != io.EOF {
		t.Fatalf("got %v, want EOF", err)
	}
	if !s.ByteAvailable() {
		t.Fatalf("failed stream must report a byte so the error surfaces")
	}
}

func TestDiscard(t *testing.T) {
	dev, host := net.Pipe()
	defer host.Close()
	s := NewStream("test", dev)
	go host.Write([]byte{9, 9})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.ReadByteContext(ctx); err != nil {
		t.Fatalf("%s", err)
	}
	for !s.ByteAvailable() {
		time.Sleep(time.Millisecond)
	}
	if d := s.Discard(); len(d) != 1 {
		t.Fatalf("discarded %x", d)
	}
	if s.ByteAvailable() {
		t.Fatalf("byte available after discard")
	}
}

func TestSocketOpenListen(t *testing.T) {
	for i, c := range []struct {
		addr   string
		socket bool
	}{
		{"/dev/ttyUSB0", false},
		{"COM3", false},
		{"tcp:localhost:1234", true},
		{"unix:/tmp/sock", true},
	} {
		if IsSocket(c.addr) != c.socket {
			t.Fatalf("%d: %s: got %t", i, c.addr, !c.socket)
		}
	}
	if _, err := Listen("/dev/ttyUSB0"); err == nil {
		t.Fatalf("expected an error listening on a serial port name")
	}
	l, err := Listen("tcp:127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %s", err)
	}
	defer l.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Open(ctx, "tcp:"+l.Addr().String(), SerialOptions{})
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	defer c.Close()
	sc := <-accepted
	defer sc.Close()
	go c.Write([]byte{0xa0})
	b := make([]byte, 1)
	if _, err := io.ReadFull(sc, b); err != nil || b[0] != 0xa0 {
		t.Fatalf("got %x %v", b, err)
	}
}
