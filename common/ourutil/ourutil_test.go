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
package ourutil

import (
	"bytes"
	"regexp"
	"testing"
)

func TestLimitStr(t *testing.T) {
	cases := []struct {
		data []byte
		n    int
		want string
	}{
		{data: nil, n: 4, want: ""},
		{data: []byte{0xa0, 0x55}, n: 4, want: "a055"},
		{data: []byte{1, 2, 3, 4, 5}, n: 2, want: "0102..."},
	}
	for i, c := range cases {
		if got := LimitStr(c.data, c.n); got != c.want {
			t.Errorf("%d: got %q, want %q", i, got, c.want)
		}
	}
}

func TestFindNamedSubmatches(t *testing.T) {
	r := regexp.MustCompile(`^(?P<kind>tcp|unix):(?P<addr>.+)$`)
	m := FindNamedSubmatches(r, "tcp:127.0.0.1:2000")
	if m == nil || m["kind"] != "tcp" || m["addr"] != "127.0.0.1:2000" {
		t.Fatalf("unexpected match: %+v", m)
	}
	if m := FindNamedSubmatches(r, "/dev/ttyUSB0"); m != nil {
		t.Fatalf("expected no match, got %+v", m)
	}
}

func TestParseHexSeq(t *testing.T) {
	for i, c := range []struct {
		in   string
		want []byte
		ok   bool
	}{
		{"", []byte{}, true},
		{"0xa2", []byte{0xa2}, true},
		{"DE:AD be ef", []byte{0xde, 0xad, 0xbe, 0xef}, true},
		{"xyz", nil, false},
		{"abc", nil, false},
	} {
		seq, err := ParseHexSeq(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("%d: %q: got %v", i, c.in, err)
		}
		if c.ok && !bytes.Equal(seq, c.want) {
			t.Fatalf("%d: got %x, want %x", i, seq, c.want)
		}
	}
}
