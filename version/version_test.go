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
package version

import (
	"strings"
	"testing"
)

func TestBuildIdParsing(t *testing.T) {
	cases := []struct {
		s       string
		version bool
		distr   bool
	}{
		{s: "1.2", version: true},
		{s: "1.2.3", version: true},
		{s: "latest"},
		{s: "1.2+abcdef0~bionic0", distr: true},
		{s: "latest+dev"},
	}
	for i, c := range cases {
		if got := LooksLikeVersionNumber(c.s); got != c.version {
			t.Errorf("%d: %q: LooksLikeVersionNumber = %t, want %t", i, c.s, got, c.version)
		}
		if got := LooksLikeDistrBuildId(c.s); got != c.distr {
			t.Errorf("%d: %q: LooksLikeDistrBuildId = %t, want %t", i, c.s, got, c.distr)
		}
	}
}

func TestBanner(t *testing.T) {
	defer func(v, b string) { Version, BuildId = v, b }(Version, BuildId)
	Version, BuildId = "1.3", "1.3+abcdef0~bionic0"
	if b := Banner("uartboot"); !strings.HasPrefix(b, "uartboot 1.3 (1.3+abcdef0~bionic0, distro build; ") {
		t.Fatalf("got %q", b)
	}
	Version, BuildId = "latest", "latest+dev"
	if b := Banner("bootsim"); !strings.HasPrefix(b, "bootsim latest (latest+dev; ") {
		t.Fatalf("got %q", b)
	}
}
