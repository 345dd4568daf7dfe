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
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// Reportf prints a progress line for the user and mirrors it to the log.
func Reportf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	glog.Infof(f, args...)
}

// LimitStr renders at most n bytes of b as hex, for wire traces.
func LimitStr(b []byte, n int) string {
	if len(b) <= n {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%s...", hex.EncodeToString(b[:n]))
}

// ParseHexSeq parses a byte sequence written as hex, optionally prefixed with
// 0x and separated by spaces or colons: "a2", "0xdeadbeef", "de:ad:be:ef".
func ParseHexSeq(s string) ([]byte, error) {
	h := strings.TrimPrefix(strings.ToLower(s), "0x")
	h = strings.NewReplacer(" ", "", ":", "").Replace(h)
	seq, err := hex.DecodeString(h)
	if err != nil {
		return nil, errors.Errorf("invalid hex sequence %q", s)
	}
	return seq, nil
}

// Returns a map from regexp capture group name to the corresponding matched
// string.
// A return value of nil indicates no match.
func FindNamedSubmatches(r *regexp.Regexp, s string) map[string]string {
	matches := r.FindStringSubmatch(s)
	if matches == nil {
		return nil
	}

	result := make(map[string]string)
	for i, name := range r.SubexpNames()[1:] {
		result[name] = matches[i+1]
	}
	return result
}
