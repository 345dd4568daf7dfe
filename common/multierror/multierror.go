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
package multierror

import (
	"fmt"
	"strings"
)

// Error collects the failures of independent checks so that they can be
// reported together.
type Error struct {
	errs []error
}

// Error puts each bundled error on its own line under a count.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d error(s) occurred:", len(e.errs))
	for _, err := range e.errs {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Errors returns the bundled errors in the order they were added.
func (e *Error) Errors() []error {
	return e.errs
}

// Append adds non-nil errs to err. err can be nil, a *Error or any other error.
// If there is nothing to report, nil is returned.
func Append(err error, errs ...error) error {
	var nn []error
	for _, e := range errs {
		if e != nil {
			nn = append(nn, e)
		}
	}
	switch e := err.(type) {
	case nil:
		if len(nn) == 0 {
			return nil
		}
		return &Error{nn}
	case *Error:
		e.errs = append(e.errs, nn...)
		return e
	default:
		return &Error{append([]error{err}, nn...)}
	}
}
