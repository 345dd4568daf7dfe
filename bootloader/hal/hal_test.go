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
package hal

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
)

func TestWaitUntil(t *testing.T) {
	polls := 0
	err := WaitUntil(context.Background(), func() bool {
		polls++
		return polls == 3
	}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if polls != 3 {
		t.Fatalf("got %d polls, want 3", polls)
	}
}

func TestWaitUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := WaitUntil(ctx, func() bool { return false }, time.Millisecond)
	if errors.Cause(err) != context.DeadlineExceeded {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}
