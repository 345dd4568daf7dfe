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
package middleware

import (
	"net/http"
	"time"

	"github.com/golang/glog"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// MakeLogger creates a logger middleware suitable for using in goji
// multiplexer.
func MakeLogger() func(inner http.Handler) http.Handler {
	return func(inner http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path += "?" + r.URL.RawQuery
			}

			clientIP := r.RemoteAddr
			if ips := r.Header["X-Real-Ip"]; len(ips) > 0 {
				clientIP = ips[0]
			}

			sw := &statusWriter{ResponseWriter: w}
			inner.ServeHTTP(sw, r)

			glog.V(1).Infof("%s | %-7s %s | %d %d bytes | %v",
				clientIP, r.Method, path, sw.status, sw.size, time.Since(start),
			)
		})
	}
}
