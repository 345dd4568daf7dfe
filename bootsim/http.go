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
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/golang/glog"
	goji "goji.io"
	"goji.io/pat"

	"github.com/mongoose-os/uartboot/bootsim/middleware"
)

func createHandler(d *device) http.Handler {
	rRoot := goji.NewMux()
	rRoot.Use(middleware.MakeLogger())
	rRoot.HandleFunc(pat.Get("/status"), d.handleStatus)
	rRoot.HandleFunc(pat.Get("/flash"), d.handleFlash)
	rRoot.HandleFunc(pat.Get("/flash/:addr/:size"), d.handleFlashRange)
	return rRoot
}

func (d *device) handleStatus(w http.ResponseWriter, r *http.Request) {
	data, err := json.MarshalIndent(d.Status(), "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (d *device) handleFlash(w http.ResponseWriter, r *http.Request) {
	sendFlash(w, d.chip.Flash.Bytes())
}

func (d *device) handleFlashRange(w http.ResponseWriter, r *http.Request) {
	addr, err1 := strconv.ParseUint(pat.Param(r, "addr"), 0, 32)
	size, err2 := strconv.ParseUint(pat.Param(r, "size"), 0, 32)
	if err1 != nil || err2 != nil {
		http.Error(w, "address and size must be numbers", http.StatusBadRequest)
		return
	}
	data, err := d.chip.Flash.Read(uint32(addr), uint32(size))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
		return
	}
	sendFlash(w, data)
}

func sendFlash(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		glog.Errorf("failed to send flash: %s", err)
	}
}
