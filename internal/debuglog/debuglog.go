// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package debuglog provides a flag-gated logger for the mount command and
// the dispatcher, adapted from the bridge library's own debug.go: a
// log.Logger over io.Discard unless explicitly enabled, set up once.
package debuglog

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	logger  *log.Logger
	enabled bool
)

// Enable turns on debug logging to stderr. Must be called, if at all,
// before the first call to Get.
func Enable() {
	mu.Lock()
	defer mu.Unlock()
	enabled = true
}

// Get returns the process-wide debug logger, creating it on first use.
func Get() *log.Logger {
	mu.Lock()
	defer mu.Unlock()

	if logger != nil {
		return logger
	}

	var w io.Writer = io.Discard
	if enabled {
		w = os.Stderr
	}

	const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	logger = log.New(w, "memfuse: ", flags)
	return logger
}
