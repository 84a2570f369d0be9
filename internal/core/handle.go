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

package core

import "syscall"

// Handle is an opaque reference to an open file or directory, returned by
// Open/OpenDir and consumed by Read/Write/ReadDir. It is a serial number
// rather than a raw pointer (§9 Design Notes: "a safe redesign stores
// every inode in an arena keyed by a u64 handle"), so a handle whose
// inode has since been unlinked and destroyed is detected at the next
// use rather than dereferencing freed memory.
type Handle struct {
	serial uint64
}

// HandleFromSerial builds a Handle from a raw inode serial number. It
// exists for the bridge adapter, which receives the serial back from the
// kernel as a fuse.InodeID/HandleID (the two are numerically identical in
// this filesystem, see internal/bridge) and needs to hand it back to
// Read/Write/ReadDir without the core exposing its field.
func HandleFromSerial(serial uint64) Handle {
	return Handle{serial: serial}
}

// resolve re-validates a handle against the live arena, returning
// syscall.EIO if the referenced inode has been destroyed since the
// handle was issued.
func (fs *Filesystem) resolve(h Handle) (*inode, error) {
	n, ok := fs.nodes[h.serial]
	if !ok {
		return nil, syscall.EIO
	}
	return n, nil
}

// Dirent is one entry emitted by ReadDir: "." and ".." followed by each
// child in sibling (name) order.
type Dirent struct {
	Name  string
	Ino   uint64
	IsDir bool
}
