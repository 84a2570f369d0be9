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

// Package core implements the in-memory filesystem semantic engine: the
// directory tree, its inodes, the path resolver, quota accounting, and the
// operation dispatcher. It has no dependency on any particular kernel
// bridge; see internal/bridge for the adapter that drives it from FUSE
// callbacks.
package core

import (
	"os"
	"time"
)

// Mode bits, mirroring os.FileMode's high bits plus the low nine
// permission bits. We keep our own alias so the core has no dependency on
// the bridge's attribute types.
type FileMode = os.FileMode

const (
	ModeDir = os.ModeDir
)

// Stat is the bit-exact POSIX struct stat subset this filesystem tracks.
// Fields not meaningful for an in-memory volume (Dev for non-special
// files, Rdev) are carried for completeness but never interpreted.
type Stat struct {
	Ino       uint64
	Mode      FileMode
	Nlink     uint32
	Uid       uint32
	Gid       uint32
	Dev       uint32
	Rdev      uint32
	Size      uint64
	Blocks    uint64
	Atime     time.Time
	Mtime     time.Time
	Ctime     time.Time
}

// IsDir reports whether the stat block describes a directory.
func (s *Stat) IsDir() bool { return s.Mode&os.ModeDir != 0 }

// Perm returns the low nine permission bits.
func (s *Stat) Perm() FileMode { return s.Mode.Perm() }
