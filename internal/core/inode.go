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

// MaxNameLen is the longest name (in bytes) a single path component may
// have. The resolver itself does not enforce this; MkDir, MkNod and Rename
// reject an oversized final component with ENAMETOOLONG before resolving.
const MaxNameLen = 255

// RootName is the root inode's internal name. It is never shown to a
// caller; path resolution never compares against it.
const RootName = "ROOT"

// inode is an in-memory file or directory object: POSIX stat attributes,
// a name, tree pointers, and (for regular files) an owned data buffer.
//
// All fields are guarded by the owning Filesystem's single global mutex;
// unlike the teacher's per-inode syncutil.InvariantMutex, there is no lock
// here (see SPEC_FULL.md §5 / DESIGN.md: the spec mandates one coarse
// mutex covering resolve+mutate for an entire operation, not independent
// per-node locks).
type inode struct {
	stat Stat
	name string

	parent *inode
	left   *inode
	right  *inode

	firstChild *inode
	lastChild  *inode

	// data is the owned byte buffer for a regular file. len(data) ==
	// stat.Blocks * blockSize; stat.Size <= len(data). Directories never
	// have a data buffer.
	data []byte
}

func (n *inode) isDir() bool { return n.stat.IsDir() }

// detached reports whether n is currently unreachable from any parent's
// child list (used by Extract's idempotence contract).
func (n *inode) detached() bool {
	return n.parent == nil && n.left == nil && n.right == nil
}
