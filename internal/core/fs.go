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

import (
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// rootSerial is the root inode's fixed, never-reused serial number.
const rootSerial = 1

// Filesystem is the process-wide filesystem state: the superblock, the
// inode tree (addressed by a serial-keyed arena so that handles can be
// revalidated instead of dereferencing freed memory — see §9 Design
// Notes), and the clock used to stamp timestamps.
//
// A single coarse mutex covers every operation end to end (resolve,
// allocate, splice/destroy, timestamp update), per spec §5: this is the
// teacher's syncutil.InvariantMutex, generalized from per-inode locks to
// one filesystem-wide lock.
type Filesystem struct {
	clock timeutil.Clock

	// When acquiring this lock, no other lock in this package is held.
	mu syncutil.InvariantMutex // GUARDED_BY: sb, root, nodes, nextSerial

	sb   *superblock
	root *inode

	nodes      map[uint64]*inode
	nextSerial uint64
}

// New constructs a Filesystem with an empty root directory and a
// totalBlocks-block volume. The root's ownership is set by Init, matching
// the mounting process's credentials.
func New(clock timeutil.Clock, totalBlocks uint64) *Filesystem {
	fs := &Filesystem{
		clock: clock,
		sb:    newSuperblock(totalBlocks),
	}

	now := clock.Now()
	fs.root = &inode{
		name: RootName,
		stat: Stat{
			Ino:   rootSerial,
			Mode:  ModeDir | 0755,
			Nlink: 1,
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
	}

	fs.nodes = map[uint64]*inode{rootSerial: fs.root}
	fs.nextSerial = rootSerial + 1

	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs
}

// checkInvariants re-derives the testable properties of spec §8 from
// scratch and panics if any are violated. Run by the InvariantMutex after
// every unlock when invariant checking is enabled (tests only).
func (fs *Filesystem) checkInvariants() {
	if fs.root.parent != nil {
		panic("core: root has a parent")
	}
	if !fs.root.isDir() {
		panic("core: root is not a directory")
	}

	var liveBlocks uint64
	var liveCount int
	var walk func(*inode)
	walk = func(dir *inode) {
		var prev *inode
		for c := dir.firstChild; c != nil; c = c.right {
			liveCount++
			liveBlocks += c.stat.Blocks
			if prev != nil && !(prev.name < c.name) {
				panic("core: sibling ordering violated at " + prev.name + " >= " + c.name)
			}
			if c.left != prev {
				panic("core: back-pointer mismatch for " + c.name)
			}
			if c.parent != dir {
				panic("core: parent mismatch for " + c.name)
			}
			if c.isDir() {
				walk(c)
			} else if c.firstChild != nil || c.lastChild != nil {
				panic("core: non-directory has children: " + c.name)
			}
			prev = c
		}
		if dir.lastChild != prev {
			panic("core: lastChild mismatch for " + dir.name)
		}
	}
	walk(fs.root)

	if uint64(liveCount+1) != fs.sb.totalInodesUse {
		panic("core: totalInodesUse does not match live inode count")
	}
	if uint64(len(fs.nodes)) != fs.sb.totalInodesUse {
		panic("core: arena size does not match totalInodesUse")
	}

	inodeTableBlocks := (fs.sb.totalInodesUse + inodesPerBlock - 1) / inodesPerBlock
	if fs.sb.freeBlocks+liveBlocks+inodeTableBlocks != fs.sb.totalBlocks {
		panic("core: quota coherence violated")
	}
}

// createNode allocates a new inode (not yet inserted into the tree),
// reserving one inode slot from the superblock. On failure, nothing is
// mutated.
//
// EXCLUSIVE_LOCKS_REQUIRED(fs.mu)
func (fs *Filesystem) createNode(name string, mode FileMode, caller Caller) (*inode, error) {
	if err := fs.sb.reserveInodeSlot(); err != nil {
		return nil, err
	}

	now := fs.clock.Now()
	serial := fs.nextSerial
	fs.nextSerial++

	n := &inode{
		name: name,
		stat: Stat{
			Ino:   serial,
			Mode:  mode,
			Nlink: 1,
			Uid:   caller.UID,
			Gid:   caller.GID,
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
	}

	fs.nodes[serial] = n
	return n, nil
}

// abandonNode undoes createNode for a node that was never inserted into
// the tree, restoring the superblock. Used to unwind a partial effect
// (e.g. mknod's allocator failing after the inode itself was created).
//
// EXCLUSIVE_LOCKS_REQUIRED(fs.mu)
func (fs *Filesystem) abandonNode(n *inode) {
	delete(fs.nodes, n.stat.Ino)
	fs.sb.releaseInodeSlot()
}

// destroy recursively destroys node (post-order, via an explicit stack so
// destroy depth is not bounded by the native call stack), releasing data
// buffers and inode slots as it goes. node must already be extracted from
// its parent's sibling list.
//
// EXCLUSIVE_LOCKS_REQUIRED(fs.mu)
func (fs *Filesystem) destroy(node *inode) {
	// Iterative post-order: push node, then walk down firstChild chains;
	// pop and destroy children before their parent.
	type frame struct {
		n       *inode
		visited bool
	}
	stack := []frame{{n: node}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if !top.visited {
			top.visited = true
			for c := top.n.firstChild; c != nil; c = c.right {
				stack = append(stack, frame{n: c})
			}
			continue
		}

		stack = stack[:len(stack)-1]
		n := top.n

		if !n.isDir() {
			fs.sb.dealloc(n)
		}
		n.firstChild = nil
		n.lastChild = nil
		delete(fs.nodes, n.stat.Ino)
		fs.sb.releaseInodeSlot()
	}
}

// lookupSerial resolves a live inode by its serial number, used by the
// bridge adapter to revalidate a previously issued handle. Returns false
// if the inode has since been destroyed.
func (fs *Filesystem) lookupSerial(serial uint64) (*inode, bool) {
	n, ok := fs.nodes[serial]
	return n, ok
}
