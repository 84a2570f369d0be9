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

// blockCount returns the number of whole blocks needed to hold size
// bytes.
func blockCount(size uint64) uint64 {
	return (size + BlockSize - 1) / BlockSize
}

// realloc grows or shrinks node's data buffer to newSize bytes, debiting
// or crediting the superblock accordingly. Newly exposed bytes (on grow)
// read as zero. On failure the superblock and node are left unchanged.
//
// EXCLUSIVE_LOCKS_REQUIRED(fs.mu)
func (sb *superblock) realloc(node *inode, newSize uint64) error {
	newBlocks := blockCount(newSize)
	hypotheticalFree := sb.freeBlocks + node.stat.Blocks

	if hypotheticalFree < newBlocks {
		return errNoFreeSpace
	}

	oldSize := node.stat.Size

	switch {
	case newSize == 0:
		node.data = nil
	case uint64(len(node.data)) < newBlocks*BlockSize:
		buf := make([]byte, newBlocks*BlockSize)
		copy(buf, node.data)
		node.data = buf
	case uint64(len(node.data)) > newBlocks*BlockSize:
		node.data = node.data[:newBlocks*BlockSize]
	}

	// A shrink that keeps the block count leaves old bytes past the new
	// size in the buffer; clear them when a later grow exposes them again.
	if newSize > oldSize {
		clear(node.data[oldSize:newSize])
	}

	sb.freeBlocks = hypotheticalFree - newBlocks
	node.stat.Size = newSize
	node.stat.Blocks = newBlocks
	return nil
}

// dealloc frees node's data buffer entirely, crediting its blocks back to
// the superblock.
//
// EXCLUSIVE_LOCKS_REQUIRED(fs.mu)
func (sb *superblock) dealloc(node *inode) {
	sb.creditBlocks(node.stat.Blocks)
	node.data = nil
	node.stat.Size = 0
	node.stat.Blocks = 0
}
