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

package bridge

import "encoding/binary"

// dirent and appendDirent are a from-scratch version of the fuse_dirent wire
// format the bridge library's own fuseutil.WriteDirent documents: an 8-byte
// aligned ino/off/namelen/type header followed by the name and padding.
// Written locally rather than calling into fuseutil because the entry type
// that helper accepts belongs to a newer generation of the library than the
// plain InodeID/DirOffset types this adapter is built against (see
// DESIGN.md).
type dirent struct {
	ino    uint64
	offset uint64
	name   string
	kind   uint32
}

const (
	direntDirectory uint32 = 4 // Linux DT_DIR
	direntFile      uint32 = 8 // Linux DT_REG
)

const direntHeaderSize = 8 + 8 + 4 + 4
const direntAlignment = 8

// appendDirent writes d into buf in fuse_dirent format, returning the
// number of bytes written, or zero if d does not fit.
func appendDirent(buf []byte, d dirent) int {
	pad := 0
	if len(d.name)%direntAlignment != 0 {
		pad = direntAlignment - len(d.name)%direntAlignment
	}

	total := direntHeaderSize + len(d.name) + pad
	if total > len(buf) {
		return 0
	}

	binary.NativeEndian.PutUint64(buf[0:8], d.ino)
	binary.NativeEndian.PutUint64(buf[8:16], d.offset)
	binary.NativeEndian.PutUint32(buf[16:20], uint32(len(d.name)))
	binary.NativeEndian.PutUint32(buf[20:24], d.kind)

	n := direntHeaderSize
	n += copy(buf[n:], d.name)
	n += pad
	return n
}
