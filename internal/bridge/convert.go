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

import (
	"time"

	"github.com/jacobsa/fuse"

	"github.com/waxwing-dev/memfuse/internal/core"
)

// attrsOf converts a core.Stat to the attribute struct the bridge library
// embeds in its entry/attribute responses.
func attrsOf(st core.Stat) fuse.InodeAttributes {
	return fuse.InodeAttributes{
		Size:  st.Size,
		Nlink: uint64(st.Nlink),
		Mode:  st.Mode,
		Atime: st.Atime,
		Mtime: st.Mtime,
		Ctime: st.Ctime,
		Uid:   st.Uid,
		Gid:   st.Gid,
	}
}

// neverExpire is used for AttributesExpiration/EntryExpiration: this
// filesystem never mutates spontaneously (no remote backing store to
// race with), so the kernel may cache metadata indefinitely. Matches
// samples/memfs's own "365 * 24 * time.Hour" convention.
func neverExpire(now time.Time) time.Time {
	return now.Add(365 * 24 * time.Hour)
}
