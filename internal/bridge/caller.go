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

// Package bridge adapts the core's path-addressed operation dispatcher to
// the real github.com/jacobsa/fuse FileSystem interface, which addresses
// inodes by a kernel-assigned numeric ID rather than a path. It is the
// thin layer the spec declares an external collaborator (§1): argument
// dispatch, threading, and reply encoding remain the bridge library's job.
package bridge

import (
	"os/user"
	"strconv"

	"github.com/waxwing-dev/memfuse/internal/core"
)

// supplementaryGIDs looks up the supplementary group IDs for a uid via
// os/user. fuse.RequestHeader carries only uid and gid (no pid in this
// library version, see SPEC_FULL.md §9 decision 6), so the per-process
// /proc/<pid>/status route the spec's original C caller-context code used
// is not available at this boundary; looking the groups up by uid against
// the system's own group database is the nearest equivalent the bridge can
// offer, capped at core.MaxSuppGIDs same as the original.
func supplementaryGIDs(uid uint32) []uint32 {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil
	}

	gidStrs, err := u.GroupIds()
	if err != nil {
		return nil
	}

	gids := make([]uint32, 0, len(gidStrs))
	for _, s := range gidStrs {
		if len(gids) >= core.MaxSuppGIDs {
			break
		}
		g, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			continue
		}
		gids = append(gids, uint32(g))
	}
	return gids
}

// callerOf builds a core.Caller from a FUSE request header's uid and gid.
func callerOf(uid, gid uint32) core.Caller {
	return core.Caller{
		UID:      uid,
		GID:      gid,
		SuppGIDs: supplementaryGIDs(uid),
	}
}
