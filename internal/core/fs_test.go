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
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/kylelemons/godebug/pretty"

	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

func TestFS(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type FSTest struct {
	clock *timeutil.SimulatedClock
	fs    *Filesystem
	owner Caller
}

func init() { RegisterTestSuite(&FSTest{}) }

func (t *FSTest) SetUp(ti *TestInfo) {
	t.clock = &timeutil.SimulatedClock{}
	t.clock.SetTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	t.fs = New(t.clock, DefaultTotalBlocks)
	t.owner = Caller{UID: 1000, GID: 1000}
	t.fs.Init(t.owner)
}

////////////////////////////////////////////////////////////////////////
// Init / GetAttr
////////////////////////////////////////////////////////////////////////

func (t *FSTest) InitSetsRootOwnership() {
	st, err := t.fs.GetAttr("/", t.owner)
	AssertEq(nil, err)

	ExpectEq(t.owner.UID, st.Uid)
	ExpectEq(t.owner.GID, st.Gid)
	ExpectTrue(st.IsDir())
}

////////////////////////////////////////////////////////////////////////
// MkDir
////////////////////////////////////////////////////////////////////////

func (t *FSTest) MkDir_OneLevel() {
	st, err := t.fs.MkDir("/dir", 0754, t.owner)
	AssertEq(nil, err)

	ExpectTrue(st.IsDir())
	ExpectEq(FileMode(0754), st.Perm())
	ExpectEq(1, st.Nlink)

	got, err := t.fs.GetAttr("/dir", t.owner)
	AssertEq(nil, err)
	ExpectEq(st.Ino, got.Ino)
}

func (t *FSTest) MkDir_ExactFoundIsEEXIST() {
	_, err := t.fs.MkDir("/dir", 0755, t.owner)
	AssertEq(nil, err)

	_, err = t.fs.MkDir("/dir", 0755, t.owner)
	ExpectEq(syscall.EEXIST, err)
}

func (t *FSTest) MkDir_OnRootIsEEXIST() {
	_, err := t.fs.MkDir("/", 0755, t.owner)
	ExpectEq(syscall.EEXIST, err)
}

func (t *FSTest) MkDir_MissingParentIsENOENT() {
	_, err := t.fs.MkDir("/a/b", 0755, t.owner)
	ExpectEq(syscall.ENOENT, err)
}

func (t *FSTest) MkDir_ParentNotDirIsENOTDIR() {
	_, err := t.fs.MkNod("/f", 0644, t.owner)
	AssertEq(nil, err)

	_, err = t.fs.MkDir("/f/child", 0755, t.owner)
	ExpectEq(syscall.ENOTDIR, err)
}

func (t *FSTest) MkDir_NameTooLong() {
	name := strings.Repeat("a", MaxNameLen+1)
	_, err := t.fs.MkDir("/"+name, 0755, t.owner)
	ExpectEq(syscall.ENAMETOOLONG, err)

	okName := strings.Repeat("a", MaxNameLen)
	_, err = t.fs.MkDir("/"+okName, 0755, t.owner)
	ExpectEq(nil, err)
}

func (t *FSTest) MkDir_WithoutWritePermissionIsEACCES() {
	_, err := t.fs.MkDir("/ro", 0555, t.owner)
	AssertEq(nil, err)

	other := Caller{UID: 2000, GID: 2000}
	_, err = t.fs.MkDir("/ro/child", 0755, other)
	ExpectEq(syscall.EACCES, err)
}

func (t *FSTest) MkDir_SuperuserBypassesSearchOnParentOnly() {
	// "/secret" grants write-but-not-execute to the "other" class. The
	// superuser's only special treatment during resolution is the
	// search-on-parent (execute) bypass in the traversal loop: an
	// ordinary non-owner caller can't even start the traversal, but the
	// superuser does, and still needs the real write bit on "secret" to
	// create inside it.
	_, err := t.fs.MkDir("/secret", 0002, t.owner)
	AssertEq(nil, err)

	other := Caller{UID: 2000, GID: 2000}
	_, err = t.fs.MkDir("/secret/child", 0755, other)
	ExpectEq(syscall.EACCES, err)

	superuser := Caller{UID: 0, GID: 0}
	_, err = t.fs.MkDir("/secret/child", 0755, superuser)
	ExpectEq(nil, err)
}

////////////////////////////////////////////////////////////////////////
// MkNod
////////////////////////////////////////////////////////////////////////

func (t *FSTest) MkNod_RejectsSpecialModes() {
	_, err := t.fs.MkNod("/dev", ModeDir, t.owner)
	ExpectEq(syscall.ENOSYS, err)
}

////////////////////////////////////////////////////////////////////////
// RmDir / Unlink
////////////////////////////////////////////////////////////////////////

func (t *FSTest) RmDir_RequiresEmpty() {
	_, err := t.fs.MkDir("/dir", 0755, t.owner)
	AssertEq(nil, err)
	_, err = t.fs.MkDir("/dir/child", 0755, t.owner)
	AssertEq(nil, err)

	err = t.fs.RmDir("/dir", t.owner)
	ExpectEq(syscall.ENOTEMPTY, err)

	err = t.fs.RmDir("/dir/child", t.owner)
	AssertEq(nil, err)
	err = t.fs.RmDir("/dir", t.owner)
	AssertEq(nil, err)

	_, err = t.fs.GetAttr("/dir", t.owner)
	ExpectEq(syscall.ENOENT, err)
}

func (t *FSTest) RmDir_OnFileIsENOTDIR() {
	_, err := t.fs.MkNod("/f", 0644, t.owner)
	AssertEq(nil, err)

	err = t.fs.RmDir("/f", t.owner)
	ExpectEq(syscall.ENOTDIR, err)
}

func (t *FSTest) RmDir_IsIdempotentlyAbsentAfterRemoval() {
	_, err := t.fs.MkDir("/dir", 0755, t.owner)
	AssertEq(nil, err)
	err = t.fs.RmDir("/dir", t.owner)
	AssertEq(nil, err)

	// The tree's invariants (sibling ordering, back-pointers, quota
	// coherence) are re-checked by the InvariantMutex when syncutil's
	// invariant checking is enabled; a second RmDir simply reports the
	// path gone.
	err = t.fs.RmDir("/dir", t.owner)
	ExpectEq(syscall.ENOENT, err)
}

func (t *FSTest) Unlink_RemovesFile() {
	_, err := t.fs.MkNod("/f", 0644, t.owner)
	AssertEq(nil, err)

	err = t.fs.Unlink("/f", t.owner)
	AssertEq(nil, err)

	_, err = t.fs.GetAttr("/f", t.owner)
	ExpectEq(syscall.ENOENT, err)
}

////////////////////////////////////////////////////////////////////////
// Open / Read / Write / Truncate
////////////////////////////////////////////////////////////////////////

func (t *FSTest) Open_DirectoryIsEISDIR() {
	_, err := t.fs.MkDir("/dir", 0755, t.owner)
	AssertEq(nil, err)

	_, _, err = t.fs.Open("/dir", 0, t.owner)
	ExpectEq(syscall.EISDIR, err)
}

func (t *FSTest) Open_RespectsAccessMode() {
	_, err := t.fs.MkNod("/f", 0400, t.owner)
	AssertEq(nil, err)

	other := Caller{UID: 2000, GID: 2000}
	_, _, err = t.fs.Open("/f", 0 /* O_RDONLY */, other)
	ExpectEq(syscall.EACCES, err)

	_, _, err = t.fs.Open("/f", 0, t.owner)
	ExpectEq(nil, err)

	_, _, err = t.fs.Open("/f", 1 /* O_WRONLY */, t.owner)
	ExpectEq(syscall.EACCES, err)
}

func (t *FSTest) WriteReadRoundTrip() {
	_, err := t.fs.MkNod("/f", 0644, t.owner)
	AssertEq(nil, err)

	h, _, err := t.fs.Open("/f", 2 /* O_RDWR */, t.owner)
	AssertEq(nil, err)

	payload := []byte("hello, memfuse")
	n, err := t.fs.Write(h, payload, 0)
	AssertEq(nil, err)
	ExpectEq(len(payload), n)

	buf := make([]byte, 64)
	n, err = t.fs.Read(h, buf, 0)
	AssertEq(nil, err)
	ExpectEq(string(payload), string(buf[:n]))

	st, err := t.fs.GetAttr("/f", t.owner)
	AssertEq(nil, err)
	ExpectEq(len(payload), st.Size)
}

func (t *FSTest) Write_ExtendsThenTruncateShrinksAndZeroFillsOnGrow() {
	_, err := t.fs.MkNod("/f", 0644, t.owner)
	AssertEq(nil, err)

	h, _, err := t.fs.Open("/f", 2, t.owner)
	AssertEq(nil, err)

	_, err = t.fs.Write(h, []byte("0123456789"), 0)
	AssertEq(nil, err)

	err = t.fs.Truncate("/f", 4, t.owner)
	AssertEq(nil, err)

	buf := make([]byte, 64)
	n, err := t.fs.Read(h, buf, 0)
	AssertEq(nil, err)
	ExpectEq("0123", string(buf[:n]))

	err = t.fs.Truncate("/f", 10, t.owner)
	AssertEq(nil, err)

	n, err = t.fs.Read(h, buf, 4)
	AssertEq(nil, err)
	for i := 0; i < n; i++ {
		ExpectEq(byte(0), buf[i])
	}
}

////////////////////////////////////////////////////////////////////////
// Rename
////////////////////////////////////////////////////////////////////////

func (t *FSTest) Rename_PreservesIdentity() {
	_, err := t.fs.MkNod("/a", 0644, t.owner)
	AssertEq(nil, err)
	before, err := t.fs.GetAttr("/a", t.owner)
	AssertEq(nil, err)

	err = t.fs.Rename("/a", "/b", t.owner)
	AssertEq(nil, err)

	_, err = t.fs.GetAttr("/a", t.owner)
	ExpectEq(syscall.ENOENT, err)

	after, err := t.fs.GetAttr("/b", t.owner)
	AssertEq(nil, err)
	ExpectEq(before.Ino, after.Ino)
}

func (t *FSTest) Rename_OntoExistingIsEEXIST() {
	_, err := t.fs.MkNod("/a", 0644, t.owner)
	AssertEq(nil, err)
	_, err = t.fs.MkNod("/b", 0644, t.owner)
	AssertEq(nil, err)

	err = t.fs.Rename("/a", "/b", t.owner)
	ExpectEq(syscall.EEXIST, err)
}

////////////////////////////////////////////////////////////////////////
// Chmod / Chown
////////////////////////////////////////////////////////////////////////

func (t *FSTest) Chmod_RequiresOwnership() {
	_, err := t.fs.MkNod("/f", 0644, t.owner)
	AssertEq(nil, err)

	other := Caller{UID: 2000, GID: 2000}
	err = t.fs.Chmod("/f", 0777, other)
	ExpectEq(syscall.EPERM, err)

	// Chmod has no superuser exception: only the owning uid may change
	// an inode's mode bits.
	superuser := Caller{UID: 0, GID: 0}
	err = t.fs.Chmod("/f", 0777, superuser)
	ExpectEq(syscall.EPERM, err)

	err = t.fs.Chmod("/f", 0777, t.owner)
	AssertEq(nil, err)

	st, err := t.fs.GetAttr("/f", t.owner)
	AssertEq(nil, err)
	ExpectEq(FileMode(0777), st.Perm())
}

func (t *FSTest) Chown_RequiresSuperuser() {
	_, err := t.fs.MkNod("/f", 0644, t.owner)
	AssertEq(nil, err)

	newUID := uint32(3000)
	err = t.fs.Chown("/f", &newUID, nil, t.owner)
	ExpectEq(syscall.EPERM, err)

	superuser := Caller{UID: 0, GID: 0}
	err = t.fs.Chown("/f", &newUID, nil, superuser)
	AssertEq(nil, err)

	st, err := t.fs.GetAttr("/f", superuser)
	AssertEq(nil, err)
	ExpectEq(newUID, st.Uid)
}

////////////////////////////////////////////////////////////////////////
// ReadDir
////////////////////////////////////////////////////////////////////////

func (t *FSTest) ReadDir_OrderAndOffset() {
	for _, name := range []string{"c", "a", "b"} {
		_, err := t.fs.MkNod("/"+name, 0644, t.owner)
		AssertEq(nil, err)
	}

	h, err := t.fs.OpenDir("/", t.owner)
	AssertEq(nil, err)

	all, err := t.fs.ReadDir(h, 0)
	AssertEq(nil, err)

	var gotNames []string
	for _, e := range all {
		gotNames = append(gotNames, e.Name)
	}
	wantNames := []string{".", "..", "a", "b", "c"}
	ExpectEq("", pretty.Compare(wantNames, gotNames))

	tail, err := t.fs.ReadDir(h, 3)
	AssertEq(nil, err)
	ExpectThat(dirNames(tail), ElementsAre("b", "c"))

	past, err := t.fs.ReadDir(h, 100)
	AssertEq(nil, err)
	ExpectEq(0, len(past))
}

func dirNames(entries []Dirent) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

////////////////////////////////////////////////////////////////////////
// Quota
////////////////////////////////////////////////////////////////////////

func (t *FSTest) NoFreeSpaceOnInodeExhaustion() {
	// One block leaves only the root's inode-table slot; mknod past
	// inodesPerBlock-1 live files needs a second inode-table block, which
	// there is no free space for.
	fs := New(t.clock, 1)
	owner := t.owner
	fs.Init(owner)

	for i := 0; i < inodesPerBlock-1; i++ {
		name := "/" + string(rune('a'+i))
		_, err := fs.MkNod(name, 0644, owner)
		AssertEq(nil, err)
	}

	_, err := fs.MkNod("/overflow", 0644, owner)
	ExpectEq(syscall.ENOSPC, err)
}

func (t *FSTest) Write_ENOSPCBoundary() {
	fs := New(t.clock, 2)
	owner := t.owner
	fs.Init(owner)

	_, err := fs.MkNod("/f", 0644, owner)
	AssertEq(nil, err)
	h, _, err := fs.Open("/f", 2, owner)
	AssertEq(nil, err)

	snap := fs.StatFS()
	fill := make([]byte, snap.Bfree*BlockSize)
	_, err = fs.Write(h, fill, 0)
	AssertEq(nil, err)

	_, err = fs.Write(h, []byte("x"), int64(len(fill)))
	ExpectEq(syscall.ENOSPC, err)
}

func (t *FSTest) StatFS_ReportsCapacity() {
	fs := New(t.clock, 16)
	fs.Init(t.owner)

	snap := fs.StatFS()
	ExpectEq(16, snap.Blocks)
	ExpectEq(uint64(BlockSize), snap.Bsize)
	ExpectEq(uint32(MaxNameLen), snap.NameMax)
	// One block is reserved up front for the root's inode-table slot.
	ExpectEq(15, snap.Bfree)
}
