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
	"os"
	"path"
	"strings"
	"syscall"
	"time"
)

// Init sets the root inode's ownership to match the mounting process's
// credentials, matching fuse's InitOp semantics.
func (fs *Filesystem) Init(caller Caller) Stat {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.root.stat.Uid = caller.UID
	fs.root.stat.Gid = caller.GID
	return fs.root.stat
}

// PathOf reconstructs the absolute path to the inode with the given
// serial by walking parent pointers to the root. It exists so the bridge
// adapter, which is handed parent-inode-ID + name by the kernel rather
// than a full path, can still drive every operation through the single
// path-based resolver (component E) the core is built around.
func (fs *Filesystem) PathOf(serial uint64) (string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, ok := fs.nodes[serial]
	if !ok {
		return "", syscall.EIO
	}

	if n == fs.root {
		return "/", nil
	}

	var parts []string
	for cur := n; cur != fs.root; cur = cur.parent {
		if cur == nil {
			return "", syscall.EIO
		}
		parts = append(parts, cur.name)
	}

	// parts was collected leaf-to-root; reverse it.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/"), nil
}

// GetAttr implements the getattr operation.
func (fs *Filesystem) GetAttr(p string, caller Caller) (Stat, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	res := fs.find(p, caller)
	switch res.Outcome {
	case ExactFound:
		return res.exact.stat, nil
	case HeadNotFound, ExactNotFound:
		return Stat{}, syscall.ENOENT
	case HeadNoPermission:
		return Stat{}, syscall.EACCES
	default:
		return Stat{}, syscall.EIO
	}
}

// nameTooLong reports whether the final component of p exceeds
// MaxNameLen bytes.
func nameTooLong(p string) bool {
	_, name := path.Split(p)
	return len(name) > MaxNameLen
}

// MkDir implements the mkdir operation.
func (fs *Filesystem) MkDir(p string, mode FileMode, caller Caller) (Stat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if nameTooLong(p) {
		return Stat{}, syscall.ENAMETOOLONG
	}

	res := fs.find(p, caller)
	switch res.Outcome {
	case ExactFound:
		return Stat{}, syscall.EEXIST
	case HeadNotFound:
		return Stat{}, syscall.ENOENT
	case HeadNotDirectory:
		return Stat{}, syscall.ENOTDIR
	case HeadNoPermission:
		return Stat{}, syscall.EACCES
	case ExactNotFound:
		// fall through to create
	default:
		return Stat{}, syscall.EIO
	}

	if !res.Flags.has(CanWriteParent) {
		return Stat{}, syscall.EACCES
	}

	_, name := path.Split(p)
	child, err := fs.createNode(name, mode|ModeDir, caller)
	if err != nil {
		return Stat{}, syscall.ENOSPC
	}

	insert(res.parent, res.left, res.right, child)
	res.parent.stat.Mtime = fs.clock.Now()
	return child.stat, nil
}

// MkNod implements the mknod operation, restricted to regular files (no
// special-file support, per spec §1 scope).
func (fs *Filesystem) MkNod(p string, mode FileMode, caller Caller) (Stat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if mode&(os.ModeDir|os.ModeSymlink|os.ModeDevice|os.ModeNamedPipe|os.ModeSocket) != 0 {
		return Stat{}, syscall.ENOSYS
	}

	if nameTooLong(p) {
		return Stat{}, syscall.ENAMETOOLONG
	}

	res := fs.find(p, caller)
	switch res.Outcome {
	case ExactFound:
		return Stat{}, syscall.EEXIST
	case HeadNotFound:
		return Stat{}, syscall.ENOENT
	case HeadNotDirectory:
		return Stat{}, syscall.ENOTDIR
	case HeadNoPermission:
		return Stat{}, syscall.EACCES
	case ExactNotFound:
		// fall through to create
	default:
		return Stat{}, syscall.EIO
	}

	if !res.Flags.has(CanWriteParent) {
		return Stat{}, syscall.EACCES
	}

	_, name := path.Split(p)
	child, err := fs.createNode(name, mode, caller)
	if err != nil {
		return Stat{}, syscall.ENOSPC
	}

	if err := fs.sb.realloc(child, 0); err != nil {
		fs.abandonNode(child)
		return Stat{}, syscall.ENOSPC
	}

	insert(res.parent, res.left, res.right, child)
	res.parent.stat.Mtime = fs.clock.Now()
	return child.stat, nil
}

// RmDir implements the rmdir operation.
func (fs *Filesystem) RmDir(p string, caller Caller) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	res := fs.find(p, caller)
	switch res.Outcome {
	case HeadNotFound, ExactNotFound:
		return syscall.ENOENT
	case HeadNotDirectory:
		return syscall.ENOTDIR
	case HeadNoPermission:
		return syscall.EACCES
	case ExactFound:
		// fall through
	default:
		return syscall.EIO
	}

	if !res.exact.isDir() {
		return syscall.ENOTDIR
	}
	if res.exact.firstChild != nil {
		return syscall.ENOTEMPTY
	}
	if !res.Flags.has(CanWriteParent) {
		return syscall.EACCES
	}

	extract(res.exact)
	fs.destroy(res.exact)
	res.parent.stat.Mtime = fs.clock.Now()
	return nil
}

// Unlink implements the unlink operation.
func (fs *Filesystem) Unlink(p string, caller Caller) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	res := fs.find(p, caller)
	switch res.Outcome {
	case HeadNotFound, ExactNotFound:
		return syscall.ENOENT
	case HeadNotDirectory:
		return syscall.ENOTDIR
	case HeadNoPermission:
		return syscall.EACCES
	case ExactFound:
		// fall through
	default:
		return syscall.EIO
	}

	if !res.Flags.has(CanWriteParent) {
		return syscall.EACCES
	}

	extract(res.exact)
	fs.destroy(res.exact)
	res.parent.stat.Mtime = fs.clock.Now()
	return nil
}

// OpenDir implements the opendir operation.
func (fs *Filesystem) OpenDir(p string, caller Caller) (Handle, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	res := fs.find(p, caller)
	switch res.Outcome {
	case HeadNotFound, ExactNotFound:
		return Handle{}, syscall.ENOENT
	case HeadNotDirectory:
		return Handle{}, syscall.ENOTDIR
	case HeadNoPermission:
		return Handle{}, syscall.EACCES
	case ExactFound:
		// fall through
	default:
		return Handle{}, syscall.EIO
	}

	if !res.exact.isDir() {
		return Handle{}, syscall.ENOTDIR
	}
	if !res.Flags.has(CanReadExact) {
		return Handle{}, syscall.EACCES
	}

	return Handle{serial: res.exact.stat.Ino}, nil
}

// ReadDir implements the readdir operation. Per SPEC_FULL.md §9 decision
// 4, offset is honored rather than ignored: entries are emitted starting
// at offset, where offset 0 and 1 are "." and ".." and offset i+2 is the
// i-th child in sibling order.
func (fs *Filesystem) ReadDir(h Handle, offset int) ([]Dirent, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	dir, err := fs.resolve(h)
	if err != nil {
		return nil, err
	}
	if !dir.isDir() {
		return nil, syscall.EIO
	}

	all := make([]Dirent, 0, 2+dir.Len())
	all = append(all, Dirent{Name: ".", Ino: dir.stat.Ino, IsDir: true})
	parentIno := dir.stat.Ino
	if dir.parent != nil {
		parentIno = dir.parent.stat.Ino
	}
	all = append(all, Dirent{Name: "..", Ino: parentIno, IsDir: true})
	for c := dir.firstChild; c != nil; c = c.right {
		all = append(all, Dirent{Name: c.name, Ino: c.stat.Ino, IsDir: c.isDir()})
	}

	if offset < 0 || offset >= len(all) {
		return nil, nil
	}
	return all[offset:], nil
}

// Len reports the live child count of a directory inode.
func (n *inode) Len() (count int) {
	for c := n.firstChild; c != nil; c = c.right {
		count++
	}
	return
}

// decodeAccessMode reads the low two bits of flags as a POSIX access
// mode, per SPEC_FULL.md §9 decision 2.
func decodeAccessMode(flags int) (wantRead, wantWrite bool) {
	switch flags & 3 {
	case 0: // O_RDONLY
		return true, false
	case 1: // O_WRONLY
		return false, true
	case 2: // O_RDWR
		return true, true
	default:
		return false, false
	}
}

// Open implements the open operation.
func (fs *Filesystem) Open(p string, flags int, caller Caller) (Handle, Stat, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	res := fs.find(p, caller)
	switch res.Outcome {
	case HeadNotFound, ExactNotFound:
		return Handle{}, Stat{}, syscall.ENOENT
	case HeadNoPermission:
		return Handle{}, Stat{}, syscall.EACCES
	case ExactFound:
		// fall through
	default:
		return Handle{}, Stat{}, syscall.EIO
	}

	if res.exact.isDir() {
		return Handle{}, Stat{}, syscall.EISDIR
	}

	wantRead, wantWrite := decodeAccessMode(flags)
	if wantRead && !res.Flags.has(CanReadExact) {
		return Handle{}, Stat{}, syscall.EACCES
	}
	if wantWrite && !res.Flags.has(CanWriteExact) {
		return Handle{}, Stat{}, syscall.EACCES
	}

	return Handle{serial: res.exact.stat.Ino}, res.exact.stat, nil
}

// Utimens implements the utimens operation. A nil pointer leaves that
// timestamp unchanged.
func (fs *Filesystem) Utimens(p string, atime, mtime *time.Time, caller Caller) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	res := fs.find(p, caller)
	if res.Outcome != ExactFound {
		if res.Outcome == HeadNotFound || res.Outcome == ExactNotFound {
			return syscall.ENOENT
		}
		return syscall.EIO
	}

	if atime != nil {
		res.exact.stat.Atime = *atime
	}
	if mtime != nil {
		res.exact.stat.Mtime = *mtime
	}
	return nil
}

// Read implements the read operation.
func (fs *Filesystem) Read(h Handle, buf []byte, offset int64) (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, err := fs.resolve(h)
	if err != nil {
		return 0, err
	}
	if n.isDir() {
		return 0, syscall.EISDIR
	}
	if offset < 0 || offset > int64(n.stat.Size) {
		return 0, nil
	}

	return copy(buf, n.data[offset:n.stat.Size]), nil
}

// Write implements the write operation.
func (fs *Filesystem) Write(h Handle, buf []byte, offset int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.resolve(h)
	if err != nil {
		return 0, err
	}
	if n.isDir() {
		return 0, syscall.EIO
	}
	if offset < 0 {
		return 0, syscall.EIO
	}

	needed := uint64(offset) + uint64(len(buf))
	if needed < n.stat.Size {
		needed = n.stat.Size
	}

	if needed != n.stat.Size {
		if err := fs.sb.realloc(n, needed); err != nil {
			return 0, syscall.ENOSPC
		}
	}

	written := copy(n.data[offset:], buf)
	n.stat.Mtime = fs.clock.Now()
	return written, nil
}

// Truncate implements the truncate operation.
func (fs *Filesystem) Truncate(p string, size uint64, caller Caller) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	res := fs.find(p, caller)
	switch res.Outcome {
	case HeadNotFound, ExactNotFound:
		return syscall.ENOENT
	case HeadNoPermission:
		return syscall.EACCES
	case ExactFound:
		// fall through
	default:
		return syscall.EIO
	}

	if res.exact.isDir() {
		return syscall.EIO
	}
	if !res.Flags.has(CanWriteExact) {
		return syscall.EACCES
	}

	if err := fs.sb.realloc(res.exact, size); err != nil {
		return syscall.ENOSPC
	}
	res.exact.stat.Mtime = fs.clock.Now()
	res.exact.stat.Ctime = res.exact.stat.Mtime
	return nil
}

// Chmod implements the chmod operation: permission change requires the
// caller to own the inode.
func (fs *Filesystem) Chmod(p string, mode FileMode, caller Caller) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	res := fs.find(p, caller)
	if res.Outcome != ExactFound {
		if res.Outcome == HeadNotFound || res.Outcome == ExactNotFound {
			return syscall.ENOENT
		}
		return syscall.EIO
	}
	if !res.Flags.has(IsOwner) {
		return syscall.EPERM
	}

	res.exact.stat.Mode = (res.exact.stat.Mode &^ os.ModePerm) | (mode & os.ModePerm)
	res.exact.stat.Ctime = fs.clock.Now()
	return nil
}

// Chown implements the chown operation: ownership change is restricted
// to the superuser. A nil uid or gid leaves that field unchanged.
func (fs *Filesystem) Chown(p string, uid, gid *uint32, caller Caller) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	res := fs.find(p, caller)
	if res.Outcome != ExactFound {
		if res.Outcome == HeadNotFound || res.Outcome == ExactNotFound {
			return syscall.ENOENT
		}
		return syscall.EIO
	}
	if !caller.IsSuperuser() {
		return syscall.EPERM
	}

	if uid != nil {
		res.exact.stat.Uid = *uid
	}
	if gid != nil {
		res.exact.stat.Gid = *gid
	}
	res.exact.stat.Ctime = fs.clock.Now()
	return nil
}

// Rename implements the rename operation, moving the inode found at
// oldPath to newPath and updating its name field to the new tail
// component (SPEC_FULL.md §9 decision 3).
func (fs *Filesystem) Rename(oldPath, newPath string, caller Caller) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if nameTooLong(newPath) {
		return syscall.ENAMETOOLONG
	}

	oldRes := fs.find(oldPath, caller)
	switch oldRes.Outcome {
	case HeadNotFound, ExactNotFound:
		return syscall.ENOENT
	case HeadNotDirectory:
		return syscall.ENOTDIR
	case HeadNoPermission:
		return syscall.EACCES
	case ExactFound:
		// fall through
	default:
		return syscall.EIO
	}
	if !oldRes.Flags.has(CanWriteParent) {
		return syscall.EACCES
	}

	newRes := fs.find(newPath, caller)
	switch newRes.Outcome {
	case ExactFound:
		return syscall.EEXIST
	case HeadNotFound:
		return syscall.ENOENT
	case HeadNotDirectory:
		return syscall.ENOTDIR
	case HeadNoPermission:
		return syscall.EACCES
	case ExactNotFound:
		// fall through
	default:
		return syscall.EIO
	}
	if !newRes.Flags.has(CanWriteParent) {
		return syscall.EACCES
	}

	node := oldRes.exact
	_, newName := path.Split(newPath)

	extract(node)
	node.name = newName

	// Re-derive the bracket after extraction: if old and new share a
	// parent, removing node may have changed who now brackets newName.
	left, _, right := findChild(newRes.parent, newName)
	insert(newRes.parent, left, right, node)

	now := fs.clock.Now()
	oldRes.parent.stat.Mtime = now
	newRes.parent.stat.Mtime = now
	return nil
}

// StatFS implements the statfs operation.
func (fs *Filesystem) StatFS() StatFS {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.sb.Snapshot()
}
