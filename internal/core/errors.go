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

import "errors"

// Outcome is the resolver's primary result code. Exactly one of these is
// set on every SearchResult.
type Outcome uint32

const (
	NoError Outcome = iota
	ExactFound
	ExactNotFound
	HeadNotFound
	HeadNotDirectory
	HeadNoPermission
	NoFreeSpace
	GeneralError
)

func (o Outcome) String() string {
	switch o {
	case NoError:
		return "NO_ERROR"
	case ExactFound:
		return "EXACT_FOUND"
	case ExactNotFound:
		return "EXACT_NOT_FOUND"
	case HeadNotFound:
		return "HEAD_NOT_FOUND"
	case HeadNotDirectory:
		return "HEAD_NOT_DIRECTORY"
	case HeadNoPermission:
		return "HEAD_NO_PERMISSION"
	case NoFreeSpace:
		return "NO_FREE_SPACE"
	default:
		return "GENERAL_ERROR"
	}
}

// Flags are the resolver's OR-combined permission/ownership flags, kept in
// SearchResult.Flags separately from the Outcome, reflecting the caller's rights on the identified inodes as
// evaluated at resolve time.
type Flags uint32

const (
	IsOwner Flags = 1 << iota
	CanReadParent
	CanWriteParent
	CanExecuteParent
	CanReadExact
	CanWriteExact
	CanExecuteExact
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Internal sentinel errors used between the accountant/allocator and the
// dispatcher. They never cross the bridge boundary directly; the
// dispatcher maps them (and Outcome values) to a syscall.Errno.
var (
	errNoFreeSpace = errors.New("core: no free space")
)
