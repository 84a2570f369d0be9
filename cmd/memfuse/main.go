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

package main

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/cobra"

	"github.com/waxwing-dev/memfuse/internal/bridge"
	"github.com/waxwing-dev/memfuse/internal/core"
	"github.com/waxwing-dev/memfuse/internal/debuglog"
)

var (
	flagUID          int64
	flagGID          int64
	flagVolumeBlocks uint64
	flagDebug        bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "memfuse <mount-point>",
		Short: "Mount an in-memory filesystem over FUSE",
		Args:  cobra.ExactArgs(1),
		RunE:  runMount,
	}

	root.Flags().Int64Var(&flagUID, "uid", -1, "owning uid for the root inode (default: the mounting user)")
	root.Flags().Int64Var(&flagGID, "gid", -1, "owning gid for the root inode (default: the mounting user)")
	root.Flags().Uint64Var(&flagVolumeBlocks, "volume-blocks", core.DefaultTotalBlocks, "total number of 4096-byte blocks in the volume")
	root.Flags().BoolVar(&flagDebug, "debug", false, "enable FUSE and dispatcher debug logging")

	return root
}

func runMount(cmd *cobra.Command, args []string) error {
	mountPoint := args[0]

	if flagDebug {
		debuglog.Enable()
	}

	uid, gid, err := resolveOwner(flagUID, flagGID)
	if err != nil {
		return fmt.Errorf("resolving owner: %w", err)
	}

	fs := bridge.New(timeutil.RealClock(), flagVolumeBlocks)
	fs.SetRootOwner(uid, gid)

	cfg := &fuse.MountConfig{
		// Disable writeback caching so uid/gid/pid are always present in the
		// request header, per the bridge's caller-context contract.
		DisableWritebackCaching: true,
	}
	if flagDebug {
		cfg.DebugLogger = debuglog.Get()
	}

	mfs, err := fuse.Mount(mountPoint, fs, cfg)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	return nil
}

// resolveOwner fills in uid/gid from the current process's credentials
// whenever the corresponding flag was left at its sentinel default.
func resolveOwner(uidFlag, gidFlag int64) (uid, gid uint32, err error) {
	if uidFlag >= 0 && gidFlag >= 0 {
		return uint32(uidFlag), uint32(gidFlag), nil
	}

	u, err := user.Current()
	if err != nil {
		return 0, 0, err
	}

	resolvedUID, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, 0, err
	}
	resolvedGID, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, 0, err
	}

	if uidFlag >= 0 {
		resolvedUID = uint64(uidFlag)
	}
	if gidFlag >= 0 {
		resolvedGID = uint64(gidFlag)
	}

	return uint32(resolvedUID), uint32(resolvedGID), nil
}
