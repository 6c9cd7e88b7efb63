// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"). You may
// not use this file except in compliance with the License. A copy of the
// License is located at
//
//	http://aws.amazon.com/apache2.0/
//
// or in the "license" file accompanying this file. This file is distributed
// on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either
// express or implied. See the License for the specific language governing
// permissions and limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Distrotech/mdadm/hotspare"
	"github.com/Distrotech/mdadm/internal/blockdev"
	"github.com/Distrotech/mdadm/mdctl"
	"github.com/Distrotech/mdadm/superblock"
)

func runAdd(ctx context.Context, args []string) error {
	var (
		slot        int
		configPath  string
		logLevels   string
		verbose     bool
		allowImages bool
	)

	fs := flag.NewFlagSet("add", flag.ExitOnError)
	fs.IntVar(&slot, "slot", hotspare.AnySlot, "Slot to place the device in, -1 for the first vacant one")
	fs.StringVar(&configPath, "config", "", "Path to mdassemble configuration file")
	fs.StringVar(&logLevels, "log-level", "", "Comma separated log levels, e.g. info,mdctl:debug")
	fs.BoolVar(&verbose, "v", false, "Report what is being done")
	fs.BoolVar(&allowImages, "allow-images", false, "Accept regular files as members")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 2 {
		return errors.New("array and device required")
	}
	arrayPath, devPath := fs.Arg(0), fs.Arg(1)

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	ctx, mdctlLog, err := configureLogging(ctx, cfg, logLevels, verbose)
	if err != nil {
		return err
	}

	ctrl, err := mdctl.Open(arrayPath)
	if err != nil {
		return err
	}
	defer ctrl.Close()
	ctrl.Logger = mdctlLog

	active, err := ctrl.QueryActive(ctx)
	if err != nil {
		return err
	}
	if !active {
		return errors.Errorf("%s is not running", arrayPath)
	}

	var (
		array *hotspare.Array
		dev   *hotspare.Device
		eg    errgroup.Group
	)
	eg.Go(func() error {
		var err error
		array, err = hotspare.NewArrayFromController(ctrl)
		return err
	})
	eg.Go(func() error {
		var err error
		dev, err = examine(devPath, allowImages)
		return err
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	taken, err := array.Inject(ctx, dev, slot)
	if err != nil {
		return err
	}

	log.G(ctx).WithFields(log.Fields{
		"array":  arrayPath,
		"device": devPath,
		"slot":   taken,
	}).Debug("hot added")
	fmt.Fprintf(os.Stdout, "added %s to %s as %d\n", devPath, arrayPath, taken)
	return nil
}

// examine describes the device to add. A device that was in sync in some
// slot before remembers that slot.
func examine(name string, allowImages bool) (*hotspare.Device, error) {
	store := &blockdev.Store{AllowImages: allowImages}
	loc, sb, err := store.Examine(name)
	if err != nil && !errors.Is(err, superblock.ErrNoSuperblock) {
		return nil, err
	}

	dev := &hotspare.Device{
		Name:     name,
		Location: loc,
		Slot:     hotspare.AnySlot,
		LastSlot: hotspare.AnySlot,
	}
	if sb != nil && sb.ThisDisk.State.Sync && !sb.ThisDisk.State.Faulty {
		dev.InSync = true
		dev.LastSlot = int(sb.ThisDisk.RaidDisk)
	}
	return dev, nil
}
