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

package mdctl

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/containerd/log"
	"github.com/pkg/errors"

	"github.com/Distrotech/mdadm/internal/blockdev"
	"github.com/Distrotech/mdadm/raid"
)

const (
	memberPrefix = "dev-"
	noSlot       = "none"
)

// writeAttr is replaced in tests to emulate the kernel's side of a sysfs
// write.
var writeAttr = func(path, value string) error {
	return os.WriteFile(path, []byte(value), 0)
}

// Member is one device attached to a running array, as listed under
// /sys/block/mdX/md.
type Member struct {
	// Name is the kernel name of the device, "sdb1".
	Name     string
	Location blockdev.Location
	// Slot is -1 for members that hold no slot, such as spares.
	Slot  int
	State []string
}

// InSync reports whether the member is an in-sync part of the array.
func (m Member) InSync() bool {
	return m.hasState("in_sync")
}

// Faulty reports whether the driver has failed the member.
func (m Member) Faulty() bool {
	return m.hasState("faulty")
}

func (m Member) hasState(s string) bool {
	for _, st := range m.State {
		if st == s {
			return true
		}
	}
	return false
}

func (c *Controller) mdDir() string {
	return filepath.Join(c.SysfsRoot, "dev", "block", c.Location.String(), "md")
}

func readAttr(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Level returns the personality of the running array.
func (c *Controller) Level() (raid.Level, error) {
	v, err := readAttr(filepath.Join(c.mdDir(), "level"))
	if err != nil {
		return 0, errors.Wrapf(err, "cannot read level of %s", c.Path)
	}
	if v == "" {
		return 0, errors.Errorf("%s has no personality", c.Path)
	}
	return raid.ParseLevel(v)
}

// RaidDisks returns the number of slots in the running array.
func (c *Controller) RaidDisks() (int, error) {
	v, err := readAttr(filepath.Join(c.mdDir(), "raid_disks"))
	if err != nil {
		return 0, errors.Wrapf(err, "cannot read raid_disks of %s", c.Path)
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid raid_disks %q for %s", v, c.Path)
	}
	return n, nil
}

// Members lists the devices attached to the array, ordered by name.
func (c *Controller) Members() ([]Member, error) {
	dirs, err := filepath.Glob(filepath.Join(c.mdDir(), memberPrefix+"*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)

	members := make([]Member, 0, len(dirs))
	for _, dir := range dirs {
		m, err := readMember(dir)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func readMember(dir string) (Member, error) {
	m := Member{
		Name: strings.TrimPrefix(filepath.Base(dir), memberPrefix),
		Slot: -1,
	}

	dev, err := readAttr(filepath.Join(dir, "block", "dev"))
	if err != nil {
		return m, errors.Wrapf(err, "cannot read device number of %s", m.Name)
	}
	if m.Location, err = blockdev.ParseLocation(dev); err != nil {
		return m, err
	}

	slot, err := readAttr(filepath.Join(dir, "slot"))
	if err != nil {
		return m, errors.Wrapf(err, "cannot read slot of %s", m.Name)
	}
	if slot != noSlot {
		if m.Slot, err = strconv.Atoi(slot); err != nil {
			return m, errors.Wrapf(err, "invalid slot %q for %s", slot, m.Name)
		}
	}

	state, err := readAttr(filepath.Join(dir, "state"))
	if err != nil {
		return m, errors.Wrapf(err, "cannot read state of %s", m.Name)
	}
	if state != "" {
		m.State = strings.Split(state, ",")
	}

	return m, nil
}

// HotAdd attaches a device to the running array and places it in slot.
// A negative slot leaves the choice to the driver. Once new_dev has taken
// the device, any later failure detaches it again.
func (c *Controller) HotAdd(ctx context.Context, loc blockdev.Location, slot int) (AttachOutcome, error) {
	logger := c.logger(ctx).WithFields(log.Fields{
		"array":  c.Path,
		"device": loc.String(),
		"slot":   slot,
	})

	if err := writeAttr(filepath.Join(c.mdDir(), "new_dev"), loc.String()); err != nil {
		return attachOutcome(err, "failed to add %s to %s", loc, c.Path)
	}

	if slot < 0 {
		logger.Debug("attached without slot")
		return Accepted, nil
	}

	dir, err := c.memberDir(loc)
	if err == nil {
		err = writeAttr(filepath.Join(dir, "slot"), strconv.Itoa(slot))
	}
	if err != nil {
		c.detach(logger, loc, dir)
		return attachOutcome(err, "failed to place %s in slot %d of %s", loc, slot, c.Path)
	}

	logger.Debug("attached")
	return Accepted, nil
}

// memberDir finds the sysfs directory of the member with the given device
// number. Only the device number is read, so a member whose other
// attributes are not populated yet is still found.
func (c *Controller) memberDir(loc blockdev.Location) (string, error) {
	dirs, err := filepath.Glob(filepath.Join(c.mdDir(), memberPrefix+"*"))
	if err != nil {
		return "", err
	}
	for _, dir := range dirs {
		dev, err := readAttr(filepath.Join(dir, "block", "dev"))
		if err != nil {
			continue
		}
		if l, err := blockdev.ParseLocation(dev); err == nil && l == loc {
			return dir, nil
		}
	}
	return "", errors.Errorf("%s was not listed after attaching to %s", loc, c.Path)
}

// detach removes a device that new_dev attached. Without a member
// directory, or when the state write fails, it falls back to
// HOT_REMOVE_DISK by device number.
func (c *Controller) detach(logger *log.Entry, loc blockdev.Location, dir string) {
	if dir != "" {
		err := writeAttr(filepath.Join(dir, "state"), "remove")
		if err == nil {
			return
		}
		logger.WithError(err).Debug("failed to remove device through sysfs")
	}

	if err := ioctlValue(c.file.Fd(), hotRemoveDisk, uintptr(loc.Dev())); err != nil {
		logger.WithError(err).Warn("failed to detach device, it is still attached to the array")
	}
}
