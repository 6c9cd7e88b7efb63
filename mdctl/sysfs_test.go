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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/Distrotech/mdadm/internal/blockdev"
	"github.com/Distrotech/mdadm/raid"
)

func mdTree(t *testing.T) *Controller {
	t.Helper()

	c := testController(t)
	writeTree(t, c.mdDir(), map[string]string{
		"level":              "raid5",
		"raid_disks":         "4",
		"dev-sdb1/block/dev": "8:17",
		"dev-sdb1/slot":      "0",
		"dev-sdb1/state":     "in_sync",
		"dev-sdc1/block/dev": "8:33",
		"dev-sdc1/slot":      "1",
		"dev-sdc1/state":     "in_sync,write_mostly",
		"dev-sdd1/block/dev": "8:49",
		"dev-sdd1/slot":      "none",
		"dev-sdd1/state":     "faulty",
	})
	return c
}

// fakeKernel emulates new_dev and slot writes against the temp tree.
type fakeKernel struct {
	t      *testing.T
	c      *Controller
	newDev unix.Errno
	slot   unix.Errno
	state  unix.Errno
	// unlisted attaches the device without creating its member directory.
	unlisted bool
	// omit leaves one attribute of the new member unpopulated.
	omit    string
	removed []string
}

func (k *fakeKernel) install() {
	orig := writeAttr
	k.t.Cleanup(func() { writeAttr = orig })

	writeAttr = func(path, value string) error {
		switch filepath.Base(path) {
		case "new_dev":
			if k.newDev != 0 {
				return k.newDev
			}
			loc, err := blockdev.ParseLocation(value)
			require.NoError(k.t, err)
			if k.unlisted {
				return nil
			}
			name := "dev-new" + strings.ReplaceAll(loc.String(), ":", "_")
			attrs := map[string]string{
				name + "/block/dev": loc.String(),
				name + "/slot":      "none",
				name + "/state":     "spare",
			}
			delete(attrs, name+"/"+k.omit)
			writeTree(k.t, k.c.mdDir(), attrs)
			return nil
		case "slot":
			if k.slot != 0 {
				return k.slot
			}
			return os.WriteFile(path, []byte(value), 0644)
		case "state":
			if k.state != 0 {
				return k.state
			}
			k.removed = append(k.removed, filepath.Base(filepath.Dir(path)))
			return os.RemoveAll(filepath.Dir(path))
		}
		k.t.Fatalf("unexpected sysfs write to %s", path)
		return nil
	}
}

func TestMembers(t *testing.T) {
	c := mdTree(t)

	level, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, raid.RAID5, level)

	n, err := c.RaidDisks()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	members, err := c.Members()
	require.NoError(t, err)
	require.Len(t, members, 3)

	assert.Equal(t, Member{
		Name:     "sdb1",
		Location: blockdev.Location{Major: 8, Minor: 17},
		Slot:     0,
		State:    []string{"in_sync"},
	}, members[0])
	assert.True(t, members[1].InSync())
	assert.Equal(t, -1, members[2].Slot)
	assert.True(t, members[2].Faulty())
	assert.False(t, members[2].InSync())
}

func TestMembersInvalid(t *testing.T) {
	c := testController(t)
	writeTree(t, c.mdDir(), map[string]string{
		"dev-sdb1/block/dev": "8:17",
		"dev-sdb1/slot":      "first",
		"dev-sdb1/state":     "in_sync",
	})

	_, err := c.Members()
	assert.Error(t, err)

	_, err = c.Level()
	assert.Error(t, err, "no level attribute")
}

func TestHotAdd(t *testing.T) {
	ctx := context.Background()
	loc := blockdev.Location{Major: 8, Minor: 65}

	t.Run("Slot", func(t *testing.T) {
		c := mdTree(t)
		(&fakeKernel{t: t, c: c}).install()

		outcome, err := c.HotAdd(ctx, loc, 2)
		require.NoError(t, err)
		assert.Equal(t, Accepted, outcome)

		members, err := c.Members()
		require.NoError(t, err)
		var found bool
		for _, m := range members {
			if m.Location == loc {
				found = true
				assert.Equal(t, 2, m.Slot)
			}
		}
		assert.True(t, found)
	})

	t.Run("AnySlot", func(t *testing.T) {
		c := mdTree(t)
		(&fakeKernel{t: t, c: c}).install()

		outcome, err := c.HotAdd(ctx, loc, -1)
		require.NoError(t, err)
		assert.Equal(t, Accepted, outcome)
	})

	t.Run("AlreadyMember", func(t *testing.T) {
		c := mdTree(t)
		(&fakeKernel{t: t, c: c, newDev: unix.EEXIST}).install()

		outcome, err := c.HotAdd(ctx, loc, 2)
		require.NoError(t, err)
		assert.Equal(t, AlreadyPresent, outcome)
	})

	t.Run("SlotBusy", func(t *testing.T) {
		c := mdTree(t)
		k := &fakeKernel{t: t, c: c, slot: unix.EBUSY}
		k.install()

		outcome, err := c.HotAdd(ctx, loc, 1)
		require.NoError(t, err)
		assert.Equal(t, AlreadyPresent, outcome)
		assert.Equal(t, []string{"dev-new8_65"}, k.removed, "device must be detached again")
	})

	t.Run("SlotInvalid", func(t *testing.T) {
		c := mdTree(t)
		k := &fakeKernel{t: t, c: c, slot: unix.EINVAL}
		k.install()

		_, err := c.HotAdd(ctx, loc, 9)
		assert.ErrorIs(t, err, unix.EINVAL)
		assert.Len(t, k.removed, 1)
	})

	t.Run("NewDevFails", func(t *testing.T) {
		c := mdTree(t)
		(&fakeKernel{t: t, c: c, newDev: unix.ENXIO}).install()

		_, err := c.HotAdd(ctx, loc, 2)
		assert.ErrorIs(t, err, unix.ENXIO)
	})

	t.Run("MemberPartiallyListed", func(t *testing.T) {
		c := mdTree(t)
		k := &fakeKernel{t: t, c: c, omit: "state"}
		k.install()

		outcome, err := c.HotAdd(ctx, loc, 2)
		require.NoError(t, err)
		assert.Equal(t, Accepted, outcome)
		assert.Empty(t, k.removed)

		slot, err := readAttr(filepath.Join(c.mdDir(), "dev-new8_65", "slot"))
		require.NoError(t, err)
		assert.Equal(t, "2", slot)
	})

	t.Run("MemberNotListed", func(t *testing.T) {
		c := mdTree(t)
		(&fakeKernel{t: t, c: c, unlisted: true}).install()
		f := &fakeIoctl{}
		f.install(t)

		_, err := c.HotAdd(ctx, loc, 2)
		assert.Error(t, err)
		assert.Equal(t, []ioctlCall{{req: hotRemoveDisk, arg: uintptr(loc.Dev())}}, f.calls,
			"device must be detached by device number")
	})

	t.Run("StateWriteFails", func(t *testing.T) {
		c := mdTree(t)
		k := &fakeKernel{t: t, c: c, slot: unix.EINVAL, state: unix.EBUSY}
		k.install()
		f := &fakeIoctl{}
		f.install(t)

		_, err := c.HotAdd(ctx, loc, 9)
		assert.ErrorIs(t, err, unix.EINVAL)
		assert.Empty(t, k.removed)
		assert.Equal(t, []ioctlCall{{req: hotRemoveDisk, arg: uintptr(loc.Dev())}}, f.calls)
	})

	t.Run("SlotBusyNoIoctl", func(t *testing.T) {
		c := mdTree(t)
		k := &fakeKernel{t: t, c: c, slot: unix.EBUSY}
		k.install()
		f := &fakeIoctl{}
		f.install(t)

		_, err := c.HotAdd(ctx, loc, 1)
		require.NoError(t, err)
		assert.Len(t, k.removed, 1)
		assert.Empty(t, f.calls, "sysfs removal is enough")
	})
}
