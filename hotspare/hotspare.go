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

// Package hotspare places replacement devices into vacant slots of a
// running array.
package hotspare

import (
	"context"
	"sort"
	"sync"

	"github.com/containerd/log"
	"github.com/pkg/errors"

	"github.com/Distrotech/mdadm/internal/blockdev"
	"github.com/Distrotech/mdadm/mdctl"
	"github.com/Distrotech/mdadm/raid"
)

// AnySlot lets Inject pick the slot.
const AnySlot = -1

var (
	// ErrSlotConflict occurs when the device already holds a slot, or the
	// requested slot is taken.
	ErrSlotConflict = errors.New("slot conflict")

	// ErrUnsupported occurs when the array's level cannot take devices
	// while running.
	ErrUnsupported = errors.New("level does not support adding devices to a running array")

	// ErrInvalidSlot occurs when the requested slot is outside the array.
	ErrInvalidSlot = errors.New("slot out of range")

	// ErrNoVacantSlot occurs when every slot in range is taken.
	ErrNoVacantSlot = errors.New("no vacant slot")
)

// Attacher hands a device to a running array and places it in slot.
type Attacher interface {
	HotAdd(ctx context.Context, loc blockdev.Location, slot int) (mdctl.AttachOutcome, error)
}

// Device is a device attached to, or about to be attached to, the array.
type Device struct {
	Name     string
	Location blockdev.Location
	// Slot is the slot the device holds, or AnySlot.
	Slot int
	// LastSlot is the slot the device last held while in sync, or AnySlot.
	LastSlot int
	InSync   bool
}

// Array is the slot table of one running array. Inject calls are
// serialized.
type Array struct {
	Name      string
	Level     raid.Level
	RaidDisks int

	attacher Attacher

	mu      sync.Mutex
	slots   map[int]*Device
	devices map[blockdev.Location]*Device
}

// NewArray returns the slot table of a running array with the given
// members.
func NewArray(name string, level raid.Level, raidDisks int, attacher Attacher, members []*Device) *Array {
	a := &Array{
		Name:      name,
		Level:     level,
		RaidDisks: raidDisks,
		attacher:  attacher,
		slots:     make(map[int]*Device),
		devices:   make(map[blockdev.Location]*Device),
	}

	for _, m := range members {
		a.devices[m.Location] = m
		if m.Slot != AnySlot {
			a.slots[m.Slot] = m
		}
	}
	return a
}

// NewArrayFromController reads the running array's slot table from sysfs.
func NewArrayFromController(c *mdctl.Controller) (*Array, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	raidDisks, err := c.RaidDisks()
	if err != nil {
		return nil, err
	}
	members, err := c.Members()
	if err != nil {
		return nil, err
	}

	devices := make([]*Device, 0, len(members))
	for _, m := range members {
		if m.Faulty() {
			continue
		}
		d := &Device{
			Name:     m.Name,
			Location: m.Location,
			Slot:     AnySlot,
			LastSlot: AnySlot,
			InSync:   m.InSync(),
		}
		if m.Slot >= 0 {
			d.Slot = m.Slot
			d.LastSlot = m.Slot
		}
		devices = append(devices, d)
	}

	return NewArray(c.Path, level, raidDisks, c, devices), nil
}

// Members returns the devices holding a slot, ordered by slot.
func (a *Array) Members() []Device {
	a.mu.Lock()
	defer a.mu.Unlock()

	members := make([]Device, 0, len(a.slots))
	for _, d := range a.slots {
		members = append(members, *d)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Slot < members[j].Slot
	})
	return members
}

// Inject attaches dev to the array in slot, or in a vacant slot of the
// driver's choosing when slot is AnySlot, and returns the slot it took.
// On failure the slot table is left as it was.
func (a *Array) Inject(ctx context.Context, dev *Device, slot int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	logger := log.G(ctx).WithFields(log.Fields{
		"array":  a.Name,
		"device": dev.Name,
	})

	if known, ok := a.devices[dev.Location]; ok {
		if known.Slot != AnySlot {
			return AnySlot, errors.Wrapf(ErrSlotConflict, "%s already holds slot %d of %s", dev.Name, known.Slot, a.Name)
		}
		dev = known
	} else if dev.Slot != AnySlot {
		return AnySlot, errors.Wrapf(ErrSlotConflict, "%s already holds slot %d", dev.Name, dev.Slot)
	}

	if !a.Level.SupportsHotAdd() {
		return AnySlot, errors.Wrapf(ErrUnsupported, "%s is %s", a.Name, a.Level)
	}

	lo, hi := 0, a.RaidDisks
	if slot != AnySlot {
		if slot < 0 || slot >= a.RaidDisks {
			return AnySlot, errors.Wrapf(ErrInvalidSlot, "slot %d of %s with %d slots", slot, a.Name, a.RaidDisks)
		}
		if holder, ok := a.slots[slot]; ok {
			return AnySlot, errors.Wrapf(ErrSlotConflict, "slot %d of %s is held by %s", slot, a.Name, holder.Name)
		}
		lo, hi = slot, slot+1
	}

	chosen := a.vacant(dev, lo, hi)
	if chosen == AnySlot {
		return AnySlot, errors.Wrapf(ErrNoVacantSlot, "%s", a.Name)
	}

	lastSlot := dev.LastSlot
	dev.Slot = chosen
	if !dev.InSync {
		dev.LastSlot = AnySlot
	}
	a.slots[chosen] = dev

	rollback := func() {
		delete(a.slots, chosen)
		dev.Slot = AnySlot
		dev.LastSlot = lastSlot
	}

	logger = logger.WithField("slot", chosen)
	outcome, err := a.attacher.HotAdd(ctx, dev.Location, chosen)
	if err != nil {
		rollback()
		return AnySlot, errors.Wrapf(err, "failed to attach %s to %s", dev.Name, a.Name)
	}
	if outcome != mdctl.Accepted {
		rollback()
		return AnySlot, errors.Wrapf(ErrSlotConflict, "%s: %s", dev.Name, outcome)
	}

	a.devices[dev.Location] = dev
	logger.Info("device attached")
	return chosen, nil
}

// vacant returns the slot in [lo, hi) dev should take: its last slot if
// that is free, else the first free one.
func (a *Array) vacant(dev *Device, lo, hi int) int {
	if last := dev.LastSlot; last >= lo && last < hi {
		if _, taken := a.slots[last]; !taken {
			return last
		}
	}

	for s := lo; s < hi; s++ {
		if _, taken := a.slots[s]; !taken {
			return s
		}
	}
	return AnySlot
}
