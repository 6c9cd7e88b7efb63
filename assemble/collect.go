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

package assemble

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/containerd/log"
	"github.com/pkg/errors"

	"github.com/Distrotech/mdadm/internal/blockdev"
	"github.com/Distrotech/mdadm/superblock"
)

// Candidate is an accepted device and what its superblock says about it.
type Candidate struct {
	Name string
	// Location is where the device was found.
	Location blockdev.Location
	// Recorded is where the device's own superblock says it lives.
	Recorded blockdev.Location
	Events   uint64
	UTime    time.Time
	// Slot is the slot the device claims.
	Slot int
	// Index is the device's position in the slot table: Slot, or the
	// collection order for levels without meaningful slots.
	Index int
	State superblock.DiskState

	Uptodate bool
	Class    Class
}

// Class is the admission decision for a slot winner.
type Class int

const (
	// Unclassified devices lost their slot to a newer one, or were never
	// looked at.
	Unclassified Class = iota
	// Active devices count towards the array.
	Active
	// Spare devices are attached but do not count towards the array.
	Spare
	// Faulty devices are recorded as failed and are not used.
	Faulty
	// Stale devices are in sync but older than the newest member.
	Stale
)

func (c Class) String() string {
	switch c {
	case Active:
		return "active"
	case Spare:
		return "spare"
	case Faulty:
		return "faulty"
	case Stale:
		return "stale"
	}
	return "unclassified"
}

func newCandidate(name string, loc blockdev.Location, sb *superblock.Superblock) *Candidate {
	return &Candidate{
		Name:     name,
		Location: loc,
		Recorded: blockdev.Location{Major: sb.ThisDisk.Major, Minor: sb.ThisDisk.Minor},
		Events:   sb.Events,
		UTime:    time.Unix(int64(sb.UTime), 0),
		Slot:     int(sb.ThisDisk.RaidDisk),
		State:    sb.ThisDisk.State,
	}
}

// check rejects superblocks that do not match the identity. sb may be nil
// for devices without one.
func (id Identity) check(sb *superblock.Superblock) error {
	switch {
	case id.UUID != nil && (sb == nil || sb.UUID() != *id.UUID):
		return errors.Wrap(ErrIdentityMismatch, "wrong uuid")
	case id.SuperMinor != nil && (sb == nil || sb.MDMinor != *id.SuperMinor):
		return errors.Wrap(ErrIdentityMismatch, "wrong super-minor")
	case id.Level != nil && (sb == nil || sb.Level != *id.Level):
		return errors.Wrap(ErrIdentityMismatch, "wrong raid level")
	case id.RaidDisks != nil && (sb == nil || sb.RaidDisks != *id.RaidDisks):
		return errors.Wrap(ErrIdentityMismatch, "requires wrong number of drives")
	}
	return nil
}

func matchOneOf(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// noMetadata reports whether err means the device was readable but holds
// no usable superblock.
func noMetadata(err error) bool {
	return errors.Is(err, superblock.ErrNoSuperblock) ||
		errors.Is(err, superblock.ErrUnsupportedVersion) ||
		errors.Is(err, superblock.ErrDeviceTooSmall)
}

// collect examines every candidate device and feeds the accepted ones to
// the slot table.
func (a *assembly) collect() error {
	a.verbose(a.log, "looking for devices for %s", a.opts.Array)

	id := a.opts.Identity
	for _, name := range a.opts.Devices {
		logger := a.log.WithField("device", name)

		if len(id.Devices) > 0 && !matchOneOf(id.Devices, name) {
			a.diag(logger, errors.Wrapf(ErrIdentityMismatch, "%s is not one of %s", name, strings.Join(id.Devices, ",")))
			continue
		}

		loc, sb, err := a.devices.Examine(name)
		if err != nil {
			if !noMetadata(err) {
				a.diag(logger, errors.Wrapf(ErrDeviceUnavailable, "%s: %v", name, err))
				continue
			}
			a.diag(logger, errors.Wrapf(err, "no RAID superblock on %s", name))
			sb = nil
		}

		if err := id.check(sb); err != nil {
			a.diag(logger, errors.Wrapf(err, "%s", name))
			continue
		}

		// from here on the device is committed to the array
		if sb == nil {
			return errors.Wrapf(ErrMissingMetadata, "%s", name)
		}

		if a.first == nil {
			a.first = sb.Clone()
		} else if err := a.first.Compatible(sb); err != nil {
			return errors.Wrapf(ErrIncompatibleMetadata, "%s: %v", name, err)
		}

		if len(a.candidates) >= superblock.MaxDisks {
			logger.Warnf("too many devices appear to be in this array, ignoring %s", name)
			continue
		}

		if a.opts.Update != superblock.UpdateNone {
			a.update(logger, name, sb)
		}

		a.verbose(logger, "%s is identified as a member of %s, slot %d", name, a.opts.Array, sb.ThisDisk.RaidDisk)

		c := newCandidate(name, loc, sb)
		a.candidates = append(a.candidates, c)
		a.resolve(c)
	}

	if len(a.candidates) == 0 {
		return errors.Wrapf(ErrNoDevices, "for %s", a.opts.Array)
	}
	return nil
}

// update applies the requested correction and writes it back. A failed
// write leaves the device usable with the corrected in-memory copy.
func (a *assembly) update(logger *log.Entry, name string, sb *superblock.Superblock) {
	env := superblock.UpdateEnv{ArrayMinor: a.opts.ArrayMinor}
	if err := superblock.Apply(sb, a.opts.Update, env); err != nil {
		logger.WithError(err).Warn("cannot update superblock")
		return
	}

	logger.WithField("update", a.opts.Update).Infof("updated superblock of %s", name)

	if err := a.devices.Write(name, sb); err != nil {
		a.diag(logger, errors.Wrapf(ErrWriteFailed, "%s: %v", name, err))
	}
}
