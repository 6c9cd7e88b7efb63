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
	"github.com/containerd/log"
	"github.com/pkg/errors"

	"github.com/Distrotech/mdadm/superblock"
)

type change uint8

const (
	changeLocation change = 1 << iota
	changeContent
)

// reconcile picks the authoritative superblock and brings its disk table in
// line with the members that were found. Corrections are only persisted
// when policy allows it; otherwise the on-disk copy stays authoritative.
func (a *assembly) reconcile() error {
	for {
		chosen := a.firstUptodate()
		if chosen == nil {
			return errors.Wrapf(ErrNoAuthoritative, "%s", a.opts.Array)
		}
		logger := a.log.WithField("device", chosen.Name)

		sb, err := a.devices.Read(chosen.Name)
		if err != nil {
			a.diag(logger, errors.Wrapf(ErrDeviceUnavailable, "cannot re-read %s: %v", chosen.Name, err))
			a.devalue(chosen)
			continue
		}

		edited := sb.Clone()
		changed := a.correct(edited, logger)

		if (a.opts.Force && changed&changeContent != 0) || (a.opts.Legacy && changed&changeLocation != 0) {
			edited.SetChecksum()
			if err := a.devices.Write(chosen.Name, edited); err != nil {
				a.diag(logger, errors.Wrapf(ErrWriteFailed, "%s: %v", chosen.Name, err))
				a.devalue(chosen)
				continue
			}
			sb = edited
		}

		a.chosen = chosen
		a.authoritative = sb
		return nil
	}
}

func (a *assembly) firstUptodate() *Candidate {
	for i := 0; i < a.slots.len(); i++ {
		if c := a.slots.get(i); c != nil && c.Uptodate {
			return c
		}
	}
	return nil
}

// correct edits sb to describe the members that were found and reports
// what it changed.
func (a *assembly) correct(sb *superblock.Superblock, chosenLog *log.Entry) change {
	var changed change

	n := a.slots.len()
	if n > superblock.MaxDisks {
		n = superblock.MaxDisks
	}

	for i := 0; i < n; i++ {
		c := a.slots.get(i)
		if c == nil {
			continue
		}
		d := &sb.Disks[i]
		logger := a.log.WithField("device", c.Name)

		if !c.Uptodate {
			if i < int(sb.RaidDisks) && !d.State.Faulty {
				a.diag(logger, errors.Wrapf(ErrNotMarkedFaulty, "%s (slot %d)", c.Name, i))
			}
			continue
		}

		if d.Major != c.Location.Major || d.Minor != c.Location.Minor {
			a.verbose(logger, "slot %d moved from %d:%d to %s", i, d.Major, d.Minor, c.Location)
			d.Major = c.Location.Major
			d.Minor = c.Location.Minor
			changed |= changeLocation
		}

		var desired superblock.DiskState
		if i < int(sb.RaidDisks) {
			desired = superblock.DiskState{Active: true, Sync: true}
		}
		if d.State.Bits() == desired.Bits() {
			continue
		}
		if a.opts.Force {
			a.verbose(logger, "marking slot %d of %s as %s", i, a.opts.Array, stateName(desired))
			d.State = desired
			changed |= changeContent
		} else {
			logger.Warnf("superblock state of slot %d does not match %s, not correcting without --force", i, c.Name)
		}
	}

	if a.opts.Force && a.first.Level.Parity() && a.okcnt == a.raidDisks()-1 && !sb.State.Clean {
		chosenLog.Warn("marking array as clean so it can start degraded")
		sb.State = superblock.ArrayState{Clean: true}
		changed |= changeContent
	}

	return changed
}

// devalue takes c out of the running after its superblock could not be
// read or written.
func (a *assembly) devalue(c *Candidate) {
	if c.Uptodate {
		switch c.Class {
		case Active:
			a.okcnt--
			a.avail[c.Index] = false
		case Spare:
			a.sparecnt--
		}
	}
	c.Events = 0
	c.Uptodate = false
	c.Class = Stale
}

func stateName(s superblock.DiskState) string {
	if s.Active && s.Sync {
		return "active"
	}
	return "spare"
}
