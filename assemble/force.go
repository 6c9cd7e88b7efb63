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

	"github.com/Distrotech/mdadm/superblock"
)

// promote forces the newest stale members current until the array has
// enough of them. Each iteration either promotes a member or zeroes its
// events, so the loop ends.
func (a *assembly) promote() {
	if !a.opts.Force {
		return
	}

	for !a.enough() {
		c := a.newestStale()
		if c == nil {
			return
		}

		logger := a.log.WithFields(log.Fields{
			"device": c.Name,
			"events": c.Events,
		})

		sb, err := a.devices.Read(c.Name)
		if err != nil {
			logger.WithError(err).Warnf("cannot re-read superblock on %s", c.Name)
			c.Events = 0
			continue
		}

		logger.Warnf("forcing event count in %s(%d) from %d upto %d", c.Name, c.Index, sb.Events, a.mostRecent.Events)
		sb.Events = a.mostRecent.Events
		if a.first.Level.Parity() {
			sb.State = superblock.ArrayState{Clean: true}
		}
		sb.SetChecksum()

		if err := a.devices.Write(c.Name, sb); err != nil {
			logger.WithError(err).Warnf("could not re-write superblock on %s", c.Name)
			c.Events = 0
			continue
		}

		if c.Class == Spare {
			a.sparecnt--
		}
		c.Events = a.mostRecent.Events
		c.Uptodate = true
		c.Class = Active
		a.avail[c.Index] = true
		a.okcnt++
		a.promoted++
	}
}

// newestStale returns the non-uptodate winner in [0, raid_disks) with the
// most events. The lowest slot wins ties.
func (a *assembly) newestStale() *Candidate {
	var best *Candidate
	for i := 0; i < a.raidDisks() && i < a.slots.len(); i++ {
		c := a.slots.get(i)
		if c == nil || c.Uptodate || c.Events == 0 {
			continue
		}
		if best == nil || c.Events > best.Events {
			best = c
		}
	}
	return best
}
