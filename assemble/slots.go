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

// maxSlot bounds the slot table. Claims beyond it are not tracked.
const maxSlot = 10000

// slotTable holds the winning candidate per slot index.
type slotTable struct {
	winners []*Candidate
}

// offer records c for index unless the current holder has at least as many
// events. It reports whether c won the slot.
func (s *slotTable) offer(index int, c *Candidate) bool {
	if index < 0 || index >= maxSlot {
		return false
	}
	if index >= len(s.winners) {
		grown := make([]*Candidate, index+1)
		copy(grown, s.winners)
		s.winners = grown
	}

	if cur := s.winners[index]; cur != nil && cur.Events >= c.Events {
		return false
	}
	s.winners[index] = c
	return true
}

// get returns the winner for index, or nil.
func (s *slotTable) get(index int) *Candidate {
	if index < 0 || index >= len(s.winners) {
		return nil
	}
	return s.winners[index]
}

// len is one past the highest index ever offered.
func (s *slotTable) len() int {
	return len(s.winners)
}

// resolve places a freshly collected candidate in the slot table and keeps
// track of the most recent candidate overall.
func (a *assembly) resolve(c *Candidate) {
	c.Index = c.Slot
	if a.first.Level.SlotsMeaningful() {
		if c.Slot >= maxSlot {
			a.log.WithField("device", c.Name).Warnf("%s claims slot %d, ignoring it", c.Name, c.Slot)
		}
	} else {
		// multipath members are interchangeable
		c.Index = len(a.candidates) - 1
	}

	// every accepted candidate counts, including those without a slot
	if prev := a.mostRecent; prev == nil || c.Events > prev.Events {
		a.mostRecent = c
	}
	a.slots.offer(c.Index, c)
}
