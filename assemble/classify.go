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

// classify decides for every slot winner whether it counts towards the
// array, is a spare, or cannot be used.
func (a *assembly) classify() {
	var margin uint64 = 1
	if a.opts.Force {
		margin = 0
	}

	raidDisks := a.raidDisks()
	a.avail = make([]bool, raidDisks)
	slotsMeaningful := a.first.Level.SlotsMeaningful()

	for i := 0; i < a.slots.len(); i++ {
		c := a.slots.get(i)
		if c == nil {
			continue
		}
		logger := a.log.WithField("device", c.Name)

		if slotsMeaningful && !c.State.Sync {
			if c.State.Faulty {
				c.Class = Faulty
				a.verbose(logger, "%s is marked faulty, not using it", c.Name)
				continue
			}
			c.Class = Spare
			a.sparecnt++
			continue
		}

		if c.Events+margin < a.mostRecent.Events {
			c.Class = Stale
			a.verbose(logger, "%s has %d events, %d expected", c.Name, c.Events, a.mostRecent.Events)
			continue
		}

		c.Uptodate = true
		if i < raidDisks {
			c.Class = Active
			a.avail[i] = true
			a.okcnt++
		} else {
			c.Class = Spare
			a.sparecnt++
		}
	}
}
