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

package raid

// Enough reports whether the slots marked in avail are sufficient to run an
// array of the given level and geometry. avail is indexed by slot; slots
// beyond its length count as missing.
func Enough(level Level, raidDisks int, layout uint32, avail []bool) bool {
	present := func(slot int) bool {
		return slot < len(avail) && avail[slot]
	}

	count := 0
	for slot := 0; slot < raidDisks; slot++ {
		if present(slot) {
			count++
		}
	}

	switch level {
	case RAID10:
		// near copies times far copies; every group of that many adjacent
		// slots must keep one live member
		copies := int(layout&0xff) * int(layout>>8)
		if copies <= 0 || raidDisks <= 0 {
			return false
		}

		first := 0
		for {
			live := 0
			for n := 0; n < copies; n++ {
				if present(first) {
					live++
				}
				first = (first + 1) % raidDisks
			}
			if live == 0 {
				return false
			}
			if first == 0 {
				return true
			}
		}
	case Multipath:
		return count >= 1
	case Linear, RAID0:
		return raidDisks > 0 && count == raidDisks
	case RAID1:
		return count >= 1
	case RAID4, RAID5:
		return raidDisks > 0 && count >= raidDisks-1
	case RAID6:
		return raidDisks > 0 && count >= raidDisks-2
	default:
		return false
	}
}
