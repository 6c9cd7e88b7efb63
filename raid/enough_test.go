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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func slots(bits ...bool) []bool {
	return bits
}

func TestEnough(t *testing.T) {
	// layout 0x102: two near copies, one far copy
	const near2 = 0x102

	cases := []struct {
		name      string
		level     Level
		raidDisks int
		layout    uint32
		avail     []bool
		expected  bool
	}{
		{"raid5 complete", RAID5, 3, 0, slots(true, true, true), true},
		{"raid5 one missing", RAID5, 3, 0, slots(true, false, true), true},
		{"raid5 two missing", RAID5, 3, 0, slots(false, false, true), false},
		{"raid4 one missing", RAID4, 4, 0, slots(true, true, true, false), true},
		{"raid6 two missing", RAID6, 4, 0, slots(true, false, false, true), true},
		{"raid6 three missing", RAID6, 4, 0, slots(true, false, false, false), false},
		{"raid1 single mirror", RAID1, 2, 0, slots(false, true), true},
		{"raid1 nothing", RAID1, 2, 0, slots(false, false), false},
		{"raid0 complete", RAID0, 2, 0, slots(true, true), true},
		{"raid0 missing", RAID0, 2, 0, slots(true, false), false},
		{"linear missing", Linear, 3, 0, slots(true, true, false), false},
		{"multipath one path", Multipath, 2, 0, slots(false, true), true},
		{"multipath no path", Multipath, 2, 0, nil, false},
		{"raid10 one per pair", RAID10, 4, near2, slots(true, false, false, true), true},
		{"raid10 pair lost", RAID10, 4, near2, slots(false, false, true, true), false},
		{"raid10 odd disks", RAID10, 3, near2, slots(true, false, true), true},
		{"raid10 bad layout", RAID10, 4, 0, slots(true, true, true, true), false},
		{"short avail slice", RAID5, 3, 0, slots(true), false},
		{"unknown level", Faulty, 1, 0, slots(true), false},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, Enough(c.level, c.raidDisks, c.layout, c.avail))
		})
	}
}

// Adding a member to a satisfied set must never make it unsatisfied.
func TestEnoughMonotonic(t *testing.T) {
	levels := []struct {
		level  Level
		layout uint32
	}{
		{RAID0, 0}, {RAID1, 0}, {RAID4, 0}, {RAID5, 0}, {RAID6, 0},
		{RAID10, 0x102}, {Multipath, 0}, {Linear, 0},
	}

	const disks = 5
	for _, l := range levels {
		l := l
		t.Run(l.level.String(), func(t *testing.T) {
			for mask := 0; mask < 1<<disks; mask++ {
				avail := make([]bool, disks)
				for i := range avail {
					avail[i] = mask&(1<<i) != 0
				}
				if !Enough(l.level, disks, l.layout, avail) {
					continue
				}

				for i := range avail {
					if avail[i] {
						continue
					}
					more := append([]bool(nil), avail...)
					more[i] = true
					assert.Truef(t, Enough(l.level, disks, l.layout, more),
						"mask %05b plus slot %d", mask, i)
				}
			}
		})
	}
}

// Relabelling slots does not change the answer for schemes without groups.
func TestEnoughSymmetric(t *testing.T) {
	for _, level := range []Level{RAID1, RAID4, RAID5, RAID6, RAID0} {
		a := Enough(level, 4, 0, slots(true, true, false, true))
		b := Enough(level, 4, 0, slots(false, true, true, true))
		assert.Equal(t, a, b, level.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in       string
		expected Level
		err      bool
	}{
		{in: "raid5", expected: RAID5},
		{in: "5", expected: RAID5},
		{in: " Mirror ", expected: RAID1},
		{in: "mp", expected: Multipath},
		{in: "linear", expected: Linear},
		{in: "raid10", expected: RAID10},
		{in: "raid7", err: true},
	}

	for _, c := range cases {
		c := c
		t.Run(c.in, func(t *testing.T) {
			level, err := ParseLevel(c.in)
			if c.err {
				assert.ErrorIs(t, err, ErrUnknownLevel)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, c.expected, level)
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "raid5", RAID5.String())
	assert.Equal(t, "multipath", Multipath.String())
	assert.Equal(t, "level7", Level(7).String())
	assert.False(t, Multipath.SlotsMeaningful())
	assert.True(t, RAID6.Parity())
	assert.False(t, RAID1.Parity())
	assert.False(t, RAID0.SupportsHotAdd())
	assert.True(t, RAID10.SupportsHotAdd())
}
