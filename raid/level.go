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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Level is the redundancy personality of an md array as stored in the
// persistent superblock.
type Level int32

// Levels known to the md driver.
const (
	Faulty    Level = -5
	Multipath Level = -4
	Linear    Level = -1
	RAID0     Level = 0
	RAID1     Level = 1
	RAID4     Level = 4
	RAID5     Level = 5
	RAID6     Level = 6
	RAID10    Level = 10
)

// ErrUnknownLevel is returned by ParseLevel for names it does not recognise.
var ErrUnknownLevel = errors.New("unknown raid level")

var levelNames = []struct {
	name  string
	level Level
}{
	// the first name listed for a level is the one String returns
	{"linear", Linear},
	{"raid0", RAID0},
	{"0", RAID0},
	{"stripe", RAID0},
	{"raid1", RAID1},
	{"1", RAID1},
	{"mirror", RAID1},
	{"raid4", RAID4},
	{"4", RAID4},
	{"raid5", RAID5},
	{"5", RAID5},
	{"raid6", RAID6},
	{"6", RAID6},
	{"raid10", RAID10},
	{"10", RAID10},
	{"multipath", Multipath},
	{"mp", Multipath},
	{"faulty", Faulty},
}

// ParseLevel accepts the names mdadm accepts for a level: "raid5", "5",
// "mirror", "multipath" and so on.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, l := range levelNames {
		if l.name == name {
			return l.level, nil
		}
	}

	return 0, errors.Wrapf(ErrUnknownLevel, "%q", s)
}

func (l Level) String() string {
	for _, n := range levelNames {
		if n.level == l {
			return n.name
		}
	}

	return "level" + strconv.Itoa(int(l))
}

// SlotsMeaningful reports whether a member's recorded slot number identifies
// its position in the array. Multipath members are interchangeable paths to
// the same storage, so their slot numbers carry no information.
func (l Level) SlotsMeaningful() bool {
	return l != Multipath
}

// Parity reports whether the level keeps parity that must be consistent with
// data before the array may run degraded.
func (l Level) Parity() bool {
	switch l {
	case RAID4, RAID5, RAID6:
		return true
	}

	return false
}

// SupportsHotAdd reports whether the driver can attach a device to a running
// array of this level.
func (l Level) SupportsHotAdd() bool {
	switch l {
	case RAID1, RAID4, RAID5, RAID6, RAID10, Multipath:
		return true
	}

	return false
}
