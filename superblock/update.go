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

package superblock

import (
	"sort"

	"github.com/pkg/errors"
)

// UpdateMode names a correction applied to every member's superblock during
// assembly.
type UpdateMode string

const (
	// UpdateNone applies no correction.
	UpdateNone UpdateMode = ""
	// UpdateSparc22 repairs superblocks written by 2.2 kernels on sparc,
	// which stored the event counter one word late.
	UpdateSparc22 UpdateMode = "sparc2.2"
	// UpdateSuperMinor records the minor number of the array being
	// assembled.
	UpdateSuperMinor UpdateMode = "super-minor"
	// UpdateSummaries recomputes the disk counters from the descriptors.
	UpdateSummaries UpdateMode = "summaries"
	// UpdateResync marks the array dirty so the driver resyncs it.
	UpdateResync UpdateMode = "resync"
)

// ErrUnknownUpdate is returned for update modes with no registered
// correction.
var ErrUnknownUpdate = errors.New("unknown update mode")

// UpdateEnv carries what a correction needs to know about the array being
// assembled.
type UpdateEnv struct {
	ArrayMinor uint32
}

// Correction rewrites a superblock in place.
type Correction func(sb *Superblock, env UpdateEnv)

var corrections = map[UpdateMode]Correction{
	UpdateSparc22:    fixSparc22,
	UpdateSuperMinor: fixSuperMinor,
	UpdateSummaries:  fixSummaries,
	UpdateResync:     forceResync,
}

// UpdateModes lists the registered update modes in lexical order.
func UpdateModes() []UpdateMode {
	modes := make([]UpdateMode, 0, len(corrections))
	for m := range corrections {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}

// ParseUpdateMode validates s as an update mode. The empty string is
// UpdateNone.
func ParseUpdateMode(s string) (UpdateMode, error) {
	mode := UpdateMode(s)
	if mode == UpdateNone {
		return mode, nil
	}

	if _, ok := corrections[mode]; !ok {
		return UpdateNone, errors.Wrapf(ErrUnknownUpdate, "%q", s)
	}
	return mode, nil
}

// Apply runs the correction registered for mode and refreshes the checksum.
func Apply(sb *Superblock, mode UpdateMode, env UpdateEnv) error {
	if mode == UpdateNone {
		return nil
	}

	fix, ok := corrections[mode]
	if !ok {
		return errors.Wrapf(ErrUnknownUpdate, "%q", mode)
	}

	fix(sb, env)
	sb.SetChecksum()
	return nil
}

func fixSparc22(sb *Superblock, _ UpdateEnv) {
	w := sb.words()
	// the sparc kernel wrote one extra word ahead of the event counter;
	// shift the tail down over it. The final word keeps its old value.
	copy(w[GenericConstantWords+7:], w[GenericConstantWords+7+1:])
	*sb = *fromWords(w)
}

func fixSuperMinor(sb *Superblock, env UpdateEnv) {
	sb.MDMinor = env.ArrayMinor
}

func fixSummaries(sb *Superblock, _ UpdateEnv) {
	sb.NrDisks = 0
	sb.ActiveDisks = 0
	sb.WorkingDisks = 0
	sb.FailedDisks = 0
	sb.SpareDisks = 0

	for i := range sb.Disks {
		d := &sb.Disks[i]
		if d.Major == 0 && d.Minor == 0 {
			if uint32(i) >= sb.RaidDisks && d.Number == 0 {
				d.State = DiskState{}
			}
			continue
		}

		if d.State.Removed {
			continue
		}

		sb.NrDisks++
		if d.State.Active {
			sb.ActiveDisks++
		}
		if d.State.Faulty {
			sb.FailedDisks++
		} else {
			sb.WorkingDisks++
		}
		if d.State.IsZero() {
			sb.SpareDisks++
		}
	}
}

func forceResync(sb *Superblock, _ UpdateEnv) {
	sb.State.Clean = false
	sb.RecoveryCP = 0
}
