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
	"fmt"
	"strings"

	"github.com/containerd/log"
	units "github.com/docker/go-units"
	"github.com/gofrs/uuid"

	"github.com/Distrotech/mdadm/raid"
	"github.com/Distrotech/mdadm/superblock"
)

// Result describes how far an assembly got.
type Result struct {
	Array     string
	Level     raid.Level
	UUID      uuid.UUID
	RaidDisks int

	// Active is the number of members counting towards the array.
	Active int
	Spares int
	// Required is the number of members the authoritative superblock
	// expects to be active.
	Required int
	Promoted int

	// Enough is set when the active members can run the array.
	Enough  bool
	Started bool
	Held    bool

	// Size is the usable size of each member in bytes.
	Size int64

	// Authoritative names the member whose superblock the array was
	// based on.
	Authoritative string
	Candidates    []*Candidate

	// Warnings holds every non-fatal condition met on the way.
	Warnings error
}

func (a *assembly) result() *Result {
	res := &Result{
		Array:      a.opts.Array,
		Active:     a.okcnt,
		Spares:     a.sparecnt,
		Required:   a.reqcnt,
		Promoted:   a.promoted,
		Candidates: a.candidates,
		Warnings:   a.warnings.ErrorOrNil(),
	}
	if a.first != nil {
		res.Level = a.first.Level
		res.UUID = a.first.UUID()
		res.RaidDisks = a.raidDisks()
		res.Size = int64(a.first.Size) * 1024
		res.Enough = a.avail != nil && a.enough()
	}
	if a.chosen != nil {
		res.Authoritative = a.chosen.Name
	}
	return res
}

// Summary renders the outcome the way an operator expects to read it.
func (r *Result) Summary() string {
	switch {
	case r.Started:
		var missing string
		if r.Active < r.RaidDisks {
			missing = fmt.Sprintf(" (out of %d)", r.RaidDisks)
		}
		return fmt.Sprintf("%s has been started with %s%s%s.",
			r.Array, plural(r.Active, "drive"), missing, r.spares(" and %s"))
	case r.Held:
		return fmt.Sprintf("%s assembled from %s%s, but not started.",
			r.Array, plural(r.Active, "drive"), r.spares(" and %s"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s assembled from %s%s", r.Array, plural(r.Active, "drive"), r.spares(" and %s"))
	switch {
	case !r.Enough:
		fmt.Fprintf(&b, " - not enough to start the array, need %d of %d", r.Required, r.RaidDisks)
	case r.Required >= r.RaidDisks:
		fmt.Fprintf(&b, " - need all %d to start it", r.RaidDisks)
	default:
		fmt.Fprintf(&b, " - need %d of %d to start", r.Required, r.RaidDisks)
	}
	b.WriteString(" (use --run to insist).")
	return b.String()
}

func (r *Result) spares(format string) string {
	if r.Spares == 0 {
		return ""
	}
	return fmt.Sprintf(format, plural(r.Spares, "spare"))
}

// Fields returns the result as structured log fields.
func (r *Result) Fields() log.Fields {
	return log.Fields{
		"level":    r.Level.String(),
		"uuid":     superblock.FormatUUID(r.UUID),
		"active":   r.Active,
		"spares":   r.Spares,
		"required": r.Required,
		"promoted": r.Promoted,
		"size":     units.BytesSize(float64(r.Size)),
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
