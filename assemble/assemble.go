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

// Package assemble reconstructs an md array from the superblocks found on
// a set of candidate devices and hands the admissible members to the md
// driver.
//
// A run collects candidates, picks the newest candidate for each slot,
// decides which of them are current enough to count towards the array,
// optionally forces stale members current, reconciles the superblock the
// driver will trust and finally attaches the members and starts the array.
package assemble

import (
	"context"

	"github.com/containerd/log"
	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Distrotech/mdadm/internal/blockdev"
	"github.com/Distrotech/mdadm/mdctl"
	"github.com/Distrotech/mdadm/raid"
	"github.com/Distrotech/mdadm/superblock"
)

// Devices reads and writes member superblocks. Every call opens the device
// exclusively for its own duration.
type Devices interface {
	// Examine returns the device number and superblock of name. A device
	// that opens but has no valid superblock reports an error matching
	// superblock.ErrNoSuperblock.
	Examine(name string) (blockdev.Location, *superblock.Superblock, error)
	Read(name string) (*superblock.Superblock, error)
	Write(name string, sb *superblock.Superblock) error
}

// Driver controls the array being assembled.
type Driver interface {
	QueryActive(ctx context.Context) (bool, error)
	Prepare(ctx context.Context) error
	Attach(ctx context.Context, loc blockdev.Location, slot int) (mdctl.AttachOutcome, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// LegacyStarter is implemented by drivers that can start an array from the
// superblock of a single member, as kernels before 2.4 require.
type LegacyStarter interface {
	StartFrom(ctx context.Context, loc blockdev.Location) error
}

// RunPolicy decides whether an assembled array is started.
type RunPolicy int

const (
	// RunAuto starts the array when enough members are present.
	RunAuto RunPolicy = iota
	// RunForce starts the array regardless.
	RunForce
	// RunHold assembles the array without starting it.
	RunHold
)

func (p RunPolicy) String() string {
	switch p {
	case RunForce:
		return "run"
	case RunHold:
		return "hold"
	}
	return "auto"
}

// Identity constrains which devices belong to the array. Nil fields are
// unconstrained.
type Identity struct {
	UUID       *uuid.UUID
	SuperMinor *uint32
	Level      *raid.Level
	RaidDisks  *uint32
	// Devices are shell patterns device names must match.
	Devices []string
}

// Empty reports whether the identity cannot tell one array from another.
func (id Identity) Empty() bool {
	return id.UUID == nil && id.SuperMinor == nil && len(id.Devices) == 0
}

// Options configure one assembly run.
type Options struct {
	// Array names the md device in diagnostics.
	Array    string
	Identity Identity
	// Devices are the candidate device names, in the order they are
	// examined.
	Devices []string
	// Explicit is set when Devices were named by the operator rather than
	// taken from configuration.
	Explicit bool
	// Force permits promoting stale members and correcting the
	// authoritative superblock.
	Force bool
	Run   RunPolicy
	// Update is applied to every accepted member's superblock and written
	// back.
	Update superblock.UpdateMode
	// ArrayMinor is the minor number of the md device, for
	// superblock.UpdateSuperMinor.
	ArrayMinor uint32
	// Legacy selects the pre-2.4 START_ARRAY path.
	Legacy  bool
	Verbose bool
}

// assembly is the state of one run, threaded through every stage.
type assembly struct {
	ctx     context.Context
	opts    Options
	devices Devices
	driver  Driver
	log     *log.Entry

	first      *superblock.Superblock
	candidates []*Candidate
	slots      slotTable
	mostRecent *Candidate

	avail    []bool
	okcnt    int
	sparecnt int
	promoted int

	chosen        *Candidate
	authoritative *superblock.Superblock
	reqcnt        int

	warnings *multierror.Error
}

// Assemble collects the array described by opts from its candidate devices
// and activates it through driver.
//
// The returned Result is non-nil whenever the run got far enough to count
// members, including runs that end with ErrNotEnough or ErrNeedMore.
func Assemble(ctx context.Context, opts Options, devices Devices, driver Driver) (*Result, error) {
	a := &assembly{
		ctx:     ctx,
		opts:    opts,
		devices: devices,
		driver:  driver,
		log:     log.G(ctx).WithField("array", opts.Array),
	}

	active, err := driver.QueryActive(ctx)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrArrayActive
	}

	// in case it was started but has no content
	if err := driver.Stop(ctx); err != nil {
		a.log.WithError(err).Debug("stop before assembly failed")
	}

	if !opts.Explicit && opts.Identity.Empty() {
		return nil, ErrNoIdentity
	}

	if err := a.collect(); err != nil {
		return nil, err
	}

	a.classify()
	a.promote()

	if err := a.reconcile(); err != nil {
		return a.result(), err
	}

	return a.activate()
}

// diag reports a non-fatal condition. It is only shown by default when the
// operator named the device or asked for verbose output.
func (a *assembly) diag(entry *log.Entry, err error) {
	a.warnings = multierror.Append(a.warnings, err)
	if a.opts.Explicit || a.opts.Verbose {
		entry.Warn(err.Error())
		return
	}
	entry.Debug(err.Error())
}

// verbose logs progress that is only interesting with -v.
func (a *assembly) verbose(entry *log.Entry, format string, args ...interface{}) {
	level := logrus.DebugLevel
	if a.opts.Verbose {
		level = logrus.InfoLevel
	}
	entry.Logf(level, format, args...)
}

func (a *assembly) raidDisks() int {
	return int(a.first.RaidDisks)
}

func (a *assembly) enough() bool {
	return raid.Enough(a.first.Level, a.raidDisks(), a.first.Layout, a.avail)
}
