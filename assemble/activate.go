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
	"github.com/pkg/errors"

	"github.com/Distrotech/mdadm/mdctl"
)

// activate hands the admitted members to the driver and decides whether
// the array is started.
func (a *assembly) activate() (*Result, error) {
	a.reqcnt = 0
	for i := 0; i < int(a.authoritative.RaidDisks) && i < len(a.authoritative.Disks); i++ {
		s := a.authoritative.Disks[i].State
		if s.Sync && s.Active && !s.Faulty {
			a.reqcnt++
		}
	}

	if a.opts.Legacy {
		return a.activateLegacy()
	}

	if err := a.driver.Prepare(a.ctx); err != nil {
		return a.result(), errors.Wrapf(ErrPrepare, "%s: %v", a.opts.Array, err)
	}

	for i := 0; i < a.slots.len(); i++ {
		c := a.slots.get(i)
		if c == nil {
			if i < a.raidDisks() {
				a.verbose(a.log, "no uptodate device for slot %d of %s", i, a.opts.Array)
			}
			continue
		}
		if c == a.chosen || !(c.Uptodate || c.Class == Spare) {
			continue
		}
		a.attach(c)
	}
	a.attach(a.chosen)

	if a.opts.Run == RunHold {
		res := a.result()
		res.Held = true
		a.log.Info(res.Summary())
		return res, nil
	}

	enough := a.enough()
	if a.opts.Run == RunForce ||
		(enough && (a.okcnt >= a.reqcnt || a.opts.Force || !a.opts.Explicit)) {
		if err := a.driver.Start(a.ctx); err != nil {
			return a.result(), errors.Wrapf(ErrStart, "%s: %v", a.opts.Array, err)
		}
		res := a.result()
		res.Started = true
		a.log.WithFields(res.Fields()).Info(res.Summary())
		return res, nil
	}

	res := a.result()
	if !enough {
		return res, errors.Wrap(ErrNotEnough, res.Summary())
	}
	return res, errors.Wrap(ErrNeedMore, res.Summary())
}

// attach hands one member to the driver. A member the driver does not
// take stops counting towards the array.
func (a *assembly) attach(c *Candidate) {
	logger := a.log.WithField("device", c.Name)

	outcome, err := a.driver.Attach(a.ctx, c.Location, c.Index)
	if err == nil && outcome == mdctl.Accepted {
		a.verbose(logger, "added %s to %s as %d", c.Name, a.opts.Array, c.Index)
		return
	}
	if err == nil {
		err = errors.Errorf("%s", outcome)
	}

	a.diag(logger, errors.Wrapf(ErrAttachFailed, "%s to %s: %v", c.Name, a.opts.Array, err))
	if c.Class == Active {
		a.okcnt--
		a.avail[c.Index] = false
	} else {
		a.sparecnt--
	}
	c.Uptodate = false
}

// activateLegacy starts the array through the authoritative member. The
// driver finds the rest itself.
func (a *assembly) activateLegacy() (*Result, error) {
	starter, ok := a.driver.(LegacyStarter)
	if !ok {
		return a.result(), errors.Wrapf(ErrStart, "%s: driver cannot start from a single member", a.opts.Array)
	}
	if err := starter.StartFrom(a.ctx, a.chosen.Location); err != nil {
		return a.result(), errors.Wrapf(ErrStart, "%s: %v", a.opts.Array, err)
	}

	res := a.result()
	res.Started = true
	a.log.WithFields(res.Fields()).Info(res.Summary())
	return res, nil
}
