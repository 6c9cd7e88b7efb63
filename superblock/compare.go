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
	"github.com/pkg/errors"
)

// ErrMismatch is returned by Compatible when two superblocks cannot describe
// the same array.
var ErrMismatch = errors.New("superblock does not match")

// Compatible checks that other describes the same array as sb: same uuid,
// same format version and the same creation time, level, member size and
// member count.
func (sb *Superblock) Compatible(other *Superblock) error {
	if other.Magic != Magic {
		return ErrNoSuperblock
	}

	if sb.UUID() != other.UUID() {
		return errors.Wrapf(ErrMismatch, "uuid %s != %s", FormatUUID(other.UUID()), FormatUUID(sb.UUID()))
	}

	fields := []struct {
		name string
		a, b uint32
	}{
		{"major version", sb.MajorVersion, other.MajorVersion},
		{"minor version", sb.MinorVersion, other.MinorVersion},
		{"patch version", sb.PatchVersion, other.PatchVersion},
		{"gvalid words", sb.GValidWords, other.GValidWords},
		{"ctime", sb.CTime, other.CTime},
		{"level", uint32(sb.Level), uint32(other.Level)},
		{"size", sb.Size, other.Size},
		{"raid disks", sb.RaidDisks, other.RaidDisks},
	}

	for _, f := range fields {
		if f.a != f.b {
			return errors.Wrapf(ErrMismatch, "%s %d != %d", f.name, f.b, f.a)
		}
	}

	return nil
}
