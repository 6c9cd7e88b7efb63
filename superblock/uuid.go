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
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// UUID returns the array UUID. Superblocks older than minor version 90 only
// carry the first word.
func (sb *Superblock) UUID() uuid.UUID {
	set := sb.SetUUID
	if sb.MinorVersion < 90 {
		set[1], set[2], set[3] = 0, 0, 0
	}

	var u uuid.UUID
	for i, w := range set {
		binary.BigEndian.PutUint32(u[i*4:], w)
	}
	return u
}

// SetArrayUUID stores u in the superblock's uuid words.
func (sb *Superblock) SetArrayUUID(u uuid.UUID) {
	for i := range sb.SetUUID {
		sb.SetUUID[i] = binary.BigEndian.Uint32(u[i*4:])
	}
}

// ParseUUID accepts an array UUID in the colon separated form mdadm prints
// ("8a7c1b2e:11223344:55667788:99aabbcc"), in canonical form, or as 32 bare
// hex digits.
func ParseUUID(s string) (uuid.UUID, error) {
	hex := strings.Map(func(r rune) rune {
		switch r {
		case ':', '.', '-', ' ':
			return -1
		}
		return r
	}, s)

	u, err := uuid.FromString(hex)
	if err != nil || len(hex) != 32 {
		return uuid.Nil, errors.Errorf("invalid array uuid %q", s)
	}
	return u, nil
}

// FormatUUID renders u the way mdadm prints array UUIDs.
func FormatUUID(u uuid.UUID) string {
	return fmt.Sprintf("%08x:%08x:%08x:%08x",
		binary.BigEndian.Uint32(u[0:]),
		binary.BigEndian.Uint32(u[4:]),
		binary.BigEndian.Uint32(u[8:]),
		binary.BigEndian.Uint32(u[12:]))
}
