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

package blockdev

import (
	"os"

	"github.com/Distrotech/mdadm/superblock"
)

// Store reads and writes member superblocks by device name. Every call
// opens the device exclusively and closes it again before returning.
type Store struct {
	// AllowImages admits regular files as members.
	AllowImages bool
}

// Examine opens name read-only and returns its device number together with
// its superblock. When the device opens but carries no superblock the
// location is still returned, with an error matching
// superblock.ErrNoSuperblock.
func (s *Store) Examine(name string) (Location, *superblock.Superblock, error) {
	dev, err := Open(name, os.O_RDONLY, s.AllowImages)
	if err != nil {
		return Location{}, nil, err
	}
	defer dev.Close()

	sb, err := dev.ReadSuperblock()
	return dev.Location, sb, err
}

// Read re-reads the superblock of name.
func (s *Store) Read(name string) (*superblock.Superblock, error) {
	_, sb, err := s.Examine(name)
	return sb, err
}

// Write stores sb on name.
func (s *Store) Write(name string, sb *superblock.Superblock) error {
	dev, err := Open(name, os.O_RDWR, s.AllowImages)
	if err != nil {
		return err
	}
	defer dev.Close()

	return dev.WriteSuperblock(sb)
}
