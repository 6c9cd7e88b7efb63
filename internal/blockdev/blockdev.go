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

// Package blockdev opens array members exclusively and reads and writes
// their md superblocks.
package blockdev

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/disk"
	"golang.org/x/sys/unix"

	"github.com/Distrotech/mdadm/superblock"
)

var (
	// ErrNotBlockDevice is returned when a member path names something
	// other than a block device.
	ErrNotBlockDevice = errors.New("not a block device")

	// ErrBusy is returned when another opener holds the device exclusively.
	ErrBusy = errors.New("device or resource busy")
)

// partitions is overridden in tests
var partitions = disk.Partitions

// Location is the device number of a block device.
type Location struct {
	Major uint32
	Minor uint32
}

// LocationOf splits a raw device number.
func LocationOf(rdev uint64) Location {
	return Location{Major: unix.Major(rdev), Minor: unix.Minor(rdev)}
}

// ParseLocation parses the "major:minor" form used by sysfs.
func ParseLocation(s string) (Location, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Location{}, errors.Errorf("invalid device number %q", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return Location{}, errors.Wrapf(err, "invalid major number in %q", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Location{}, errors.Wrapf(err, "invalid minor number in %q", s)
	}

	return Location{Major: uint32(major), Minor: uint32(minor)}, nil
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Major, l.Minor)
}

// Dev returns the raw device number.
func (l Location) Dev() uint64 {
	return unix.Mkdev(l.Major, l.Minor)
}

// Device is an exclusively opened array member.
type Device struct {
	Name     string
	Location Location

	file  *os.File
	block bool
}

// Open opens name exclusively. Regular files are accepted only when
// allowImages is set, for arrays built on image files.
func Open(name string, flag int, allowImages bool) (*Device, error) {
	f, err := os.OpenFile(name, flag|unix.O_EXCL, 0)
	if err != nil {
		if errors.Is(err, unix.EBUSY) {
			return nil, errors.Wrapf(ErrBusy, "%s%s", name, describeHolder(name))
		}
		return nil, errors.Wrapf(err, "cannot open device %s", name)
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "fstat failed for %s", name)
	}

	dev := &Device{
		Name: name,
		file: f,
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFBLK:
		dev.block = true
		dev.Location = LocationOf(uint64(st.Rdev))
	case unix.S_IFREG:
		if allowImages {
			break
		}
		fallthrough
	default:
		f.Close()
		return nil, errors.Wrapf(ErrNotBlockDevice, "%s", name)
	}

	return dev, nil
}

// Close releases the device.
func (d *Device) Close() error {
	return d.file.Close()
}

// Size returns the size of the device in bytes.
func (d *Device) Size() (int64, error) {
	size, err := d.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot determine size of %s", d.Name)
	}
	return size, nil
}

// Flush drops cached blocks of a block device so the next read sees what
// is on disk. Failure is not reported; regular files have nothing to drop.
func (d *Device) Flush() {
	if d.block {
		_ = unix.IoctlSetInt(int(d.file.Fd()), unix.BLKFLSBUF, 0)
	}
}

// ReadSuperblock reads and decodes the device's superblock.
func (d *Device) ReadSuperblock() (*superblock.Superblock, error) {
	off, err := d.offset()
	if err != nil {
		return nil, err
	}

	d.Flush()

	buf := make([]byte, superblock.Size)
	if _, err := d.file.ReadAt(buf, off); err != nil {
		return nil, errors.Wrapf(err, "cannot read superblock of %s", d.Name)
	}

	sb, err := superblock.Decode(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", d.Name)
	}
	return sb, nil
}

// WriteSuperblock encodes sb at the superblock offset and syncs the device.
// The caller is responsible for the checksum.
func (d *Device) WriteSuperblock(sb *superblock.Superblock) error {
	off, err := d.offset()
	if err != nil {
		return err
	}

	if _, err := d.file.WriteAt(sb.Encode(), off); err != nil {
		return errors.Wrapf(err, "could not re-write superblock on %s", d.Name)
	}

	return errors.Wrapf(d.file.Sync(), "could not sync %s", d.Name)
}

func (d *Device) offset() (int64, error) {
	size, err := d.Size()
	if err != nil {
		return 0, err
	}

	off, err := superblock.Offset(size)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", d.Name)
	}
	return off, nil
}

// describeHolder names the mountpoint of a busy device, if it is mounted.
func describeHolder(name string) string {
	resolved, err := filepath.EvalSymlinks(name)
	if err != nil {
		resolved = name
	}

	parts, err := partitions(true)
	if err != nil {
		return ""
	}

	for _, p := range parts {
		if p.Device == name || p.Device == resolved {
			return fmt.Sprintf(" (mounted on %s)", p.Mountpoint)
		}
	}
	return ""
}
