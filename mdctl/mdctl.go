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

// Package mdctl drives the Linux md driver through its ioctl interface and
// its sysfs tree.
package mdctl

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/Distrotech/mdadm/internal/blockdev"
)

// ioctl numbers from linux/raid/md_u.h
const (
	raidVersion   = 0x800c0910 // _IOR(MD_MAJOR, 0x10, mdu_version_t)
	getArrayInfo  = 0x80480911 // _IOR(MD_MAJOR, 0x11, mdu_array_info_t)
	addNewDisk    = 0x40140921 // _IOW(MD_MAJOR, 0x21, mdu_disk_info_t)
	hotRemoveDisk = 0x922      // _IO(MD_MAJOR, 0x22)
	setArrayInfo  = 0x40480923 // _IOW(MD_MAJOR, 0x23, mdu_array_info_t)
	runArray      = 0x400c0930 // _IOW(MD_MAJOR, 0x30, mdu_param_t)
	startArray    = 0x931      // _IO(MD_MAJOR, 0x31)
	stopArray     = 0x932      // _IO(MD_MAJOR, 0x32)
	mdMajor       = 9
	minAssembleMD = 9000 // 0.90.0
)

var (
	// ErrNotMDDevice is returned by Open for nodes that are not md arrays.
	ErrNotMDDevice = errors.New("not an md device")

	// ErrDriverTooOld is returned by Open when the md driver predates the
	// 0.90 superblock.
	ErrDriverTooOld = errors.New("md driver version 0.90.0 or later required")
)

// ioctl and ioctlValue are replaced in tests.
var (
	ioctl = func(fd uintptr, req uintptr, arg unsafe.Pointer) error {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg)); errno != 0 {
			return errno
		}
		return nil
	}

	ioctlValue = func(fd uintptr, req uintptr, arg uintptr) error {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg); errno != 0 {
			return errno
		}
		return nil
	}

	uname = unix.Uname
)

// AttachOutcome is the driver's answer to an attach request that did not
// fail outright.
type AttachOutcome int

const (
	// Accepted means the driver took the device and is tracking it.
	Accepted AttachOutcome = iota
	// AlreadyPresent means the device is already part of the array, or its
	// slot is already taken, and nothing changed.
	AlreadyPresent
)

func (o AttachOutcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case AlreadyPresent:
		return "already present"
	}
	return "AttachOutcome(" + strconv.Itoa(int(o)) + ")"
}

// Version is the md driver version.
type Version struct {
	Major, Minor, Patch int32
}

func (v Version) code() int {
	return int(v.Major)*10000 + int(v.Minor)*100 + int(v.Patch)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// mdu_disk_info_t
type diskInfo struct {
	Number   int32
	Major    int32
	Minor    int32
	RaidDisk int32
	State    int32
}

// mdu_array_info_t
type arrayInfo struct {
	MajorVersion  int32
	MinorVersion  int32
	PatchVersion  int32
	CTime         int32
	Level         int32
	Size          int32
	NrDisks       int32
	RaidDisks     int32
	MDMinor       int32
	NotPersistent int32
	UTime         int32
	State         int32
	ActiveDisks   int32
	WorkingDisks  int32
	FailedDisks   int32
	SpareDisks    int32
	Layout        int32
	ChunkSize     int32
}

// Controller issues control requests to one md array.
type Controller struct {
	Path     string
	Location blockdev.Location
	Version  Version

	// SysfsRoot is where sysfs is mounted, "/sys" unless overridden.
	SysfsRoot string

	// Logger, when set, is used instead of the context's logger.
	Logger *log.Entry

	file *os.File
}

// Open opens the md device node at path and checks the driver version.
func Open(path string) (*Controller, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s", path)
	}

	c, err := newController(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func newController(path string, f *os.File) (*Controller, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return nil, errors.Wrapf(err, "fstat failed for %s", path)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFBLK {
		return nil, errors.Wrapf(ErrNotMDDevice, "%s", path)
	}

	c := &Controller{
		Path:      path,
		Location:  blockdev.LocationOf(uint64(st.Rdev)),
		SysfsRoot: "/sys",
		file:      f,
	}

	var v Version
	if err := ioctl(f.Fd(), raidVersion, unsafe.Pointer(&v)); err != nil {
		if errors.Is(err, unix.EACCES) || c.Location.Major != mdMajor {
			return nil, errors.Wrapf(ErrNotMDDevice, "%s appears not to be an md device", path)
		}
		// drivers from before the ioctl existed
		v = Version{Major: 0, Minor: 36, Patch: 0}
	}
	c.Version = v

	if v.code() < minAssembleMD {
		return nil, errors.Wrapf(ErrDriverTooOld, "%s has %s", path, v)
	}

	return c, nil
}

func (c *Controller) logger(ctx context.Context) *log.Entry {
	if c.Logger != nil {
		return c.Logger
	}
	return log.G(ctx)
}

// Close releases the device node.
func (c *Controller) Close() error {
	return c.file.Close()
}

// Minor returns the array's minor number.
func (c *Controller) Minor() uint32 {
	return c.Location.Minor
}

// Legacy reports whether the running kernel predates 2.4 and therefore
// assembles arrays with START_ARRAY rather than per-disk requests.
func (c *Controller) Legacy() bool {
	var u unix.Utsname
	if err := uname(&u); err != nil {
		return false
	}

	release := unix.ByteSliceToString(u.Release[:])
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minor, err := strconv.Atoi(strings.TrimFunc(parts[1], func(r rune) bool { return r < '0' || r > '9' }))
	if err != nil {
		return false
	}

	return major < 2 || (major == 2 && minor < 4)
}

// QueryActive reports whether the array is running.
func (c *Controller) QueryActive(ctx context.Context) (bool, error) {
	var info arrayInfo
	if err := ioctl(c.file.Fd(), getArrayInfo, unsafe.Pointer(&info)); err != nil {
		c.logger(ctx).WithError(err).WithField("array", c.Path).Debug("GET_ARRAY_INFO failed, array is inactive")
		return false, nil
	}
	return true, nil
}

// Prepare readies an inactive array to receive members whose superblocks
// describe it.
func (c *Controller) Prepare(ctx context.Context) error {
	if err := ioctl(c.file.Fd(), setArrayInfo, nil); err != nil {
		return errors.Wrapf(err, "SET_ARRAY_INFO failed for %s", c.Path)
	}
	return nil
}

// Attach hands a member to an array being assembled. The driver reads the
// member's slot from its superblock; slot is only reported.
func (c *Controller) Attach(ctx context.Context, loc blockdev.Location, slot int) (AttachOutcome, error) {
	disk := diskInfo{
		Major: int32(loc.Major),
		Minor: int32(loc.Minor),
	}

	c.logger(ctx).WithFields(log.Fields{
		"array":  c.Path,
		"device": loc.String(),
		"slot":   slot,
	}).Debug("ADD_NEW_DISK")

	if err := ioctl(c.file.Fd(), addNewDisk, unsafe.Pointer(&disk)); err != nil {
		return attachOutcome(err, "failed to add %s to %s", loc, c.Path)
	}
	return Accepted, nil
}

// Start runs the array with the members attached so far.
func (c *Controller) Start(ctx context.Context) error {
	if err := ioctl(c.file.Fd(), runArray, nil); err != nil {
		return errors.Wrapf(err, "failed to RUN_ARRAY %s", c.Path)
	}
	return nil
}

// Stop stops the array and releases its members.
func (c *Controller) Stop(ctx context.Context) error {
	if err := ioctl(c.file.Fd(), stopArray, nil); err != nil {
		return errors.Wrapf(err, "failed to STOP_ARRAY %s", c.Path)
	}
	return nil
}

// StartFrom starts the array on kernels before 2.4, which find the other
// members through the superblock of the given one.
func (c *Controller) StartFrom(ctx context.Context, loc blockdev.Location) error {
	// old_encode_dev
	dev := uintptr(loc.Major<<8 | loc.Minor)
	if err := ioctlValue(c.file.Fd(), startArray, dev); err != nil {
		return errors.Wrapf(err, "cannot start array %s", c.Path)
	}
	return nil
}

// attachOutcome separates "nothing to do" answers from real failures.
func attachOutcome(err error, format string, args ...interface{}) (AttachOutcome, error) {
	if errors.Is(err, unix.EBUSY) || errors.Is(err, unix.EEXIST) {
		return AlreadyPresent, nil
	}
	return Accepted, errors.Wrapf(err, format, args...)
}
