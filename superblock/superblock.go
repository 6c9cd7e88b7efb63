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

// Package superblock encodes and decodes the md version 0.90 persistent
// superblock that every member of an md array carries near the end of the
// device.
package superblock

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/Distrotech/mdadm/raid"
)

const (
	// Magic identifies an md superblock.
	Magic = 0xa92b4efc

	// Size is the on-disk size of the superblock in bytes.
	Size = 4096

	// MaxDisks is the number of disk descriptors a 0.90 superblock holds.
	MaxDisks = 27

	// ReservedSectors is the size of the area at the end of each member
	// reserved for the superblock, in 512 byte sectors.
	ReservedSectors = 128

	// ReservedBytes is ReservedSectors in bytes.
	ReservedBytes = ReservedSectors * 512

	wordCount       = Size / 4
	descriptorWords = 32
)

// word offsets of the 0.90 layout
const (
	wMagic         = 0
	wMajorVersion  = 1
	wMinorVersion  = 2
	wPatchVersion  = 3
	wGValidWords   = 4
	wUUID0         = 5
	wCTime         = 6
	wLevel         = 7
	wSize          = 8
	wNrDisks       = 9
	wRaidDisks     = 10
	wMDMinor       = 11
	wNotPersistent = 12
	wUUID1         = 13
	wConstReserved = 16

	// GenericConstantWords is the length of the generic constant section.
	GenericConstantWords = 32

	wUTime         = 32
	wState         = 33
	wActiveDisks   = 34
	wWorkingDisks  = 35
	wFailedDisks   = 36
	wSpareDisks    = 37
	wChecksum      = 38
	wEventsLo      = 39
	wEventsHi      = 40
	wCPEventsLo    = 41
	wCPEventsHi    = 42
	wRecoveryCP    = 43
	wStateReserved = 44

	wLayout       = 64
	wChunkSize    = 65
	wRootPV       = 66
	wRootBlock    = 67
	wPersReserved = 68

	wDisks    = 128
	wThisDisk = wordCount - descriptorWords
)

var (
	// ErrNoSuperblock is returned when a device does not carry a valid
	// 0.90 superblock.
	ErrNoSuperblock = errors.New("no md superblock")

	// ErrUnsupportedVersion is returned for superblocks of another major
	// version.
	ErrUnsupportedVersion = errors.New("unsupported superblock major version")

	// ErrShortRecord is returned when fewer than Size bytes are supplied.
	ErrShortRecord = errors.New("superblock record too short")

	// ErrDeviceTooSmall is returned by Offset for devices that cannot hold
	// a superblock.
	ErrDeviceTooSmall = errors.New("device too small for an md superblock")
)

// DiskState is the decoded form of a disk descriptor's state word.
type DiskState struct {
	Faulty  bool // bit 0
	Active  bool // bit 1
	Sync    bool // bit 2
	Removed bool // bit 3

	extra uint32
}

const (
	diskFaulty  = 0
	diskActive  = 1
	diskSync    = 2
	diskRemoved = 3
	diskKnown   = 1<<diskFaulty | 1<<diskActive | 1<<diskSync | 1<<diskRemoved
)

func decodeDiskState(w uint32) DiskState {
	return DiskState{
		Faulty:  w&(1<<diskFaulty) != 0,
		Active:  w&(1<<diskActive) != 0,
		Sync:    w&(1<<diskSync) != 0,
		Removed: w&(1<<diskRemoved) != 0,
		extra:   w &^ diskKnown,
	}
}

// Bits returns the on-disk representation of the state.
func (s DiskState) Bits() uint32 {
	w := s.extra
	if s.Faulty {
		w |= 1 << diskFaulty
	}
	if s.Active {
		w |= 1 << diskActive
	}
	if s.Sync {
		w |= 1 << diskSync
	}
	if s.Removed {
		w |= 1 << diskRemoved
	}
	return w
}

// IsZero reports whether no state bit is set, which is how a spare is
// recorded.
func (s DiskState) IsZero() bool {
	return s == DiskState{}
}

// ArrayState is the decoded form of the superblock state word.
type ArrayState struct {
	Clean  bool // bit 0
	Errors bool // bit 1

	extra uint32
}

const (
	arrayClean  = 0
	arrayErrors = 1
	arrayKnown  = 1<<arrayClean | 1<<arrayErrors
)

func decodeArrayState(w uint32) ArrayState {
	return ArrayState{
		Clean:  w&(1<<arrayClean) != 0,
		Errors: w&(1<<arrayErrors) != 0,
		extra:  w &^ arrayKnown,
	}
}

// Bits returns the on-disk representation of the state.
func (s ArrayState) Bits() uint32 {
	w := s.extra
	if s.Clean {
		w |= 1 << arrayClean
	}
	if s.Errors {
		w |= 1 << arrayErrors
	}
	return w
}

// Disk is one disk descriptor.
type Disk struct {
	Number   uint32
	Major    uint32
	Minor    uint32
	RaidDisk uint32
	State    DiskState

	reserved [descriptorWords - 5]uint32
}

// Superblock is the md 0.90 persistent superblock. Reserved words are kept
// so that Encode reproduces a decoded record exactly.
type Superblock struct {
	Magic         uint32
	MajorVersion  uint32
	MinorVersion  uint32
	PatchVersion  uint32
	GValidWords   uint32
	SetUUID       [4]uint32
	CTime         uint32
	Level         raid.Level
	Size          uint32 // per-device size in KiB
	NrDisks       uint32
	RaidDisks     uint32
	MDMinor       uint32
	NotPersistent uint32

	UTime        uint32
	State        ArrayState
	ActiveDisks  uint32
	WorkingDisks uint32
	FailedDisks  uint32
	SpareDisks   uint32
	Csum         uint32
	Events       uint64
	CPEvents     uint64
	RecoveryCP   uint32

	Layout    uint32
	ChunkSize uint32
	RootPV    uint32
	RootBlock uint32

	Disks    [MaxDisks]Disk
	ThisDisk Disk

	constReserved [GenericConstantWords - 16]uint32
	stateReserved [20]uint32
	persReserved  [wDisks - wPersReserved]uint32
}

type words [wordCount]uint32

// Decode parses a superblock from the first Size bytes of buf.
func Decode(buf []byte) (*Superblock, error) {
	if len(buf) < Size {
		return nil, errors.Wrapf(ErrShortRecord, "got %d bytes", len(buf))
	}

	var w words
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}

	if w[wMagic] != Magic {
		return nil, ErrNoSuperblock
	}

	if w[wMajorVersion] != 0 {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "%d", w[wMajorVersion])
	}

	return fromWords(&w), nil
}

// Encode returns the on-disk form of the superblock. The checksum word is
// written as stored in Csum; call SetChecksum first when fields changed.
func (sb *Superblock) Encode() []byte {
	w := sb.words()
	buf := make([]byte, Size)
	for i, v := range w {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

// Checksum computes the checksum of the superblock as the driver does: the
// 64 bit sum of every word with the checksum word taken as zero, folded to
// 32 bits.
func (sb *Superblock) Checksum() uint32 {
	w := sb.words()
	w[wChecksum] = 0

	var sum uint64
	for _, v := range w {
		sum += uint64(v)
	}
	return uint32(sum&0xffffffff + sum>>32)
}

// SetChecksum stores the current checksum in Csum.
func (sb *Superblock) SetChecksum() {
	sb.Csum = sb.Checksum()
}

// Clone returns a deep copy of the superblock.
func (sb *Superblock) Clone() *Superblock {
	c := *sb
	return &c
}

// Offset returns the byte offset of the superblock on a device of the given
// size: the last 64KiB aligned block, minus one reserved area.
func Offset(size int64) (int64, error) {
	if size < 2*ReservedBytes {
		return 0, errors.Wrapf(ErrDeviceTooSmall, "%d bytes", size)
	}

	sectors := uint64(size) >> 9
	sectors = (sectors &^ (ReservedSectors - 1)) - ReservedSectors
	return int64(sectors << 9), nil
}

func fromWords(w *words) *Superblock {
	sb := &Superblock{
		Magic:         w[wMagic],
		MajorVersion:  w[wMajorVersion],
		MinorVersion:  w[wMinorVersion],
		PatchVersion:  w[wPatchVersion],
		GValidWords:   w[wGValidWords],
		SetUUID:       [4]uint32{w[wUUID0], w[wUUID1], w[wUUID1+1], w[wUUID1+2]},
		CTime:         w[wCTime],
		Level:         raid.Level(int32(w[wLevel])),
		Size:          w[wSize],
		NrDisks:       w[wNrDisks],
		RaidDisks:     w[wRaidDisks],
		MDMinor:       w[wMDMinor],
		NotPersistent: w[wNotPersistent],

		UTime:        w[wUTime],
		State:        decodeArrayState(w[wState]),
		ActiveDisks:  w[wActiveDisks],
		WorkingDisks: w[wWorkingDisks],
		FailedDisks:  w[wFailedDisks],
		SpareDisks:   w[wSpareDisks],
		Csum:         w[wChecksum],
		Events:       uint64(w[wEventsHi])<<32 | uint64(w[wEventsLo]),
		CPEvents:     uint64(w[wCPEventsHi])<<32 | uint64(w[wCPEventsLo]),
		RecoveryCP:   w[wRecoveryCP],

		Layout:    w[wLayout],
		ChunkSize: w[wChunkSize],
		RootPV:    w[wRootPV],
		RootBlock: w[wRootBlock],
	}

	copy(sb.constReserved[:], w[wConstReserved:GenericConstantWords])
	copy(sb.stateReserved[:], w[wStateReserved:wLayout])
	copy(sb.persReserved[:], w[wPersReserved:wDisks])

	for i := range sb.Disks {
		sb.Disks[i] = diskFromWords(w[wDisks+i*descriptorWords:])
	}
	sb.ThisDisk = diskFromWords(w[wThisDisk:])

	return sb
}

func (sb *Superblock) words() *words {
	var w words

	w[wMagic] = sb.Magic
	w[wMajorVersion] = sb.MajorVersion
	w[wMinorVersion] = sb.MinorVersion
	w[wPatchVersion] = sb.PatchVersion
	w[wGValidWords] = sb.GValidWords
	w[wUUID0] = sb.SetUUID[0]
	w[wCTime] = sb.CTime
	w[wLevel] = uint32(int32(sb.Level))
	w[wSize] = sb.Size
	w[wNrDisks] = sb.NrDisks
	w[wRaidDisks] = sb.RaidDisks
	w[wMDMinor] = sb.MDMinor
	w[wNotPersistent] = sb.NotPersistent
	w[wUUID1] = sb.SetUUID[1]
	w[wUUID1+1] = sb.SetUUID[2]
	w[wUUID1+2] = sb.SetUUID[3]
	copy(w[wConstReserved:GenericConstantWords], sb.constReserved[:])

	w[wUTime] = sb.UTime
	w[wState] = sb.State.Bits()
	w[wActiveDisks] = sb.ActiveDisks
	w[wWorkingDisks] = sb.WorkingDisks
	w[wFailedDisks] = sb.FailedDisks
	w[wSpareDisks] = sb.SpareDisks
	w[wChecksum] = sb.Csum
	w[wEventsLo] = uint32(sb.Events)
	w[wEventsHi] = uint32(sb.Events >> 32)
	w[wCPEventsLo] = uint32(sb.CPEvents)
	w[wCPEventsHi] = uint32(sb.CPEvents >> 32)
	w[wRecoveryCP] = sb.RecoveryCP
	copy(w[wStateReserved:wLayout], sb.stateReserved[:])

	w[wLayout] = sb.Layout
	w[wChunkSize] = sb.ChunkSize
	w[wRootPV] = sb.RootPV
	w[wRootBlock] = sb.RootBlock
	copy(w[wPersReserved:wDisks], sb.persReserved[:])

	for i := range sb.Disks {
		sb.Disks[i].putWords(w[wDisks+i*descriptorWords:])
	}
	sb.ThisDisk.putWords(w[wThisDisk:])

	return &w
}

func diskFromWords(w []uint32) Disk {
	d := Disk{
		Number:   w[0],
		Major:    w[1],
		Minor:    w[2],
		RaidDisk: w[3],
		State:    decodeDiskState(w[4]),
	}
	copy(d.reserved[:], w[5:descriptorWords])
	return d
}

func (d *Disk) putWords(w []uint32) {
	w[0] = d.Number
	w[1] = d.Major
	w[2] = d.Minor
	w[3] = d.RaidDisk
	w[4] = d.State.Bits()
	copy(w[5:descriptorWords], d.reserved[:])
}
