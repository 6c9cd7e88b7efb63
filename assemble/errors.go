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
)

// Fatal errors end the run.
var (
	// ErrNoIdentity is returned when devices come from configuration but
	// nothing identifies which of them belong to the array.
	ErrNoIdentity = errors.New("no identity information available - cannot assemble")

	// ErrArrayActive is returned when the array is already running.
	ErrArrayActive = errors.New("already active - cannot assemble it")

	// ErrNoDevices is returned when no candidate was accepted.
	ErrNoDevices = errors.New("no devices found")

	// ErrMissingMetadata is returned when a device that passed the identity
	// checks has no superblock.
	ErrMissingMetadata = errors.New("has no superblock - assembly aborted")

	// ErrIncompatibleMetadata is returned when an accepted device's
	// superblock does not describe the same array as the first one.
	ErrIncompatibleMetadata = errors.New("superblock doesn't match others - assembly aborted")

	// ErrNoAuthoritative is returned when no member is current enough to
	// base the array on.
	ErrNoAuthoritative = errors.New("no uptodate device to base the array on")

	// ErrPrepare is returned when the driver rejects the array.
	ErrPrepare = errors.New("driver refused to prepare the array")

	// ErrStart is returned when the driver fails to start the array.
	ErrStart = errors.New("failed to start the array")

	// ErrNotEnough is returned when the members present cannot run the
	// array.
	ErrNotEnough = errors.New("not enough to start the array")

	// ErrNeedMore is returned when the array could run degraded but fewer
	// members are present than its superblock expects, and nothing
	// permits a partial start.
	ErrNeedMore = errors.New("not all expected members present (use --run to insist)")
)

// Non-fatal errors describe skipped devices and failed attaches. They are
// collected in Result.Warnings.
var (
	// ErrIdentityMismatch marks a device that belongs to another array.
	ErrIdentityMismatch = errors.New("does not match the array identity")

	// ErrDeviceUnavailable marks a device that could not be opened or read.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrWriteFailed marks a superblock that could not be rewritten.
	ErrWriteFailed = errors.New("could not re-write superblock")

	// ErrNotMarkedFaulty marks a member left out of the array whose slot
	// the authoritative superblock still records as working.
	ErrNotMarkedFaulty = errors.New("is not up to date but its slot is not marked faulty")

	// ErrAttachFailed marks a member the driver did not accept.
	ErrAttachFailed = errors.New("failed to add device")
)
