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

// Package losetup backs md members with loop devices for integration tests.
package losetup

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
)

// CreateImage creates a sparse image file of the given human readable size
// ("16Mb", "1GiB") in dir.
func CreateImage(dir, size string) (string, error) {
	bytes, err := units.RAMInBytes(size)
	if err != nil {
		return "", errors.Wrapf(err, "invalid image size %q", size)
	}

	f, err := os.CreateTemp(dir, "md-member-")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := f.Truncate(bytes); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrapf(err, "failed to size image %s", f.Name())
	}

	return f.Name(), nil
}

// Attach associates the first free loop device with image and returns its
// path.
func Attach(ctx context.Context, image string) (string, error) {
	return losetup(ctx, "--find", "--show", image)
}

// Detach releases loop devices.
func Detach(ctx context.Context, devices ...string) error {
	for _, dev := range devices {
		if _, err := losetup(ctx, "--detach", dev); err != nil {
			return err
		}
	}
	return nil
}

func losetup(ctx context.Context, args ...string) (string, error) {
	data, err := exec.CommandContext(ctx, "losetup", args...).CombinedOutput()
	output := string(data)
	if err != nil {
		return "", errors.Wrapf(err, "losetup %s\nerror: %s\n", strings.Join(args, " "), output)
	}

	return strings.TrimSuffix(output, "\n"), nil
}
