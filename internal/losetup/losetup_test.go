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

package losetup

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Distrotech/mdadm/internal"
)

func TestCreateImage(t *testing.T) {
	image, err := CreateImage(t.TempDir(), "16Mb")
	require.NoError(t, err)

	info, err := os.Stat(image)
	require.NoError(t, err)
	assert.Equal(t, int64(16<<20), info.Size())

	_, err = CreateImage(t.TempDir(), "lots")
	assert.Error(t, err)
}

func TestLosetup(t *testing.T) {
	internal.RequiresLoop(t)
	ctx := context.Background()

	image, err := CreateImage(t.TempDir(), "16Mb")
	require.NoError(t, err)

	var dev1, dev2 string

	t.Run("Attach", func(t *testing.T) {
		dev1, err = Attach(ctx, image)
		require.NoError(t, err)
		require.NotEmpty(t, dev1)

		dev2, err = Attach(ctx, image)
		require.NoError(t, err)
		assert.NotEqual(t, dev1, dev2, "should attach different loop device")
	})

	t.Run("AttachEmpty", func(t *testing.T) {
		_, err := Attach(ctx, "")
		assert.Error(t, err)
	})

	t.Run("Detach", func(t *testing.T) {
		assert.NoError(t, Detach(ctx, dev1, dev2))
	})

	t.Run("DetachEmpty", func(t *testing.T) {
		assert.Error(t, Detach(ctx, ""))
	})
}
