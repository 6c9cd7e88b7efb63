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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Distrotech/mdadm/raid"
	"github.com/Distrotech/mdadm/superblock"
)

const testConfig = `
[devices]
scan = ["/dev/sd[bc]1", "/dev/loop*"]

[[array]]
device = "/dev/md0"
uuid = "deadbeef:01020304:05060708:090a0b0c"
level = "raid5"
raid_disks = 3

[[array]]
device = "/dev/md1"
super_minor = 1
devices = ["/dev/sdd*"]

[debug]
log_levels = ["info", "mdctl:debug"]
`

func TestLoad(t *testing.T) {
	cfg, err := load(strings.NewReader(testConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"/dev/sd[bc]1", "/dev/loop*"}, cfg.Devices.Scan)
	require.Len(t, cfg.Arrays, 2)

	md0, err := cfg.Array("/dev/md0")
	require.NoError(t, err)
	assert.Equal(t, -1, md0.SuperMinor, "expected default super minor")

	id, err := md0.Identity()
	require.NoError(t, err)
	require.NotNil(t, id.UUID)
	assert.Equal(t, "deadbeef:01020304:05060708:090a0b0c", superblock.FormatUUID(*id.UUID))
	assert.Nil(t, id.SuperMinor)
	require.NotNil(t, id.Level)
	assert.Equal(t, raid.RAID5, *id.Level)
	require.NotNil(t, id.RaidDisks)
	assert.Equal(t, uint32(3), *id.RaidDisks)

	md1, err := cfg.Array("md1")
	require.NoError(t, err)
	id, err = md1.Identity()
	require.NoError(t, err)
	require.NotNil(t, id.SuperMinor)
	assert.Equal(t, uint32(1), *id.SuperMinor)
	assert.Nil(t, id.UUID)
	assert.Equal(t, []string{"/dev/sdd*"}, id.Devices)
	assert.False(t, id.Empty())

	_, err = cfg.Array("/dev/md9")
	assert.ErrorIs(t, err, ErrNoArray)

	level, ok := cfg.DebugHelper.GetMDCtlLogLevel()
	assert.True(t, ok)
	assert.Equal(t, logrus.DebugLevel, level)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, defaultScan, cfg.Devices.Scan)
	assert.Empty(t, cfg.Arrays)
	_, ok := cfg.DebugHelper.GetLogLevel()
	assert.False(t, ok)
}

func TestLoadInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{
			name:    "syntax",
			content: `[[array]`,
		},
		{
			name: "uuid",
			content: `[[array]]
device = "/dev/md0"
uuid = "not-a-uuid"`,
		},
		{
			name: "level",
			content: `[[array]]
device = "/dev/md0"
level = "raid7"`,
		},
		{
			name: "duplicate",
			content: `[[array]]
device = "/dev/md0"
[[array]]
device = "/dev/md0"`,
		},
		{
			name: "no device",
			content: `[[array]]
uuid = "deadbeef:01020304:05060708:090a0b0c"`,
		},
		{
			name: "log level",
			content: `[debug]
log_levels = ["loud"]`,
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			_, err := load(strings.NewReader(c.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mdassemble.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Arrays, 2)

	t.Setenv(ConfigPathEnvName, path)
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Len(t, cfg.Arrays, 2)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestScanDevices(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sdb1", "sdc1", "vda"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	cfg := &Config{}
	cfg.Devices.Scan = []string{
		filepath.Join(dir, "sdc*"),
		filepath.Join(dir, "sd*"),
		filepath.Join(dir, "nvme*"),
	}

	names, err := cfg.ScanDevices()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "sdc1"),
		filepath.Join(dir, "sdb1"),
	}, names)

	cfg.Devices.Scan = []string{"[invalid"}
	_, err = cfg.ScanDevices()
	assert.Error(t, err)
}
