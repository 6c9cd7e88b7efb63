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
	"io"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/Distrotech/mdadm/assemble"
	"github.com/Distrotech/mdadm/internal/debug"
	"github.com/Distrotech/mdadm/raid"
	"github.com/Distrotech/mdadm/superblock"
)

const (
	// ConfigPathEnvName is the name of the environment variable used to
	// overwrite the default config path
	ConfigPathEnvName = "MDASSEMBLE_CONFIG_PATH"
	defaultConfigPath = "/etc/mdadm/mdassemble.toml"
)

var defaultScan = []string{"/dev/sd*", "/dev/hd*", "/dev/vd*"}

// ErrNoArray is returned by Config.Array for arrays that are not configured.
var ErrNoArray = errors.New("array not configured")

// Config describes the arrays mdassemble knows about and where to look for
// their members.
//
// The default location for the configuration file is '/etc/mdadm/mdassemble.toml'
type Config struct {
	Devices devices `toml:"devices"`
	Arrays  []Array `toml:"array"`

	Debug debugConfig `toml:"debug"`

	DebugHelper *debug.Helper `toml:"-"`
}

type devices struct {
	// Scan lists the shell patterns of devices that may carry members.
	Scan []string `toml:"scan"`
}

type debugConfig struct {
	LogLevels []string `toml:"log_levels"`
}

// Array identifies the members of one array.
type Array struct {
	Device     string   `toml:"device"`
	UUID       string   `toml:"uuid"`
	SuperMinor int      `toml:"super_minor" default:"-1"`
	Level      string   `toml:"level"`
	RaidDisks  int      `toml:"raid_disks"`
	Devices    []string `toml:"devices"`
}

// Load parses the configuration at path, falling back to the path in
// MDASSEMBLE_CONFIG_PATH and then to the default location.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(ConfigPathEnvName)
	}

	if path == "" {
		path = defaultConfigPath
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config from %q", path)
	}
	defer file.Close()

	cfg, err := load(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config from %q", path)
	}
	return cfg, nil
}

func load(reader io.Reader) (*Config, error) {
	cfg := &Config{}
	if err := toml.NewDecoder(reader).Decode(cfg); err != nil {
		return nil, err
	}

	if len(cfg.Devices.Scan) == 0 {
		cfg.Devices.Scan = defaultScan
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var err error
	cfg.DebugHelper, err = debug.New(cfg.Debug.LogLevels...)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every array is named once and carries a usable
// identity.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, a := range c.Arrays {
		if a.Device == "" {
			return errors.New("array without device")
		}
		if seen[a.Device] {
			return errors.Errorf("%s configured twice", a.Device)
		}
		seen[a.Device] = true

		if _, err := a.Identity(); err != nil {
			return errors.Wrapf(err, "%s", a.Device)
		}
	}
	return nil
}

// Array returns the configuration of the array whose device is name. A
// bare name such as "md0" matches "/dev/md0".
func (c *Config) Array(name string) (Array, error) {
	for _, a := range c.Arrays {
		if a.Device == name || filepath.Join("/dev", name) == a.Device {
			return a, nil
		}
	}
	return Array{}, errors.Wrapf(ErrNoArray, "%s", name)
}

// ScanDevices expands the scan patterns in order. A device matched by more
// than one pattern is listed once.
func (c *Config) ScanDevices() ([]string, error) {
	var (
		names []string
		seen  = make(map[string]bool)
	)
	for _, pattern := range c.Devices.Scan {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid device pattern %q", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				names = append(names, m)
			}
		}
	}
	return names, nil
}

// Identity converts the array's constraints for the assembler.
func (a Array) Identity() (assemble.Identity, error) {
	var id assemble.Identity

	if a.UUID != "" {
		u, err := superblock.ParseUUID(a.UUID)
		if err != nil {
			return id, err
		}
		id.UUID = &u
	}

	if a.SuperMinor >= 0 {
		minor := uint32(a.SuperMinor)
		id.SuperMinor = &minor
	}

	if a.Level != "" {
		level, err := raid.ParseLevel(a.Level)
		if err != nil {
			return id, err
		}
		id.Level = &level
	}

	if a.RaidDisks > 0 {
		n := uint32(a.RaidDisks)
		id.RaidDisks = &n
	}

	id.Devices = a.Devices
	return id, nil
}
