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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/containerd/log"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Distrotech/mdadm/assemble"
	"github.com/Distrotech/mdadm/config"
	"github.com/Distrotech/mdadm/internal/blockdev"
	"github.com/Distrotech/mdadm/internal/debug"
	"github.com/Distrotech/mdadm/mdctl"
	"github.com/Distrotech/mdadm/superblock"
)

const usage = `usage: mdassemble <command> [flags] args...

commands:
  assemble [flags] /dev/mdX [devices...]   assemble and start an array
  add [flags] /dev/mdX device              add a device to a running array
`

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "assemble":
		err = runAssemble(ctx, os.Args[2:])
	case "add":
		err = runAdd(ctx, os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", os.Args[1], usage)
		os.Exit(1)
	}

	if err != nil {
		log.G(ctx).WithError(err).Error("mdassemble failed")
		os.Exit(1)
	}
}

type assembleFlags struct {
	configPath  string
	force       bool
	run         bool
	hold        bool
	update      string
	uuid        string
	superMinor  int
	verbose     bool
	logLevels   string
	allowImages bool
}

func runAssemble(ctx context.Context, args []string) error {
	var f assembleFlags

	fs := flag.NewFlagSet("assemble", flag.ExitOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to mdassemble configuration file")
	fs.BoolVar(&f.force, "force", false, "Assemble the array even if some superblocks appear out of date")
	fs.BoolVar(&f.run, "run", false, "Start the array even if not all expected members are present")
	fs.BoolVar(&f.hold, "hold", false, "Assemble the array but do not start it")
	fs.StringVar(&f.update, "update", "", "Update each member's superblock: "+joinModes())
	fs.StringVar(&f.uuid, "uuid", "", "UUID of the array to assemble")
	fs.IntVar(&f.superMinor, "super-minor", -1, "Minor number the array was created with")
	fs.BoolVar(&f.verbose, "v", false, "Report what is being done")
	fs.StringVar(&f.logLevels, "log-level", "", "Comma separated log levels, e.g. info,mdctl:debug")
	fs.BoolVar(&f.allowImages, "allow-images", false, "Accept regular files as members")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return errors.New("array device required")
	}
	if f.run && f.hold {
		return errors.New("-run and -hold are mutually exclusive")
	}

	arrayPath := fs.Arg(0)

	cfg, err := loadConfig(ctx, f.configPath)
	if err != nil {
		return err
	}

	ctx, mdctlLog, err := configureLogging(ctx, cfg, f.logLevels, f.verbose)
	if err != nil {
		return err
	}

	update, err := superblock.ParseUpdateMode(f.update)
	if err != nil {
		return err
	}

	opts := assemble.Options{
		Array:   arrayPath,
		Force:   f.force,
		Update:  update,
		Verbose: f.verbose,
	}
	switch {
	case f.run:
		opts.Run = assemble.RunForce
	case f.hold:
		opts.Run = assemble.RunHold
	}

	if array, err := cfg.Array(arrayPath); err == nil {
		if opts.Identity, err = array.Identity(); err != nil {
			return err
		}
	} else if !errors.Is(err, config.ErrNoArray) {
		return err
	}

	if f.uuid != "" {
		u, err := superblock.ParseUUID(f.uuid)
		if err != nil {
			return errors.Wrap(err, "invalid -uuid")
		}
		opts.Identity.UUID = &u
	}
	if f.superMinor >= 0 {
		minor := uint32(f.superMinor)
		opts.Identity.SuperMinor = &minor
	}

	if fs.NArg() > 1 {
		opts.Devices = fs.Args()[1:]
		opts.Explicit = true
	} else if opts.Devices, err = cfg.ScanDevices(); err != nil {
		return err
	}

	ctrl, err := mdctl.Open(arrayPath)
	if err != nil {
		return err
	}
	defer ctrl.Close()
	ctrl.Logger = mdctlLog

	opts.ArrayMinor = ctrl.Minor()
	opts.Legacy = ctrl.Legacy()

	res, err := assemble.Assemble(ctx, opts, &blockdev.Store{AllowImages: f.allowImages}, ctrl)
	if res != nil && res.Warnings != nil {
		log.G(ctx).Debugf("%d warnings during assembly", countWarnings(res.Warnings))
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, res.Summary())
	return nil
}

// loadConfig loads the configuration file. A missing file at the default
// location is not an error.
func loadConfig(ctx context.Context, configPath string) (*config.Config, error) {
	explicit := configPath != "" || os.Getenv(config.ConfigPathEnvName) != ""

	cfg, err := config.Load(configPath)
	if err == nil {
		log.G(ctx).Debugf("loaded configuration file")
		return cfg, nil
	}
	if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	helper, err := debug.New()
	if err != nil {
		return nil, err
	}
	cfg = &config.Config{DebugHelper: helper}
	return cfg, nil
}

// configureLogging sets the assembly log level on the context's logger and
// returns the logger for the driver interface.
func configureLogging(ctx context.Context, cfg *config.Config, levels string, verbose bool) (context.Context, *log.Entry, error) {
	helper := cfg.DebugHelper
	if levels != "" {
		var err error
		if helper, err = debug.New(strings.Split(levels, ",")...); err != nil {
			return ctx, nil, err
		}
	}

	level := func(l logrus.Level, ok bool) logrus.Level {
		switch {
		case ok:
			return l
		case verbose:
			return logrus.InfoLevel
		}
		return logrus.WarnLevel
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level(helper.GetAssembleLogLevel()))
	ctx = log.WithLogger(ctx, logrus.NewEntry(logger))

	mdctlLogger := logrus.New()
	mdctlLogger.SetOutput(os.Stderr)
	mdctlLogger.SetLevel(level(helper.GetMDCtlLogLevel()))

	return ctx, logrus.NewEntry(mdctlLogger).WithField("component", debug.ComponentMDCtl), nil
}

func joinModes() string {
	modes := superblock.UpdateModes()
	names := make([]string, 0, len(modes))
	for _, m := range modes {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

func countWarnings(err error) int {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return len(merr.Errors)
	}
	return 1
}
