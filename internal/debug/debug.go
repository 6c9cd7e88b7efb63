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

package debug

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// LogLevelDebug will enable debugging for assembly and the driver
	// interface.
	LogLevelDebug = "debug"
	// LogLevelError will enable error logging only.
	LogLevelError = "error"
	// LogLevelInfo will enable info logging.
	LogLevelInfo = "info"
	// LogLevelWarning will enable warning logging.
	LogLevelWarning = "warning"

	// ComponentMDCtl is the prefix of log levels that only apply to the
	// md driver interface, "mdctl:debug".
	ComponentMDCtl = "mdctl"
	// ComponentAssemble is the prefix of log levels that only apply to
	// array assembly and slot injection, "assemble:info".
	ComponentAssemble = "assemble"
)

// ErrLogLevelAlreadySet will return if a log level has been previously set.
var ErrLogLevelAlreadySet = fmt.Errorf("only one value for top level log level can be set")

// ErrMDCtlLogLevelAlreadySet will return if a log level has been previously set.
var ErrMDCtlLogLevelAlreadySet = fmt.Errorf("only one value of mdctl log level can be set")

// ErrAssembleLogLevelAlreadySet will return if a log level has been previously set.
var ErrAssembleLogLevelAlreadySet = fmt.Errorf("only one value of assemble log level can be set")

// InvalidLogLevelError is returned for log levels New does not know.
type InvalidLogLevelError struct {
	level string
}

// NewInvalidLogLevelError returns the error for an unknown log level.
func NewInvalidLogLevelError(level string) error {
	return &InvalidLogLevelError{level: level}
}

func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level: %q", e.level)
}

var levels = map[string]logrus.Level{
	LogLevelDebug:   logrus.DebugLevel,
	LogLevelError:   logrus.ErrorLevel,
	LogLevelInfo:    logrus.InfoLevel,
	LogLevelWarning: logrus.WarnLevel,
}

// Helper is used to abstract away the complications of multilevel log levels.
type Helper struct {
	logLevels []string

	top    logrus.Level
	topSet bool

	mdctl    logrus.Level
	mdctlSet bool

	assemble    logrus.Level
	assembleSet bool
}

// New will return a new Helper in the event an error does not occur. This will
// parse the logLevel provided to figure out what logging is enabled. New will
// also validate that the log level is a valid value along with any mutually
// exclusive values.
func New(logLevels ...string) (*Helper, error) {
	h := &Helper{
		logLevels: logLevels,
	}

	if err := h.setLogLevels(logLevels); err != nil {
		return nil, err
	}

	return h, nil
}

// GetLogLevel returns the top level log level, and whether it was set.
func (h *Helper) GetLogLevel() (logrus.Level, bool) {
	return h.top, h.topSet
}

// GetMDCtlLogLevel returns the log level for the md driver interface. It
// falls back to the top level.
func (h *Helper) GetMDCtlLogLevel() (logrus.Level, bool) {
	if h.mdctlSet {
		return h.mdctl, true
	}
	return h.GetLogLevel()
}

// GetAssembleLogLevel returns the log level for assembly and slot
// injection. It falls back to the top level.
func (h *Helper) GetAssembleLogLevel() (logrus.Level, bool) {
	if h.assembleSet {
		return h.assemble, true
	}
	return h.GetLogLevel()
}

func (h *Helper) setLogLevels(logLevels []string) error {
	for _, level := range logLevels {
		cleanedLevel := strings.TrimSpace(level)

		component, name := "", cleanedLevel
		if i := strings.IndexByte(cleanedLevel, ':'); i >= 0 {
			component, name = cleanedLevel[:i], cleanedLevel[i+1:]
		}

		l, ok := levels[name]
		if !ok {
			return NewInvalidLogLevelError(cleanedLevel)
		}

		switch component {
		case "":
			if h.topSet {
				return ErrLogLevelAlreadySet
			}
			h.top, h.topSet = l, true
		case ComponentMDCtl:
			if h.mdctlSet {
				return ErrMDCtlLogLevelAlreadySet
			}
			h.mdctl, h.mdctlSet = l, true
		case ComponentAssemble:
			if h.assembleSet {
				return ErrAssembleLogLevelAlreadySet
			}
			h.assemble, h.assembleSet = l, true
		default:
			return NewInvalidLogLevelError(cleanedLevel)
		}
	}

	return nil
}
