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
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	type level struct {
		Level logrus.Level
		Set   bool
	}

	cases := []struct {
		Name             string
		LogLevels        []string
		ExpectedError    error
		ExpectedTop      level
		ExpectedMDCtl    level
		ExpectedAssemble level
	}{
		{
			Name: "empty",
		},
		{
			Name:          "invalid",
			LogLevels:     []string{"invalid"},
			ExpectedError: NewInvalidLogLevelError("invalid"),
		},
		{
			Name:          "multiple with invalid",
			LogLevels:     []string{LogLevelDebug, "mdctl:debug", "invalid"},
			ExpectedError: NewInvalidLogLevelError("invalid"),
		},
		{
			Name:          "unknown component",
			LogLevels:     []string{"raid:debug"},
			ExpectedError: NewInvalidLogLevelError("raid:debug"),
		},
		{
			Name:             "debug",
			LogLevels:        []string{LogLevelDebug},
			ExpectedTop:      level{logrus.DebugLevel, true},
			ExpectedMDCtl:    level{logrus.DebugLevel, true},
			ExpectedAssemble: level{logrus.DebugLevel, true},
		},
		{
			Name:             "warning with spaces",
			LogLevels:        []string{" warning "},
			ExpectedTop:      level{logrus.WarnLevel, true},
			ExpectedMDCtl:    level{logrus.WarnLevel, true},
			ExpectedAssemble: level{logrus.WarnLevel, true},
		},
		{
			Name:          "multiple top log levels",
			LogLevels:     []string{LogLevelDebug, LogLevelError, LogLevelInfo, LogLevelWarning},
			ExpectedError: ErrLogLevelAlreadySet,
		},
		{
			Name:             "mdctl debug",
			LogLevels:        []string{LogLevelError, "mdctl:debug"},
			ExpectedTop:      level{logrus.ErrorLevel, true},
			ExpectedMDCtl:    level{logrus.DebugLevel, true},
			ExpectedAssemble: level{logrus.ErrorLevel, true},
		},
		{
			Name:             "assemble only",
			LogLevels:        []string{"assemble:info"},
			ExpectedTop:      level{logrus.PanicLevel, false},
			ExpectedMDCtl:    level{logrus.PanicLevel, false},
			ExpectedAssemble: level{logrus.InfoLevel, true},
		},
		{
			Name:          "multiple mdctl log levels",
			LogLevels:     []string{"mdctl:info", "mdctl:error"},
			ExpectedError: ErrMDCtlLogLevelAlreadySet,
		},
		{
			Name:          "multiple assemble log levels",
			LogLevels:     []string{"assemble:info", "assemble:warning"},
			ExpectedError: ErrAssembleLogLevelAlreadySet,
		},
	}

	for _, _c := range cases {
		c := _c

		t.Run(c.Name, func(t *testing.T) {
			h, err := New(c.LogLevels...)
			require.Equalf(t, c.ExpectedError, err, "expected errors to be equal")
			if c.ExpectedError != nil {
				return
			}

			require.NotNilf(t, h, "expected Helper to be non-nil")

			l, ok := h.GetLogLevel()
			assert.Equal(t, c.ExpectedTop, level{l, ok})
			l, ok = h.GetMDCtlLogLevel()
			assert.Equal(t, c.ExpectedMDCtl, level{l, ok})
			l, ok = h.GetAssembleLogLevel()
			assert.Equal(t, c.ExpectedAssemble, level{l, ok})
		})
	}
}
