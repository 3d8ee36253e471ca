// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package corelog is the logging facade used throughout the core. Every
// call site logs a single formatted line; structured fields belong to the
// backing logrus entry, not to call-site ceremony.
package corelog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetLevel adjusts the package-level logger's verbosity.
func SetLevel(debug bool) {
	if debug {
		std.SetLevel(logrus.DebugLevel)
		return
	}
	std.SetLevel(logrus.InfoLevel)
}

// SetOutput redirects the package-level logger, used by --debug-log style
// configuration.
func SetOutput(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	std.SetOutput(f)
	return nil
}

// Debugf logs at debug level.
func Debugf(format string, args ...any) { std.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...any) { std.Infof(format, args...) }

// Warningf logs at warn level.
func Warningf(format string, args ...any) { std.Warnf(format, args...) }

// FatalHook, when non-nil, is invoked by Fatalf instead of terminating the
// process directly, so the process-level panic handler installed by cmd/hled
// (and tests) can intercept environmental-fatal errors per §7.
var FatalHook func(format string, args ...any)

// Fatalf logs at error level and then invokes FatalHook; if FatalHook is
// unset it falls through to logrus's Fatalf, which exits the process.
func Fatalf(format string, args ...any) {
	std.Errorf(format, args...)
	if FatalHook != nil {
		FatalHook(format, args...)
		return
	}
	std.Fatalf(format, args...)
}
