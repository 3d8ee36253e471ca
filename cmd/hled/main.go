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

// Binary hled wires the core's collaborators together: the trap manager,
// the guest kernel object table and syscall dispatcher, the GPU texture
// manager, and the IPC/service stub tables — mirroring the teacher's own
// runsc/cli.Main entrypoint shape (subcommands + a single ambient Config),
// trimmed to this core's much smaller surface (spec.md §1 Non-goals: no
// OCI runtime, no container lifecycle).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/hollowcore/hle/internal/config"
	"github.com/hollowcore/hle/internal/corelog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(new(runCommand), "")
	subcommands.Register(new(versionCommand), "")

	cfg := config.Default()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	corelog.SetLevel(cfg.Debug)
	if cfg.DebugLog != "" {
		if err := corelog.SetOutput(cfg.DebugLog); err != nil {
			fmt.Fprintf(os.Stderr, "hled: opening debug log: %v\n", err)
			os.Exit(1)
		}
	}

	// Route corelog.Fatalf through a plain os.Exit rather than logrus's own
	// os.Exit-on-Fatal, so runCommand's recover() is the one place that
	// decides how a *errs.Fatal unwinds the process (internal/corelog's
	// FatalHook doc comment names this entrypoint explicitly).
	corelog.FatalHook = func(string, ...any) { os.Exit(1) }

	os.Exit(int(subcommands.Execute(context.Background(), cfg)))
}

// version is set by the release process; left as a constant default here
// since this core has no build-stamping step analogous to runsc/version.
const version = "dev"

type versionCommand struct{}

func (*versionCommand) Name() string             { return "version" }
func (*versionCommand) Synopsis() string         { return "print hled's version and exit." }
func (*versionCommand) Usage() string            { return "version\n" }
func (*versionCommand) SetFlags(*flag.FlagSet)   {}
func (*versionCommand) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stdout, "hled version %s\n", version)
	return subcommands.ExitSuccess
}
