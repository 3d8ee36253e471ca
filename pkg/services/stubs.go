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

package services

import (
	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/pkg/ipc"
)

// The command ids below are placeholders distinguishing "this service
// answers something" from "this service is wired to a real subsystem" —
// none of aocsrv/btm/capsrv/fatalsrv/irs/mmnv are in core scope (§1
// Non-goals); they exist only so send-sync-request has a believable,
// named destination to route to in tests (§6/§7).

// NewAocSrv builds the add-on-content query service stub ("aoc:u").
// original_source's AOC service answers "how many add-on-content indices
// exist"; this core always reports zero.
func NewAocSrv() *Table {
	return NewTable("aoc:u", map[uint32]Command{
		0: Supported("count_add_on_content", func(ipc.Request) (ipc.Response, error) {
			return ipc.Response{Result: 0}, nil
		}),
		1: Unimplemented("list_added_on_content", errs.ErrNotImplemented,
			"AOC listing is not modeled; no content is ever installed."),
	})
}

// NewBtm builds the Bluetooth manager stub ("btm").
func NewBtm() *Table {
	return NewTable("btm", map[uint32]Command{
		0: PartiallySupported("get_bluetooth_connection_event", func(ipc.Request) (ipc.Response, error) {
			return ipc.Response{Result: errs.ErrNotImplemented.Value()}, nil
		}, "Always answers not-implemented; no guest title this core targets requires real Bluetooth state."),
	})
}

// NewCapsrv builds the screen-capture service stub ("caps:u" / "caps:a").
func NewCapsrv() *Table {
	return NewTable("caps:u", map[uint32]Command{
		203: Unimplemented("set_shim_library_version", errs.ErrNotImplemented,
			"Capture/album is out of scope; every command answers not-implemented."),
	})
}

// NewFatalsrv builds the fatal-error reporting stub ("fatal:u").
//
// original_source's fatal:u is where a crashing guest process reports its
// error code and register dump before the process is torn down; this core
// folds that report into the same internal/errs.Fatal channel the host
// side already uses (see internal/errs), rather than duplicating two
// separate "something went fatally wrong" paths.
func NewFatalsrv() *Table {
	return NewTable("fatal:u", map[uint32]Command{
		1: Supported("throw_fatal", func(req ipc.Request) (ipc.Response, error) {
			return ipc.Response{}, errs.NewFatal("fatal:u: guest reported a fatal error", nil)
		}),
	})
}

// NewIrs builds the IR sensor stub ("irs"). The source platform's Joy-Con
// IR camera has no analog in this core's scope; every command answers
// not-implemented.
func NewIrs() *Table {
	return NewTable("irs", map[uint32]Command{
		302: Unimplemented("activate_ir_sensor", errs.ErrNotImplemented, "No IR camera is modeled."),
	})
}

// NewMmnv builds the memory-management notification stub ("mm:u"),
// original_source's clock/power-state scaling hint channel. This core has
// no thermal/power model, so every command is a documented no-op success
// rather than a hard failure — original_source callers generally treat
// mm:u as fire-and-forget.
func NewMmnv() *Table {
	return NewTable("mm:u", map[uint32]Command{
		4: PartiallySupported("initialize", func(ipc.Request) (ipc.Response, error) {
			return ipc.Response{Result: 0}, nil
		}, "Accepts initialize and reports success; no module/priority state is tracked."),
	})
}
