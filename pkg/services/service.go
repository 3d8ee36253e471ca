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

// Package services supplies thin, syscall-table-shaped stub
// implementations for the host services named in original_source but left
// out of spec.md's Non-goals-scoped core (§1, §6, §7): aocsrv, btm,
// capsrv, fatalsrv, irs, mmnv, and nvdrv's device nodes. Each is a
// Supported/PartiallySupported table exactly like pkg/kernel/syscalls, so
// that pkg/ipc.Dispatcher has something real to route a send-sync-request
// to in tests, without pulling any of these services into core scope.
package services

import (
	"fmt"

	"github.com/hollowcore/hle/internal/errs"
	"github.com/hollowcore/hle/pkg/ipc"
)

// SupportLevel mirrors pkg/kernel.SupportLevel's three-way split, restated
// here so pkg/services does not need to import pkg/kernel for a single enum.
type SupportLevel int

const (
	SupportFull SupportLevel = iota
	SupportPartial
	SupportUnimplemented
)

// Command describes one entry in a service's command table, grounded on
// pkg/kernel.Syscall's (Name, Fn, SupportLevel, Note) shape.
type Command struct {
	Name         string
	Fn           ipc.Handler
	SupportLevel SupportLevel
	Note         string
}

// Supported returns a fully implemented command entry.
func Supported(name string, fn ipc.Handler) Command {
	return Command{Name: name, Fn: fn, SupportLevel: SupportFull, Note: "fully supported."}
}

// PartiallySupported returns a command entry with a partial implementation.
func PartiallySupported(name string, fn ipc.Handler, note string) Command {
	return Command{Name: name, Fn: fn, SupportLevel: SupportPartial, Note: note}
}

// Unimplemented returns a command entry that always answers with err
// without terminating the session, mirroring pkg/kernel.Unimplemented.
func Unimplemented(name string, err errs.GuestError, note string) Command {
	return Command{
		Name: name,
		Fn: func(req ipc.Request) (ipc.Response, error) {
			return ipc.Response{Result: err.Value()}, nil
		},
		SupportLevel: SupportUnimplemented,
		Note:         fmt.Sprintf("%s Returns %s.", note, err.Error()),
	}
}

// Table is a command-id table for one service holding only the ids
// registered through NewTable; Lookup returns nil for any other id and
// Handler answers it with errs.ErrNotImplemented.
type Table struct {
	name    string
	entries map[uint32]*Command
}

// NewTable builds a Table from sparse (command id, Command) registrations.
func NewTable(name string, entries map[uint32]Command) *Table {
	t := &Table{name: name, entries: make(map[uint32]*Command, len(entries))}
	for id, cmd := range entries {
		cmd := cmd
		t.entries[id] = &cmd
	}
	return t
}

// Name returns the service's port/interface name, e.g. "nvdrv:a".
func (t *Table) Name() string { return t.name }

// Lookup returns the command registered at id, or nil if unregistered.
func (t *Table) Lookup(id uint32) *Command {
	return t.entries[id]
}

// Handler adapts a Table into an ipc.Handler keyed by the request's Value
// field (original_source packs the in-service command id into the
// request's payload header "command" word; this core reuses the same
// field rather than inventing a second encoding).
func (t *Table) Handler() ipc.Handler {
	return func(req ipc.Request) (ipc.Response, error) {
		cmd := t.Lookup(req.Payload.Value)
		if cmd == nil {
			return ipc.Response{}, errs.ErrNotImplemented
		}
		return cmd.Fn(req)
	}
}
