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

// Package config is the ambient configuration surface for the core,
// following the teacher's own RegisterFlags(*flag.FlagSet)-plus-Config-struct
// convention (runsc/config/flags.go) rather than reaching for a third-party
// flags library, since that is what the teacher itself does for this
// concern.
package config

import "flag"

// Config holds every tunable the core reads at startup. The zero value
// leaves both texture-demotion thresholds at 0; Default returns the
// configuration with the numbers named explicitly in spec.md.
type Config struct {
	// Debug enables debug-level logging.
	Debug bool

	// DebugLog, if non-empty, additionally writes logs to this file path.
	DebugLog string

	// TrapPageSize overrides the page size the trap manager aligns to.
	// Zero means "use the host's natural page size".
	TrapPageSize uint64

	// TextureDemoteReads is the guest-read count threshold (§4.3) after
	// which a texture is demoted from GPU→guest sync to a single final
	// writeback.
	TextureDemoteReads int

	// TextureDemoteWaitMillis is the accumulated-wait-time threshold in
	// milliseconds (§4.3), paired with TextureDemoteReads.
	TextureDemoteWaitMillis int

	// VulkanValidation enables the Vulkan validation layer during
	// development.
	VulkanValidation bool

	// MetricsAddr, if non-empty, is an address to export process metrics on.
	MetricsAddr string
}

// Default returns the configuration implied by spec.md's named constants.
func Default() *Config {
	return &Config{
		TextureDemoteReads:      6,
		TextureDemoteWaitMillis: 250,
	}
}

// RegisterFlags registers flags that populate c, mirroring the teacher's
// RegisterFlags(*flag.FlagSet) shape.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging.")
	fs.StringVar(&c.DebugLog, "debug-log", c.DebugLog, "additional log destination file path.")
	fs.Uint64Var(&c.TrapPageSize, "trap-page-size", c.TrapPageSize, "page size the trap manager aligns to; 0 uses the host default.")
	fs.IntVar(&c.TextureDemoteReads, "texture-demote-reads", c.TextureDemoteReads, "guest reads before a texture's GPU sync is demoted to a single writeback.")
	fs.IntVar(&c.TextureDemoteWaitMillis, "texture-demote-wait-ms", c.TextureDemoteWaitMillis, "accumulated wait time (ms) paired with texture-demote-reads.")
	fs.BoolVar(&c.VulkanValidation, "vulkan-validation", c.VulkanValidation, "enable the Vulkan validation layer.")
	fs.StringVar(&c.MetricsAddr, "metric-server", c.MetricsAddr, "if set, export metrics on this address.")
}
