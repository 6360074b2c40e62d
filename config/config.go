// Package config provides the machine configuration loaded by the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/gregdivis/Aeon-sub003/emu"
	"github.com/gregdivis/Aeon-sub003/loader"
	"github.com/gregdivis/Aeon-sub003/timing/cache"
	"github.com/gregdivis/Aeon-sub003/timing/latency"
)

// conventionalTop is the first segment above conventional memory.
const conventionalTop = 0xA000

// Machine describes the virtual machine the CLI builds.
type Machine struct {
	// MemorySize is the physical memory size in bytes.
	MemorySize uint32 `json:"memory_size" yaml:"memory_size"`

	// A20 enables the A20 address line at reset.
	A20 bool `json:"a20" yaml:"a20"`

	// CodeWidth is 16 for real-mode code or 32 for flat 32-bit code.
	CodeWidth uint8 `json:"code_width" yaml:"code_width"`

	// MaxInstructions stops the run after this many instructions. 0 means
	// no limit.
	MaxInstructions uint64 `json:"max_instructions" yaml:"max_instructions"`

	// PSPSegment is where the program segment prefix is built.
	PSPSegment uint16 `json:"psp_segment" yaml:"psp_segment"`

	// TimerHz is the rate of IRQ 0. 0 disables the timer.
	TimerHz int `json:"timer_hz" yaml:"timer_hz"`

	// Timing enables cycle accounting with these class costs.
	Timing *latency.TimingConfig `json:"timing,omitempty" yaml:"timing,omitempty"`

	// Cache enables the access-latency model with this geometry.
	Cache *cache.Config `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// Default returns a 16-bit machine with the DOS memory map and the PC
// timer rate. Timing and cache modeling are off.
func Default() *Machine {
	return &Machine{
		MemorySize: emu.DefaultMemorySize,
		A20:        true,
		CodeWidth:  16,
		PSPSegment: loader.DefaultPSPSegment,
		TimerHz:    18,
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// sections records which optional sections a file names.
type sections struct {
	Timing any `json:"timing" yaml:"timing"`
	Cache  any `json:"cache" yaml:"cache"`
}

func decode(path string, data []byte, v any) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

// Load reads a machine configuration from a JSON or YAML file, selected
// by extension, over the defaults, and validates it. A timing or cache
// section enables that model; keys it leaves out keep their defaults.
func Load(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine config file: %w", err)
	}

	var present sections
	if err := decode(path, data, &present); err != nil {
		return nil, fmt.Errorf("failed to parse machine config: %w", err)
	}

	m := Default()
	m.Timing = latency.DefaultTimingConfig()
	c := cache.DefaultConfig()
	m.Cache = &c
	if err := decode(path, data, m); err != nil {
		return nil, fmt.Errorf("failed to parse machine config: %w", err)
	}
	if present.Timing == nil {
		m.Timing = nil
	}
	if present.Cache == nil {
		m.Cache = nil
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid machine config %s: %w", path, err)
	}
	return m, nil
}

// Validate checks the configuration and any nested timing or cache
// settings.
func (m *Machine) Validate() error {
	if m.MemorySize < 0x10000 {
		return fmt.Errorf("memory_size must be at least 64KB")
	}
	if m.CodeWidth != 16 && m.CodeWidth != 32 {
		return fmt.Errorf("code_width must be 16 or 32, got %d", m.CodeWidth)
	}
	if m.PSPSegment >= conventionalTop {
		return fmt.Errorf("psp_segment %#x is above conventional memory", m.PSPSegment)
	}
	if uint32(m.PSPSegment)<<4+0x10000 > m.MemorySize {
		return fmt.Errorf("psp_segment %#x leaves no room for a 64KB program", m.PSPSegment)
	}
	if m.TimerHz < 0 || m.TimerHz > 10000 {
		return fmt.Errorf("timer_hz must be between 0 and 10000")
	}
	if m.Timing != nil {
		if err := m.Timing.Validate(); err != nil {
			return fmt.Errorf("timing: %w", err)
		}
	}
	if m.Cache != nil {
		if err := m.Cache.Validate(); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}
