package latency

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// TimingConfig holds cycle costs per instruction class. Values approximate
// a 386-class core and are meant to be tuned per machine profile.
type TimingConfig struct {
	// ALULatency covers register and memory ALU operations, including
	// compares and BCD adjusts. Default: 2 cycles.
	ALULatency uint64 `json:"alu_latency" yaml:"alu_latency"`

	// MoveLatency covers MOV, LEA, XCHG, sign/zero extension and far
	// pointer loads. Default: 2 cycles.
	MoveLatency uint64 `json:"move_latency" yaml:"move_latency"`

	// ShiftLatency covers shifts, rotates and double shifts. Default: 3 cycles.
	ShiftLatency uint64 `json:"shift_latency" yaml:"shift_latency"`

	// BitLatency covers BT/BTS/BTR/BTC, BSF/BSR and SETcc. Default: 3 cycles.
	BitLatency uint64 `json:"bit_latency" yaml:"bit_latency"`

	// MultiplyLatency is the integer multiply cost. Default: 12 cycles.
	MultiplyLatency uint64 `json:"multiply_latency" yaml:"multiply_latency"`

	// DivideLatency is the integer divide cost. Default: 22 cycles.
	DivideLatency uint64 `json:"divide_latency" yaml:"divide_latency"`

	// StackLatency covers PUSH/POP and their all-register and FLAGS forms.
	// Default: 2 cycles.
	StackLatency uint64 `json:"stack_latency" yaml:"stack_latency"`

	// BranchLatency covers jumps, conditional jumps and LOOP. Default: 7 cycles.
	BranchLatency uint64 `json:"branch_latency" yaml:"branch_latency"`

	// CallLatency covers CALL and RET in all forms. Default: 7 cycles.
	CallLatency uint64 `json:"call_latency" yaml:"call_latency"`

	// StringLatency is the cost of one string instruction; repeated forms
	// are charged once. Default: 5 cycles.
	StringLatency uint64 `json:"string_latency" yaml:"string_latency"`

	// IOLatency covers IN, OUT, INS and OUTS. Default: 12 cycles.
	IOLatency uint64 `json:"io_latency" yaml:"io_latency"`

	// InterruptLatency covers INT n, INTO, INT3 and IRET. Default: 37 cycles.
	InterruptLatency uint64 `json:"interrupt_latency" yaml:"interrupt_latency"`

	// FPULatency is the average x87 operation cost. Default: 20 cycles.
	FPULatency uint64 `json:"fpu_latency" yaml:"fpu_latency"`

	// MiscLatency covers flag operations, NOP, HLT and prefixes-only
	// forms. Default: 2 cycles.
	MiscLatency uint64 `json:"misc_latency" yaml:"misc_latency"`
}

// DefaultTimingConfig returns a TimingConfig with 386-class defaults.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:       2,
		MoveLatency:      2,
		ShiftLatency:     3,
		BitLatency:       3,
		MultiplyLatency:  12,
		DivideLatency:    22,
		StackLatency:     2,
		BranchLatency:    7,
		CallLatency:      7,
		StringLatency:    5,
		IOLatency:        12,
		InterruptLatency: 37,
		FPULatency:       20,
		MiscLatency:      2,
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

// LoadConfig loads a TimingConfig from a JSON or YAML file, selected by
// extension. Fields absent from the file keep their defaults.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON or YAML file, selected by
// extension.
func (c *TimingConfig) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that every class costs at least one cycle.
func (c *TimingConfig) Validate() error {
	fields := []struct {
		name  string
		value uint64
	}{
		{"alu_latency", c.ALULatency},
		{"move_latency", c.MoveLatency},
		{"shift_latency", c.ShiftLatency},
		{"bit_latency", c.BitLatency},
		{"multiply_latency", c.MultiplyLatency},
		{"divide_latency", c.DivideLatency},
		{"stack_latency", c.StackLatency},
		{"branch_latency", c.BranchLatency},
		{"call_latency", c.CallLatency},
		{"string_latency", c.StringLatency},
		{"io_latency", c.IOLatency},
		{"interrupt_latency", c.InterruptLatency},
		{"fpu_latency", c.FPULatency},
		{"misc_latency", c.MiscLatency},
	}
	for _, f := range fields {
		if f.value == 0 {
			return fmt.Errorf("%s must be > 0", f.name)
		}
	}
	if c.DivideLatency < c.MultiplyLatency {
		return fmt.Errorf("divide_latency must be >= multiply_latency")
	}
	return nil
}

// Clone returns a copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
