// Package latency provides instruction timing models for cycle accounting.
//
// Costs are looked up by instruction class and can be configured via
// TimingConfig. A Table satisfies emu.LatencyTable.
package latency

import (
	"github.com/gregdivis/Aeon-sub003/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// Cycles returns the cost in cycles of one instruction of the given class.
func (t *Table) Cycles(class insts.Class) uint64 {
	c := t.config
	switch class {
	case insts.ClassALU:
		return c.ALULatency
	case insts.ClassMove:
		return c.MoveLatency
	case insts.ClassShift:
		return c.ShiftLatency
	case insts.ClassBit:
		return c.BitLatency
	case insts.ClassMul:
		return c.MultiplyLatency
	case insts.ClassDiv:
		return c.DivideLatency
	case insts.ClassStack:
		return c.StackLatency
	case insts.ClassBranch:
		return c.BranchLatency
	case insts.ClassCall:
		return c.CallLatency
	case insts.ClassString:
		return c.StringLatency
	case insts.ClassIO:
		return c.IOLatency
	case insts.ClassInterrupt:
		return c.InterruptLatency
	case insts.ClassFPU:
		return c.FPULatency
	default:
		return c.MiscLatency
	}
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
