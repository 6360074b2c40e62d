package latency_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gregdivis/Aeon-sub003/emu"
	"github.com/gregdivis/Aeon-sub003/insts"
	"github.com/gregdivis/Aeon-sub003/timing/latency"
)

var _ emu.LatencyTable = (*latency.Table)(nil)

var _ = Describe("Latency", func() {
	var table *latency.Table

	BeforeEach(func() {
		table = latency.NewTable()
	})

	Describe("Default Timing Values", func() {
		It("should have correct ALU latency", func() {
			Expect(table.Config().ALULatency).To(Equal(uint64(2)))
		})

		It("should make divide the most expensive arithmetic", func() {
			config := table.Config()
			Expect(config.DivideLatency).To(BeNumerically(">", config.MultiplyLatency))
			Expect(config.MultiplyLatency).To(BeNumerically(">", config.ALULatency))
		})
	})

	DescribeTable("class costs",
		func(class insts.Class, want uint64) {
			Expect(table.Cycles(class)).To(Equal(want))
		},
		Entry("alu", insts.ClassALU, uint64(2)),
		Entry("move", insts.ClassMove, uint64(2)),
		Entry("shift", insts.ClassShift, uint64(3)),
		Entry("mul", insts.ClassMul, uint64(12)),
		Entry("div", insts.ClassDiv, uint64(22)),
		Entry("branch", insts.ClassBranch, uint64(7)),
		Entry("interrupt", insts.ClassInterrupt, uint64(37)),
		Entry("fpu", insts.ClassFPU, uint64(20)),
		Entry("misc", insts.ClassMisc, uint64(2)),
	)

	It("should look up the class of a decoded opcode", func() {
		op, ok := insts.Opcodes.Lookup(0xF7, insts.ModRM(0xF0)) // div
		Expect(ok).To(BeTrue())
		Expect(table.Cycles(op.Class)).To(Equal(uint64(22)))
	})

	Describe("Custom Configuration", func() {
		It("should use custom latencies", func() {
			config := latency.DefaultTimingConfig()
			config.ALULatency = 5
			config.BranchLatency = 9
			custom := latency.NewTableWithConfig(config)

			Expect(custom.Cycles(insts.ClassALU)).To(Equal(uint64(5)))
			Expect(custom.Cycles(insts.ClassBranch)).To(Equal(uint64(9)))
		})
	})

	Describe("Emulator cycle accounting", func() {
		It("should charge each executed instruction by class", func() {
			// mov ax,1; add ax,ax; hlt
			e := emu.NewEmulator(emu.WithLatencyTable(table), emu.WithLogger(GinkgoLogr))
			e.Load(0x100, []byte{0xB8, 0x01, 0x00, 0x01, 0xC0, 0xF4})
			e.Processor().EIP = 0x100

			result := e.Run()

			Expect(result.Halted).To(BeTrue())
			Expect(e.Cycles()).To(Equal(uint64(2 + 2 + 2)))
		})
	})
})

var _ = Describe("TimingConfig", func() {
	Describe("Default Config", func() {
		It("should create valid default config", func() {
			Expect(latency.DefaultTimingConfig().Validate()).To(Succeed())
		})
	})

	Describe("Validation", func() {
		It("should reject zero ALU latency", func() {
			config := latency.DefaultTimingConfig()
			config.ALULatency = 0
			Expect(config.Validate()).To(MatchError(ContainSubstring("alu_latency")))
		})

		It("should reject zero FPU latency", func() {
			config := latency.DefaultTimingConfig()
			config.FPULatency = 0
			Expect(config.Validate()).To(HaveOccurred())
		})

		It("should reject a divide cheaper than multiply", func() {
			config := latency.DefaultTimingConfig()
			config.DivideLatency = 2
			Expect(config.Validate()).To(HaveOccurred())
		})
	})

	Describe("Clone", func() {
		It("should create independent copy", func() {
			original := latency.DefaultTimingConfig()
			clone := original.Clone()

			clone.ALULatency = 100

			Expect(original.ALULatency).To(Equal(uint64(2)))
			Expect(clone.ALULatency).To(Equal(uint64(100)))
		})
	})

	Describe("File Operations", func() {
		var tempDir string

		BeforeEach(func() {
			tempDir = GinkgoT().TempDir()
		})

		It("should save and load JSON", func() {
			original := latency.DefaultTimingConfig()
			original.ALULatency = 5
			original.StringLatency = 10

			path := filepath.Join(tempDir, "timing.json")
			Expect(original.SaveConfig(path)).To(Succeed())

			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(original))
		})

		It("should save and load YAML", func() {
			original := latency.DefaultTimingConfig()
			original.FPULatency = 40

			path := filepath.Join(tempDir, "timing.yaml")
			Expect(original.SaveConfig(path)).To(Succeed())

			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(original))
		})

		It("should keep defaults for omitted fields", func() {
			path := filepath.Join(tempDir, "partial.yml")
			Expect(os.WriteFile(path, []byte("divide_latency: 40\n"), 0644)).To(Succeed())

			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.DivideLatency).To(Equal(uint64(40)))
			Expect(loaded.ALULatency).To(Equal(uint64(2)))
		})

		It("should return error for non-existent file", func() {
			_, err := latency.LoadConfig("/nonexistent/path/timing.json")
			Expect(err).To(MatchError(os.ErrNotExist))
		})

		It("should return error for invalid JSON", func() {
			path := filepath.Join(tempDir, "invalid.json")
			Expect(os.WriteFile(path, []byte("not valid json"), 0644)).To(Succeed())

			_, err := latency.LoadConfig(path)
			Expect(err).To(HaveOccurred())
		})
	})
})
