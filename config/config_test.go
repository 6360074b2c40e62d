package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gregdivis/Aeon-sub003/config"
	"github.com/gregdivis/Aeon-sub003/timing/cache"
	"github.com/gregdivis/Aeon-sub003/timing/latency"
)

var _ = Describe("Machine", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	It("should validate the defaults", func() {
		m := config.Default()
		Expect(m.Validate()).To(Succeed())
		Expect(m.Timing).To(BeNil())
		Expect(m.Cache).To(BeNil())
	})

	It("should load YAML with nested timing and cache sections", func() {
		path := write("machine.yaml", `
code_width: 32
max_instructions: 1000
timer_hz: 0
timing:
  fpu_latency: 50
cache:
  size: 4096
  associativity: 2
  block_size: 32
  hit_latency: 1
  miss_latency: 20
`)

		m, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(m.CodeWidth).To(Equal(uint8(32)))
		Expect(m.MaxInstructions).To(Equal(uint64(1000)))
		Expect(m.TimerHz).To(BeZero())
		Expect(m.MemorySize).To(Equal(config.Default().MemorySize))
		Expect(m.Timing).NotTo(BeNil())
		Expect(m.Timing.FPULatency).To(Equal(uint64(50)))
		Expect(m.Timing.ALULatency).To(Equal(latency.DefaultTimingConfig().ALULatency))
		Expect(*m.Cache).To(Equal(cache.Config{
			Size:          4096,
			Associativity: 2,
			BlockSize:     32,
			HitLatency:    1,
			MissLatency:   20,
		}))
	})

	It("should fill a partial cache section from the defaults", func() {
		path := write("machine.yaml", `
cache:
  size: 4096
`)

		m, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())

		expected := cache.DefaultConfig()
		expected.Size = 4096
		Expect(m.Cache).NotTo(BeNil())
		Expect(*m.Cache).To(Equal(expected))
		Expect(m.Timing).To(BeNil())
	})

	It("should fill a partial JSON timing section from the defaults", func() {
		path := write("machine.json", `{"timing": {"divide_latency": 40}}`)

		m, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())

		expected := latency.DefaultTimingConfig()
		expected.DivideLatency = 40
		Expect(m.Timing).To(Equal(expected))
		Expect(m.Cache).To(BeNil())
	})

	It("should leave both models off when no section is given", func() {
		path := write("machine.yml", "timer_hz: 100\n")

		m, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.TimerHz).To(Equal(100))
		Expect(m.Timing).To(BeNil())
		Expect(m.Cache).To(BeNil())
	})

	It("should load JSON", func() {
		path := write("machine.json", `{"memory_size": 262144, "psp_segment": 4096}`)

		m, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.MemorySize).To(Equal(uint32(262144)))
		Expect(m.PSPSegment).To(Equal(uint16(0x1000)))
	})

	DescribeTable("rejecting invalid machines",
		func(mutate func(*config.Machine)) {
			m := config.Default()
			mutate(m)
			Expect(m.Validate()).To(HaveOccurred())
		},
		Entry("tiny memory", func(m *config.Machine) { m.MemorySize = 0x1000 }),
		Entry("odd code width", func(m *config.Machine) { m.CodeWidth = 64 }),
		Entry("PSP past memory", func(m *config.Machine) { m.PSPSegment = 0xF000 }),
		Entry("PSP in the video area", func(m *config.Machine) {
			m.MemorySize = 0x400000
			m.PSPSegment = 0xA000
		}),
		Entry("PSP leaving no room in small memory", func(m *config.Machine) {
			m.MemorySize = 0x20000
			m.PSPSegment = 0x1800
		}),
		Entry("negative timer", func(m *config.Machine) { m.TimerHz = -1 }),
		Entry("bad timing", func(m *config.Machine) {
			m.Timing = latency.DefaultTimingConfig()
			m.Timing.ALULatency = 0
		}),
		Entry("bad cache", func(m *config.Machine) {
			c := cache.DefaultConfig()
			c.BlockSize = 3
			m.Cache = &c
		}),
	)

	It("should accept the last conventional PSP segment", func() {
		m := config.Default()
		m.PSPSegment = 0x9000
		Expect(m.Validate()).To(Succeed())
	})

	It("should report validation errors from Load", func() {
		path := write("bad.yml", "code_width: 8\n")
		_, err := config.Load(path)
		Expect(err).To(MatchError(ContainSubstring("code_width")))
	})

	It("should report parse errors", func() {
		path := write("bad.json", "{")
		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})
})
