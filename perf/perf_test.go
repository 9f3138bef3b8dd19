package perf

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("readSelfStat", func() {
	It("parses this process's own /proc/self/stat", func() {
		rss, ut, st, err := readSelfStat()
		Expect(err).NotTo(HaveOccurred())
		Expect(rss).To(BeNumerically(">=", 0))
		Expect(ut).To(BeNumerically(">=", 0))
		Expect(st).To(BeNumerically(">=", 0))
	})
})

var _ = Describe("Sampler", func() {
	It("writes headered cpu/cpumem files named after its uid", func() {
		dir, err := os.MkdirTemp("", "spitz-perf-test")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		cwd, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(dir)).To(Succeed())
		defer os.Chdir(cwd)

		s := NewSampler("testuid", 4, 20*time.Millisecond)
		time.Sleep(120 * time.Millisecond)
		s.Stop()

		cpuPath := filepath.Join(dir, "perf", "testuid-cpu")
		memPath := filepath.Join(dir, "perf", "testuid-cpumem")

		Eventually(func() error { _, err := os.Stat(cpuPath); return err }, time.Second).Should(Succeed())
		Eventually(func() error { _, err := os.Stat(memPath); return err }, time.Second).Should(Succeed())

		cpuBytes, err := os.ReadFile(cpuPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(cpuBytes)).To(ContainSubstring("Number of compute workers"))

		memBytes, err := os.ReadFile(memPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(memBytes)).To(ContainSubstring("Resident set size"))
	})
})
