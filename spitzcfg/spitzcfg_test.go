package spitzcfg

import (
	"flag"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func newFlagSet() *flag.FlagSet {
	return flag.NewFlagSet("test", flag.ContinueOnError)
}

var _ = Describe("ParseJM", func() {
	It("applies the documented defaults when no flags are given", func() {
		cfg, err := ParseJM(newFlagSet(), []string{"jm", "./myjob.so"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Module).To(Equal("./myjob.so"))
		Expect(cfg.Config.KillTMs).To(BeTrue())
		Expect(cfg.Config.Nodefile).To(Equal(DefaultNodefile))
		Expect(cfg.Config.ConnTimeout).To(Equal(time.Duration(0)), "config.conn_timeout is None by default")
		Expect(cfg.Config.RecvTimeout).To(Equal(time.Duration(0)))
		Expect(cfg.Config.Perf).To(BeFalse())
		Expect(cfg.Config.MetricsAddr).To(BeEmpty())
		Expect(cfg.LogDir).To(BeEmpty())
	})

	It("forwards the module path and every argument after it untouched", func() {
		cfg, err := ParseJM(newFlagSet(), []string{"jm", "-killtms=false", "./myjob.so", "--seed=1", "extra"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Config.KillTMs).To(BeFalse())
		Expect(cfg.Module).To(Equal("./myjob.so"))
		Expect(cfg.ModuleArgs).To(Equal([]string{"./myjob.so", "--seed=1", "extra"}))
	})

	It("converts fractional-second timeout flags exactly", func() {
		cfg, err := ParseJM(newFlagSet(), []string{"jm", "-rtimeout=1.5", "./myjob.so"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Config.RecvTimeout).To(Equal(1500 * time.Millisecond))
	})

	It("fails when no module argument is given", func() {
		_, err := ParseJM(newFlagSet(), []string{"jm"})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ParseTM", func() {
	It("applies the documented defaults when no flags are given", func() {
		cfg, err := ParseTM(newFlagSet(), []string{"tm", "./myjob.so"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Config.Addr).To(Equal("0.0.0.0"))
		Expect(cfg.Config.Port).To(Equal(DefaultTMPort))
		Expect(cfg.Config.Overfill).To(Equal(0))
		Expect(cfg.Config.Workers).To(BeNumerically(">", 0), "nw defaults to runtime.NumCPU()")
	})

	It("falls back to the CPU count for a non-positive -nw", func() {
		cfg, err := ParseTM(newFlagSet(), []string{"tm", "-nw=0", "./myjob.so"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Config.Workers).To(BeNumerically(">", 0))

		cfg, err = ParseTM(newFlagSet(), []string{"tm", "-nw=-3", "./myjob.so"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Config.Workers).To(BeNumerically(">", 0))
	})

	It("honors an explicit positive -nw", func() {
		cfg, err := ParseTM(newFlagSet(), []string{"tm", "-nw=4", "./myjob.so"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Config.Workers).To(Equal(4))
	})

	It("fails when no module argument is given", func() {
		_, err := ParseTM(newFlagSet(), []string{"tm"})
		Expect(err).To(HaveOccurred())
	})
})
