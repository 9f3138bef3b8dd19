package jm

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func newTempDir() string {
	dir, err := os.MkdirTemp("", "spitz-fleet-test")
	Expect(err).NotTo(HaveOccurred())
	return dir
}

func writeNodeFile(dir, contents string) string {
	path := filepath.Join(dir, "nodes.txt")
	Expect(os.WriteFile(path, []byte(contents), 0644)).To(Succeed())
	return path
}

var _ = Describe("fleet loading", func() {
	It("parses simple nodes in file order", func() {
		dir := newTempDir()
		defer os.RemoveAll(dir)
		path := writeNodeFile(dir, "node 127.0.0.1:7001\nnode 127.0.0.1:7002\nnode 127.0.0.1:7003\n")

		fleet := newFleetCache().Load(path)
		Expect(fleet.Order).To(Equal([]string{
			"127.0.0.1:7001", "127.0.0.1:7002", "127.0.0.1:7003",
		}))
	})

	It("ignores blank lines and unrecognized directives", func() {
		dir := newTempDir()
		defer os.RemoveAll(dir)
		path := writeNodeFile(dir, "\n# not a comment marker the parser knows about\nnode 127.0.0.1:7001\nbogus line\n")

		fleet := newFleetCache().Load(path)
		Expect(fleet.Order).To(Equal([]string{"127.0.0.1:7001"}))
	})

	It("records a proxy and skips a node routed through it", func() {
		dir := newTempDir()
		defer os.RemoveAll(dir)
		path := writeNodeFile(dir, "proxy gw tcp:10.0.0.1:9000\nnode worker1:7001 through gw\nnode 127.0.0.1:7002\n")

		fleet := newFleetCache().Load(path)
		Expect(fleet.Order).To(Equal([]string{"127.0.0.1:7002"}))
	})

	It("returns an empty fleet when the file is missing", func() {
		dir := newTempDir()
		defer os.RemoveAll(dir)
		fleet := newFleetCache().Load(filepath.Join(dir, "does-not-exist.txt"))
		Expect(fleet.Len()).To(Equal(0))
	})

	It("skips re-parsing an unchanged file on reload", func() {
		dir := newTempDir()
		defer os.RemoveAll(dir)
		path := writeNodeFile(dir, "node 127.0.0.1:7001\n")

		cache := newFleetCache()
		first := cache.Load(path)
		second := cache.Load(path)
		Expect(second.Order).To(Equal(first.Order))

		// A real content change is still picked up.
		writeNodeFile(dir, "node 127.0.0.1:7001\nnode 127.0.0.1:7002\n")
		third := cache.Load(path)
		Expect(third.Order).To(Equal([]string{"127.0.0.1:7001", "127.0.0.1:7002"}))
	})
})
