package ralloc_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joshuapare/ralloc/pkg/ralloc"
)

func Example() {
	dir, err := os.MkdirTemp("", "ralloc-example")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "app.heap")

	// First run: create the heap and publish a block as root 0.
	h := ralloc.New(nil)
	existed, err := h.Init(path, 1<<20)
	if err != nil {
		panic(err)
	}
	p, err := h.Malloc(64)
	if err != nil {
		panic(err)
	}
	copy(h.Bytes(p), "hello, heap")
	if err := h.SetRoot(p, 0); err != nil {
		panic(err)
	}
	if err := h.Close(); err != nil {
		panic(err)
	}
	fmt.Println("existed:", existed)

	// Second run: find it again through the root.
	h = ralloc.New(nil)
	existed, err = h.Init(path, 1<<20)
	if err != nil {
		panic(err)
	}
	defer h.Close()
	root, err := h.GetRoot(0)
	if err != nil {
		panic(err)
	}
	fmt.Println("existed:", existed)
	fmt.Println(string(h.Bytes(root)[:11]))

	// Output:
	// existed: false
	// existed: true
	// hello, heap
}
