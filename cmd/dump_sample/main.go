// dump_sample runs the seed and inspects every quad index, writing all output
// to cmd/sample_run_output.txt. Run from repo root: go run ./cmd/dump_sample
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	indexfile "QuadDB/storage_engine/access/indexfile_manager"
	"QuadDB/storage_engine/access/tupleindex"
)

const (
	baseDir    = "data/sample"
	outputFile = "cmd/sample_run_output.txt"
)

func main() {
	outPath := outputFile
	// If run from cmd/dump_sample, output next to binary
	if _, err := os.Stat("cmd"); os.IsNotExist(err) {
		outPath = "sample_run_output.txt"
	}

	f, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	// 1) Run seed: small table, small order so the dump shows several levels
	fmt.Fprintln(f, "========== SEED (bulk load quads, adds, deletes) ==========")
	cmd := exec.Command("go", "run", "./cmd/seed", "-dir", baseDir, "-n", "60", "-nodes", "8", "-order", "4")
	cmd.Stdout = f
	cmd.Stderr = f
	cmd.Dir = repoRoot()
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(f, "seed exited with error: %v\n", err)
	}

	// 2) Dump each index
	ifm, err := indexfile.New(filepath.Join(repoRoot(), baseDir), indexfile.Options{})
	if err != nil {
		fmt.Fprintf(f, "open %s: %v\n", baseDir, err)
		os.Exit(1)
	}
	defer ifm.CloseAll()
	for _, order := range tupleindex.QuadOrders {
		name := tupleindex.IndexName("quads", order)
		fmt.Fprintf(f, "\n========== INSPECT %s ==========\n", name)
		if err := ifm.InspectTo(f, name, true); err != nil {
			fmt.Fprintf(f, "inspect error: %v\n", err)
		}
	}

	fmt.Printf("Output written to %s\n", outPath)
}

func repoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for d := dir; d != filepath.Dir(d); d = filepath.Dir(d) {
		if _, err := os.Stat(filepath.Join(d, "go.mod")); err == nil {
			return d
		}
	}
	return dir
}
