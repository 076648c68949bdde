// Command pfbench runs the bulk-load-vs-one-by-one index build comparison
// and prints a report table, playing the role test_objective3.c's main()
// plays in the original sources.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/jordy-godjo/pfstore/config"
	"github.com/jordy-godjo/pfstore/harness"
)

func main() {
	dbPath := flag.String("dbpath", "", "directory to hold benchmark data and index files (default: a temp dir)")
	numRecords := flag.Int("records", 200, "number of records to load")
	pageSize := flag.Int("pagesize", 4096, "PF page size in bytes")
	maxBuffers := flag.Int("buffers", 20, "buffer pool size in frames")
	seed := flag.Int64("seed", 1, "random seed for the one-by-one method's key generation")
	flag.Parse()

	dir := *dbPath
	if dir == "" {
		tmp, err := os.MkdirTemp("", "pfbench-")
		if err != nil {
			log.Fatalf("pfbench: %v", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	cfg := config.NewConfigWithParams(dir, *pageSize, *maxBuffers)

	m1, m2, err := harness.Compare(cfg, *numRecords, *seed)
	if err != nil {
		log.Fatalf("pfbench: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Method\tTime\tPhysical Reads\tPhysical Writes\tLogical Reads\tLeaves\tHeight\n")
	printRow(w, m1)
	printRow(w, m2)
	w.Flush()
}

func printRow(w *tabwriter.Writer, m harness.MethodResult) {
	fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
		m.Name, m.Elapsed, m.Stats.PhysicalReads, m.Stats.PhysicalWrites, m.Stats.LogicalReads,
		m.Tree.LeafCount, m.Tree.Height)
}
