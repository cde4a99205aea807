// Command rmabench drives a Rewired Packed Memory Array engine against a
// synthetic workload.
//
// Usage:
//
//	rmabench -keys 100000 -segment-size 64 -workers 8
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/Zabrane/rma-concurrent/rma"
)

var (
	numKeys     = flag.Int("keys", 100_000, "number of keys to insert")
	segmentSize = flag.Uint("segment-size", 64, "per-segment capacity")
	workers     = flag.Int("workers", 0, "rebalance worker count (0 = GOMAXPROCS)")
	seed        = flag.Int64("seed", 1, "random seed for the key permutation")
	verbose     = flag.Bool("v", false, "enable structured trace logging")
	dumpAtEnd   = flag.Bool("dump", false, "dump the final segment layout to stdout")
)

func main() {
	flag.Parse()

	cfg := rma.DefaultConfig()
	cfg.SegmentSize = uint32(*segmentSize)
	cfg.RebalanceWorkers = *workers
	if *verbose {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	eng, err := rma.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rmabench: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	keys := rand.New(rand.NewSource(*seed)).Perm(*numKeys)
	for _, k := range keys {
		if err := eng.Insert(int64(k), int64(k)*2); err != nil {
			fmt.Fprintf(os.Stderr, "rmabench: insert %d: %v\n", k, err)
			os.Exit(1)
		}
	}

	stats := eng.Stats()
	fmt.Printf("inserted %d keys\n", *numKeys)
	fmt.Printf("segments=%d height=%d footprint_bytes=%d rewired=%v\n",
		stats.Segments, stats.Height, stats.Footprint, stats.Rewired)

	count := 0
	eng.RangeScan(0, int64(*numKeys), func(k, v int64) bool {
		count++
		return true
	})
	fmt.Printf("range scan visited %d keys\n", count)

	if *dumpAtEnd {
		eng.Dump(os.Stdout)
	}
}
