package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/joshuapare/memkit/alloc"
	"github.com/joshuapare/memkit/alloc/metrics"
)

var (
	workloadAllocator string
	workloadOps       int
	workloadMaxSize   int
	workloadCapacity  int
	workloadSeed      uint64
	workloadMetrics   bool
)

func init() {
	cmd := newWorkloadCmd()
	cmd.Flags().StringVar(&workloadAllocator, "allocator", "freelist", "Allocator kind: arena, linear, stack, freelist, general")
	cmd.Flags().IntVar(&workloadOps, "ops", 10000, "Number of operations")
	cmd.Flags().IntVar(&workloadMaxSize, "max-size", 256, "Largest allocation in bytes")
	cmd.Flags().IntVar(&workloadCapacity, "capacity", 64*1024, "Initial buffer capacity in bytes")
	cmd.Flags().Uint64Var(&workloadSeed, "seed", 1, "Random seed")
	cmd.Flags().BoolVar(&workloadMetrics, "metrics", false, "Print the final statistics in Prometheus text format")
	rootCmd.AddCommand(cmd)
}

func newWorkloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workload",
		Short: "Run a random alloc/free workload",
		Long: `The workload command drives one allocator with a seeded random mix of
allocations, frees and reallocations, then prints the allocator statistics.

Example:
  memctl workload --allocator freelist --ops 100000 --max-size 512
  memctl workload --allocator stack --seed 7 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload()
		},
	}
}

// WorkloadReport summarises a workload run.
type WorkloadReport struct {
	Allocator string      `json:"allocator"`
	Ops       int         `json:"ops"`
	Seed      uint64      `json:"seed"`
	Allocs    int         `json:"allocs"`
	Frees     int         `json:"frees"`
	Reallocs  int         `json:"reallocs"`
	Failures  int         `json:"failures"`
	Live      int         `json:"live"`
	Stats     alloc.Stats `json:"stats"`
}

// block is a live allocation: a handle, or a pointer for the arena.
type block struct {
	h     alloc.Handle
	p     unsafe.Pointer
	size  int
	align int
}

func runWorkload() error {
	if workloadOps < 0 || workloadMaxSize <= 0 {
		return errors.New("--ops must be non-negative and --max-size positive")
	}
	a, err := newAllocator(workloadAllocator, workloadCapacity)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := workload(a, workloadAllocator, workloadOps, workloadMaxSize, workloadSeed)
	if err != nil {
		return err
	}

	switch {
	case workloadMetrics:
		return printMetrics(workloadAllocator, a)
	case jsonOut:
		return printJSON(report)
	}

	s := report.Stats
	printInfo("Workload: %s, %s ops, seed %d\n", report.Allocator, formatNumber(report.Ops), report.Seed)
	printInfo("  Allocs:         %s\n", formatNumber(report.Allocs))
	printInfo("  Frees:          %s\n", formatNumber(report.Frees))
	printInfo("  Reallocs:       %s\n", formatNumber(report.Reallocs))
	printInfo("  Failures:       %s\n", formatNumber(report.Failures))
	printInfo("  Live blocks:    %s\n", formatNumber(report.Live))
	printInfo("  Capacity:       %s\n", formatBytes(s.Capacity))
	printInfo("  Used:           %s\n", formatBytes(s.Used))
	printInfo("  Rejected frees: %s\n", formatNumber(s.RejectedFrees))
	printInfo("  Grows:          %s\n", formatNumber(s.Grows))
	return nil
}

// workload runs ops random operations against a. Stack frees always pop the
// most recent block so that every free is legal.
func workload(a statsAllocator, kind string, ops, maxSize int, seed uint64) (WorkloadReport, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r := WorkloadReport{Allocator: kind, Ops: ops, Seed: seed}
	usePtr := kind == "arena"

	var live []block
	for range ops {
		var err error
		switch op := rng.IntN(10); {
		case op < 6 || len(live) == 0:
			size := 1 + rng.IntN(maxSize)
			align := 1 << rng.IntN(5)
			b := block{size: size, align: align, h: alloc.NilHandle}
			if usePtr {
				b.p, err = a.Alloc(size, align)
			} else {
				b.h, err = a.AllocHandle(size, align)
			}
			if err != nil {
				if errors.Is(err, alloc.ErrNoSpace) {
					r.Failures++
					continue
				}
				return r, fmt.Errorf("alloc %d bytes: %w", size, err)
			}
			r.Allocs++
			live = append(live, b)

		case op < 9:
			i := rng.IntN(len(live))
			if kind == "stack" {
				i = len(live) - 1
			}
			b := live[i]
			if usePtr {
				err = a.Free(b.p)
			} else {
				err = a.FreeHandle(b.h)
			}
			if err != nil {
				return r, fmt.Errorf("free block %d: %w", i, err)
			}
			r.Frees++
			live = append(live[:i], live[i+1:]...)

		default:
			// The newest block keeps the stack legal; the original alignment
			// lets it be resized in place.
			i := len(live) - 1
			b := &live[i]
			size := 1 + rng.IntN(maxSize)
			var (
				p unsafe.Pointer
				h alloc.Handle
			)
			if usePtr {
				p, err = a.Realloc(b.p, size, b.align)
			} else {
				h, err = a.ReallocHandle(b.h, size, b.align)
			}
			if err != nil {
				if errors.Is(err, alloc.ErrNoSpace) {
					r.Failures++
					continue
				}
				return r, fmt.Errorf("realloc to %d bytes: %w", size, err)
			}
			b.p, b.h, b.size = p, h, size
			r.Reallocs++
		}
	}

	r.Live = len(live)
	r.Stats = a.Stats()
	return r, nil
}

// printMetrics renders the allocator's statistics through the Prometheus collector.
func printMetrics(name string, a alloc.StatsReporter) error {
	c := metrics.NewCollector(nil)
	if err := c.Register(name, a); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			return err
		}
	}
	return nil
}
