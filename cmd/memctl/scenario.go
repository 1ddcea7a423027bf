package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/memkit/alloc"
)

func init() {
	rootCmd.AddCommand(newScenarioCmd())
}

func newScenarioCmd() *cobra.Command {
	names := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		names = append(names, s.name)
	}
	return &cobra.Command{
		Use:   "scenario [name...]",
		Short: "Run built-in allocator scenarios",
		Long: `The scenario command runs allocator correctness scenarios and reports
pass/fail with the final allocator statistics. Without arguments every
scenario runs.

Scenarios: ` + strings.Join(names, ", ") + `

Example:
  memctl scenario
  memctl scenario roundtrip stack-lifo --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(args)
		},
	}
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name   string      `json:"name"`
	Passed bool        `json:"passed"`
	Error  string      `json:"error,omitempty"`
	Stats  alloc.Stats `json:"stats"`
}

type scenario struct {
	name string
	run  func() (alloc.Stats, error)
}

var scenarios = []scenario{
	{"roundtrip", scenarioRoundTrip},
	{"exhaustion", scenarioExhaustion},
	{"linear-clear", scenarioLinearClear},
	{"stack-lifo", scenarioStackLIFO},
	{"arena-rewind", scenarioArenaRewind},
	{"handle-stability", scenarioHandleStability},
}

var errScenarioFailed = errors.New("one or more scenarios failed")

func runScenarios(names []string) error {
	selected := scenarios
	if len(names) > 0 {
		selected = nil
		for _, name := range names {
			i := slices.IndexFunc(scenarios, func(s scenario) bool { return s.name == name })
			if i < 0 {
				return fmt.Errorf("unknown scenario %q", name)
			}
			selected = append(selected, scenarios[i])
		}
	}

	results := make([]ScenarioResult, 0, len(selected))
	failed := false
	for _, s := range selected {
		st, err := s.run()
		r := ScenarioResult{Name: s.name, Passed: err == nil, Stats: st}
		if err != nil {
			r.Error = err.Error()
			failed = true
		}
		results = append(results, r)
	}

	if jsonOut {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			status := "PASS"
			if !r.Passed {
				status = "FAIL"
			}
			printInfo("%-4s %-17s %s\n", status, r.Name, r.Stats)
			if r.Error != "" {
				printInfo("     %s\n", r.Error)
			}
		}
	}

	if failed {
		return errScenarioFailed
	}
	return nil
}

// scenarioRoundTrip overflows a 1024 byte resizable free list, frees every
// block and expects one free block covering the doubled buffer.
func scenarioRoundTrip() (alloc.Stats, error) {
	fl, err := alloc.NewFreeList(1024, alloc.FreeListOptions{Resizable: true})
	if err != nil {
		return alloc.Stats{}, err
	}
	defer fl.Close()

	var handles []alloc.Handle
	for _, size := range []int{448, 224, 628, 94} {
		h, err := fl.AllocHandle(size, 8)
		if err != nil {
			return fl.Stats(), fmt.Errorf("alloc %d: %w", size, err)
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		if err := fl.FreeHandle(h); err != nil {
			return fl.Stats(), fmt.Errorf("free %d: %w", h, err)
		}
	}
	if fl.Capacity() != 2048 || fl.RemainSpace() != fl.Capacity() {
		return fl.Stats(), fmt.Errorf("capacity %d, remain %d, want both 2048", fl.Capacity(), fl.RemainSpace())
	}
	return fl.Stats(), nil
}

// scenarioExhaustion asks a fixed 64 byte free list for 128 bytes.
func scenarioExhaustion() (alloc.Stats, error) {
	fl, err := alloc.NewFreeList(64, alloc.FreeListOptions{})
	if err != nil {
		return alloc.Stats{}, err
	}
	defer fl.Close()

	_, err = fl.Alloc(128, 8)
	if !errors.Is(err, alloc.ErrNoSpace) {
		return fl.Stats(), fmt.Errorf("alloc 128 of 64: got %v, want %v", err, alloc.ErrNoSpace)
	}
	if fl.RemainSpace() != 64 {
		return fl.Stats(), fmt.Errorf("free list changed by failed alloc: remain %d", fl.RemainSpace())
	}
	return fl.Stats(), nil
}

// scenarioLinearClear fills a linear allocator to 90% and clears it.
func scenarioLinearClear() (alloc.Stats, error) {
	l := alloc.NewLinear(1000)
	defer l.Close()

	for l.Count() < l.Capacity()*9/10 {
		if _, err := l.Alloc(10, 1); err != nil {
			return l.Stats(), err
		}
	}
	st := l.Stats()
	l.Clear()
	if l.Count() != 0 || l.Remaining() != l.Capacity() {
		return st, fmt.Errorf("after clear: count %d, remaining %d", l.Count(), l.Remaining())
	}
	return st, nil
}

// scenarioStackLIFO pushes three blocks and pops them, refusing out-of-order pops.
func scenarioStackLIFO() (alloc.Stats, error) {
	s := alloc.NewStack(1024)
	defer s.Close()

	var hs []alloc.Handle
	for _, size := range []int{10, 20, 30} {
		h, err := s.AllocHandle(size, 16)
		if err != nil {
			return s.Stats(), err
		}
		hs = append(hs, h)
	}
	if err := s.FreeHandle(hs[0]); !errors.Is(err, alloc.ErrNotTop) {
		return s.Stats(), fmt.Errorf("pop of bottom block: got %v, want %v", err, alloc.ErrNotTop)
	}
	for i := len(hs) - 1; i >= 0; i-- {
		if err := s.FreeHandle(hs[i]); err != nil {
			return s.Stats(), fmt.Errorf("pop %d: %w", i, err)
		}
	}
	if s.Count() != 0 || s.PrevCount() != 0 {
		return s.Stats(), fmt.Errorf("stack not empty: count %d, prev %d", s.Count(), s.PrevCount())
	}
	return s.Stats(), nil
}

// scenarioArenaRewind spills an arena over several regions and rewinds.
func scenarioArenaRewind() (alloc.Stats, error) {
	a := alloc.NewArena(alloc.ArenaOptions{RegionPages: 1})
	defer a.Close()

	if _, err := a.Alloc(100, 8); err != nil {
		return a.Stats(), err
	}
	snap := a.Snapshot()
	used := a.Stats().Used
	for range 64 {
		if _, err := a.Alloc(1000, 8); err != nil {
			return a.Stats(), err
		}
	}
	st := a.Stats()
	if err := a.Rewind(snap); err != nil {
		return st, err
	}
	if a.Stats().Used != used {
		return st, fmt.Errorf("used %d after rewind, want %d", a.Stats().Used, used)
	}
	return st, nil
}

// scenarioHandleStability writes through handles, forces growth and reads back.
func scenarioHandleStability() (alloc.Stats, error) {
	fl, err := alloc.NewFreeList(128, alloc.FreeListOptions{Resizable: true})
	if err != nil {
		return alloc.Stats{}, err
	}
	defer fl.Close()

	const n = 64
	handles := make([]alloc.Handle, n)
	for i := range handles {
		h, err := fl.AllocHandle(32, 8)
		if err != nil {
			return fl.Stats(), err
		}
		b := alloc.Bytes(fl, h, 32)
		for j := range b {
			b[j] = byte(i)
		}
		handles[i] = h
	}
	for i, h := range handles {
		for j, v := range alloc.Bytes(fl, h, 32) {
			if v != byte(i) {
				return fl.Stats(), fmt.Errorf("handle %d byte %d: got %#x, want %#x", i, j, v, byte(i))
			}
		}
	}
	if fl.Stats().Grows == 0 {
		return fl.Stats(), errors.New("expected the free list to grow")
	}
	return fl.Stats(), nil
}
