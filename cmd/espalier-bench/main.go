// espalier-bench is a benchmark and stress test for the espalier library.
// It mirrors a large in-memory tree and measures the cost of the common
// model operations: the initial pass, lazy expansion, handle resolution,
// edit reconciliation, and update coalescing, plus a SQLite-backed source.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/tamlin/espalier"
	"github.com/tamlin/espalier/memtree"
	"github.com/tamlin/espalier/sqltree"
)

const (
	topLevelCount  = 5000
	childFanout    = 8
	grandFanout    = 4
	sqlTopLevel    = 2000
	sqlChildFanout = 10
)

type BenchResult struct {
	Name     string
	Duration time.Duration
	Ops      int
	Extra    string
}

func (r BenchResult) String() string {
	if r.Ops > 0 {
		opsPerSec := float64(r.Ops) / r.Duration.Seconds()
		if r.Extra != "" {
			return fmt.Sprintf("%-40s %12v  (%d ops, %.2f ops/sec) %s", r.Name, r.Duration.Round(time.Microsecond), r.Ops, opsPerSec, r.Extra)
		}
		return fmt.Sprintf("%-40s %12v  (%d ops, %.2f ops/sec)", r.Name, r.Duration.Round(time.Microsecond), r.Ops, opsPerSec)
	}
	if r.Extra != "" {
		return fmt.Sprintf("%-40s %12v  %s", r.Name, r.Duration.Round(time.Microsecond), r.Extra)
	}
	return fmt.Sprintf("%-40s %12v", r.Name, r.Duration.Round(time.Microsecond))
}

// countingSink tallies notifications without retaining them.
type countingSink struct {
	inserts   int
	removes   int
	refreshes int
}

func (s *countingSink) BeginInsert(parent espalier.NodeRef, first, last int) { s.inserts++ }
func (s *countingSink) EndInsert()                                           {}
func (s *countingSink) BeginRemove(parent espalier.NodeRef, first, last int) { s.removes++ }
func (s *countingSink) EndRemove()                                           {}
func (s *countingSink) RefreshAll()                                          { s.refreshes++ }

func main() {
	fmt.Println("Espalier Benchmark and Stress Test")
	fmt.Println("==================================")
	fmt.Printf("Tree size: %d top-level x %d x %d\n", topLevelCount, childFanout, grandFanout)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
	fmt.Println()

	tmpDir, err := os.MkdirTemp("", "espalier-bench-*")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	var results []BenchResult

	// Build the fixture before any model exists, so construction cost
	// is not charged to the mirroring benchmarks.
	fmt.Println("Building fixture tree...")
	tree, deepItems, result := generateTree()
	results = append(results, result)
	fmt.Println(result)
	fmt.Println()

	runBench := func(name string, fn func() BenchResult) {
		fmt.Printf("  %-40s ", name+"...")
		result := fn()
		fmt.Printf("%v\n", result.Duration.Round(time.Microsecond))
		results = append(results, result)
	}

	fmt.Println("Running benchmarks...")
	fmt.Println()

	fmt.Println("Mirroring:")
	runBench("Initial pass (fresh model)", func() BenchResult {
		return benchInitialPass(tree)
	})

	// The long-lived model is created after the fresh-model benchmark so
	// it ends up holding the tree's updater for the edit benchmarks.
	sink := &countingSink{}
	m := espalier.New(tree, espalier.Options{Sink: sink})

	runBench("Quiet pass (no source changes)", func() BenchResult {
		return benchQuietPass(m)
	})

	fmt.Println("\nHandle resolution:")
	runBench("Resolve deep items (cold)", func() BenchResult {
		return benchResolveItems(m, deepItems, "Resolve deep items (cold)")
	})
	runBench("Resolve deep items (warm)", func() BenchResult {
		return benchResolveItems(m, deepItems, "Resolve deep items (warm)")
	})

	fmt.Println("\nExpansion:")
	runBench("Full expansion walk", func() BenchResult {
		return benchFullExpansion(m)
	})
	runBench("Quiet pass (fully expanded)", func() BenchResult {
		return benchExpandedPass(m)
	})
	runBench("Value reads (top level)", func() BenchResult {
		return benchValueReads(m)
	})

	fmt.Println("\nEdit reconciliation:")
	runBench("Single insert/remove cycles", func() BenchResult {
		return benchSingleEdits(tree)
	})
	runBench("Reorder (move first to last)", func() BenchResult {
		return benchReorder(tree)
	})
	runBench("Batched edits (1000 per pass)", func() BenchResult {
		return benchBatchedEdits(tree)
	})

	fmt.Println("\nUpdate coalescing:")
	runBench("Queued updates (burst of 10000)", func() BenchResult {
		return benchQueuedCoalescing(tree)
	})

	fmt.Println("\nSQLite-backed source:")
	sqlResults := runSQLBenches(filepath.Join(tmpDir, "bench.db"))
	for _, r := range sqlResults {
		fmt.Printf("  %-40s %v\n", r.Name+"...", r.Duration.Round(time.Microsecond))
		results = append(results, r)
	}

	fmt.Println("\n" + "=")
	fmt.Println("SUMMARY")
	fmt.Println("=")
	for _, r := range results {
		fmt.Println(r)
	}
	fmt.Printf("\nNotifications: %d insert brackets, %d remove brackets, %d refreshes\n",
		sink.inserts, sink.removes, sink.refreshes)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Println()
	fmt.Printf("Peak heap allocation: %d MB\n", mem.HeapSys/(1024*1024))
	fmt.Printf("Total allocations: %d MB\n", mem.TotalAlloc/(1024*1024))
}

// generateTree builds the three-level fixture and returns every 500th
// grandchild for the handle-resolution benchmarks.
func generateTree() (*memtree.Tree, []*memtree.Node, BenchResult) {
	start := time.Now()

	tree := memtree.New()
	var deep []*memtree.Node
	total := 0
	for i := 0; i < topLevelCount; i++ {
		top := tree.Add(nil, fmt.Sprintf("top-%05d", i))
		total++
		for j := 0; j < childFanout; j++ {
			child := tree.Add(top, fmt.Sprintf("child-%05d-%d", i, j))
			total++
			for k := 0; k < grandFanout; k++ {
				g := tree.Add(child, fmt.Sprintf("leaf-%05d-%d-%d", i, j, k))
				total++
				if total%500 == 0 {
					deep = append(deep, g)
				}
			}
		}
	}

	return tree, deep, BenchResult{
		Name:     "Build fixture tree",
		Duration: time.Since(start),
		Extra:    fmt.Sprintf("%d nodes", total),
	}
}

func benchInitialPass(tree *memtree.Tree) BenchResult {
	const iterations = 5
	start := time.Now()

	var rows int
	for i := 0; i < iterations; i++ {
		m := espalier.New(tree, espalier.Options{})
		rows = m.ChildCount(espalier.NodeRef{})
	}

	return BenchResult{
		Name:     "Initial pass (fresh model)",
		Duration: time.Since(start),
		Ops:      iterations,
		Extra:    fmt.Sprintf("%d top-level rows", rows),
	}
}

func benchQuietPass(m *espalier.Model) BenchResult {
	const passes = 1000
	start := time.Now()

	for i := 0; i < passes; i++ {
		m.BeginUpdate()
		m.EndUpdate()
	}

	return BenchResult{
		Name:     "Quiet pass (no source changes)",
		Duration: time.Since(start),
		Ops:      passes,
	}
}

func benchResolveItems(m *espalier.Model, items []*memtree.Node, name string) BenchResult {
	ops := 0
	start := time.Now()

	for _, item := range items {
		if m.RefOf(item).IsValid() {
			ops++
		}
	}

	return BenchResult{
		Name:     name,
		Duration: time.Since(start),
		Ops:      ops,
	}
}

func benchFullExpansion(m *espalier.Model) BenchResult {
	start := time.Now()

	visited := 0
	var walk func(parent espalier.NodeRef)
	walk = func(parent espalier.NodeRef) {
		for i := 0; i < m.ChildCount(parent); i++ {
			ref := m.Index(i, 0, parent)
			visited++
			if m.HasChildren(ref) {
				walk(ref)
			}
		}
	}
	walk(espalier.NodeRef{})

	return BenchResult{
		Name:     "Full expansion walk",
		Duration: time.Since(start),
		Ops:      visited,
	}
}

func benchExpandedPass(m *espalier.Model) BenchResult {
	const passes = 100
	start := time.Now()

	for i := 0; i < passes; i++ {
		m.BeginUpdate()
		m.EndUpdate()
	}

	return BenchResult{
		Name:     "Quiet pass (fully expanded)",
		Duration: time.Since(start),
		Ops:      passes,
	}
}

func benchValueReads(m *espalier.Model) BenchResult {
	const rounds = 100
	ops := 0
	start := time.Now()

	for i := 0; i < rounds; i++ {
		for row := 0; row < m.ChildCount(espalier.NodeRef{}); row += 50 {
			if m.Value(m.Index(row, 0, espalier.NodeRef{}), espalier.RoleDisplay) != nil {
				ops++
			}
		}
	}

	return BenchResult{
		Name:     "Value reads (top level)",
		Duration: time.Since(start),
		Ops:      ops,
	}
}

func benchSingleEdits(tree *memtree.Tree) BenchResult {
	const cycles = 100
	ops := 0
	start := time.Now()

	for i := 0; i < cycles; i++ {
		n := tree.InsertAt(nil, 0, "bench-transient")
		ops++
		tree.Remove(n)
		ops++
	}

	return BenchResult{
		Name:     "Single insert/remove cycles",
		Duration: time.Since(start),
		Ops:      ops,
	}
}

func benchReorder(tree *memtree.Tree) BenchResult {
	const cycles = 100
	first := tree.ChildAt(nil, 0).(*memtree.Node)
	ops := 0
	start := time.Now()

	for i := 0; i < cycles; i++ {
		if err := tree.Move(first, nil, topLevelCount-1); err != nil {
			return BenchResult{Name: "Reorder (move first to last)", Extra: fmt.Sprintf("ERROR: %v", err)}
		}
		ops++
		if err := tree.Move(first, nil, 0); err != nil {
			return BenchResult{Name: "Reorder (move first to last)", Extra: fmt.Sprintf("ERROR: %v", err)}
		}
		ops++
	}

	return BenchResult{
		Name:     "Reorder (move first to last)",
		Duration: time.Since(start),
		Ops:      ops,
	}
}

func benchBatchedEdits(tree *memtree.Tree) BenchResult {
	const edits = 1000
	start := time.Now()

	var added []*memtree.Node
	tree.Batch(func() {
		for i := 0; i < edits; i++ {
			added = append(added, tree.Add(nil, fmt.Sprintf("bench-batch-%d", i)))
		}
	})
	tree.Batch(func() {
		for _, n := range added {
			tree.Remove(n)
		}
	})

	return BenchResult{
		Name:     "Batched edits (1000 per pass)",
		Duration: time.Since(start),
		Ops:      2 * edits,
		Extra:    "2 passes",
	}
}

// benchQueuedCoalescing drives a fresh model whose scheduler queues
// completions, then flushes the queue once: the burst must cost one pass.
func benchQueuedCoalescing(tree *memtree.Tree) BenchResult {
	const burst = 10000

	var queue []func()
	m := espalier.New(tree, espalier.Options{
		Scheduler: func(fn func()) { queue = append(queue, fn) },
	})

	start := time.Now()
	for i := 0; i < burst; i++ {
		m.QueuedUpdate()
	}
	passes := len(queue)
	for _, fn := range queue {
		fn()
	}

	return BenchResult{
		Name:     "Queued updates (burst of 10000)",
		Duration: time.Since(start),
		Ops:      burst,
		Extra:    fmt.Sprintf("%d pass(es)", passes),
	}
}

func runSQLBenches(dsn string) []BenchResult {
	var results []BenchResult

	tree, err := sqltree.Open(dsn, sqltree.Options{})
	if err != nil {
		return []BenchResult{{Name: "Open SQLite source", Extra: fmt.Sprintf("ERROR: %v", err)}}
	}
	defer tree.Close()

	start := time.Now()
	for i := 0; i < sqlTopLevel; i++ {
		id, err := tree.Insert(sqltree.Top, i, fmt.Sprintf("row-%05d", i))
		if err != nil {
			return []BenchResult{{Name: "Seed SQLite source", Extra: fmt.Sprintf("ERROR: %v", err)}}
		}
		for j := 0; j < sqlChildFanout; j++ {
			if _, err := tree.Insert(id, j, fmt.Sprintf("row-%05d-%d", i, j)); err != nil {
				return []BenchResult{{Name: "Seed SQLite source", Extra: fmt.Sprintf("ERROR: %v", err)}}
			}
		}
	}
	results = append(results, BenchResult{
		Name:     "Seed SQLite source",
		Duration: time.Since(start),
		Ops:      sqlTopLevel * (1 + sqlChildFanout),
	})

	start = time.Now()
	m := espalier.New(tree, espalier.Options{})
	rows := m.ChildCount(espalier.NodeRef{})
	results = append(results, BenchResult{
		Name:     "Initial pass (SQLite)",
		Duration: time.Since(start),
		Ops:      1,
		Extra:    fmt.Sprintf("%d top-level rows", rows),
	})

	const cycles = 50
	start = time.Now()
	for i := 0; i < cycles; i++ {
		id, err := tree.Insert(sqltree.Top, 0, "bench-transient")
		if err != nil {
			break
		}
		if err := tree.Delete(id); err != nil {
			break
		}
	}
	results = append(results, BenchResult{
		Name:     "Insert/delete cycles (SQLite)",
		Duration: time.Since(start),
		Ops:      2 * cycles,
	})

	return results
}
