// Package gitbatch composes the process pool and result cache into a
// convenience layer for running many repository queries at once.
//
// Failures are isolated per query: one failing command never aborts the
// rest of the batch.
package gitbatch

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iniationware/sourcegit-sub001/internal/gitcache"
	"github.com/Iniationware/sourcegit-sub001/internal/gitcmd"
	"github.com/Iniationware/sourcegit-sub001/internal/logging"
)

// Options configures one batch run.
type Options struct {
	// UseCache routes queries through the result cache.
	UseCache bool

	// Parallel fans queries out concurrently instead of sequentially.
	Parallel bool

	// MaxParallel bounds the fan-out. The effective bound is
	// min(MaxParallel, NumCPU); zero means NumCPU.
	MaxParallel int

	// Timeout applies per query. Zero uses the pool default.
	Timeout time.Duration
}

// Result holds the per-query outcomes of a batch.
type Result struct {
	// Outputs maps query text to its standard output.
	Outputs map[string]string

	// Failures maps query text to the failure message for queries that
	// produced no usable output.
	Failures map[string]string
}

// Executor runs query batches through the pool, optionally via the cache.
type Executor struct {
	pool   *gitcmd.Pool
	cache  *gitcache.Cache
	logger logging.Logger
}

// New creates a batch executor. cache may be nil, in which case UseCache is
// ignored.
func New(pool *gitcmd.Pool, cache *gitcache.Cache, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Executor{pool: pool, cache: cache, logger: logger}
}

// Classify maps a query to the cache category its output belongs to.
// Unrecognized queries fall into the most volatile category.
func Classify(query string) gitcache.Category {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "status"):
		return gitcache.CategoryStatus
	case strings.Contains(q, "branch"):
		return gitcache.CategoryBranches
	case strings.Contains(q, "tag"):
		return gitcache.CategoryTags
	case strings.Contains(q, "remote"):
		return gitcache.CategoryRemotes
	case strings.Contains(q, "config") && strings.Contains(q, "gitflow"):
		return gitcache.CategoryFlowConfig
	case strings.Contains(q, "config"):
		return gitcache.CategoryConfig
	default:
		return gitcache.CategoryStatus
	}
}

// Execute runs every query and returns per-query outputs and failures.
func (e *Executor) Execute(ctx context.Context, repo string, queries []string, opts Options) *Result {
	res := &Result{
		Outputs:  make(map[string]string, len(queries)),
		Failures: make(map[string]string),
	}
	if len(queries) == 0 {
		return res
	}

	var mu sync.Mutex
	record := func(query, output string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Failures[query] = err.Error()
			return
		}
		res.Outputs[query] = output
	}

	if !opts.Parallel {
		for _, q := range queries {
			out, err := e.runOne(ctx, repo, q, opts)
			record(q, out, err)
		}
		return res
	}

	limit := opts.MaxParallel
	if limit <= 0 || limit > runtime.NumCPU() {
		limit = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, q := range queries {
		q := q
		g.Go(func() error {
			out, err := e.runOne(gctx, repo, q, opts)
			record(q, out, err)
			// Failures stay per-query; never fail the group.
			return nil
		})
	}
	_ = g.Wait()

	return res
}

// runOne executes a single query via cache+pool or pool-only.
func (e *Executor) runOne(ctx context.Context, repo, query string, opts Options) (string, error) {
	args := strings.Fields(query)
	if len(args) == 0 {
		return "", fmt.Errorf("empty query")
	}

	execute := func() (string, error) {
		r := e.pool.Execute(ctx, repo, args, opts.Timeout)
		if !r.Success {
			return "", r.Err
		}
		return r.Stdout, nil
	}

	if opts.UseCache && e.cache != nil {
		return e.cache.GetOrCompute(repo, query, Classify(query), execute)
	}
	return execute()
}

// readOnlyVerbs is the allow-list for CombineReadOnly. Only queries whose
// first word appears here are executed; everything else is skipped.
var readOnlyVerbs = map[string]bool{
	"status":        true,
	"log":           true,
	"branch":        true,
	"tag":           true,
	"remote":        true,
	"config":        true,
	"diff":          true,
	"show":          true,
	"rev-parse":     true,
	"ls-files":      true,
	"describe":      true,
	"count-objects": true,
}

// isReadOnlyQuery reports whether the query is safe for CombineReadOnly.
// stash needs its subcommand checked: only "stash list" reads, while pop,
// drop, apply and push all mutate.
func isReadOnlyQuery(args []string) bool {
	if len(args) == 0 {
		return false
	}
	if args[0] == "stash" {
		return len(args) > 1 && args[1] == "list"
	}
	return readOnlyVerbs[args[0]]
}

// CombineReadOnly filters queries to the read-only allow-list, executes
// each, and concatenates labeled sections. Intended for diagnostic bulk
// reads; mutating queries are silently skipped.
func (e *Executor) CombineReadOnly(ctx context.Context, repo string, queries []string) string {
	var b strings.Builder

	for _, q := range queries {
		args := strings.Fields(q)
		if !isReadOnlyQuery(args) {
			e.logger.Debug("combine skipped non-read-only query", "query", q)
			continue
		}

		fmt.Fprintf(&b, "=== %s ===\n", q)
		r := e.pool.Execute(ctx, repo, args, 0)
		if !r.Success {
			fmt.Fprintf(&b, "(failed: %v)\n", r.Err)
		} else {
			b.WriteString(r.Stdout)
			if !strings.HasSuffix(r.Stdout, "\n") {
				b.WriteByte('\n')
			}
		}
	}

	return b.String()
}
