// Package main runs the repository watch daemon: it wires the process
// pool, result cache, batch executor, and change watcher together for one
// repository and logs the refreshes it performs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iniationware/sourcegit-sub001/internal/gitbatch"
	"github.com/Iniationware/sourcegit-sub001/internal/gitcache"
	"github.com/Iniationware/sourcegit-sub001/internal/gitcmd"
	"github.com/Iniationware/sourcegit-sub001/internal/logging"
	"github.com/Iniationware/sourcegit-sub001/internal/repowatch"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		repoPath string
		verbose  bool
		tick     time.Duration
	)
	flag.StringVar(&repoPath, "repo", ".", "repository working tree to watch")
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
	flag.DurationVar(&tick, "tick", 100*time.Millisecond, "watch scheduler interval")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewText(os.Stderr, level)

	abs, err := filepath.Abs(repoPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: resolve %s: %v\n", repoPath, err)
		return 1
	}
	gitDir := filepath.Join(abs, ".git")
	if _, err := os.Stat(gitDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s is not a repository root\n", abs)
		return 1
	}

	// Composition root: one pool and one cache for the process lifetime,
	// passed by handle to everything below.
	pool := gitcmd.NewPool(gitcmd.WithLogger(logger))
	cache := gitcache.New(gitcache.WithLogger(logger))
	batch := gitbatch.New(pool, cache, logger)

	repo := &repoAdapter{
		path:   abs,
		batch:  batch,
		cache:  cache,
		logger: logger,
	}

	watcher := repowatch.New(repo,
		repowatch.WithTickInterval(tick),
		repowatch.WithLogger(logger),
	)

	if err := watcher.WatchRepository(abs, gitDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: watch %s: %v\n", abs, err)
		return 1
	}

	logger.Info("watching repository", "path", abs)

	// Prime the caches with an initial snapshot.
	repo.RefreshBranches()
	repo.RefreshWorkingCopyChanges()
	repo.RefreshTags()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	logger.Info("shutting down")

	// Teardown order: stop producing work, then the stores, then the pool.
	_ = watcher.Close()
	cache.Close()
	pool.Close()

	return 0
}

// repoAdapter satisfies repowatch.Repository by re-running the read-only
// queries for each concern through the cache, after invalidating the
// categories the change made stale.
type repoAdapter struct {
	path   string
	batch  *gitbatch.Executor
	cache  *gitcache.Cache
	logger logging.Logger
}

// refresh invalidates cat and re-runs the queries for it.
func (r *repoAdapter) refresh(name string, cat gitcache.Category, queries ...string) {
	r.cache.InvalidateCategory(r.path, cat)

	res := r.batch.Execute(context.Background(), r.path, queries, gitbatch.Options{
		UseCache: true,
		Parallel: len(queries) > 1,
	})
	for q, msg := range res.Failures {
		r.logger.Warn("refresh query failed", "concern", name, "query", q, "error", msg)
	}
	r.logger.Info("refreshed", "concern", name, "queries", len(queries), "failures", len(res.Failures))
}

func (r *repoAdapter) RefreshBranches() {
	r.refresh("branches", gitcache.CategoryBranches,
		"branch -a --format=%(refname:short)|%(objectname:short)|%(upstream:short)")
}

func (r *repoAdapter) RefreshTags() {
	r.refresh("tags", gitcache.CategoryTags,
		"tag --sort=-creatordate --format=%(refname:short)")
}

func (r *repoAdapter) RefreshWorkingCopyChanges() {
	r.refresh("working-copy", gitcache.CategoryStatus,
		"status --porcelain=v2 --untracked-files=all")
}

func (r *repoAdapter) RefreshStashes() {
	r.refresh("stashes", gitcache.CategoryStatus,
		"stash list --format=%gd|%H|%s")
}

func (r *repoAdapter) RefreshSubmodules() {
	r.refresh("submodules", gitcache.CategoryStatus,
		"submodule status")
}

func (r *repoAdapter) RefreshCommits() {
	// Unrecognized queries classify into the status bucket; invalidate the
	// same bucket so the history query is actually re-run.
	r.refresh("commits", gitcache.CategoryStatus,
		"log --oneline -n 100")
}

// MayHaveSubmodules reports whether a .gitmodules file exists.
func (r *repoAdapter) MayHaveSubmodules() bool {
	_, err := os.Stat(filepath.Join(r.path, ".gitmodules"))
	return err == nil
}
