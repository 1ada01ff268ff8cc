package gitbatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iniationware/sourcegit-sub001/internal/gitcache"
	"github.com/Iniationware/sourcegit-sub001/internal/gitcmd"
)

// fakeGit writes a shell script that echoes its arguments, fails for any
// query starting with "fail", and appends a line to $COUNT_FILE per run.
func fakeGit(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakegit")
	script := `#!/bin/sh
if [ -n "$COUNT_FILE" ]; then echo run >> "$COUNT_FILE"; fi
case "$1" in
fail*) echo boom >&2; exit 1 ;;
slow*) sleep 5 ;;
esac
echo "$@"
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCount(t *testing.T, countFile string) int {
	t.Helper()
	data, err := os.ReadFile(countFile)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "run")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  gitcache.Category
	}{
		{"status --porcelain", gitcache.CategoryStatus},
		{"branch -a --format=%(refname)", gitcache.CategoryBranches},
		{"tag --sort=-creatordate", gitcache.CategoryTags},
		{"remote -v", gitcache.CategoryRemotes},
		{"config --get gitflow.branch.master", gitcache.CategoryFlowConfig},
		{"config --list", gitcache.CategoryConfig},
		{"log --oneline", gitcache.CategoryStatus}, // default bucket
	}

	for _, tt := range tests {
		if got := Classify(tt.query); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestExecutor_Execute_Sequential(t *testing.T) {
	pool := gitcmd.NewPool(gitcmd.WithExecutable(fakeGit(t)))
	defer pool.Close()

	ex := New(pool, nil, nil)
	res := ex.Execute(context.Background(), "", []string{
		"status --porcelain",
		"fail hard",
		"branch -a",
	}, Options{})

	if len(res.Outputs) != 2 {
		t.Fatalf("len(Outputs) = %d, want 2", len(res.Outputs))
	}
	if got := res.Outputs["status --porcelain"]; got != "status --porcelain\n" {
		t.Errorf("status output = %q", got)
	}
	if got := res.Outputs["branch -a"]; got != "branch -a\n" {
		t.Errorf("branch output = %q (failure must not abort the batch)", got)
	}
	if msg, ok := res.Failures["fail hard"]; !ok || msg == "" {
		t.Errorf("Failures[%q] = %q, %v; want a message keyed by query text", "fail hard", msg, ok)
	}
}

func TestExecutor_Execute_Parallel(t *testing.T) {
	pool := gitcmd.NewPool(gitcmd.WithExecutable(fakeGit(t)))
	defer pool.Close()

	queries := []string{"status", "branch", "tag", "remote", "fail x"}

	ex := New(pool, nil, nil)
	res := ex.Execute(context.Background(), "", queries, Options{
		Parallel:    true,
		MaxParallel: 3,
	})

	if len(res.Outputs) != 4 {
		t.Errorf("len(Outputs) = %d, want 4", len(res.Outputs))
	}
	if len(res.Failures) != 1 {
		t.Errorf("len(Failures) = %d, want 1", len(res.Failures))
	}
}

func TestExecutor_Execute_UsesCache(t *testing.T) {
	countFile := filepath.Join(t.TempDir(), "count")
	t.Setenv("COUNT_FILE", countFile)

	pool := gitcmd.NewPool(gitcmd.WithExecutable(fakeGit(t)))
	defer pool.Close()
	cache := gitcache.New()
	defer cache.Close()

	ex := New(pool, cache, nil)
	opts := Options{UseCache: true}

	for i := 0; i < 3; i++ {
		res := ex.Execute(context.Background(), "/repo", []string{"branch -a"}, opts)
		if len(res.Failures) != 0 {
			t.Fatalf("Failures = %v", res.Failures)
		}
	}

	if n := runCount(t, countFile); n != 1 {
		t.Errorf("process ran %d times, want 1 (cached)", n)
	}
}

func TestExecutor_Execute_CacheBypass(t *testing.T) {
	countFile := filepath.Join(t.TempDir(), "count")
	t.Setenv("COUNT_FILE", countFile)

	pool := gitcmd.NewPool(gitcmd.WithExecutable(fakeGit(t)))
	defer pool.Close()
	cache := gitcache.New()
	defer cache.Close()

	ex := New(pool, cache, nil)

	for i := 0; i < 2; i++ {
		ex.Execute(context.Background(), "/repo", []string{"branch -a"}, Options{UseCache: false})
	}

	if n := runCount(t, countFile); n != 2 {
		t.Errorf("process ran %d times, want 2 (cache bypassed)", n)
	}
}

func TestExecutor_Execute_Timeout(t *testing.T) {
	pool := gitcmd.NewPool(gitcmd.WithExecutable(fakeGit(t)))
	defer pool.Close()

	ex := New(pool, nil, nil)
	start := time.Now()
	res := ex.Execute(context.Background(), "", []string{"slow query"}, Options{
		Timeout: 100 * time.Millisecond,
	})

	if len(res.Failures) != 1 {
		t.Errorf("Failures = %v, want the timed-out query", res.Failures)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("elapsed = %v, per-query deadline did not kill the process", elapsed)
	}
}

func TestExecutor_CombineReadOnly(t *testing.T) {
	countFile := filepath.Join(t.TempDir(), "count")
	t.Setenv("COUNT_FILE", countFile)

	pool := gitcmd.NewPool(gitcmd.WithExecutable(fakeGit(t)))
	defer pool.Close()

	ex := New(pool, nil, nil)
	out := ex.CombineReadOnly(context.Background(), "", []string{
		"status --porcelain",
		"push origin main", // mutating: must be skipped
		"branch -a",
	})

	if !strings.Contains(out, "=== status --porcelain ===") {
		t.Errorf("missing status section:\n%s", out)
	}
	if !strings.Contains(out, "=== branch -a ===") {
		t.Errorf("missing branch section:\n%s", out)
	}
	if strings.Contains(out, "push") {
		t.Errorf("mutating query executed or labeled:\n%s", out)
	}
	if n := runCount(t, countFile); n != 2 {
		t.Errorf("process ran %d times, want 2 (skipped query must not spawn)", n)
	}
}

func TestExecutor_CombineReadOnly_StashSubcommands(t *testing.T) {
	countFile := filepath.Join(t.TempDir(), "count")
	t.Setenv("COUNT_FILE", countFile)

	pool := gitcmd.NewPool(gitcmd.WithExecutable(fakeGit(t)))
	defer pool.Close()

	// Only "stash list" reads; every other stash subcommand mutates the
	// stash stack and must never run.
	ex := New(pool, nil, nil)
	out := ex.CombineReadOnly(context.Background(), "", []string{
		"stash list",
		"stash pop",
		"stash drop stash@{0}",
		"stash",
	})

	if !strings.Contains(out, "=== stash list ===") {
		t.Errorf("missing stash list section:\n%s", out)
	}
	for _, banned := range []string{"stash pop", "stash drop", "=== stash ==="} {
		if strings.Contains(out, banned) {
			t.Errorf("mutating stash query %q executed or labeled:\n%s", banned, out)
		}
	}
	if n := runCount(t, countFile); n != 1 {
		t.Errorf("process ran %d times, want 1 (only stash list is read-only)", n)
	}
}

func TestExecutor_CombineReadOnly_FailureLabeled(t *testing.T) {
	// "fail" is not an allow-listed verb, so force a failure through an
	// allow-listed one by pointing the pool at a missing binary.
	broken := gitcmd.NewPool(gitcmd.WithExecutable("/nonexistent/git"))
	defer broken.Close()

	ex := New(broken, nil, nil)
	out := ex.CombineReadOnly(context.Background(), "", []string{"status"})

	if !strings.Contains(out, "=== status ===") || !strings.Contains(out, "(failed:") {
		t.Errorf("failed section not labeled:\n%s", out)
	}
}
