package repowatch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeRepo records refresh calls in order.
type fakeRepo struct {
	mu    sync.Mutex
	calls []string
	subs  bool
}

func (r *fakeRepo) record(name string) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
}

func (r *fakeRepo) RefreshBranches()           { r.record("branches") }
func (r *fakeRepo) RefreshTags()               { r.record("tags") }
func (r *fakeRepo) RefreshWorkingCopyChanges() { r.record("working-copy") }
func (r *fakeRepo) RefreshStashes()            { r.record("stashes") }
func (r *fakeRepo) RefreshSubmodules()         { r.record("submodules") }
func (r *fakeRepo) RefreshCommits()            { r.record("commits") }
func (r *fakeRepo) MayHaveSubmodules() bool    { return r.subs }

func (r *fakeRepo) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (r *fakeRepo) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// fastOptions shrinks all timing constants for tests.
func fastOptions() []Option {
	return []Option{
		WithTickInterval(10 * time.Millisecond),
		WithFlushWindow(20*time.Millisecond, 100),
		WithDelays(30*time.Millisecond, 30*time.Millisecond, 30*time.Millisecond, 30*time.Millisecond, 30*time.Millisecond),
	}
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func TestWatcher_BurstCoalescesToOneRefresh(t *testing.T) {
	repo := &fakeRepo{}
	w := New(repo, fastOptions()...)
	defer w.Close()
	w.SetRoots("/repo", "/repo/.git")

	// 500 raw events on one path inside the flush window.
	for i := 0; i < 500; i++ {
		w.Notify("/repo/.git/refs/tags/v1.0")
	}

	waitFor(t, 2*time.Second, func() bool {
		return repo.count("tags") >= 1
	}, "tag refresh never dispatched")

	// Let any spurious extra dispatches surface.
	time.Sleep(100 * time.Millisecond)

	if n := repo.count("tags"); n != 1 {
		t.Errorf("tag refreshes = %d, want exactly 1 for a coalesced burst", n)
	}
}

func TestWatcher_ThresholdFlushBeatsWindow(t *testing.T) {
	repo := &fakeRepo{}
	// A flush window far beyond the test horizon: only the distinct-path
	// threshold can flush.
	w := New(repo,
		WithTickInterval(10*time.Millisecond),
		WithFlushWindow(time.Hour, 100),
		WithDelays(10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond),
	)
	defer w.Close()
	w.SetRoots("/repo", "/repo/.git")

	for i := 0; i < 150; i++ {
		w.Notify(fmt.Sprintf("/repo/src/file-%d.go", i))
	}

	waitFor(t, 2*time.Second, func() bool {
		return repo.count("working-copy") >= 1
	}, "threshold flush never dispatched a refresh")
}

func TestWatcher_BranchRefreshForcesWorkingCopyAndCommits(t *testing.T) {
	repo := &fakeRepo{}
	w := New(repo, fastOptions()...)
	defer w.Close()

	w.MarkDirty(ConcernBranches)

	waitFor(t, 2*time.Second, func() bool {
		return repo.count("commits") >= 1
	}, "commit refresh never dispatched")

	seq := repo.sequence()
	if repo.count("branches") != 1 {
		t.Errorf("branch refreshes = %d, want 1", repo.count("branches"))
	}
	if repo.count("working-copy") != 1 {
		t.Errorf("working-copy refreshes = %d, want 1 (forced by branches)", repo.count("working-copy"))
	}
	if seq[len(seq)-1] != "commits" {
		t.Errorf("sequence = %v, want commits dispatched after the others", seq)
	}
}

func TestWatcher_SubmoduleRefreshGated(t *testing.T) {
	repo := &fakeRepo{subs: false}
	w := New(repo, fastOptions()...)
	defer w.Close()

	w.MarkDirty(ConcernSubmodules)
	time.Sleep(100 * time.Millisecond)

	if n := repo.count("submodules"); n != 0 {
		t.Errorf("submodule refreshes = %d, want 0 when MayHaveSubmodules is false", n)
	}

	withSubs := &fakeRepo{subs: true}
	w2 := New(withSubs, fastOptions()...)
	defer w2.Close()

	w2.MarkDirty(ConcernSubmodules)
	waitFor(t, 2*time.Second, func() bool {
		return withSubs.count("submodules") == 1
	}, "submodule refresh never dispatched")
}

func TestWatcher_SetEnabledSuppressesAndCatchesUp(t *testing.T) {
	repo := &fakeRepo{}
	w := New(repo, fastOptions()...)
	defer w.Close()

	w.SetEnabled(false)
	w.MarkDirty(ConcernStashes)

	// Well over five tick intervals: nothing may dispatch.
	time.Sleep(100 * time.Millisecond)
	if n := repo.count("stashes"); n != 0 {
		t.Fatalf("stash refreshes while disabled = %d, want 0", n)
	}

	w.SetEnabled(true)
	waitFor(t, 2*time.Second, func() bool {
		return repo.count("stashes") >= 1
	}, "catch-up refresh never dispatched")

	time.Sleep(100 * time.Millisecond)
	if n := repo.count("stashes"); n != 1 {
		t.Errorf("stash refreshes after re-enable = %d, want exactly 1", n)
	}
}

func TestWatcher_SetEnabledIsReentrant(t *testing.T) {
	repo := &fakeRepo{}
	w := New(repo, fastOptions()...)
	defer w.Close()

	w.SetEnabled(false)
	w.SetEnabled(false)
	w.SetEnabled(true)

	if w.Enabled() {
		t.Fatal("Enabled() = true after unbalanced enable, want still disabled")
	}

	w.SetEnabled(true)
	if !w.Enabled() {
		t.Fatal("Enabled() = false after balanced enables")
	}

	// Extra enables must not drive the counter negative.
	w.SetEnabled(true)
	w.SetEnabled(false)
	if w.Enabled() {
		t.Error("single disable after spurious enable should inhibit")
	}
	w.SetEnabled(true)
}

func TestWatcher_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	repo := &fakeRepo{}
	w := New(repo,
		WithTickInterval(10*time.Millisecond),
		WithQueueCapacity(1),
		WithFlushWindow(20*time.Millisecond, 100000),
		WithDelays(10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond),
	)
	defer w.Close()
	w.SetRoots("/repo", "/repo/.git")

	// A tight burst against a capacity-1 queue outruns the consumer.
	// Notify must never block and the watcher must stay live.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200000; i++ {
			w.Notify("/repo/src/app.go")
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	if w.Stats().Dropped == 0 {
		t.Error("Dropped = 0, want drops under sustained overrun")
	}

	waitFor(t, 2*time.Second, func() bool {
		return repo.count("working-copy") >= 1
	}, "watcher did not stay live after drops")
}

func TestWatcher_StatsPending(t *testing.T) {
	repo := &fakeRepo{}
	w := New(repo, fastOptions()...)
	defer w.Close()

	// Inhibit dispatch so the markers stay set for the assertions.
	w.SetEnabled(false)

	if got := w.Stats().Pending; got != 0 {
		t.Fatalf("Pending = %d, want 0 before any marks", got)
	}

	w.MarkDirty(ConcernBranches)
	w.MarkDirty(ConcernStashes)
	if got := w.Stats().Pending; got != 2 {
		t.Errorf("Pending = %d, want 2 while inhibited", got)
	}

	w.SetEnabled(true)
	waitFor(t, 2*time.Second, func() bool {
		return w.Stats().Pending == 0
	}, "pending markers never drained after re-enable")
}

func TestWatcher_CloseStopsDispatch(t *testing.T) {
	repo := &fakeRepo{}
	w := New(repo, fastOptions()...)

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	w.MarkDirty(ConcernBranches)
	w.Notify("/repo/.git/HEAD")
	time.Sleep(100 * time.Millisecond)

	if len(repo.sequence()) != 0 {
		t.Errorf("refreshes after Close = %v, want none", repo.sequence())
	}
}

func TestWatcher_WatchRepository(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	for _, d := range []string{
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(dir, "src"),
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	repo := &fakeRepo{}
	w := New(repo, fastOptions()...)
	defer w.Close()

	if err := w.WatchRepository(dir, gitDir); err != nil {
		t.Fatalf("WatchRepository: %v", err)
	}

	// Working tree write.
	if err := os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool {
		return repo.count("working-copy") >= 1
	}, "working tree write never produced a refresh")

	// Ref write.
	if err := os.WriteFile(filepath.Join(gitDir, "refs", "heads", "main"), []byte("0123456789abcdef\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool {
		return repo.count("branches") >= 1
	}, "ref write never produced a branch refresh")
}

func TestWatcher_WatchRepositoryTwiceFails(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	if err := os.MkdirAll(gitDir, 0o755); err != nil {
		t.Fatal(err)
	}

	w := New(&fakeRepo{}, fastOptions()...)
	defer w.Close()

	if err := w.WatchRepository(dir, gitDir); err != nil {
		t.Fatalf("first WatchRepository: %v", err)
	}
	if err := w.WatchRepository(dir, gitDir); err == nil {
		t.Error("second WatchRepository succeeded, want error")
	}
}
