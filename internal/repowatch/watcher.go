package repowatch

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iniationware/sourcegit-sub001/internal/logging"
)

// Repository is the consumer whose refresh methods the watcher drives. The
// watcher calls these opaquely; they are expected to be safe for concurrent
// use with each other.
type Repository interface {
	RefreshBranches()
	RefreshTags()
	RefreshWorkingCopyChanges()
	RefreshStashes()
	RefreshSubmodules()
	RefreshCommits()

	// MayHaveSubmodules gates submodule refreshes; repositories without
	// submodules skip that work entirely.
	MayHaveSubmodules() bool
}

// Config configures a Watcher. Delays and intervals are empirical tuning
// constants; the defaults match interactive-use behavior.
type Config struct {
	// TickInterval is the scheduler period. Defaults to 100ms.
	TickInterval time.Duration

	// QueueCapacity bounds the raw event queue. A full queue drops
	// events. Defaults to 1000.
	QueueCapacity int

	// FlushInterval is the rolling de-duplication window. Defaults to 200ms.
	FlushInterval time.Duration

	// FlushThreshold flushes the window early once more than this many
	// distinct paths accumulate. Defaults to 100.
	FlushThreshold int

	// Per-concern debounce delays between a classified event and the
	// refresh becoming due.
	BranchDelay      time.Duration // default 500ms
	TagDelay         time.Duration // default 500ms
	WorkingCopyDelay time.Duration // default 1s
	SubmoduleDelay   time.Duration // default 1s
	StashDelay       time.Duration // default 800ms

	// Logger receives dispatch diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		TickInterval:     100 * time.Millisecond,
		QueueCapacity:    1000,
		FlushInterval:    200 * time.Millisecond,
		FlushThreshold:   100,
		BranchDelay:      500 * time.Millisecond,
		TagDelay:         500 * time.Millisecond,
		WorkingCopyDelay: time.Second,
		SubmoduleDelay:   time.Second,
		StashDelay:       800 * time.Millisecond,
		Logger:           logging.Nop(),
	}
}

// delay returns the debounce delay for a concern.
func (c Config) delay(concern Concern) time.Duration {
	switch concern {
	case ConcernBranches:
		return c.BranchDelay
	case ConcernTags:
		return c.TagDelay
	case ConcernWorkingCopy:
		return c.WorkingCopyDelay
	case ConcernSubmodules:
		return c.SubmoduleDelay
	case ConcernStashes:
		return c.StashDelay
	default:
		return c.WorkingCopyDelay
	}
}

// Option configures a Watcher.
type Option func(*Config)

// WithTickInterval overrides the scheduler period.
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.TickInterval = d
		}
	}
}

// WithQueueCapacity overrides the raw event queue bound.
func WithQueueCapacity(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.QueueCapacity = n
		}
	}
}

// WithFlushWindow overrides the de-duplication window and its early-flush
// threshold.
func WithFlushWindow(interval time.Duration, threshold int) Option {
	return func(c *Config) {
		if interval > 0 {
			c.FlushInterval = interval
		}
		if threshold > 0 {
			c.FlushThreshold = threshold
		}
	}
}

// WithDelays overrides all per-concern debounce delays at once.
func WithDelays(branch, tag, workingCopy, submodule, stash time.Duration) Option {
	return func(c *Config) {
		c.BranchDelay = branch
		c.TagDelay = tag
		c.WorkingCopyDelay = workingCopy
		c.SubmoduleDelay = submodule
		c.StashDelay = stash
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Stats reports watcher pressure counters.
type Stats struct {
	// Dropped is the number of raw events discarded on a full queue.
	Dropped int64

	// QueueLen is the current raw queue depth.
	QueueLen int

	// Dispatched is the number of ticks that dispatched at least one
	// refresh.
	Dispatched int64

	// Pending is the number of concerns currently marked dirty, due or not.
	Pending int
}

// Watcher coalesces raw change events into debounced refresh dispatches.
type Watcher struct {
	cfg  Config
	repo Repository

	// gitDir and workDir are slash-normalized roots used for
	// classification. Set by WatchRepository or SetRoots.
	gitDir  string
	workDir string

	markers [concernCount]marker

	events  chan string
	dropped atomic.Int64

	// disabled is the re-entrant inhibition counter. Dispatch is
	// suspended while it is positive; markers still accumulate.
	disabled atomic.Int32

	dispatched atomic.Int64

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup

	fs *fsWatch
}

// New creates a watcher for the given consumer and starts its consumer and
// tick loops. Call Close when the repository is closed.
func New(repo Repository, opts ...Option) *Watcher {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	w := &Watcher{
		cfg:    cfg,
		repo:   repo,
		events: make(chan string, cfg.QueueCapacity),
		done:   make(chan struct{}),
	}

	w.wg.Add(2)
	go w.consumeLoop()
	go w.tickLoop()

	return w
}

// SetRoots sets the classification roots without starting OS watches.
// Paths are normalized to forward slashes.
func (w *Watcher) SetRoots(workDir, gitDir string) {
	w.workDir = filepath.ToSlash(workDir)
	w.gitDir = filepath.ToSlash(gitDir)
}

// Notify feeds one raw event path into the bounded queue. It never blocks:
// when the queue is full the event is dropped and counted. Safe for
// concurrent producers; a no-op after Close.
func (w *Watcher) Notify(path string) {
	if w.closed.Load() {
		return
	}
	select {
	case w.events <- path:
	default:
		w.dropped.Add(1)
	}
}

// MarkDirty forces a concern due on the next tick, bypassing debounce.
func (w *Watcher) MarkDirty(c Concern) {
	if w.closed.Load() || c < 0 || c >= concernCount {
		return
	}
	w.markers[c].force(time.Now())
}

// SetEnabled adjusts the re-entrant inhibition counter. Each
// SetEnabled(false) must be paired with a SetEnabled(true). While
// inhibited, markers accumulate but nothing dispatches; re-enabling
// catches up on the next tick.
func (w *Watcher) SetEnabled(enabled bool) {
	if enabled {
		// Clamp at zero so unbalanced enables cannot disable inhibition
		// accounting.
		for {
			cur := w.disabled.Load()
			if cur == 0 {
				return
			}
			if w.disabled.CompareAndSwap(cur, cur-1) {
				return
			}
		}
	}
	w.disabled.Add(1)
}

// Enabled reports whether dispatch is currently allowed.
func (w *Watcher) Enabled() bool {
	return w.disabled.Load() == 0
}

// Stats returns pressure counters.
func (w *Watcher) Stats() Stats {
	pending := 0
	for c := Concern(0); c < concernCount; c++ {
		if w.markers[c].dirty() {
			pending++
		}
	}
	return Stats{
		Dropped:    w.dropped.Load(),
		QueueLen:   len(w.events),
		Dispatched: w.dispatched.Load(),
		Pending:    pending,
	}
}

// consumeLoop is the single queue consumer: it de-duplicates paths within
// a rolling window and converts each flush into dirty markers.
func (w *Watcher) consumeLoop() {
	defer w.wg.Done()

	pending := make(map[string]struct{})

	timer := time.NewTimer(w.cfg.FlushInterval)
	if !timer.Stop() {
		<-timer.C
	}
	timerArmed := false

	flush := func() {
		if timerArmed {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timerArmed = false
		}
		if len(pending) == 0 {
			return
		}
		now := time.Now()
		for path := range pending {
			concern, ok := w.classify(path)
			if !ok {
				continue
			}
			w.markers[concern].advance(now.Add(w.cfg.delay(concern)))
		}
		clear(pending)
	}

	for {
		select {
		case <-w.done:
			flush()
			return

		case path := <-w.events:
			pending[path] = struct{}{}
			if len(pending) > w.cfg.FlushThreshold {
				// Too many distinct paths: flush before the window elapses.
				flush()
				continue
			}
			if !timerArmed {
				timer.Reset(w.cfg.FlushInterval)
				timerArmed = true
			}

		case <-timer.C:
			timerArmed = false
			flush()
		}
	}
}

// tickLoop services due markers at a fixed interval.
func (w *Watcher) tickLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.tick(now)
		}
	}
}

// tick claims due markers and dispatches their refreshes. All refreshes of
// one tick run concurrently except the commit-history refresh, which runs
// only after the others complete.
func (w *Watcher) tick(now time.Time) {
	if w.disabled.Load() > 0 {
		return
	}

	var due [concernCount]bool
	for c := Concern(0); c < concernCount; c++ {
		due[c] = w.markers[c].takeIfDue(now)
	}

	// A branch change moves HEAD, so the working copy must be re-read in
	// the same tick even if its own debounce has not elapsed.
	if due[ConcernBranches] && !due[ConcernWorkingCopy] {
		w.markers[ConcernWorkingCopy].take()
		due[ConcernWorkingCopy] = true
	}

	any := false
	for _, d := range due {
		any = any || d
	}
	if !any {
		return
	}

	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.safeRefresh(name, fn)
		}()
	}

	if due[ConcernBranches] {
		run("branches", w.repo.RefreshBranches)
	}
	if due[ConcernTags] {
		run("tags", w.repo.RefreshTags)
	}
	if due[ConcernWorkingCopy] {
		run("working-copy", w.repo.RefreshWorkingCopyChanges)
	}
	if due[ConcernStashes] {
		run("stashes", w.repo.RefreshStashes)
	}
	if due[ConcernSubmodules] && w.repo.MayHaveSubmodules() {
		run("submodules", w.repo.RefreshSubmodules)
	}

	wg.Wait()

	// Dependent refresh: commit history only makes sense once branch and
	// working-copy state settled.
	if due[ConcernBranches] {
		w.safeRefresh("commits", w.repo.RefreshCommits)
	}

	w.dispatched.Add(1)
}

// safeRefresh keeps a panicking refresh from killing the tick loop.
func (w *Watcher) safeRefresh(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.cfg.Logger.Warn("refresh panicked", "concern", name, "panic", r)
		}
	}()
	fn()
}

// Close stops intake, the OS watches, and both loops, then waits (bounded)
// for them to drain. No refresh is dispatched after Close returns. Close is
// idempotent.
func (w *Watcher) Close() error {
	if w.closed.Swap(true) {
		return nil
	}

	var err error
	if w.fs != nil {
		err = w.fs.close()
	}

	close(w.done)

	// Bounded drain; a stuck refresh must not hang repository close.
	drained := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		w.cfg.Logger.Warn("watcher close timed out waiting for drain")
	}

	return err
}
