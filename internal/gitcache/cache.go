package gitcache

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iniationware/sourcegit-sub001/internal/logging"
)

// keySeparator joins repository path and command text into a store key.
// NUL cannot appear in either part.
const keySeparator = "\x00"

// Config configures a Cache.
type Config struct {
	// SweepInterval is how often expired entries are removed.
	// Defaults to 1 minute.
	SweepInterval time.Duration

	// MemoryCeiling is the estimated footprint above which the sweep also
	// evicts the lowest-hit quartile. Defaults to 64 MiB.
	MemoryCeiling int64

	// TTLOverrides replaces the default TTL for specific categories.
	// Tuning knob for embedders and tests; nil keeps the defaults.
	TTLOverrides map[Category]time.Duration

	// Logger receives sweep diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval: time.Minute,
		MemoryCeiling: 64 << 20,
		Logger:        logging.Nop(),
	}
}

// Option configures a Cache.
type Option func(*Config)

// WithSweepInterval overrides the sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.SweepInterval = d
		}
	}
}

// WithMemoryCeiling overrides the estimated memory ceiling in bytes.
func WithMemoryCeiling(n int64) Option {
	return func(c *Config) {
		if n > 0 {
			c.MemoryCeiling = n
		}
	}
}

// WithTTL overrides the TTL for one category.
func WithTTL(cat Category, ttl time.Duration) Option {
	return func(c *Config) {
		if c.TTLOverrides == nil {
			c.TTLOverrides = make(map[Category]time.Duration)
		}
		c.TTLOverrides[cat] = ttl
	}
}

// WithLogger sets the cache logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// entry is one cached value. Immutable after insertion except for the
// atomic hit counter.
type entry struct {
	data      string
	expiresAt time.Time
	category  Category
	hits      atomic.Int64
}

// Stats is a point-in-time snapshot of cache occupancy.
type Stats struct {
	// Entries is the number of stored values, including expired ones not
	// yet swept.
	Entries int64

	// Hits is the total number of cache hits served.
	Hits int64

	// EstimatedBytes approximates the memory footprint as two bytes per
	// stored character.
	EstimatedBytes int64
}

// Cache is a concurrent repository-query cache keyed by
// (repository path, command text).
type Cache struct {
	cfg Config

	entries sync.Map // string -> *entry

	count atomic.Int64
	bytes atomic.Int64
	hits  atomic.Int64

	closed  atomic.Bool
	done    chan struct{}
	sweeper sync.WaitGroup
}

// New creates a cache and starts its periodic sweeper.
func New(opts ...Option) *Cache {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	c := &Cache{
		cfg:  cfg,
		done: make(chan struct{}),
	}

	c.sweeper.Add(1)
	go c.sweepLoop()

	return c
}

// ttl returns the effective TTL for a category.
func (c *Cache) ttl(cat Category) time.Duration {
	if d, ok := c.cfg.TTLOverrides[cat]; ok {
		return d
	}
	return cat.TTL()
}

// GetOrCompute returns the cached output for (repo, command) if a live
// entry exists, otherwise invokes compute. A compute error propagates to
// the caller and nothing is stored. Empty compute results are returned but
// never cached.
func (c *Cache) GetOrCompute(repo, command string, cat Category, compute func() (string, error)) (string, error) {
	k := repo + keySeparator + command

	if v, ok := c.entries.Load(k); ok {
		e := v.(*entry)
		if time.Now().Before(e.expiresAt) {
			e.hits.Add(1)
			c.hits.Add(1)
			return e.data, nil
		}
	}

	data, err := compute()
	if err != nil {
		return "", err
	}
	if data == "" {
		return "", nil
	}

	e := &entry{
		data:      data,
		expiresAt: time.Now().Add(c.ttl(cat)),
		category:  cat,
	}
	c.store(k, e)

	return data, nil
}

// store inserts an entry and keeps the occupancy counters consistent with
// whatever was replaced.
func (c *Cache) store(k string, e *entry) {
	if prev, loaded := c.entries.Swap(k, e); loaded {
		pe := prev.(*entry)
		c.bytes.Add(-int64(2 * len(pe.data)))
	} else {
		c.count.Add(1)
	}
	c.bytes.Add(int64(2 * len(e.data)))
}

// remove deletes an entry if it is still the stored one.
func (c *Cache) remove(k string, e *entry) {
	if c.entries.CompareAndDelete(k, e) {
		c.count.Add(-1)
		c.bytes.Add(-int64(2 * len(e.data)))
	}
}

// InvalidateByOperation removes the repo's entries whose category falls in
// the operation's invalidation set. Other repositories and categories are
// untouched.
func (c *Cache) InvalidateByOperation(repo string, op Operation) {
	set := op.Invalidates()
	if len(set) == 0 {
		return
	}
	invalid := make(map[Category]bool, len(set))
	for _, cat := range set {
		invalid[cat] = true
	}

	prefix := repo + keySeparator
	c.entries.Range(func(key, value any) bool {
		k := key.(string)
		if !strings.HasPrefix(k, prefix) {
			return true
		}
		e := value.(*entry)
		if invalid[e.category] {
			c.remove(k, e)
		}
		return true
	})
}

// InvalidateRepository removes every entry for the repository.
func (c *Cache) InvalidateRepository(repo string) {
	prefix := repo + keySeparator
	c.entries.Range(func(key, value any) bool {
		k := key.(string)
		if strings.HasPrefix(k, prefix) {
			c.remove(k, value.(*entry))
		}
		return true
	})
}

// InvalidateCategory removes the repository's entries of one category.
func (c *Cache) InvalidateCategory(repo string, cat Category) {
	prefix := repo + keySeparator
	c.entries.Range(func(key, value any) bool {
		k := key.(string)
		if !strings.HasPrefix(k, prefix) {
			return true
		}
		e := value.(*entry)
		if e.category == cat {
			c.remove(k, e)
		}
		return true
	})
}

// Statistics returns a snapshot of cache occupancy.
func (c *Cache) Statistics() Stats {
	return Stats{
		Entries:        c.count.Load(),
		Hits:           c.hits.Load(),
		EstimatedBytes: c.bytes.Load(),
	}
}

// sweepLoop periodically removes expired entries and applies memory
// pressure eviction until Close.
func (c *Cache) sweepLoop() {
	defer c.sweeper.Done()

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes expired entries. If the estimated footprint still exceeds
// the ceiling it evicts the lowest-hit quartile, regardless of expiry.
func (c *Cache) sweep() {
	now := time.Now()
	removed := 0

	type live struct {
		key  string
		e    *entry
		hits int64
	}
	var survivors []live

	c.entries.Range(func(key, value any) bool {
		k := key.(string)
		e := value.(*entry)
		if now.After(e.expiresAt) {
			c.remove(k, e)
			removed++
			return true
		}
		survivors = append(survivors, live{key: k, e: e, hits: e.hits.Load()})
		return true
	})

	if c.bytes.Load() > c.cfg.MemoryCeiling && len(survivors) > 0 {
		sort.Slice(survivors, func(i, j int) bool {
			return survivors[i].hits < survivors[j].hits
		})
		quartile := len(survivors) / 4
		if quartile == 0 {
			quartile = 1
		}
		for _, s := range survivors[:quartile] {
			c.remove(s.key, s.e)
			removed++
		}
		c.cfg.Logger.Debug("cache pressure eviction",
			"evicted", quartile, "bytes", c.bytes.Load())
	}

	if removed > 0 {
		c.cfg.Logger.Debug("cache sweep", "removed", removed, "entries", c.count.Load())
	}
}

// Close stops the sweeper. The cache remains readable but no longer sweeps.
// Close is idempotent.
func (c *Cache) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)
	c.sweeper.Wait()
}
