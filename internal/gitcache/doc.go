// Package gitcache memoizes git query output with category-specific
// freshness windows and operation-driven invalidation.
//
// Every cached value belongs to a Category (status, branches, tags, ...)
// whose TTL reflects how quickly that kind of data goes stale. Mutating
// operations map to the set of categories they invalidate, so a commit
// drops status entries while leaving branch listings intact.
//
//	cache := gitcache.New()
//	defer cache.Close()
//
//	out, err := cache.GetOrCompute(repo, "status --porcelain", gitcache.CategoryStatus, func() (string, error) {
//	    res := pool.Execute(ctx, repo, []string{"status", "--porcelain"}, 0)
//	    return res.Stdout, res.Err
//	})
//
// Empty compute results are never stored, so a transient failure cannot
// masquerade as cached empty state.
//
// # Concurrency
//
// The store supports concurrent reads and writes without external locking;
// hit counters are atomic. There is no per-key single-flight: two callers
// racing on an absent key may both invoke compute and both store. compute is
// expected to be idempotent.
package gitcache
