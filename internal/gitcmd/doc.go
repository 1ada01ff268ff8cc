// Package gitcmd executes git commands under bounded concurrency.
//
// The Pool is the single chokepoint for external git invocations. Callers
// block on an admission token before a process is spawned, so no more than
// the configured number of git processes run at once regardless of how many
// goroutines issue queries.
//
// # Execution contract
//
// Every invocation spawns a fresh process (never a persistent shell) with a
// pinned locale, disabled terminal prompting, and optional credential-helper
// and askpass wiring. A wall-clock deadline (default 30 seconds) force-kills
// the process group on expiry.
//
// Execution faults never cross the boundary as panics: Execute always
// returns a structured Result. A caller that ignores Result.Success will
// treat a failed execution as empty output.
//
//	pool := gitcmd.NewPool()
//	defer pool.Close()
//
//	res := pool.Execute(ctx, "/path/to/repo", []string{"status", "--porcelain"}, 0)
//	if res.Success {
//	    parse(res.Stdout)
//	}
//
// # Thread safety
//
// Pool is safe for concurrent use.
package gitcmd
