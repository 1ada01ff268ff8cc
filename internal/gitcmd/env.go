package gitcmd

import (
	"os"
	"runtime"
	"strings"
)

// defaultPoolSize returns the admission bound: twice the core count,
// clamped to [4, 16].
func defaultPoolSize() int {
	n := runtime.NumCPU() * 2
	if n < 4 {
		n = 4
	}
	if n > 16 {
		n = 16
	}
	return n
}

// buildArgs prepends the fixed non-interactive argument prefix to the
// caller's arguments. The prefix disables the pager and path quoting and
// injects the configured credential helper so spawned processes never wait
// on a terminal.
func buildArgs(cfg Config, args []string) []string {
	out := make([]string, 0, len(cfg.BaseArgs)+2+len(args))
	out = append(out, cfg.BaseArgs...)
	if cfg.CredentialHelper != "" {
		out = append(out, "-c", "credential.helper="+cfg.CredentialHelper)
	}
	return append(out, args...)
}

// buildEnv returns the child environment: the parent environment with the
// locale pinned, terminal prompting disabled, and the askpass hook wired
// back into the host when configured.
func buildEnv(cfg Config) []string {
	env := os.Environ()

	// Drop any inherited overrides for the variables we pin.
	filtered := env[:0]
	for _, kv := range env {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		switch key {
		case "LANG", "LC_ALL", "GIT_TERMINAL_PROMPT", "GIT_ASKPASS", "SSH_ASKPASS", "SSH_ASKPASS_REQUIRE":
			continue
		}
		filtered = append(filtered, kv)
	}
	env = filtered

	env = append(env,
		"LANG=C",
		"LC_ALL=C",
		"GIT_TERMINAL_PROMPT=0",
	)

	if cfg.AskpassPath != "" {
		env = append(env,
			"GIT_ASKPASS="+cfg.AskpassPath,
			"SSH_ASKPASS="+cfg.AskpassPath,
			"SSH_ASKPASS_REQUIRE=force",
		)
	}

	return env
}
