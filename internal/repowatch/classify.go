package repowatch

import (
	"path/filepath"
	"strings"
)

// isIgnoredPath filters noise that must never mark anything dirty: git's
// own lock files, the fsmonitor daemon's plumbing, and LFS internals.
func isIgnoredPath(p string) bool {
	if strings.HasSuffix(p, ".lock") || strings.HasSuffix(p, ".tmp") {
		return true
	}
	if strings.Contains(p, "fsmonitor--daemon") {
		return true
	}
	if strings.Contains(p, "/lfs/") || strings.HasPrefix(p, "lfs/") {
		return true
	}
	return false
}

// classifyGitPath maps a path relative to the metadata directory to the
// concern it affects. Paths outside the fixed rule set report ok=false and
// are dropped.
func classifyGitPath(rel string) (Concern, bool) {
	switch {
	case rel == "HEAD":
		return ConcernBranches, true
	case strings.HasPrefix(rel, "refs/heads/"):
		return ConcernBranches, true
	case strings.HasPrefix(rel, "refs/tags/"):
		return ConcernTags, true
	case rel == "refs/stash":
		return ConcernStashes, true
	case rel == "index" || strings.HasPrefix(rel, "objects/"):
		return ConcernWorkingCopy, true
	case strings.HasPrefix(rel, "modules/"):
		// Submodule gitdirs live under <gitdir>/modules/<name>.
		return ConcernSubmodules, true
	default:
		return 0, false
	}
}

// classify maps an absolute event path to its concern. Paths inside the
// metadata directory follow the ref-pattern rules; everything else in the
// working tree is a working-copy change, except nested .git paths which
// indicate submodule activity.
func (w *Watcher) classify(path string) (Concern, bool) {
	p := filepath.ToSlash(path)
	if isIgnoredPath(p) {
		return 0, false
	}

	if w.gitDir != "" {
		// Match the directory boundary, not the bare prefix: with gitDir
		// /repo/.git, working-tree paths like /repo/.gitignore must not be
		// mistaken for metadata.
		if p == w.gitDir {
			return 0, false
		}
		if strings.HasPrefix(p, w.gitDir+"/") {
			rel := p[len(w.gitDir)+1:]
			if isIgnoredPath(rel) {
				return 0, false
			}
			return classifyGitPath(rel)
		}
	}

	if strings.Contains(p, "/.git/") || strings.HasSuffix(p, "/.git") {
		// A .git inside the working tree belongs to a submodule.
		return ConcernSubmodules, true
	}

	return ConcernWorkingCopy, true
}
