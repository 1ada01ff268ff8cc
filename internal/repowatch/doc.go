// Package repowatch turns raw filesystem noise into a small number of
// debounced repository refresh calls.
//
// Raw change events enter a bounded queue and are de-duplicated by path in
// a rolling window, classified by fixed path-pattern rules into concerns
// (branches, tags, working copy, submodules, stashes), and recorded as
// per-concern dirty markers. A fixed-interval tick services due markers by
// invoking the consumer's refresh methods in parallel; a due branches
// refresh also forces a working-copy refresh in the same tick and schedules
// a commit-history refresh after the others complete.
//
// The OS watch (fsnotify) is wired behind the same normalized intake as
// synthetic events, so debounce and classification are testable without a
// real filesystem.
//
// One Watcher is created per open repository and destroyed on close. Event
// loss under pressure is accepted: a full queue drops the event, and the
// periodic tick plus manual triggers are the safety net.
package repowatch
