package repowatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Iniationware/sourcegit-sub001/internal/logging"
)

// fsWatch owns the OS-level watches for one repository: the working tree
// and the metadata directory. It pumps raw paths into the Watcher's
// normalized intake.
type fsWatch struct {
	watcher *fsnotify.Watcher
	logger  logging.Logger

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// WatchRepository attaches OS watches for the two roots and starts pumping
// their events into the queue. workDir is the working tree root; gitDir is
// the metadata directory (usually workDir/.git). Call at most once per
// Watcher.
func (w *Watcher) WatchRepository(workDir, gitDir string) error {
	if w.closed.Load() {
		return fmt.Errorf("watcher is closed")
	}
	if w.fs != nil {
		return fmt.Errorf("already watching %s", w.workDir)
	}

	w.SetRoots(workDir, gitDir)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}

	fs := &fsWatch{
		watcher: fsw,
		logger:  w.cfg.Logger,
		done:    make(chan struct{}),
	}

	if err := fs.addRecursive(workDir, gitDir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", workDir, err)
	}
	if err := fs.addRecursive(gitDir, ""); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", gitDir, err)
	}

	w.fs = fs
	fs.wg.Add(1)
	go fs.pump(w)

	return nil
}

// addRecursive walks root and watches every directory. skip, when
// non-empty, names a subtree to leave alone (the gitdir when walking the
// working tree; it gets its own targeted watch).
func (fs *fsWatch) addRecursive(root, skip string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if skip != "" && path == skip {
			return filepath.SkipDir
		}
		// Object packs are huge and immutable; watching the objects root
		// is enough to see new files land.
		if strings.Contains(filepath.ToSlash(path), "/objects/") {
			return filepath.SkipDir
		}
		if err := fs.watcher.Add(path); err != nil {
			fs.logger.Warn("watch add failed", "path", path, "error", err)
		}
		return nil
	})
}

// pump forwards OS events into the bounded queue until closed. It runs on
// the fsnotify callback path, so it must never block: Notify drops on a
// full queue.
func (fs *fsWatch) pump(w *Watcher) {
	defer fs.wg.Done()

	for {
		select {
		case <-fs.done:
			return

		case ev, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = fs.addRecursive(ev.Name, "")
				}
			}
			w.Notify(ev.Name)

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.logger.Warn("fs watcher error", "error", err)
		}
	}
}

// close disables the OS watches and waits for the pump to stop. Watch
// handles are released on every path.
func (fs *fsWatch) close() error {
	var err error
	fs.closeOnce.Do(func() {
		close(fs.done)
		err = fs.watcher.Close()
		fs.wg.Wait()
	})
	return err
}
