package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/hay-kot/pulse/pkg/iojson"
)

// DefaultDebounce is how long Watch waits after the last file event before
// calling onChange. Editors often write a file in several steps.
const DefaultDebounce = 250 * time.Millisecond

// Watcher re-runs a callback when scenario files matching its patterns are
// written, created, renamed or removed.
type Watcher struct {
	Patterns []string
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Watch blocks until ctx is done. onChange receives the freshly discovered
// file list after each burst of events. Directories are re-scanned on every
// burst so files created under a new directory are picked up.
func (w Watcher) Watch(ctx context.Context, onChange func(files []string)) error {
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.sync(fw); err != nil {
		return err
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	fire := make(chan struct{}, 1)
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.Logger.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("scenario change detected")
			schedule()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn().Err(err).Msg("scenario watch error")
		case <-fire:
			if err := w.sync(fw); err != nil {
				w.Logger.Warn().Err(err).Msg("failed to refresh watched directories")
			}
			files, err := Discover(w.Patterns...)
			if err != nil {
				w.Logger.Warn().Err(err).Msg("scenario discovery failed")
				continue
			}
			onChange(files)
		}
	}
}

// sync makes fw watch every directory that can hold a matching file.
func (w Watcher) sync(fw *fsnotify.Watcher) error {
	dirs, err := watchDirs(w.Patterns)
	if err != nil {
		return err
	}

	watched := fw.WatchList()
	for _, dir := range dirs {
		if slices.Contains(watched, dir) {
			continue
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.Logger.Debug().Str("dir", dir).Msg("watching")
	}
	return nil
}

// watchDirs returns the static base of each pattern plus every directory
// below it, sorted and without duplicates. Stdin patterns are skipped.
func watchDirs(patterns []string) ([]string, error) {
	var dirs []string
	for _, pattern := range patterns {
		if pattern == iojson.Stdin {
			continue
		}
		base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
		base = filepath.FromSlash(base)
		if !isDir(base) {
			continue
		}

		sub, err := doublestar.FilepathGlob(filepath.Join(base, "**"))
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", pattern, err)
		}
		dirs = append(dirs, filepath.Clean(base))
		for _, s := range sub {
			if isDir(s) {
				dirs = append(dirs, filepath.Clean(s))
			}
		}
	}

	slices.Sort(dirs)
	return slices.Compact(dirs), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
