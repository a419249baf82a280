package livereload

import (
	"context"
	"errors"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// The maximum number of recently-edited files to check every interval
const maxRecentItemCount = 16

// The minimum number of non-recent files to check every interval
const minItemCountPerIter = 64

// The maximum number of intervals before a change is detected
const maxIntervalsBeforeUpdate = 20

// DefaultInterval is used when a Watcher has no Interval set.
const DefaultInterval = 100 * time.Millisecond

// Watcher polls files for changes. Each interval it checks every recently
// changed file plus a slice of the rest, visited in random order, so a change
// to any file is noticed within maxIntervalsBeforeUpdate intervals without
// statting every file every time.
//
// Directories added with Watch are walked again whenever the scan queue is
// refilled, so files created in them are noticed too.
type Watcher struct {
	// Interval is the time between checks.
	Interval time.Duration

	mu                sync.Mutex
	roots             []string
	files             map[string]time.Time
	primed            bool
	recentItems       []string
	itemsToScan       []string
	itemsPerIteration int
}

// NewWatcher returns a Watcher checking every interval.
func NewWatcher(interval time.Duration) *Watcher {
	return &Watcher{
		Interval: interval,
		files:    map[string]time.Time{},
	}
}

// Watch starts tracking the files at paths. A directory is tracked
// recursively. The current state of each file is the baseline changes are
// detected against.
func (w *Watcher) Watch(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if info.IsDir() {
			w.roots = append(w.roots, p)
			if _, err := w.walk(p, false); err != nil {
				return err
			}
			continue
		}
		w.files[p] = info.ModTime()
	}
	w.primed = true
	return nil
}

// walk records every file under root not tracked yet, returning them.
func (w *Watcher) walk(root string, report bool) ([]string, error) {
	var added []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// the file may be gone by the time we get to it
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := w.files[p]; ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		w.files[p] = info.ModTime()
		if report {
			added = append(added, p)
		}
		return nil
	})
	return added, err
}

// Run checks for changes every Interval until ctx is done, calling onChange
// with the path of each changed file and whether it still exists. onChange
// is called from Run's goroutine, one change at a time.
func (w *Watcher) Run(ctx context.Context, onChange func(path string, exists bool)) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Debug().Dur("interval", interval).Msg("watching files for changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if path, exists, ok := w.Check(); ok {
			onChange(path, exists)
		}
	}
}

// Check runs a single polling iteration, reporting the first changed file it
// finds.
func (w *Watcher) Check() (path string, exists bool, changed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// If we ran out of items to scan, fill the items back up in a random order
	if len(w.itemsToScan) == 0 {
		var added []string
		for _, root := range w.roots {
			found, err := w.walk(root, w.primed)
			if err != nil {
				log.Debug().Err(err).Str("root", root).Msg("error walking watched directory")
			}
			added = append(added, found...)
		}
		w.primed = true

		items := w.itemsToScan[:0] // Reuse memory
		for p := range w.files {
			items = append(items, p)
		}
		rand.Shuffle(len(items), func(i, j int) {
			items[i], items[j] = items[j], items[i]
		})
		w.itemsToScan = items

		// Determine how many items to check every iteration, rounded up
		perIter := (len(items) + maxIntervalsBeforeUpdate - 1) / maxIntervalsBeforeUpdate
		if perIter < minItemCountPerIter {
			perIter = minItemCountPerIter
		}
		w.itemsPerIteration = perIter

		if len(added) > 0 {
			w.markRecent(added[0])
			return added[0], true, true
		}
	}

	// Always check all recent items every iteration
	for i, p := range w.recentItems {
		exists, ok := w.checkModtime(p)
		if !ok {
			continue
		}
		if exists {
			copy(w.recentItems[i:], w.recentItems[i+1:])
			w.recentItems[len(w.recentItems)-1] = p
		}
		return p, exists, true
	}

	// Check a constant number of items every iteration
	remainingCount := len(w.itemsToScan) - w.itemsPerIteration
	if remainingCount < 0 {
		remainingCount = 0
	}
	toCheck, remaining := w.itemsToScan[remainingCount:], w.itemsToScan[:remainingCount]
	w.itemsToScan = remaining

	// Check if any of the entries in this iteration have been modified
	for _, p := range toCheck {
		if exists, ok := w.checkModtime(p); ok {
			if exists {
				w.markRecent(p)
			}
			return p, exists, true
		}
	}

	return "", false, false
}

func (w *Watcher) markRecent(p string) {
	for _, existing := range w.recentItems {
		if existing == p {
			return
		}
	}
	w.recentItems = append(w.recentItems, p)
	if len(w.recentItems) > maxRecentItemCount {
		// Remove items from the front of the list when we hit the limit
		copy(w.recentItems, w.recentItems[1:])
		w.recentItems = w.recentItems[:maxRecentItemCount]
	}
}

// checkModtime reports whether p changed since it was last seen, and whether
// it still exists. Deleted files stop being tracked, so recreating one is
// reported as a new file.
func (w *Watcher) checkModtime(p string) (exists bool, changed bool) {
	last, ok := w.files[p]
	if !ok {
		return false, false
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			delete(w.files, p)
			w.forgetRecent(p)
			return false, true
		}
		return false, false
	}
	if !info.ModTime().Equal(last) {
		w.files[p] = info.ModTime()
		return true, true
	}
	return true, false
}

func (w *Watcher) forgetRecent(p string) {
	end := 0
	for _, existing := range w.recentItems {
		if existing != p {
			w.recentItems[end] = existing
			end++
		}
	}
	w.recentItems = w.recentItems[:end]
}
