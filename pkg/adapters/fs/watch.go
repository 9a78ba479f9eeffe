package fs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/flashpad/pkg/core"
)

const watchDebounce = 50 * time.Millisecond

// Watch emits events for notes and the category file whose vault-relative
// path matches pattern (doublestar syntax, e.g. "notes/*.md"). An empty
// pattern matches everything. The channel closes when ctx is done.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: invalid watch pattern %q", core.ErrValidation, pattern)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(r.Path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", r.Path, err)
	}
	// notes/ may not exist yet; it is added when it shows up.
	_ = watcher.Add(filepath.Join(r.Path, notesDir))

	w := &vaultWatcher{
		repo:      r,
		pattern:   pattern,
		watcher:   watcher,
		events:    make(chan core.Event, 16),
		done:      make(chan struct{}),
		debouncer: newDebouncer(watchDebounce),
		known:     make(map[string]bool),
	}
	if notes, err := r.ListNotes(ctx); err == nil {
		for _, n := range notes {
			w.known[n.ID] = true
		}
	}

	r.setWatcherActive(true)
	lifecycle.Go(ctx, w.run, lifecycle.WithErrorHandler(func(err error) {
		r.logger.Error("watcher panic", "error", err)
	}))

	return w.events, nil
}

type vaultWatcher struct {
	repo      *Repository
	pattern   string
	watcher   *fsnotify.Watcher
	events    chan core.Event
	done      chan struct{} // closed when the loop ends; unblocks pending emits
	debouncer *debouncer
	known     map[string]bool // note ids present on disk, to tell CREATE from MODIFY
}

func (w *vaultWatcher) run(ctx context.Context) error {
	defer close(w.events)
	defer w.repo.setWatcherActive(false)
	defer w.watcher.Close()

	err := w.loop(ctx)
	if err != nil {
		w.repo.logger.Error("watcher loop ended", "error", err)
	}

	// Emits return once done is closed, so waiting for the timers cannot
	// hang and no send can happen after events is closed.
	close(w.done)
	w.debouncer.stopAndWait()
	return err
}

func (w *vaultWatcher) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.handle(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.repo.logger.Error("fsnotify error", "error", err)
		}
	}
}

func (w *vaultWatcher) handle(ctx context.Context, event fsnotify.Event) {
	rel, err := filepath.Rel(w.repo.Path, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	w.repo.logger.Debug("fs event", "path", rel, "op", event.Op.String())

	if rel == notesDir && event.Has(fsnotify.Create) {
		if err := w.watcher.Add(event.Name); err != nil {
			w.repo.logger.Warn("failed to watch notes directory", "error", err)
		}
		return
	}

	e, ok := w.mapEvent(rel, event)
	if !ok {
		return
	}
	if match, _ := doublestar.Match(w.pattern, rel); !match {
		return
	}

	w.debouncer.add(string(e.Collection)+"/"+e.ID, e, func(e core.Event) {
		select {
		case w.events <- e:
		case <-ctx.Done():
		case <-w.done:
		}
	})
}

// mapEvent turns a filesystem event into a domain event. Temp files, the
// system dir and anything outside the vault layout are ignored.
func (w *vaultWatcher) mapEvent(rel string, event fsnotify.Event) (core.Event, bool) {
	var eType core.EventType
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		eType = core.EventDelete
	case event.Has(fsnotify.Create):
		eType = core.EventCreate
	case event.Has(fsnotify.Write):
		eType = core.EventModify
	default:
		return core.Event{}, false
	}

	e := core.Event{Type: eType, Timestamp: time.Now().Unix()}

	if rel == categoriesFile {
		e.Collection = core.CollectionCategories
		if eType == core.EventCreate {
			e.Type = core.EventModify
		}
		return e, true
	}

	dir, name := filepath.Split(rel)
	if strings.TrimSuffix(dir, "/") != notesDir {
		return core.Event{}, false
	}
	id, ok := noteIDFromName(name)
	if !ok {
		return core.Event{}, false
	}

	e.Collection = core.CollectionNotes
	e.ID = id

	// Atomic writes land as a rename onto the target, which fsnotify
	// reports as Create.
	switch e.Type {
	case core.EventCreate:
		if w.known[id] {
			e.Type = core.EventModify
		}
		w.known[id] = true
	case core.EventDelete:
		delete(w.known, id)
	}
	return e, true
}

// debouncer coalesces bursts of events per key into a single emission.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timers  map[string]*time.Timer
	pending map[string]core.Event
	wg      sync.WaitGroup
	stopped bool
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]core.Event),
	}
}

func (d *debouncer) add(key string, e core.Event, emit func(core.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[key]; ok {
		// A create followed by writes is still a create.
		if prev.Type == core.EventCreate && e.Type == core.EventModify {
			e.Type = core.EventCreate
		}
		if t := d.timers[key]; t != nil && t.Stop() {
			d.wg.Done()
		}
	}
	d.pending[key] = e

	d.wg.Add(1)
	d.timers[key] = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()

		d.mu.Lock()
		ev, ok := d.pending[key]
		if ok {
			delete(d.pending, key)
			delete(d.timers, key)
		}
		d.mu.Unlock()

		if ok {
			emit(ev)
		}
	})
}

// stopAndWait cancels pending timers and waits for running ones.
func (d *debouncer) stopAndWait() {
	d.mu.Lock()
	d.stopped = true
	for key, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
