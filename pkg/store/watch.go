package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// EventType describes the nature of a change notification.
type EventType int

const (
	// EventCollectionChanged reports a document write in Event.Collection.
	EventCollectionChanged EventType = iota

	// EventCollectionsInvalidated reports a change with no known collection.
	// Every subscription reloads.
	EventCollectionsInvalidated
)

// Event is emitted by Persistence.Watch when underlying storage changes.
type Event struct {
	Type       EventType
	Collection string
}

// settle is how long a burst of writes to one collection is folded into a
// single event.
const settle = 100 * time.Millisecond

// Watch streams change events written by any process until ctx is
// cancelled. The channel is closed once ctx is done or the watcher fails.
func (p *persistence) Watch(ctx context.Context) (<-chan Event, error) {
	if p.basePath == "" {
		return nil, errors.New("store: persistence base path unknown")
	}
	if err := os.MkdirAll(p.basePath, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure base path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("store: create watcher: %w", err)
	}
	w := &segmentWatcher{
		p:       p,
		fsw:     fsw,
		dirs:    make(map[string]bool),
		events:  make(chan Event, 64),
		batcher: newBatcher(settle),
	}

	dirs, err := segmentDirs(p.basePath)
	if err != nil {
		w.close()
		return nil, fmt.Errorf("store: enumerate directories: %w", err)
	}
	for _, dir := range dirs {
		if err := w.add(dir); err != nil {
			w.close()
			return nil, fmt.Errorf("store: watch %s: %w", dir, err)
		}
	}

	go w.run(ctx)
	return w.events, nil
}

// segmentWatcher maps filesystem events under the base path to collection
// events.
type segmentWatcher struct {
	p       *persistence
	fsw     *fsnotify.Watcher
	dirs    map[string]bool
	events  chan Event
	batcher *batcher
	once    sync.Once

	mu   sync.Mutex
	done bool
}

func (w *segmentWatcher) add(dir string) error {
	dir = filepath.Clean(dir)
	if w.dirs[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = true
	return nil
}

func (w *segmentWatcher) close() {
	w.once.Do(func() {
		if err := w.fsw.Close(); err != nil {
			w.p.log.Warn("watcher close", zap.Error(err))
		}
	})
}

// emit never blocks. A subscription reloads its whole query, so a lost
// event is covered by the next one.
func (w *segmentWatcher) emit(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	select {
	case w.events <- ev:
	default:
	}
}

// finish closes events. A flush racing with it is dropped by emit.
func (w *segmentWatcher) finish() {
	w.batcher.stop()
	w.close()
	w.mu.Lock()
	w.done = true
	close(w.events)
	w.mu.Unlock()
}

func (w *segmentWatcher) run(ctx context.Context) {
	defer w.finish()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.p.log.Debug("watcher error", zap.Error(err))
			w.batcher.add(Event{Type: EventCollectionsInvalidated}, w.emit)
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.batcher.add(w.classify(evt), w.emit)
		}
	}
}

// classify turns one filesystem event into a collection event. A created
// directory is a new segment; it is watched from now on.
func (w *segmentWatcher) classify(evt fsnotify.Event) Event {
	if evt.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if err := w.add(evt.Name); err != nil {
				w.p.log.Warn("watch directory", zap.String("dir", evt.Name), zap.Error(err))
			}
			return Event{Type: EventCollectionsInvalidated}
		}
	}
	if collection := w.p.collectionForPath(evt.Name); collection != "" {
		return Event{Type: EventCollectionChanged, Collection: collection}
	}
	return Event{Type: EventCollectionsInvalidated}
}

// segmentDirs lists base and every directory below it.
func segmentDirs(base string) ([]string, error) {
	dirs := []string{base}
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil
		case err != nil:
			return err
		case d.IsDir() && path != base:
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

// collectionForPath decodes the collection segment of a document path.
func (p *persistence) collectionForPath(path string) string {
	rel, err := filepath.Rel(p.basePath, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	segment, _, _ := strings.Cut(rel, string(os.PathSeparator))
	name, err := fromSegment(segment)
	if err != nil {
		return ""
	}
	return name
}

// batcher holds events for a short delay and flushes each distinct one once.
type batcher struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	held  map[Event]struct{}
}

func newBatcher(delay time.Duration) *batcher {
	return &batcher{delay: delay, held: make(map[Event]struct{})}
}

func (b *batcher) add(ev Event, emit func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.held[ev] = struct{}{}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.delay, func() { b.flush(emit) })
	}
}

func (b *batcher) flush(emit func(Event)) {
	b.mu.Lock()
	held := b.held
	b.held = make(map[Event]struct{})
	b.timer = nil
	b.mu.Unlock()

	for ev := range held {
		emit(ev)
	}
}

func (b *batcher) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
