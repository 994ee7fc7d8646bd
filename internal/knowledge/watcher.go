package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher feeds files dropped into a knowledge directory through the
// extractor and into the source set. Every accepted file triggers the
// onChange callback so the session can rebuild its context.
type Watcher struct {
	dir       string
	set       *Set
	extractor Extractor
	onChange  func()
	logger    *zap.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher over dir. onChange may be nil.
func NewWatcher(dir string, set *Set, extractor Extractor, onChange func(), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w := &Watcher{
		dir:       dir,
		set:       set,
		extractor: extractor,
		onChange:  onChange,
		logger:    logger,
		watcher:   fsw,
		done:      make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.ingest(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("knowledge watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) ingest(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		w.logger.Warn("open knowledge file", zap.String("file", name), zap.Error(err))
		return
	}
	defer f.Close()

	text, err := w.extractor.ExtractText(name, f)
	if err != nil {
		w.logger.Warn("extract knowledge file", zap.String("file", name), zap.Error(err))
		return
	}
	if !w.set.Add(Document{Name: name, Text: text}) {
		// Duplicate name, silently dropped.
		return
	}
	w.logger.Info("knowledge source added", zap.String("file", name))
	if w.onChange != nil {
		w.onChange()
	}
}
