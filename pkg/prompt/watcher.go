package prompt

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a template's preamble when the persona file changes on
// disk. Events are debounced because editors fire several writes per save.
type Watcher struct {
	watcher  *fsnotify.Watcher
	tmpl     *Template
	path     string
	logger   zerolog.Logger
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// NewWatcher starts watching path and swaps the template preamble on change.
func NewWatcher(tmpl *Template, path string, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on save and
	// a watch on the old inode goes stale.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		tmpl:     tmpl,
		path:     path,
		logger:   logger.With().Str("component", "persona-watcher").Logger(),
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	go w.run()

	w.logger.Info().Str("path", path).Msg("Persona file watcher started")

	return w, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		case <-w.stopCh:
			if w.timer != nil {
				w.timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to reload persona file")
		return
	}

	w.tmpl.SetPreamble(string(data))
	w.logger.Info().Int("bytes", len(data)).Msg("Persona preamble reloaded")
}
