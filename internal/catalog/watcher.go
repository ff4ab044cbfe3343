package catalog

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
)

const module = "catalog"

// Watcher scans the music directory into a Catalog and keeps it current:
// debounced filesystem events add and remove tracks, SIGHUP forces a rescan.
type Watcher struct {
	services.Service

	cfg     Config
	catalog *Catalog
	logger  *slog.Logger
	fsw     *fsnotify.Watcher
	pending map[string]fsnotify.Op
}

// NewWatcher returns a service maintaining c from cfg.Dir.
func NewWatcher(cfg Config, c *Catalog, logger *slog.Logger) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	w := &Watcher{
		cfg:     cfg,
		catalog: c,
		logger:  logger.With("module", module),
		pending: make(map[string]fsnotify.Op),
	}
	w.Service = services.NewBasicService(w.starting, w.running, w.stopping)
	return w
}

func (w *Watcher) starting(_ context.Context) error {
	info, err := os.Stat(w.cfg.Dir)
	if err != nil {
		return errors.Wrap(err, "failed to open music directory")
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", w.cfg.Dir)
	}

	if w.cfg.Watch {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return errors.Wrap(err, "failed to create file watcher")
		}
		w.fsw = fsw
	}

	w.Rescan()
	return nil
}

func (w *Watcher) running(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.fsw != nil {
		events = w.fsw.Events
		errs = w.fsw.Errors
	}

	debounce := time.NewTimer(w.cfg.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			w.logger.Info("received SIGHUP, rescanning")
			w.Rescan()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.pending[ev.Name] |= ev.Op
			debounce.Reset(w.cfg.Debounce)
		case <-debounce.C:
			w.apply()
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("file events overflowed, rescanning", "err", err)
				w.Rescan()
				continue
			}
			w.logger.Error("error watching files", "err", err)
		}
	}
}

func (w *Watcher) stopping(_ error) error {
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// Rescan replaces the catalog with a fresh scan of the directory.
func (w *Watcher) Rescan() {
	ids, dirs := Scan(w.cfg.Dir, w.cfg.FollowLinks, w.logger)
	w.catalog.Replace(ids)
	w.watch(dirs)
}

func (w *Watcher) watch(dirs []string) {
	if w.fsw == nil {
		return
	}
	for _, dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			w.logger.Warn("failed to watch directory", "dir", dir, "err", err)
		}
	}
}

// apply folds the debounced batch of events into the catalog.
func (w *Watcher) apply() {
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)

	rescan := false
	for path, op := range batch {
		switch {
		case op&fsnotify.Create != 0:
			info, err := os.Stat(path)
			if err != nil {
				// created and removed again within the batch
				w.catalog.Remove(TrackID(path))
				continue
			}
			if info.IsDir() {
				rescan = true
				continue
			}
			if info.Mode().IsRegular() && w.catalog.Add(TrackID(path)) {
				w.logger.Debug("track added", "track", path)
			}
		case op&(fsnotify.Remove|fsnotify.Rename) != 0:
			if w.catalog.Remove(TrackID(path)) {
				w.logger.Debug("track removed", "track", path)
			}
			if n := w.catalog.RemovePrefix(path); n > 0 {
				w.logger.Debug("directory removed", "dir", path, "tracks", n)
			}
		}
	}
	if rescan {
		w.Rescan()
	}
}
