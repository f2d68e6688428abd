package notify

import (
	"context"
	"log/slog"
	"time"
)

// VersionSource reports a counter that changes when another process commits.
type VersionSource interface {
	DataVersion(ctx context.Context) (int64, error)
}

// Watcher turns store commits made by other processes into store.changed events
// so long-lived sessions know to refresh.
type Watcher struct {
	src      VersionSource
	notifier *Notifier
	interval time.Duration
	logger   *slog.Logger
}

func NewWatcher(src VersionSource, notifier *Notifier, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{src: src, notifier: notifier, interval: interval, logger: logger}
}

// Run polls until ctx ends. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	last, err := w.src.DataVersion(ctx)
	if err != nil {
		w.logger.Warn("watcher: initial data version", "err", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return nil
		case <-ticker.C:
			v, err := w.src.DataVersion(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Warn("watcher: data version", "err", err)
				continue
			}
			if v == last {
				continue
			}
			last = v
			w.notifier.Publish(ctx, Event{Kind: KindStoreChanged})
		}
	}
}
