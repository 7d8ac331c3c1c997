package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ecomchain/core/types"
)

const defaultSyncPage = 500

// EventSource is the authoritative event log the index follows.
type EventSource interface {
	Events(after uint64, limit int) ([]*types.Event, error)
}

// Syncer keeps a Store level with an EventSource. It is registered as the
// node's event sink; a batch that does not continue the indexed sequence, or
// that follows a failed write, is replaced by a catch-up read from the source.
type Syncer struct {
	store  *Store
	source EventSource
	page   int
	logger *slog.Logger

	mu sync.Mutex
}

func NewSyncer(store *Store, source EventSource, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:  store,
		source: source,
		page:   defaultSyncPage,
		logger: logger.With(slog.String("component", "indexer")),
	}
}

// Index records a freshly committed batch.
func (s *Syncer) Index(ctx context.Context, events []*types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, err := s.store.LastSequence(ctx)
	if err != nil {
		return err
	}
	if len(events) > 0 && events[0].Sequence == last+1 {
		return s.store.Index(ctx, events)
	}
	_, err = s.catchUp(ctx, last)
	return err
}

// CatchUp indexes every source event above the store's highest sequence and
// reports how many were written.
func (s *Syncer) CatchUp(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, err := s.store.LastSequence(ctx)
	if err != nil {
		return 0, err
	}
	return s.catchUp(ctx, last)
}

func (s *Syncer) catchUp(ctx context.Context, last uint64) (int, error) {
	indexed := 0
	for {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		batch, err := s.source.Events(last, s.page)
		if err != nil {
			return indexed, err
		}
		if len(batch) == 0 {
			return indexed, nil
		}
		if err := s.store.Index(ctx, batch); err != nil {
			return indexed, err
		}
		indexed += len(batch)
		last = batch[len(batch)-1].Sequence
		if len(batch) < s.page {
			return indexed, nil
		}
	}
}

// Run catches up immediately and then on every tick until ctx is done.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	s.runOnce(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Syncer) runOnce(ctx context.Context) {
	n, err := s.CatchUp(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("index catch-up failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("index caught up", slog.Int("events", n))
	}
}
