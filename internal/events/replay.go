package events

import (
	"context"
	"time"

	"github.com/wolfman30/insurance-leads-platform/internal/leads"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

// ReplayHandler re-delivers a journaled lead, normally into the primary store.
type ReplayHandler interface {
	Replay(ctx context.Context, lead leads.LeadRecord) error
}

// ReplayHandlerFunc adapts a function to ReplayHandler.
type ReplayHandlerFunc func(ctx context.Context, lead leads.LeadRecord) error

func (f ReplayHandlerFunc) Replay(ctx context.Context, lead leads.LeadRecord) error {
	return f(ctx, lead)
}

// Replayer polls the journal and hands pending entries to the handler.
// Entries the handler accepts are marked processed; failures stay pending
// for the next tick.
type Replayer struct {
	journal   Journal
	handler   ReplayHandler
	logger    *logging.Logger
	batchSize int
	interval  time.Duration
}

func NewReplayer(journal Journal, handler ReplayHandler, logger *logging.Logger) *Replayer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Replayer{
		journal:   journal,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  time.Minute,
	}
}

func (r *Replayer) WithBatchSize(size int) *Replayer {
	if size > 0 {
		r.batchSize = size
	}
	return r
}

func (r *Replayer) WithInterval(interval time.Duration) *Replayer {
	if interval > 0 {
		r.interval = interval
	}
	return r
}

// Start blocks until ctx is cancelled.
func (r *Replayer) Start(ctx context.Context) {
	if r.journal == nil || r.handler == nil {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Drain(ctx)
		}
	}
}

// Drain replays one batch and returns how many entries were processed.
func (r *Replayer) Drain(ctx context.Context) int {
	entries, err := r.journal.Pending(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("journal fetch failed", "error", err)
		return 0
	}
	processed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if err := r.handler.Replay(ctx, entry.Lead); err != nil {
			r.logger.Warn("journal replay failed", "error", err, "entry_id", entry.ID, "email", leads.MaskEmail(entry.Lead.Email))
			continue
		}
		if ok, err := r.journal.MarkProcessed(ctx, entry.ID); err != nil {
			r.logger.Error("failed to mark journal entry processed", "error", err, "entry_id", entry.ID)
		} else if ok {
			processed++
			r.logger.Info("journal entry replayed", "entry_id", entry.ID)
		}
	}
	return processed
}
