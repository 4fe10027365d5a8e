// Package events keeps a durable journal of leads that reached the brokerage
// only through a fallback path, so they can be replayed into the primary
// store or handled by hand.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/insurance-leads-platform/internal/leads"
)

// ErrNotFound is returned when a journal entry does not exist.
var ErrNotFound = errors.New("events: journal entry not found")

// Entry is one journaled lead.
type Entry struct {
	ID uuid.UUID `json:"id"`
	// Lead is the record exactly as it was handed to the fallback.
	Lead leads.LeadRecord `json:"lead"`
	// Method names the fallback that accepted the lead (relay, smtp, ...).
	Method string `json:"method"`
	// PrimaryError is the reason the primary store rejected the lead.
	PrimaryError string     `json:"primary_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// Journal persists entries until someone marks them processed.
type Journal interface {
	Record(ctx context.Context, entry Entry) (uuid.UUID, error)
	Pending(ctx context.Context, limit int) ([]Entry, error)
	// MarkProcessed reports false when the entry was already processed.
	MarkProcessed(ctx context.Context, id uuid.UUID) (bool, error)
}

// NopJournal drops every entry. Used when no journal backend is configured.
type NopJournal struct{}

func (NopJournal) Record(context.Context, Entry) (uuid.UUID, error) { return uuid.Nil, nil }
func (NopJournal) Pending(context.Context, int) ([]Entry, error)    { return nil, nil }
func (NopJournal) MarkProcessed(context.Context, uuid.UUID) (bool, error) {
	return false, ErrNotFound
}

func prepare(entry Entry, now time.Time) (Entry, error) {
	if entry.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return Entry{}, err
		}
		entry.ID = id
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now.UTC()
	}
	entry.ProcessedAt = nil
	return entry, nil
}

var _ Journal = NopJournal{}
