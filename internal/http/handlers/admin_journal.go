package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/insurance-leads-platform/internal/events"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

const (
	defaultJournalPageSize = 50
	maxJournalPageSize     = 500
)

// AdminJournalHandler exposes leads that only reached the fallback path.
type AdminJournalHandler struct {
	journal events.Journal
	logger  *logging.Logger
}

// NewAdminJournalHandler creates a new admin journal handler.
func NewAdminJournalHandler(journal events.Journal, logger *logging.Logger) *AdminJournalHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminJournalHandler{journal: journal, logger: logger}
}

// JournalListResponse is a page of pending journal entries.
type JournalListResponse struct {
	Entries []events.Entry `json:"entries"`
	Count   int            `json:"count"`
}

// ListPending handles GET /admin/journal?limit=N
func (h *AdminJournalHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := defaultJournalPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxJournalPageSize)
	}

	entries, err := h.journal.Pending(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list journal entries", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []events.Entry{}
	}
	writeJSON(w, http.StatusOK, JournalListResponse{Entries: entries, Count: len(entries)})
}

// Ack handles POST /admin/journal/{entryID}/ack
func (h *AdminJournalHandler) Ack(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		jsonError(w, "invalid entry id", http.StatusBadRequest)
		return
	}

	marked, err := h.journal.MarkProcessed(r.Context(), id)
	if errors.Is(err, events.ErrNotFound) {
		jsonError(w, "entry not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to ack journal entry", "error", err, "entry_id", id)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "acknowledged": marked})
}
