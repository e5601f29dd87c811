package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// EventSource defines the methods the events handler requires from the
// event store. It is declared locally so the handler package does not depend
// on the concrete store implementation.
type EventSource interface {
	GetByID(ctx context.Context, id string) (domain.Event, error)
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error)
	ListByAddress(ctx context.Context, addr domain.Address, opts domain.ListOpts) ([]domain.Event, error)
	Count(ctx context.Context) (int64, error)
}

// EventsHandler serves the persisted event history.
type EventsHandler struct {
	events EventSource
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler with the given store and logger.
func NewEventsHandler(events EventSource, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		events: events,
		logger: logHandler(logger, "events"),
	}
}

// listEventsResponse wraps the list endpoint output with metadata.
type listEventsResponse struct {
	Events []domain.Event `json:"events"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListEvents returns recorded events, newest first, optionally filtered by
// address and time window.
// GET /api/events?limit=50&offset=0&address=0x...&since=2026-01-01T00:00:00Z
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		events []domain.Event
		err    error
	)
	if raw := r.URL.Query().Get("address"); raw != "" {
		addr := domain.NormalizeAddress(raw)
		if !addr.Valid() {
			writeError(w, http.StatusBadRequest, "invalid address filter")
			return
		}
		events, err = h.events.ListByAddress(r.Context(), addr, opts)
	} else {
		events, err = h.events.ListRecent(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	total, err := h.events.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count events")
		return
	}

	if events == nil {
		events = []domain.Event{}
	}

	writeJSON(w, http.StatusOK, listEventsResponse{
		Events: events,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetEvent returns a single event by its ID.
// GET /api/events/{id}
func (h *EventsHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}

	event, err := h.events.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get event failed",
			slog.String("event_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}
