package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// WatchlistService defines the methods the watchlist handler requires from
// the tracking engine.
type WatchlistService interface {
	Add(ctx context.Context, address string) error
	Remove(address string)
	Watching(address string) bool
	Addresses() []domain.Address
}

// WatchlistHandler serves watch-set management endpoints.
type WatchlistHandler struct {
	engine WatchlistService
	logger *slog.Logger
}

// NewWatchlistHandler creates a WatchlistHandler with the given engine and logger.
func NewWatchlistHandler(engine WatchlistService, logger *slog.Logger) *WatchlistHandler {
	return &WatchlistHandler{
		engine: engine,
		logger: logHandler(logger, "watchlist"),
	}
}

// listWatchlistResponse wraps the list endpoint output.
type listWatchlistResponse struct {
	Addresses []domain.Address `json:"addresses"`
	Total     int              `json:"total"`
}

// addWatchRequest is the body of the add endpoint.
type addWatchRequest struct {
	Address string `json:"address"`
}

// ListAddresses returns the currently watched addresses, sorted for stable
// output.
// GET /api/watchlist
func (h *WatchlistHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	addrs := h.engine.Addresses()
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	writeJSON(w, http.StatusOK, listWatchlistResponse{
		Addresses: addrs,
		Total:     len(addrs),
	})
}

// AddAddress registers a new address for tracking. Adding an address that is
// already tracked succeeds without side effects.
// POST /api/watchlist
func (h *WatchlistHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req addWatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	if err := h.engine.Add(r.Context(), req.Address); err != nil {
		if errors.Is(err, domain.ErrInvalidAddress) {
			writeError(w, http.StatusBadRequest, "invalid address")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: add address failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to add address")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"status":  "watching",
		"address": string(domain.NormalizeAddress(req.Address)),
	})
}

// RemoveAddress drops an address from tracking.
// DELETE /api/watchlist/{address}
func (h *WatchlistHandler) RemoveAddress(w http.ResponseWriter, r *http.Request) {
	raw := pathParam(r, "address")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}
	if !h.engine.Watching(raw) {
		writeError(w, http.StatusNotFound, "address not watched")
		return
	}

	h.engine.Remove(raw)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "removed",
		"address": string(domain.NormalizeAddress(raw)),
	})
}
