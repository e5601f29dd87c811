package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

// SettingsHandler serves the runtime-tunable tracking knobs. Out-of-range
// values are clamped by the engine, never rejected; the response always
// reports the values actually in effect.
type SettingsHandler struct {
	settings *tracker.Settings
	logger   *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler with the given settings and logger.
func NewSettingsHandler(settings *tracker.Settings, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logHandler(logger, "settings"),
	}
}

// settingsResponse is the JSON shape of the settings endpoints.
type settingsResponse struct {
	IntervalSeconds int `json:"interval_seconds"`
	SpamThreshold   int `json:"spam_threshold"`
}

// updateSettingsRequest is the body of the update endpoint. Absent fields
// leave the current value unchanged.
type updateSettingsRequest struct {
	IntervalSeconds *int `json:"interval_seconds"`
	SpamThreshold   *int `json:"spam_threshold"`
}

func (h *SettingsHandler) current() settingsResponse {
	return settingsResponse{
		IntervalSeconds: int(h.settings.Interval().Seconds()),
		SpamThreshold:   h.settings.SpamThreshold(),
	}
}

// GetSettings returns the current poll interval and spam threshold.
// GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current())
}

// UpdateSettings applies new values for the poll interval and/or spam
// threshold. Changes take effect from the next polling cycle.
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.IntervalSeconds == nil && req.SpamThreshold == nil {
		writeError(w, http.StatusBadRequest, "interval_seconds or spam_threshold is required")
		return
	}

	if req.IntervalSeconds != nil {
		applied := h.settings.SetInterval(time.Duration(*req.IntervalSeconds) * time.Second)
		h.logger.InfoContext(r.Context(), "poll interval updated",
			slog.Int("requested_seconds", *req.IntervalSeconds),
			slog.Duration("applied", applied),
		)
	}
	if req.SpamThreshold != nil {
		applied := h.settings.SetSpamThreshold(*req.SpamThreshold)
		h.logger.InfoContext(r.Context(), "spam threshold updated",
			slog.Int("requested", *req.SpamThreshold),
			slog.Int("applied", applied),
		)
	}

	writeJSON(w, http.StatusOK, h.current())
}
