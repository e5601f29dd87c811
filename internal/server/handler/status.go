package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

// StatusService defines the methods the status handler requires from the
// tracking engine.
type StatusService interface {
	Status() tracker.Status
}

// StatusHandler serves the tracking loop status for the dashboard.
type StatusHandler struct {
	engine    StatusService
	mode      string
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler with the given engine and mode.
func NewStatusHandler(engine StatusService, mode string) *StatusHandler {
	return &StatusHandler{
		engine:    engine,
		mode:      mode,
		startedAt: time.Now().UTC(),
	}
}

// statusResponse is the JSON shape of the status endpoint. Intervals are
// reported in whole seconds rather than Go duration encoding.
type statusResponse struct {
	Mode            string  `json:"mode"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	Watchers        int     `json:"watchers"`
	IntervalSeconds int     `json:"interval_seconds"`
	SpamThreshold   int     `json:"spam_threshold"`
	LastCycleAt     *string `json:"last_cycle_at,omitempty"`
	LastCycleEvents int     `json:"last_cycle_events"`
}

// GetStatus responds with the current tracking loop state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Status()

	resp := statusResponse{
		Mode:            h.mode,
		UptimeSeconds:   int64(time.Since(h.startedAt).Seconds()),
		Watchers:        st.Watchers,
		IntervalSeconds: int(st.Interval.Seconds()),
		SpamThreshold:   st.SpamThreshold,
		LastCycleEvents: st.LastCycleCount,
	}
	if st.LastCycleAt != nil {
		s := st.LastCycleAt.Format(time.RFC3339)
		resp.LastCycleAt = &s
	}

	writeJSON(w, http.StatusOK, resp)
}
