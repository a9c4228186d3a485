package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/history"
)

// handleHistory returns irrigation events across devices, newest first.
//
// Query parameters:
//   - devices: comma-separated sensor IDs
//   - start, end: RFC 3339 bounds, inclusive. Default to the last 30 days.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := parseOptionalTime(q.Get("start"))
	if err != nil {
		writeBadRequest(w, "invalid start: expected RFC 3339 timestamp")
		return
	}
	end, err := parseOptionalTime(q.Get("end"))
	if err != nil {
		writeBadRequest(w, "invalid end: expected RFC 3339 timestamp")
		return
	}

	entries, err := s.history.History(r.Context(), splitIDs(q.Get("devices")), start, end)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries, "count": len(entries)})
}

// handleUsageAnalytics returns water usage aggregates.
//
// Query parameters:
//   - devices: comma-separated sensor IDs
//   - period: 24h, 7d, 30d or 90d (default 7d)
func (s *Server) handleUsageAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	period, err := history.ParsePeriod(q.Get("period"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	usage, err := s.history.UsageAnalytics(r.Context(), splitIDs(q.Get("devices")), period)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func parseOptionalTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil //nolint:nilnil // absent bound
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func splitIDs(v string) []string {
	var ids []string
	for _, id := range strings.Split(v, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
