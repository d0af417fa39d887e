package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"turnero/internal/models"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	type request struct {
		UserID int64  `json:"user_id"`
		Notes  string `json:"notes"`
	}
	var body request
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	entry, err := s.coordinator.Join(r.Context(), serviceID, body.UserID, body.Notes)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *HTTPServer) handleCallNext(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	entry, err := s.coordinator.CallNext(r.Context(), serviceID)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) handleServe(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("id")

	type request struct {
		Notes string `json:"notes"`
	}
	var body request
	if !decodeBody(w, r, &body) {
		return
	}

	entry, err := s.coordinator.MarkServed(r.Context(), entryID, body.Notes)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleCancel cancels an entry. With a user_id in the body the cancel
// is on behalf of that customer and must pass the ownership check;
// without one it is an operator cancel.
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("id")

	type request struct {
		UserID int64  `json:"user_id"`
		Notes  string `json:"notes"`
	}
	var body request
	if !decodeBody(w, r, &body) {
		return
	}

	var entry *models.QueueEntry
	var err error
	if body.UserID != 0 {
		entry, err = s.coordinator.CancelOwn(r.Context(), entryID, body.UserID)
	} else {
		entry, err = s.coordinator.RemoveFromQueue(r.Context(), entryID, models.StatusCancelled, body.Notes)
	}
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) handleNoShow(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("id")

	type request struct {
		Notes string `json:"notes"`
	}
	var body request
	if !decodeBody(w, r, &body) {
		return
	}

	entry, err := s.coordinator.RemoveFromQueue(r.Context(), entryID, models.StatusNoShow, body.Notes)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) handlePosition(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("id")

	pos, err := s.coordinator.GetPosition(r.Context(), entryID)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	stats, err := s.coordinator.GetStats(r.Context(), serviceID)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleQRLookup(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.PathValue("code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "qr code is required")
		return
	}

	entry, err := s.coordinator.LookupByQR(r.Context(), code)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) handleUserEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var statuses []string
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		statuses = splitCSV(raw)
	}

	entries, err := s.coordinator.ListUserEntries(r.Context(), userID, statuses...)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *HTTPServer) handleUserNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	notifications, err := s.coordinator.ListUserNotifications(r.Context(), userID, limit)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

// handleExport streams an xlsx workbook with the service's queue
// history for the requested date range (default: today).
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	now := time.Now()
	from := now.Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, 1)

	var err error
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err = time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
			return
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err = time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
			return
		}
		to = to.AddDate(0, 0, 1)
	}

	workbook, err := s.exporter.HistoryWorkbook(r.Context(), serviceID, from, to)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	defer workbook.Close()

	filename := fmt.Sprintf("queue_history_%d_%s.xlsx", serviceID, from.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := workbook.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("failed to stream export")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
