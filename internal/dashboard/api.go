package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/storage"
)

// StatsResponse is the JSON response for /api/stats.
type StatsResponse struct {
	Username string                 `json:"username"`
	Metrics  domain.MetricsSnapshot `json:"metrics"`
}

// HistoryEntry is one accepted snapshot in /api/history.
type HistoryEntry struct {
	ObservedAt int64                  `json:"observedAt"`
	Metrics    domain.MetricsSnapshot `json:"metrics"`
}

// AuditEntry is one payment event in /api/audit.
type AuditEntry struct {
	PaymentID  string `json:"paymentId,omitempty"`
	Amount     string `json:"amount"`
	Phase      string `json:"phase"`
	TxID       string `json:"txid,omitempty"`
	Detail     string `json:"detail,omitempty"`
	RecordedAt int64  `json:"recordedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleStats reads metrics through the backend. An admin overview is the
// same call with the admin username.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	username, ok := s.apiUsername(w, r)
	if !ok {
		return
	}

	snap, err := s.opts.Backend.TryFetchMetrics(r.Context(), domain.Identity{Username: username})
	if err != nil {
		s.logger.Warn("stats read-through failed", zap.String("username", username), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "metrics unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Username: username, Metrics: snap})
}

// handleHistory lists accepted snapshots, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	username, ok := s.apiUsername(w, r)
	if !ok {
		return
	}
	limit, ok := apiLimit(w, r)
	if !ok {
		return
	}

	records, err := s.opts.History.GetRecent(r.Context(), username, limit)
	if err != nil {
		s.logger.Error("history query failed", zap.String("username", username), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history unavailable"})
		return
	}
	out := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, HistoryEntry{ObservedAt: rec.ObservedAt, Metrics: rec.Snapshot})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAudit lists the payment events of the Pioneer signed in to the
// session named by the X-Session-Token header, newest first.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	username, ok := s.sessionUsername(w, r)
	if !ok {
		return
	}
	limit, ok := apiLimit(w, r)
	if !ok {
		return
	}

	events, err := s.opts.Events.GetByUsername(r.Context(), username, limit)
	if err != nil {
		s.logger.Error("audit query failed", zap.String("username", username), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "audit trail unavailable"})
		return
	}
	out := make([]AuditEntry, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEntry{
			PaymentID:  e.PaymentID,
			Amount:     e.Amount.String(),
			Phase:      e.Phase,
			TxID:       e.TxID,
			Detail:     e.Detail,
			RecordedAt: e.RecordedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) apiUsername(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return "", false
	}
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username is required"})
		return "", false
	}
	return username, true
}

// SessionTokenHeader carries the page session token issued in the
// websocket welcome message.
const SessionTokenHeader = "X-Session-Token"

func (s *Server) sessionUsername(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return "", false
	}
	token := strings.TrimSpace(r.Header.Get(SessionTokenHeader))
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "session token is required"})
		return "", false
	}
	rec, err := s.opts.Identities.Get(r.Context(), token)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unknown session"})
		return "", false
	}
	if err != nil {
		s.logger.Error("session lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "session lookup failed"})
		return "", false
	}
	return rec.Identity.Username, true
}

func apiLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return storage.DefaultHistoryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
		return 0, false
	}
	return storage.NormalizeLimit(n), true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
