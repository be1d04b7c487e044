package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/snapstore/internal/analytics"
	"github.com/ledgerline/snapstore/internal/catalog"
	"github.com/ledgerline/snapstore/internal/query"
	"github.com/ledgerline/snapstore/internal/scheduler"
	"github.com/ledgerline/snapstore/internal/translate"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// TableResponse describes one reflected table.
type TableResponse struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    int64    `json:"rows"`
}

// StatusResponse reports store and scheduler state.
type StatusResponse struct {
	Initialized bool             `json:"initialized"`
	Tables      int              `json:"tables"`
	StoreBytes  int64            `json:"store_bytes,omitempty"`
	BuiltAt     *time.Time       `json:"built_at,omitempty"`
	Scheduler   scheduler.Status `json:"scheduler"`
}

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	SQL     string `json:"sql"`
	MaxRows int    `json:"max_rows,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writeDomainError maps the pipeline's error taxonomy onto HTTP statuses:
// an uninitialized store is 503, a policy violation 400, a missing table 404.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var policyErr *query.PolicyError
	switch {
	case errors.Is(err, catalog.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, "not_initialized",
			"No store has been built yet; waiting for the first export")
	case errors.As(err, &policyErr):
		writeError(w, http.StatusBadRequest, "query_rejected", policyErr.Reason)
	case errors.Is(err, analytics.ErrTableUnavailable):
		writeError(w, http.StatusNotFound, "table_unavailable", err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Request failed")
	}
}

// handleStatus returns store and scheduler status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Initialized: s.catalog.Initialized(),
	}
	if names, err := s.catalog.ListTables(); err == nil {
		resp.Tables = len(names)
	}
	if info, err := os.Stat(s.cfg.DatabasePath()); err == nil {
		resp.StoreBytes = info.Size()
		mod := info.ModTime()
		resp.BuiltAt = &mod
	}
	if s.scheduler != nil {
		resp.Scheduler = s.scheduler.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListTables returns the reflected table set with row counts.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	sess, err := s.catalog.NewSession()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	defer sess.Close()

	var tables []TableResponse
	for _, name := range sess.Tables() {
		info := sess.Table(name)
		t := TableResponse{Name: name, Columns: info.Columns}
		if err := sess.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM "+translate.QuoteIdent(name)).Scan(&t.Rows); err != nil {
			s.writeDomainError(w, err)
			return
		}
		tables = append(tables, t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tables": tables,
		"count":  len(tables),
	})
}

// handleGetTable returns one table's metadata.
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	sess, err := s.catalog.NewSession()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	defer sess.Close()

	info := sess.Table(name)
	if info == nil {
		writeError(w, http.StatusNotFound, "table_not_found", "No such table: "+name)
		return
	}

	t := TableResponse{Name: info.Name, Columns: info.Columns}
	if err := sess.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM "+translate.QuoteIdent(name)).Scan(&t.Rows); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleQuery executes a guarded ad-hoc query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Body must be JSON with a \"sql\" field")
		return
	}

	result, err := s.executor.Execute(r.Context(), req.SQL, req.MaxRows)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleTriggerSync starts an ingestion cycle outside the schedule.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "No scheduler is running")
		return
	}
	if err := s.scheduler.TriggerNow(); err != nil {
		writeError(w, http.StatusConflict, "sync_busy", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleSalesToday returns today's sales aggregate.
func (s *Server) handleSalesToday(w http.ResponseWriter, r *http.Request) {
	day := time.Now().Format("2006-01-02")
	res, err := s.analytics.SalesForDay(r.Context(), day)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSalesSummary returns per-day sales totals.
func (s *Server) handleSalesSummary(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "days", 30)
	days, err := s.analytics.DailySummary(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":  days,
		"count": len(days),
	})
}

// handleTopProducts returns the best-selling products.
func (s *Server) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	products, err := s.analytics.TopProducts(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

// handleProfits returns recent profit rows with the net tier applied.
func (s *Server) handleProfits(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 30)
	rows, dailyCost, err := s.analytics.Profits(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profits":    rows,
		"daily_cost": dailyCost,
		"count":      len(rows),
	})
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
