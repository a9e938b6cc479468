package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/llu77/erp-system-sub005/internal/domain"
	"github.com/llu77/erp-system-sub005/internal/forecast"
	"github.com/llu77/erp-system-sub005/internal/service"
	"github.com/llu77/erp-system-sub005/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

// generateCSRFToken returns a token valid for the current hour bucket.
func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/refresh", a.requireAuth(a.handleRefresh))
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/branches", a.requireAuth(a.handleBranches, "analyst", "manager", "admin"))
	mux.HandleFunc("/api/v1/fixed-costs", a.requireAuth(a.handleFixedCosts, "analyst", "manager", "admin"))

	mux.HandleFunc("/api/v1/analytics/profit", a.requireAuth(a.handleProfit, "analyst", "manager", "admin"))
	mux.HandleFunc("/api/v1/analytics/break-even", a.requireAuth(a.handleBreakEven, "analyst", "manager", "admin"))
	mux.HandleFunc("/api/v1/analytics/forecast", a.requireAuth(a.handleForecast, "analyst", "manager", "admin"))
	mux.HandleFunc("/api/v1/analytics/kpi", a.requireAuth(a.handleKpi, "analyst", "manager", "admin"))
	mux.HandleFunc("/api/v1/analytics/trend", a.requireAuth(a.handleTrend, "analyst", "manager", "admin"))
	mux.HandleFunc("/api/v1/analytics/abc", a.requireAuth(a.handleAbc, "analyst", "manager", "admin"))
	mux.HandleFunc("/api/v1/analytics/insight", a.requireAuth(a.handleInsight, "analyst", "manager", "admin"))

	mux.HandleFunc("/api/v1/alerts", a.requireAuth(a.handleAlerts, "analyst", "manager", "admin"))
	mux.HandleFunc("/api/v1/alerts/evaluate", a.requireAuth(a.handleAlertEvaluate, "manager", "admin"))
	mux.HandleFunc("/api/v1/alerts/scan", a.requireAuth(a.handleAlertScan, "manager", "admin"))
	mux.HandleFunc("/api/v1/alerts/", a.requireAuth(a.handleAlertActions, "analyst", "manager", "admin"))

	mux.HandleFunc("/api/v1/expenses", a.requireAuth(a.handleExpenses, "analyst", "manager", "admin"))
	mux.HandleFunc("/api/v1/expenses/", a.requireAuth(a.handleExpenseActions, "manager", "admin"))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing actor"))
		return
	}

	resp, err := a.auth.Refresh(r.Context(), actor)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// csrfExemptPaths lists paths that are exempt from CSRF validation.
// Auth endpoints are excluded because they are called without a prior
// CSRF token fetch and carry their own credentials.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
	"/api/v1/auth/refresh",
}

// checkCSRF enforces CSRF token validation for state-changing methods (POST/PUT/PATCH).
// Returns false and writes an error response if validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	branches, err := a.service.ListBranches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (a *API) handleFixedCosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	items, err := a.service.ListFixedCosts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fixed_costs": items})
}

// periodFromQuery parses branch_id/from/to query params. Absent bounds
// default to the current calendar month.
func periodFromQuery(r *http.Request) (string, time.Time, time.Time, error) {
	branchID := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	if branchID == "" {
		return "", time.Time{}, time.Time{}, errors.New("branch_id required")
	}

	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %w", err)
		}
		from = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %w", err)
		}
		to = parsed
	}
	if !to.After(from) {
		return "", time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return branchID, from, to, nil
}

func analyticsStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidConfiguration), errors.Is(err, store.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) handleProfit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	branchID, from, to, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := a.service.ProfitOverview(r.Context(), branchID, from, to)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profit": result})
}

func (a *API) handleBreakEven(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	branchID, from, to, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := a.service.BreakEvenStatus(r.Context(), branchID, from, to)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"break_even": result})
}

func (a *API) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	branchID := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	if branchID == "" {
		writeError(w, http.StatusBadRequest, errors.New("branch_id required"))
		return
	}

	target := time.Now().UTC().AddDate(0, 0, 1)
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid date: %w", err))
			return
		}
		target = parsed
	}

	var opts forecast.Options
	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("mode")), "multiplier") {
		base, err := decimal.NewFromString(strings.TrimSpace(r.URL.Query().Get("base_average")))
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("multiplier mode requires base_average"))
			return
		}
		opts = forecast.Options{
			UseMultipliers: true,
			BaseAverage:    base,
			Multipliers:    forecast.DefaultMultipliers(),
		}
	}

	result, err := a.service.ForecastDay(r.Context(), branchID, target, opts)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"forecast": result})
}

func (a *API) handleKpi(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	branchID, from, to, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snapshot, err := a.service.KpiOverview(r.Context(), branchID, from, to)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kpi": snapshot})
}

func (a *API) handleTrend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	branchID := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	if branchID == "" {
		writeError(w, http.StatusBadRequest, errors.New("branch_id required"))
		return
	}
	months := parsePositiveLimit(r.URL.Query().Get("months"), 6, 24)
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	summary, err := a.service.MonthlyTrend(r.Context(), branchID, months, time.Now().UTC())
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"trend-%s.csv\"", branchID))
		_, _ = w.Write([]byte(trendToCSV(branchID, summary)))
	case "pdf":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(trendToPrintableHTML(branchID, summary)))
	default:
		writeJSON(w, http.StatusOK, map[string]any{"trend": summary})
	}
}

func (a *API) handleAbc(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	branchID, from, to, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := a.service.AbcAnalysis(r.Context(), branchID, from, to)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleInsight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	branchID, from, to, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payload, err := a.service.BusinessInsight(r.Context(), branchID, from, to)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	branchID := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)

	alerts, err := a.service.ListAlerts(r.Context(), branchID, limit)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleAlertEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	branchID, from, to, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	alerts, err := a.service.FinancialAlerts(r.Context(), branchID, from, to)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleAlertScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	alerts, err := a.service.RunAnomalyScan(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleAlertActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	prefix := "/api/v1/alerts/"
	if !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, "/read") {
		writeError(w, http.StatusBadRequest, errors.New("invalid alert action path"))
		return
	}
	alertID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/read")
	alertID = strings.TrimSpace(strings.Trim(alertID, "/"))
	if alertID == "" {
		writeError(w, http.StatusBadRequest, errors.New("alert id required"))
		return
	}

	alert, err := a.service.MarkAlertRead(r.Context(), alertID)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert": alert})
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ExpenseSubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	expense, err := a.service.SubmitExpense(r.Context(), req)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.ExpenseResponse{Expense: expense})
}

func (a *API) handleExpenseActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	prefix := "/api/v1/expenses/"
	if !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, "/approve") {
		writeError(w, http.StatusBadRequest, errors.New("invalid expense action path"))
		return
	}
	expenseID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/approve")
	expenseID = strings.TrimSpace(strings.Trim(expenseID, "/"))
	if expenseID == "" {
		writeError(w, http.StatusBadRequest, errors.New("expense id required"))
		return
	}

	var req domain.ExpenseApproveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.pinLimiter.Allow("pin:expense:" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return
	}
	if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
		writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
		return
	}

	expense, err := a.service.ApproveExpense(r.Context(), expenseID, req.Approve)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ExpenseResponse{Expense: expense})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		writeError(w, analyticsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Enforce CSRF protection for all state-changing requests.
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(startedAt)).
			Msg("request")
	})
}

func trendToCSV(branchID string, summary domain.TrendSummary) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,branch_id,%s", branchID),
		fmt.Sprintf("summary,active_months,%d", summary.ActiveMonthCount),
		fmt.Sprintf("summary,avg_revenue,%s", summary.AvgRevenue.StringFixed(2)),
		fmt.Sprintf("summary,avg_expenses,%s", summary.AvgExpenses.StringFixed(2)),
		fmt.Sprintf("summary,avg_net_profit,%s", summary.AvgNetProfit.StringFixed(2)),
	}
	for _, point := range summary.Points {
		lines = append(lines, fmt.Sprintf("month,%s_revenue,%s", point.Month, point.Revenue.StringFixed(2)))
		lines = append(lines, fmt.Sprintf("month,%s_expenses,%s", point.Month, point.Expenses.StringFixed(2)))
		lines = append(lines, fmt.Sprintf("month,%s_net_profit,%s", point.Month, point.NetProfit.StringFixed(2)))
	}
	return strings.Join(lines, "\n") + "\n"
}

// trendHTMLTmpl renders a printable trend report. All user-controlled
// fields are auto-escaped by html/template to prevent XSS.
var trendHTMLTmpl = template.Must(template.New("trend-report").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Trend Report {{.BranchID}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Monthly Trend</h2>
  <p>Branch: {{.BranchID}}</p>
  <p>Active months: {{.Summary.ActiveMonthCount}} | Avg revenue: {{.Summary.AvgRevenue}} | Avg net profit: {{.Summary.AvgNetProfit}}</p>

  <h3>Months</h3>
  <table>
    <thead><tr><th>Month</th><th>Revenue</th><th>Expenses</th><th>Net Profit</th><th>Active</th></tr></thead>
    <tbody>{{range .Summary.Points}}<tr><td>{{.Month}}</td><td style="text-align:right;">{{.Revenue}}</td><td style="text-align:right;">{{.Expenses}}</td><td style="text-align:right;">{{.NetProfit}}</td><td>{{.Active}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func trendToPrintableHTML(branchID string, summary domain.TrendSummary) string {
	var buf bytes.Buffer
	data := struct {
		BranchID string
		Summary  domain.TrendSummary
	}{BranchID: branchID, Summary: summary}
	if err := trendHTMLTmpl.Execute(&buf, data); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (stack traces, SQL errors, file paths, etc.).
	// 4xx responses are user-facing so we return the original error message.
	msg := err.Error()
	if status >= 500 {
		log.Error().Int("status", status).Err(err).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
