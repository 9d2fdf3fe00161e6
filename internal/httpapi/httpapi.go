package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"vendafacil/backend/internal/domain"
	"vendafacil/backend/internal/service"
	"vendafacil/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
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
	mux.HandleFunc("/auth/login", a.handleLogin)

	mux.HandleFunc("/produtos", a.requireAuth(a.handleProducts, "vendedor", "admin"))
	mux.HandleFunc("/produtos/", a.requireAuth(a.handleProductByID, "vendedor", "admin"))

	mux.HandleFunc("/vendas/criar", a.requireAuth(a.handleSaleCreate, "vendedor", "admin"))
	mux.HandleFunc("/vendas/estatisticas", a.requireAuth(a.handleStatistics, "vendedor", "admin"))
	mux.HandleFunc("/vendas", a.requireAuth(a.handleSaleList, "vendedor", "admin"))
	mux.HandleFunc("/vendas/", a.requireAuth(a.handleSaleActions, "vendedor", "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("token de acesso ausente"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("acesso negado"))
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
		writeError(w, http.StatusTooManyRequests, errors.New("muitas tentativas de login"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"produtos": products})
}

func (a *API) handleProductByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/produtos/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("id do produto obrigatorio"))
		return
	}

	product, err := a.service.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, saleErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleSaleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SaleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sale, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		writeError(w, saleErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleSaleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ListSales(r.Context(), filter)
	if err != nil {
		writeError(w, saleErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	var filter domain.StatisticsFilter
	var err error
	if filter.DataInicio, err = parseDateParam(r, "dataInicio"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if filter.DataFim, err = parseDateParam(r, "dataFim"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := a.service.Statistics(r.Context(), filter)
	if err != nil {
		writeError(w, saleErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/vendas/"), "/")
	if tail == "" {
		// GET /vendas/ is the listing with a trailing slash.
		if r.Method == http.MethodGet {
			a.handleSaleList(w, r)
			return
		}
		writeError(w, http.StatusBadRequest, errors.New("id da venda obrigatorio"))
		return
	}

	if id, ok := strings.CutSuffix(tail, "/cancelar"); ok {
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		id = strings.Trim(id, "/")
		if id == "" {
			writeError(w, http.StatusBadRequest, errors.New("id da venda obrigatorio"))
			return
		}

		sale, err := a.service.CancelSale(r.Context(), id)
		if err != nil {
			writeError(w, saleErrorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, sale)
		return
	}

	if strings.Contains(tail, "/") {
		writeError(w, http.StatusNotFound, errors.New("recurso nao encontrado"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		sale, err := a.service.GetSale(r.Context(), tail)
		if err != nil {
			writeError(w, saleErrorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, sale)
	case http.MethodPatch, http.MethodPut:
		var req domain.SaleUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		sale, err := a.service.UpdateSale(r.Context(), tail, req)
		if err != nil {
			writeError(w, saleErrorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, sale)
	case http.MethodDelete:
		if err := a.service.DeleteSale(r.Context(), tail); err != nil {
			writeError(w, saleErrorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"mensagem": "venda removida com sucesso"})
	default:
		writeMethodNotAllowed(w)
	}
}

// saleErrorStatus maps domain errors onto HTTP status codes. Stock shortfalls
// and validation problems are client errors; a missing or inactive product is
// reported as not found.
func saleErrorStatus(err error) int {
	var insufficient *store.InsufficientStockError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidSale):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrAlreadyCancelled):
		return http.StatusBadRequest
	case errors.As(err, &insufficient):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseListFilter(r *http.Request) (domain.SaleListFilter, error) {
	query := r.URL.Query()

	filter := domain.SaleListFilter{
		Cliente: strings.TrimSpace(query.Get("cliente")),
		Status:  strings.TrimSpace(query.Get("status")),
		Pagina:  parsePositiveLimit(query.Get("pagina"), 1, 0),
		Limite:  parsePositiveLimit(query.Get("limite"), 10, 100),
	}

	var err error
	if filter.DataInicio, err = parseDateParam(r, "dataInicio"); err != nil {
		return domain.SaleListFilter{}, err
	}
	if filter.DataFim, err = parseDateParam(r, "dataFim"); err != nil {
		return domain.SaleListFilter{}, err
	}
	return filter, nil
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, errors.New("data invalida em " + name + ", use AAAA-MM-DD")
	}
	return &parsed, nil
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
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
	writeError(w, http.StatusMethodNotAllowed, errors.New("metodo nao permitido"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx messages are redacted so SQL errors and file paths never reach the
	// client. 4xx messages are user-facing and pass through unchanged.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "erro interno do servidor"
	}
	writeJSON(w, status, map[string]any{
		"erro": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
