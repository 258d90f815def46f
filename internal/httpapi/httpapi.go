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

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/service"
	"tokopos/backend/internal/store"
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
	mux.HandleFunc("/api/auth/login", a.handleLogin)
	mux.HandleFunc("/api/auth/cashiers", a.requireAuth(a.handleCashiers, "admin"))

	mux.HandleFunc("/api/stock/item-groups", a.requireAuth(a.handleItemGroups, "cashier", "admin"))
	mux.HandleFunc("/api/stock/item-groups/", a.requireAuth(a.handleItemGroupActions, "cashier", "admin"))
	mux.HandleFunc("/api/stock/items", a.requireAuth(a.handleItems, "cashier", "admin"))
	mux.HandleFunc("/api/stock/items/", a.requireAuth(a.handleItemActions, "cashier", "admin"))
	mux.HandleFunc("/api/stock/entries", a.requireAuth(a.handleStockEntries, "cashier", "admin"))
	mux.HandleFunc("/api/stock/entries/", a.requireAuth(a.handleStockEntryActions, "cashier", "admin"))
	mux.HandleFunc("/api/stock/transactions", a.requireAuth(a.handleStockMovements, "cashier", "admin"))

	mux.HandleFunc("/api/pos/products", a.requireAuth(a.handleProducts, "cashier", "admin"))
	mux.HandleFunc("/api/pos/lookup/barcode/", a.requireAuth(a.handleBarcodeLookup, "cashier", "admin"))
	mux.HandleFunc("/api/pos/transactions", a.requireAuth(a.handleTransactions, "cashier", "admin"))
	mux.HandleFunc("/api/pos/transactions/", a.requireAuth(a.handleTransactionActions, "cashier", "admin"))
	mux.HandleFunc("/api/pos/printers", a.requireAuth(a.handlePrinters, "cashier", "admin"))

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

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCashiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers()})
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		cashier, err := a.auth.CreateCashier(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
	default:
		writeMethodNotAllowed(w)
	}
}

// --- item groups ---

func (a *API) handleItemGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups, pagination, err := a.service.ListItemGroups(r.Context(), parseListQuery(r, "search"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"itemGroups": groups, "pagination": pagination})
	case http.MethodPost:
		var req domain.ItemGroupCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		group, err := a.service.CreateItemGroup(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"itemGroup": group})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleItemGroupActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/stock/item-groups/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("item group id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		group, err := a.service.GetItemGroup(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"itemGroup": group})
	case http.MethodPut, http.MethodPatch:
		var req domain.ItemGroupUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Name == nil && req.Code == nil {
			writeError(w, http.StatusBadRequest, errors.New("name or code must be provided"))
			return
		}

		group, err := a.service.UpdateItemGroup(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"itemGroup": group})
	case http.MethodDelete:
		if err := a.service.DeleteItemGroup(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeMethodNotAllowed(w)
	}
}

// --- items ---

func (a *API) handleItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, pagination, err := a.service.ListItems(r.Context(), parseListQuery(r, "search"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "pagination": pagination})
	case http.MethodPost:
		var req domain.ItemCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		item, err := a.service.CreateItem(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"item": item})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleItemActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/stock/items/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("item id required"))
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	item, err := a.service.GetItem(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

// --- stock entries ---

func (a *API) handleStockEntries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, pagination, err := a.service.ListStockEntries(r.Context(), parseListQuery(r, "search"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "pagination": pagination})
	case http.MethodPost:
		var req domain.StockEntryCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		entry, err := a.service.CreateStockEntry(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleStockEntryActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/stock/entries/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("stock entry id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, err := a.service.GetStockEntry(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodPut, http.MethodPatch:
		var req domain.StockEntryUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		entry, err := a.service.UpdateStockEntry(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodDelete:
		if err := a.service.DeleteStockEntry(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeMethodNotAllowed(w)
	}
}

// --- stock movements ---

func (a *API) handleStockMovements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := store.MovementQuery{
			Page:   parsePositiveInt(r.URL.Query().Get("page"), 1),
			Limit:  parsePositiveInt(r.URL.Query().Get("limit"), 10),
			ItemID: strings.TrimSpace(r.URL.Query().Get("productId")),
			Type:   strings.TrimSpace(r.URL.Query().Get("type")),
		}

		movements, pagination, err := a.service.ListMovements(r.Context(), q)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": movements, "pagination": pagination})
	case http.MethodPost:
		var req domain.StockMovementRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		movement, err := a.service.CreateMovement(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "transaction": movement})
	default:
		writeMethodNotAllowed(w)
	}
}

// --- POS ---

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	products, pagination, err := a.service.ListProducts(r.Context(), parseListQuery(r, "search"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products, "pagination": pagination})
}

func (a *API) handleBarcodeLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	code := pathTail(r.URL.Path, "/api/pos/lookup/barcode/")
	if code == "" {
		writeError(w, http.StatusBadRequest, errors.New("barcode required"))
		return
	}

	product, err := a.service.LookupBarcode(r.Context(), code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		txs, pagination, err := a.service.ListTransactions(r.Context(), parseListQuery(r, "filter"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txs, "pagination": pagination})
	case http.MethodPost:
		var req domain.TransactionCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		trx, err := a.service.CreateTransaction(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "transaction": trx})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTransactionActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/pos/transactions/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("transaction id required"))
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	trx, err := a.service.GetTransaction(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trx)
}

func (a *API) handlePrinters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"printers": a.service.AvailablePrinters(r.Context())})
	case http.MethodPost:
		var req domain.PrintReceiptRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(req.TransactionID) == "" {
			writeError(w, http.StatusBadRequest, errors.New("transaction ID is required"))
			return
		}

		resp, err := a.service.PrintReceipt(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

// --- middleware & helpers ---

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
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

func pathTail(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(strings.TrimPrefix(path, prefix), "/"))
}

func parseListQuery(r *http.Request, searchParam string) store.ListQuery {
	return store.ListQuery{
		Page:   parsePositiveInt(r.URL.Query().Get("page"), 1),
		Limit:  parsePositiveInt(r.URL.Query().Get("limit"), 10),
		Search: strings.TrimSpace(r.URL.Query().Get(searchParam)),
	}
}

func parsePositiveInt(raw string, fallback int) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	default:
		if strings.Contains(strings.ToLower(err.Error()), "admin role required") {
			status = http.StatusForbidden
		}
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details. 4xx responses are user-facing so the original
	// error message is returned.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
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
