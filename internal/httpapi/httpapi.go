package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/service"
	"sarisari/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	log           *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		log:           zap.L().Named("http"),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)

	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleSale, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("GET /api/v1/transactions/{id}", a.requireAuth(a.handleTransaction, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("GET /api/v1/products/low-stock", a.requireAuth(a.handleLowStock, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("POST /api/v1/products/{id}/restock", a.requireAuth(a.handleRestock, domain.RoleAdmin))
	mux.HandleFunc("GET /api/v1/products/{id}/restocks", a.requireAuth(a.handleRestockHistory, domain.RoleAdmin))
	mux.HandleFunc("POST /api/v1/accounts/{id}/pay-debt", a.requireAuth(a.handlePayDebt, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("POST /api/v1/accounts/{id}/debts", a.requireAuth(a.handleAddDebt, domain.RoleCashier, domain.RoleAdmin))

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
		if _, err := a.service.VerifyActor(r.Context(), actor); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, errors.New("unknown or inactive user"))
				return
			}
			a.writeServiceError(w, r, err)
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
	if err := a.service.Ping(r.Context()); err != nil {
		a.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":        false,
			"retryable": true,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

type saleBody struct {
	CashierID     string            `json:"cashier_id"`
	Items         []domain.SaleItem `json:"items"`
	AmountPaid    decimal.Decimal   `json:"amount_paid"`
	PaymentMethod string            `json:"payment_method"`
	CustomerID    string            `json:"customer_id"`
	Note          string            `json:"note"`
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request) {
	var body saleBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	paid, err := toCents(body.AmountPaid, "amount_paid")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	actor, _ := service.ActorFromContext(r.Context())
	cashierID := strings.TrimSpace(body.CashierID)
	if cashierID != "" && cashierID != actor.UserID && actor.Role != domain.RoleAdmin {
		writeError(w, http.StatusForbidden, errors.New("cashiers can only ring up their own sales"))
		return
	}

	tx, err := a.service.Sale(r.Context(), domain.SaleRequest{
		CashierID:       cashierID,
		Items:           body.Items,
		AmountPaidCents: paid,
		PaymentMethod:   strings.ToUpper(strings.TrimSpace(body.PaymentMethod)),
		CustomerID:      strings.TrimSpace(body.CustomerID),
		Note:            body.Note,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (a *API) handleTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.LowStock(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": products})
}

type restockBody struct {
	Quantity    int             `json:"quantity"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	Supplier    string          `json:"supplier"`
	Notes       string          `json:"notes"`
}

func (a *API) handleRestock(w http.ResponseWriter, r *http.Request) {
	var body restockBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cost, err := toCents(body.CostPerUnit, "cost_per_unit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.Restock(r.Context(), domain.RestockRequest{
		ProductID:        r.PathValue("id"),
		Quantity:         body.Quantity,
		CostPerUnitCents: cost,
		Supplier:         strings.TrimSpace(body.Supplier),
		Notes:            body.Notes,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleRestockHistory(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	entries, err := a.service.ListRestocks(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

type payDebtBody struct {
	Amount decimal.Decimal `json:"amount"`
}

func (a *API) handlePayDebt(w http.ResponseWriter, r *http.Request) {
	var body payDebtBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := toCents(body.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.PayDebt(r.Context(), domain.PayDebtRequest{
		CustomerID:  r.PathValue("id"),
		AmountCents: amount,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type addDebtBody struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

func (a *API) handleAddDebt(w http.ResponseWriter, r *http.Request) {
	var body addDebtBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := toCents(body.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.AddDebt(r.Context(), domain.AddDebtRequest{
		CustomerID:  r.PathValue("id"),
		AmountCents: amount,
		Note:        body.Note,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// writeServiceError maps ledger failures to HTTP statuses. Structured errors
// carry their numbers into the body so clients can show them.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr   *store.InsufficientStockError
		paymentErr *store.InsufficientPaymentError
		creditErr  *store.CreditLimitExceededError
	)
	switch {
	case errors.Is(err, store.ErrUnavailable):
		a.log.Warn("store unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":     "service temporarily unavailable, try again",
			"retryable": true,
		})
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      err.Error(),
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrNoDebt):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &paymentErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":       err.Error(),
			"total_cents": paymentErr.TotalCents,
			"paid_cents":  paymentErr.PaidCents,
		})
	case errors.As(err, &creditErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":          err.Error(),
			"account_id":     creditErr.AccountID,
			"limit_cents":    creditErr.LimitCents,
			"would_be_cents": creditErr.WouldBeCents,
		})
	case errors.Is(err, store.ErrInsufficientPayment), errors.Is(err, store.ErrCreditLimitExceeded):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

var maxCents = decimal.NewFromInt(domain.MaxAmountCents)

// toCents converts a peso amount to centavos. Fractions below a centavo are
// rejected rather than rounded.
func toCents(amount decimal.Decimal, field string) (int64, error) {
	cents := amount.Shift(2)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%s must have at most two decimal places", field)
	}
	if cents.Abs().GreaterThan(maxCents) {
		return 0, fmt.Errorf("%s is out of range", field)
	}
	return cents.IntPart(), nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(startedAt)))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
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

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log only.
	msg := err.Error()
	if status >= 500 {
		zap.L().Named("http").Error("internal error", zap.Int("status", status), zap.Error(err))
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
