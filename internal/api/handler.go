package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/traP-jp/sisyphus/internal/cache"
	"github.com/traP-jp/sisyphus/internal/identity"
	"github.com/traP-jp/sisyphus/internal/ledger"
	"github.com/traP-jp/sisyphus/internal/service"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sisyphus_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sisyphus_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
	}, []string{"method", "endpoint"})
)

// ActionResult is the uniform envelope every endpoint responds with.
// Failures carry a short human-readable message, never a stack trace.
type ActionResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Handler struct {
	service       *service.PointService
	resolver      *identity.Resolver
	cache         *cache.BalanceCache
	returnBaseURL string
}

func NewHandler(svc *service.PointService, resolver *identity.Resolver, balances *cache.BalanceCache, returnBaseURL string) *Handler {
	return &Handler{
		service:       svc,
		resolver:      resolver,
		cache:         balances,
		returnBaseURL: returnBaseURL,
	}
}

// GetProject returns the project account, serving a cached snapshot
// when one is fresh.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("GET", "/project"))
	defer timer.ObserveDuration()

	if cached, err := h.cache.Get(r.Context()); err == nil && cached != nil {
		h.respondSuccess(w, cached, "GET", "/project")
		return
	}

	project, err := h.service.GetProjectBalance(r.Context())
	if err != nil {
		h.respondFailure(w, err, "GET", "/project")
		return
	}

	if err := h.cache.Set(r.Context(), project); err != nil {
		log.Warn().Err(err).Msg("failed to cache project snapshot")
	}
	h.respondSuccess(w, project, "GET", "/project")
}

// PayPoints sends the fixed amount to the current user.
func (h *Handler) PayPoints(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/points/pay"))
	defer timer.ObserveDuration()

	txn, err := h.service.PayPoints(r.Context(), userFrom(r.Context()))
	if err != nil {
		h.respondFailure(w, err, "POST", "/points/pay")
		return
	}
	h.respondSuccess(w, txn, "POST", "/points/pay")
}

// RequestPoints bills the current user for the fixed amount and hands
// back the hosted payment URL for the browser to follow.
func (h *Handler) RequestPoints(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/points/request"))
	defer timer.ObserveDuration()

	bill, err := h.service.RequestPoints(r.Context(), userFrom(r.Context()), h.returnBaseURL)
	if err != nil {
		h.respondFailure(w, err, "POST", "/points/request")
		return
	}
	h.respondSuccess(w, bill, "POST", "/points/request")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Helpers

func (h *Handler) respondSuccess(w http.ResponseWriter, data any, method, endpoint string) {
	h.respondJSON(w, http.StatusOK, ActionResult{Success: true, Data: data}, method, endpoint)
}

func (h *Handler) respondFailure(w http.ResponseWriter, err error, method, endpoint string) {
	log.Error().Err(err).Str("endpoint", endpoint).Msg("operation failed")
	h.respondJSON(w, errorStatus(err), ActionResult{Success: false, Error: errorMessage(err)}, method, endpoint)
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// errorMessage turns any lower-layer error into the user-facing string.
// Only classified errors surface their own text; anything else collapses
// to a canned message so transport detail never reaches the end user.
// The full error is logged by respondFailure before it gets here.
func errorMessage(err error) string {
	var apiErr *ledger.APIError
	switch {
	case errors.As(err, &apiErr):
		return fmt.Sprintf("API Error (%d): %s", apiErr.StatusCode, apiErr.Message)
	case errors.Is(err, service.ErrSendFailed):
		return service.ErrSendFailed.Error()
	case errors.Is(err, service.ErrBillFailed):
		return service.ErrBillFailed.Error()
	case errors.Is(err, service.ErrNoIdentity),
		errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, service.ErrDuplicateRequest),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrProjectNotConfigured),
		errors.Is(err, ledger.ErrTokenNotConfigured):
		return err.Error()
	default:
		return "operation failed"
	}
}

func errorStatus(err error) int {
	var apiErr *ledger.APIError
	switch {
	case errors.Is(err, service.ErrNoIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInsufficientBalance), errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
