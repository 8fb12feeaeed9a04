package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tablequeue/queue-service/internal/auth"
	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/queue"
	"tablequeue/queue-service/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Engine is the queue surface exposed over HTTP.
type Engine interface {
	IssueOnsiteTicket(ctx context.Context, req queue.IssueRequest) (queue.IssueResult, error)
	IssueRemoteTicket(ctx context.Context, req queue.IssueRequest) (queue.IssueResult, error)
	CallNext(ctx context.Context, class models.TableClass) (queue.CallResult, error)
	SetTicketStatus(ctx context.Context, ticketID, status string) (queue.StatusResult, error)
	QueueStatus(ctx context.Context, date string) (models.QueueStatus, error)
	LookupTicket(ctx context.Context, key string) (models.Ticket, error)
	TicketEvents(ctx context.Context, ticketID string) (queue.TicketEvents, error)
	WaitingList(ctx context.Context) ([]models.WaitingTicket, error)
	Records(ctx context.Context, date, status string) ([]models.Ticket, error)
	RequestVerification(ctx context.Context, phone string) (queue.VerificationRequest, error)
	VerifyCode(ctx context.Context, phone, code string) (queue.VerifyResult, error)
	VerifyByID(ctx context.Context, verificationID, code string) (queue.VerifyResult, error)
	CheckCustomer(ctx context.Context, phone string) (queue.CustomerCheck, error)
	ListBlacklist(ctx context.Context) ([]models.Customer, error)
	AddToBlacklist(ctx context.Context, phone string) (models.Customer, error)
	SetBlacklist(ctx context.Context, customerID string, blacklisted bool) (models.Customer, error)
	Statistics(ctx context.Context, start, end string) (models.Statistics, error)
	DailyStatistics(ctx context.Context, date string) (models.Statistics, error)
	TableTypes() []models.TableType
}

// Authenticator issues and checks staff bearer tokens.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, auth.Identity, error)
	Verify(ctx context.Context, token string) (auth.Identity, error)
	Logout(ctx context.Context, identity auth.Identity) error
}

type Options struct {
	Logger    *zap.Logger
	RateLimit RateLimitConfig
	// Health reports dependency readiness for /healthz.
	Health func(ctx context.Context) error
}

type Handler struct {
	engine  Engine
	auth    Authenticator
	log     *zap.Logger
	limiter *RateLimiter
	health  func(ctx context.Context) error
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(engine Engine, authenticator Authenticator, options Options) *Handler {
	log := options.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		engine:  engine,
		auth:    authenticator,
		log:     log,
		limiter: NewRateLimiter(options.RateLimit),
		health:  options.Health,
	}
}

// Routes mounts the API under /api/v1 and /api. The unversioned prefix also
// carries the older route shapes.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware(h.log))
	r.Use(h.limiter.Middleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", expvar.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Route("/v1", h.mountAPI)
		h.mountAPI(api)
		h.mountLegacy(api)
	})
	return r
}

func (h *Handler) mountAPI(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Get("/table-types", h.handleTableTypes)
	r.Post("/queue/remote", h.handleIssueRemote)
	r.Get("/queue/status", h.handleQueueStatus)
	r.Get("/queue/waiting-list", h.handleWaitingList)
	r.Get("/queue/ticket/{id}", h.handleLookupTicket)
	r.Post("/verifications", h.handleRequestVerification)
	r.Post("/verifications/{id}/verify", h.handleVerifyByID)

	r.Group(func(r chi.Router) {
		r.Use(h.requireRole(models.RoleStaff, models.RoleAdmin))
		r.Post("/auth/logout", h.handleLogout)
		r.Post("/queue/onsite", h.handleIssueOnsite)
		r.Post("/queue/next/{tableClassId}", h.handleCallNext)
		r.Put("/queue/ticket/{id}/status", h.handleSetTicketStatus)
		r.Get("/queue/ticket/{id}/events", h.handleTicketEvents)
		r.Get("/records", h.handleRecords)
		r.Get("/statistics", h.handleStatistics)
		r.Get("/blacklist", h.handleListBlacklist)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireRole(models.RoleAdmin))
		r.Post("/blacklist/add", h.handleAddToBlacklist)
		r.Put("/blacklist/{id}", h.handleSetBlacklist)
	})
}

func (h *Handler) mountLegacy(r chi.Router) {
	r.Post("/verification/request", h.handleRequestVerification)
	r.Post("/verification/verify", h.handleVerifyCode)
	r.Post("/customer/check", h.handleCheckCustomer)
	r.With(h.requireRole(models.RoleStaff, models.RoleAdmin)).Get("/statistics/daily", h.handleDailyStatistics)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "unavailable", "dependency unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps err onto the error envelope. Server-side failures are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	switch status {
	case http.StatusTooManyRequests:
		var cooldown *queue.CooldownError
		if errors.As(err, &cooldown) {
			w.Header().Set("Retry-After", retryAfterSeconds(cooldown.RetryAfter))
		}
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFromRequest(r)),
			zap.Error(err))
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func mapError(err error) (int, string, string) {
	var validation *queue.ValidationError
	var verification *store.VerificationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "invalid_request", validation.Error()
	case errors.As(err, &verification):
		return http.StatusUnauthorized, "verification_failed", "verification code " + strings.ReplaceAll(verification.Result.String(), "_", " ")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid username or password"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenRevoked):
		return http.StatusUnauthorized, "unauthorized", "invalid or expired token"
	case errors.Is(err, store.ErrBlacklisted):
		return http.StatusForbidden, "blacklisted", "customer is blacklisted"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrCustomerNotFound):
		return http.StatusNotFound, "customer_not_found", "customer not found"
	case errors.Is(err, store.ErrVerificationNotFound):
		return http.StatusNotFound, "verification_not_found", "verification not found"
	case errors.Is(err, store.ErrNoWaitingCustomer):
		return http.StatusNotFound, "no_waiting_customer", "no waiting customer for this table type"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, queue.ErrCooldown):
		return http.StatusTooManyRequests, "cooldown", "verification requested too recently"
	case errors.Is(err, store.ErrBusy):
		return http.StatusServiceUnavailable, "busy", "service busy, retry shortly"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}
