package httpapi

import (
	"context"
	"net/http"
	"strings"

	"tablequeue/queue-service/internal/auth"

	"go.uber.org/zap"
)

type authContextKey struct{}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string        `json:"token"`
	TokenType string        `json:"token_type"`
	Employee  auth.Identity `json:"employee"`
}

// requireRole authenticates the bearer token and admits only the given roles.
func (h *Handler) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			identity, err := h.auth.Verify(r.Context(), token)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			markEmployee(r.Context(), identity.EmployeeID)
			if !contains(roles, identity.Role) {
				writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "role not permitted")
				return
			}
			ctx := context.WithValue(r.Context(), authContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(authContextKey{}).(auth.Identity)
	return identity, ok
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	token, identity, err := h.auth.Login(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("employee logged in", zap.String("employee_id", identity.EmployeeID), zap.String("role", identity.Role))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, TokenType: "Bearer", Employee: identity})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := h.auth.Logout(r.Context(), identity); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
