package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatehouse-iam/gatehouse/internal/identity"
	"github.com/gatehouse-iam/gatehouse/internal/platform/httpx"
)

// PermissionSource resolves a user's effective permission tokens.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// DecisionRecorder counts allow/deny outcomes.
type DecisionRecorder interface {
	RecordDecision(allowed bool)
}

// Middleware wires authorization guards for HTTP handlers. Bootstrap
// admin-key callers bypass permission checks so the first super_admin
// assignment can be made.
type Middleware struct {
	Source  PermissionSource
	Metrics DecisionRecorder
	Logger  *slog.Logger
}

// RequireAny ensures the caller holds at least one of the required tokens.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := normalizeTokens(perms)
	return m.guard(required, hasAnyToken)
}

// RequireAll ensures the caller holds every required token.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := normalizeTokens(perms)
	return m.guard(required, hasAllTokens)
}

func (m Middleware) guard(required []string, match func(granted, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if identity.IsBootstrap(r.Context()) {
				m.decide(true)
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := identity.UserIDFromContext(r.Context())
			if !ok {
				m.decide(false)
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
				return
			}
			granted, err := m.Source.EffectivePermissions(r.Context(), userID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("resolve permissions", slog.Int64("user_id", userID), slog.Any("error", err))
				}
				// Resolution failures deny access and count as such.
				m.decide(false)
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if match(granted, required) {
				m.decide(true)
				next.ServeHTTP(w, r)
				return
			}
			m.decide(false)
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing required permission")
		})
	}
}

func (m Middleware) decide(allowed bool) {
	if m.Metrics != nil {
		m.Metrics.RecordDecision(allowed)
	}
}

func normalizeTokens(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyToken(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[p] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllTokens(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[p] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
