package identity

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Verifier authenticates bearer tokens: HS256 JWTs minted by the identity
// service, or the bcrypt-hashed bootstrap admin key used before any
// super_admin assignment exists. Bootstrap keys are opaque secrets and
// must not contain '.', which is reserved for JWT segment separators.
type Verifier struct {
	secret       []byte
	adminKeyHash []byte
	logger       *slog.Logger
}

// NewVerifier constructs a Verifier. adminKeyHash may be empty to disable
// bootstrap authentication.
func NewVerifier(secret, adminKeyHash string, logger *slog.Logger) *Verifier {
	return &Verifier{secret: []byte(secret), adminKeyHash: []byte(adminKeyHash), logger: logger}
}

// Middleware resolves the caller from the Authorization header. Requests
// without a bearer token pass through unauthenticated; downstream guards
// decide whether identity is required. Malformed or forged tokens are
// rejected here.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		// JWTs always contain '.' separators. Only dot-free tokens are
		// bootstrap-key candidates, keeping the bcrypt comparison off the
		// per-request hot path.
		if len(v.adminKeyHash) > 0 && !strings.Contains(raw, ".") {
			if err := bcrypt.CompareHashAndPassword(v.adminKeyHash, []byte(raw)); err == nil {
				next.ServeHTTP(w, r.WithContext(ContextWithBootstrap(r.Context())))
				return
			}
		}
		userID, err := v.parseSubject(raw)
		if err != nil {
			if v.logger != nil {
				v.logger.Warn("reject bearer token", slog.Any("error", err))
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), userID)))
	})
}

func (v *Verifier) parseSubject(raw string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(claims.Subject, 10, 64)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
