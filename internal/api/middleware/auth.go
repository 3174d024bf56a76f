package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

// operatorKey is the context key for the authenticated operator identity.
const operatorKey contextKey = "operator"

// operatorTokenTTL is the lifetime of an issued operator bearer token.
const operatorTokenTTL = 12 * time.Hour

// Operator identifies the caller an operator bearer token was issued to.
type Operator struct {
	Subject string
}

// OperatorClaims holds the JWT claims for the operator API, adapted from
// the retrieved pack's mobile-app claims shape (a single subject identifier
// plus the registered expiry/issuer fields) to this bearer-only surface —
// there is no refresh flow here, only issue-and-expire.
type OperatorClaims struct {
	jwt.RegisteredClaims
}

// GenerateOperatorToken signs a bearer token for an operator subject (an
// on-call engineer or dashboard service account, not an end caller).
func GenerateOperatorToken(secret []byte, subject string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(operatorTokenTTL)

	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "shiftline",
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// RequireAuth returns middleware that validates a JWT bearer token on the
// Authorization header (§6a). On success it stores the Operator in the
// request context; on failure it writes a 401 JSON error.
func RequireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeAuthError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims := &OperatorClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("operator auth: invalid jwt", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if claims.Subject == "" {
				writeAuthError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, &Operator{Subject: claims.Subject})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext retrieves the authenticated Operator from the
// context. Returns nil on an unauthenticated request.
func OperatorFromContext(ctx context.Context) *Operator {
	op, _ := ctx.Value(operatorKey).(*Operator)
	return op
}

// authEnvelope is the error-only shape of the API envelope, used by the
// middleware that writes JSON errors itself.
type authEnvelope struct {
	Error string `json:"error"`
}

// writeAuthError writes a JSON error matching the API envelope format.
// This avoids importing the api package (which would create a circular
// dependency).
func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
