package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/carnimore/checkout/internal"
	"github.com/carnimore/checkout/internal/transport"
	"github.com/carnimore/checkout/pkg/logger"
)

const adminIssuer = "carnimore"

// AdminClaims is the payload of an ops token.
type AdminClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 bearer tokens for the admin routes.
type TokenVerifier struct {
	*transport.BaseHandler
	secret []byte
}

func NewTokenVerifier(secret string, lg *slog.Logger) *TokenVerifier {
	return &TokenVerifier{
		BaseHandler: transport.NewBaseHandler(lg),
		secret:      []byte(secret),
	}
}

// IssueToken signs an ops token for subject valid for ttl.
func (v *TokenVerifier) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Role: "ops",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    adminIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (v *TokenVerifier) Verify(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(adminIssuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken.WithCause(err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}

// RequireAdmin rejects requests without a valid bearer token and puts the
// token subject on the context.
func (v *TokenVerifier) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := transport.BearerToken(r)
		if token == "" {
			v.Logger.Warn("admin request without token", "path", r.URL.Path)
			v.HandleError(w, internal.ErrInvalidToken)
			return
		}

		claims, err := v.Verify(token)
		if err != nil {
			v.Logger.Warn("admin token rejected", "path", r.URL.Path, "error", err)
			v.HandleError(w, err)
			return
		}

		ctx := internal.ContextWithSubject(r.Context(), claims.Subject)
		ctx = logger.With(ctx, "subject", claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
