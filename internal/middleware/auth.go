package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/logger"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the verified caller of a request
type Identity struct {
	UserID string
	Name   string
	Email  string
}

// Claims carried by access tokens issued by the auth service
type Claims struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// JWTAuth verifies HS256 bearer tokens
type JWTAuth struct {
	secret []byte
	log    *logger.Logger
}

func NewJWTAuth(secret string, log *logger.Logger) *JWTAuth {
	return &JWTAuth{
		secret: []byte(secret),
		log:    log.Named("auth"),
	}
}

// Verify parses and validates a token string
func (a *JWTAuth) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, apperrors.ErrUnauthorized
	}

	if claims.UserID == "" {
		// tokens minted with only the registered subject
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: token has no user id", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and puts the
// caller's Identity in the request context
func (a *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			unauthorized(w)
			return
		}

		claims, err := a.Verify(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
		if err != nil {
			a.log.Warn("invalid access token",
				zap.Error(err),
				zap.String("remote_addr", r.RemoteAddr),
			)
			unauthorized(w)
			return
		}

		ctx := WithIdentity(r.Context(), Identity{UserID: claims.UserID, Name: claims.Name, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithIdentity returns a context carrying id
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller put there by the auth middleware
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": apperrors.ErrUnauthorized.Error(),
		"code":  apperrors.CodeUnauthorized,
	})
}
