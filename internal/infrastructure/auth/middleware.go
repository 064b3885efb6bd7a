package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/capitalcayman/netbank/internal/infrastructure/redis"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyIsAdmin
)

// UserID returns the authenticated user id placed in the context by
// Middleware. Handlers rely on this instead of re-resolving the session.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}

func IsAdmin(ctx context.Context) bool {
	isAdmin, _ := ctx.Value(ctxKeyIsAdmin).(bool)
	return isAdmin
}

// WithUser is used by tests to simulate an authenticated request.
func WithUser(ctx context.Context, userID string, isAdmin bool) context.Context {
	ctx = context.WithValue(ctx, ctxKeyUserID, userID)
	return context.WithValue(ctx, ctxKeyIsAdmin, isAdmin)
}

func Middleware(redisClient redis.RedisClient, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "authorization header missing", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			tokenStr := parts[1]
			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			userID, ok := claims["user_id"].(string)
			if !ok || userID == "" {
				http.Error(w, "invalid user_id in token", http.StatusUnauthorized)
				return
			}
			isAdmin, _ := claims["is_admin"].(bool)

			// Check token in Redis so logout/revocation takes effect.
			redisKey := fmt.Sprintf("user:%s:token", userID)
			storedToken, err := redisClient.Get(r.Context(), redisKey)
			if err != nil || storedToken != tokenStr {
				slog.Error("invalid or revoked token", "user_id", userID, "error", err)
				http.Error(w, "invalid or revoked token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, isAdmin)))
		})
	}
}

// AdminOnly guards the admin surface; it assumes Middleware already ran.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
