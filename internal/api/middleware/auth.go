package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rohits-web03/vectorvault/internal/auth"
	"github.com/rohits-web03/vectorvault/internal/models"
	"github.com/rohits-web03/vectorvault/internal/utils"
)

type contextKey string

const userKey contextKey = "user"

// TokenCookie is the cookie set on login; a bearer header takes precedence.
const TokenCookie = "token"

// CSRFHeader must accompany state-changing requests authenticated by
// TokenCookie. Browsers only send custom headers cross-origin after a CORS
// preflight, which the configured origin list gates.
const CSRFHeader = "X-Requested-With"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok && user != nil
}

// Unauthorized writes a 401 that tells clients to drop their token.
func Unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	utils.ErrorResponse(w, http.StatusUnauthorized, detail)
}

// AuthMiddleware rejects requests without a valid token for an active user.
func AuthMiddleware(a Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, fromCookie := tokenFromRequest(r)
			if fromCookie && !safeMethod(r.Method) && r.Header.Get(CSRFHeader) == "" {
				utils.ErrorResponse(w, http.StatusForbidden, "Missing "+CSRFHeader+" header for cookie authentication")
				return
			}

			user, err := a.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) {
					detail := "Could not validate credentials"
					if errors.Is(err, auth.ErrTokenExpired) {
						detail = "Token has expired"
					}
					Unauthorized(w, detail)
					return
				}
				logger.Error("authentication failed", "error", err)
				utils.ErrorResponse(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		if err := auth.RequireAdmin(user); err != nil {
			utils.ErrorResponse(w, http.StatusForbidden, "Not enough privileges")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenFromRequest reports whether the token came from the cookie.
func tokenFromRequest(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token), false
		}
		return "", false
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value, true
	}
	return "", false
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
