package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"cityinfo.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var (
	errMissingToken  = errors.New("missing bearer token")
	errInvalidScheme = errors.New("invalid authorization scheme")
)

// withAuth verifies the bearer token and stores its claims in the context. No
// store access happens before this passes.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}

		claims, err := a.verifier.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				unauthorized(w, r, "token expired")
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthenticated):
				unauthorized(w, r, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithClaims(r.Context(), claims)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePolicy evaluates the named policy against the caller's claims:
// 401 without claims, 403 when a requirement fails.
func (a *API) requirePolicy(policy string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.ClaimsFromContext(r.Context())
			if err := a.policies.Authorize(claims, policy); err != nil {
				switch {
				case errors.Is(err, auth.ErrUnauthenticated):
					unauthorized(w, r, "authentication required")
				case errors.Is(err, auth.ErrForbidden):
					a.audit(r.Context(), "authz.denied", map[string]any{
						"policy": policy,
						"path":   r.URL.Path,
					})
					writeError(w, r, http.StatusForbidden, "forbidden")
				default:
					a.logger.Error("policy evaluation failed", zap.String("policy", policy), zap.Error(err))
					writeError(w, r, http.StatusInternalServerError, "authorization error")
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="cityinfo"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errInvalidScheme
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}
