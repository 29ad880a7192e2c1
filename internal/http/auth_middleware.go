package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/mcpserver"
	jwtpkg "github.com/YoubetDao/MCPForge-Backend-sub000/pkg/jwt"
)

type authContextKey string

type authInfo struct {
	UserID   string
	Username string
	Admin    bool
}

// owner is the lifecycle owner for servers the caller creates or lists.
func (a authInfo) owner() *mcpserver.Owner {
	return &mcpserver.Owner{ID: a.UserID, Username: a.Username}
}

// canAccess reports whether the caller may see or delete a server owned by ownerID.
func (a authInfo) canAccess(ownerID string) bool {
	return a.Admin || (ownerID != "" && ownerID == a.UserID)
}

const contextKeyAuth authContextKey = "mcpforge-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request carries a valid session token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the bearer header or session cookie and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	token, err := r.sessionToken(req)
	if err != nil {
		r.logger.Warn("authorization missing", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), authInfo{}, false
	}
	claims, err := jwtpkg.Parse(token, r.jwtSecret)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return req.Context(), authInfo{}, false
	}
	info := authInfo{UserID: claims.UserID, Username: claims.Username, Admin: claims.Admin}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

func (r *Router) sessionToken(req *http.Request) (string, error) {
	if header := req.Header.Get("Authorization"); strings.TrimSpace(header) != "" {
		return bearerToken(header)
	}
	if cookie, err := req.Cookie(r.sessionCookie); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value, nil
		}
	}
	return "", errors.New("missing authorization header or session cookie")
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
