package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dfortune/fortuna/core"
	"github.com/dfortune/fortuna/service"
)

// Session cookie names. The secure-prefixed name is used in production; the
// __Secure- prefix makes browsers refuse the cookie over plain HTTP.
const (
	SessionCookieName       = "fortuna.session-token"
	SecureSessionCookieName = "__Secure-fortuna.session-token"
)

const identityKey = "identity"

// CookieWriter writes and clears session cookies with the security
// attributes tied to the deployment mode.
type CookieWriter struct {
	secure bool
}

// NewCookieWriter creates a cookie writer. secure selects the
// secure-prefixed cookie name and the Secure attribute.
func NewCookieWriter(secure bool) *CookieWriter {
	return &CookieWriter{secure: secure}
}

func (w *CookieWriter) name() string {
	if w.secure {
		return SecureSessionCookieName
	}
	return SessionCookieName
}

// Read returns the session token carried by the request, if any.
func (w *CookieWriter) Read(c *gin.Context) (string, bool) {
	if v, err := c.Cookie(w.name()); err == nil && v != "" {
		return v, true
	}
	return "", false
}

// Write sets the session cookie.
func (w *CookieWriter) Write(c *gin.Context, token string, expiresAt time.Time) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     w.name(),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   w.secure,
	})
}

// Clear expires both cookie names, regardless of deployment mode, so a
// session set under a different mode cannot linger.
func (w *CookieWriter) Clear(c *gin.Context) {
	for _, name := range []string{SessionCookieName, SecureSessionCookieName} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   name == SecureSessionCookieName,
		})
	}
}

// sessionFromRequest validates the cookie-carried session and slides its
// expiry when it is inside the refresh window. Verification is stateless; no
// store round trip happens here.
func sessionFromRequest(c *gin.Context, auth *service.AuthService, cookies *CookieWriter) (*core.Session, bool) {
	token, ok := cookies.Read(c)
	if !ok {
		return nil, false
	}

	session, err := auth.ValidateSession(token)
	if err != nil {
		return nil, false
	}

	if newToken, expiresAt, refreshed, err := auth.RefreshIfNeeded(session); err == nil && refreshed {
		cookies.Write(c, newToken, expiresAt)
	}

	return session, true
}

// SessionAuth is the API middleware: requests without a valid session get a
// 401 JSON reply.
func SessionAuth(auth *service.AuthService, cookies *CookieWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionFromRequest(c, auth, cookies)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.Set(identityKey, session.Identity)
		c.Next()
	}
}

// IdentityFrom returns the authenticated identity set by SessionAuth or
// RouteGate.
func IdentityFrom(c *gin.Context) (core.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return core.Identity{}, false
	}
	id, ok := v.(core.Identity)
	return id, ok
}

// GateConfig classifies request paths for the edge gate.
type GateConfig struct {
	// LoginPath is the public entry point unauthenticated users are sent to.
	LoginPath string
	// ForbiddenPath is where authenticated but unprivileged users land when
	// they hit an admin path. Distinct from LoginPath so a logged-in user
	// sees "access denied" rather than "please log in".
	ForbiddenPath string
	// PublicPaths are exact paths that are never gated.
	PublicPaths []string
	// ProtectedPrefixes are path prefixes that require a session.
	ProtectedPrefixes []string
	// AdminPrefixes are path prefixes that additionally require the
	// privileged-role flag. They must also appear in ProtectedPrefixes.
	AdminPrefixes []string
}

// DefaultGateConfig mirrors the dashboard's route layout.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		LoginPath:         "/",
		ForbiddenPath:     "/unauthorized",
		PublicPaths:       []string{"/", "/unauthorized", "/auth-error"},
		ProtectedPrefixes: []string{"/dashboard", "/admin", "/profile"},
		AdminPrefixes:     []string{"/admin"},
	}
}

// exempt reports whether path bypasses the gate entirely: API and auth
// endpoints, static assets, files with extensions and explicit public paths.
func (g GateConfig) exempt(path string) bool {
	if strings.HasPrefix(path, "/api") || strings.HasPrefix(path, "/auth") ||
		strings.HasPrefix(path, "/static") || strings.HasPrefix(path, "/favicon") {
		return true
	}
	if strings.Contains(path, ".") {
		return true
	}
	for _, p := range g.PublicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func (g GateConfig) protected(path string) bool {
	for _, p := range g.ProtectedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (g GateConfig) admin(path string) bool {
	for _, p := range g.AdminPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RouteGate is the edge-level access check for page routes. It runs on every
// request, is side-effect-free apart from the sliding cookie refresh, and
// never touches a data store.
func RouteGate(auth *service.AuthService, cookies *CookieWriter, cfg GateConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if cfg.exempt(path) || !cfg.protected(path) {
			c.Next()
			return
		}

		session, ok := sessionFromRequest(c, auth, cookies)
		if !ok {
			target := cfg.LoginPath + "?callbackUrl=" + url.QueryEscape(path)
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}

		if cfg.admin(path) && !session.IsAdmin {
			c.Redirect(http.StatusFound, cfg.ForbiddenPath)
			c.Abort()
			return
		}

		c.Set(identityKey, session.Identity)
		c.Next()
	}
}

// RateLimit applies a fixed-window per-IP limit via redis INCR/EXPIRE. It
// fails open: an unreachable redis never blocks authentication.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("fortuna:rl:%s:%s", c.FullPath(), c.ClientIP())

		ctx := context.Background()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}
		if count > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
