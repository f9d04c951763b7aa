package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dfortune/fortuna/dashboard"
	"github.com/dfortune/fortuna/service"
)

// RouterConfig tunes the HTTP surface.
type RouterConfig struct {
	// Production selects the secure-prefixed session cookie.
	Production bool
	// RateLimiter throttles challenge issuance when set. Optional.
	RateLimiter *redis.Client
	// NoncesPerMinute is the per-IP challenge budget when RateLimiter is set.
	NoncesPerMinute int
	// Gate classifies page routes. Zero value falls back to the defaults.
	Gate GateConfig
}

// SetupRouter sets up the Gin router.
func SetupRouter(auth *service.AuthService, dash *dashboard.Service, log *zap.Logger, cfg RouterConfig) *gin.Engine {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	cookies := NewCookieWriter(cfg.Production)
	handlers := NewHandler(auth, dash, cookies, log)

	gate := cfg.Gate
	if len(gate.ProtectedPrefixes) == 0 {
		gate = DefaultGateConfig()
	}
	router.Use(RouteGate(auth, cookies, gate))

	// Auth routes
	authGroup := router.Group("/auth")
	{
		nonce := []gin.HandlerFunc{handlers.Nonce}
		if cfg.RateLimiter != nil {
			limit := cfg.NoncesPerMinute
			if limit <= 0 {
				limit = 30
			}
			nonce = append([]gin.HandlerFunc{RateLimit(cfg.RateLimiter, limit, time.Minute)}, nonce...)
		}
		authGroup.POST("/nonce", nonce...)
		authGroup.POST("/login", handlers.Login)
		authGroup.POST("/logout", handlers.Logout)
	}

	// API routes
	api := router.Group("/api")
	{
		api.GET("/dashboard", handlers.Dashboard)
		api.GET("/me", SessionAuth(auth, cookies), handlers.Me)
	}

	// Page routes. The gate middleware has already decided access by the
	// time these run.
	page := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"page": name})
		}
	}
	router.GET("/", page("home"))
	router.GET("/unauthorized", page("unauthorized"))
	router.GET("/auth-error", page("auth-error"))
	router.GET("/dashboard", page("dashboard"))
	router.GET("/profile", page("profile"))
	router.GET("/admin", page("admin"))

	return router
}
