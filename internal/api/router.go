// Package api exposes the read/trigger HTTP surface: state inspection plus
// force-run triggers for the background tasks.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"autocheckin/internal/api/response"
	"autocheckin/internal/auth"
	"autocheckin/internal/checkout"
	"autocheckin/internal/config"
	"autocheckin/internal/httpmiddleware"
	"autocheckin/internal/queue"
	"autocheckin/internal/store"
)

// Deps carries everything the handlers need.
type Deps struct {
	Cfg        config.App
	Store      store.Store
	Checkout   *checkout.Client
	Queue      queue.Queue
	Redis      *store.Redis
	FetchUsers func(ctx context.Context) error
	Gatherer   prometheus.Gatherer
	Log        zerolog.Logger
}

// NewRouter builds the gin engine with the full middleware stack.
func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.Env == "production" || d.Cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.NewSimpleTokenBucket(d.Cfg.RateLimitPerMin, d.Cfg.RateLimitPerMin).GinMiddleware())

	s := &server{deps: d}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", s.healthz)
	r.GET("/", s.index)

	r.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, "API Error", "Endpoint not found")
	})
	r.NoMethod(func(c *gin.Context) {
		response.Fail(c, http.StatusMethodNotAllowed, "API Error", "Method not allowed")
	})

	authTest := r.Group("/api/v1/auth")
	authTest.GET("/test", s.authTest)
	authTest.POST("/test", s.authTest)

	v1 := r.Group("/api/v1", auth.APIKey(d.Cfg.CheckoutAPIKey, d.Cfg.Env))
	v1.GET("/status", s.status)
	v1.GET("/state", s.state)
	v1.GET("/refresh", s.refreshAll)
	v1.GET("/refresh-session/:email", s.refreshSession)
	v1.GET("/fetch-users", s.fetchUsers)
	v1.GET("/try-codes", s.tryCodes)
	v1.GET("/codes", s.codes)
	v1.GET("/fetch-attendance", s.fetchAttendance)

	return r
}

type server struct {
	deps Deps
}
