package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	"github.com/charlesng35/safeguard/internal/handlers"
	"github.com/charlesng35/safeguard/internal/kvstore"
	"github.com/charlesng35/safeguard/internal/middleware"
)

// DefaultBasePath prefixes the alert routes when no base path is configured.
const DefaultBasePath = "/api"

// Options carries the dependencies and switches used to build the router.
type Options struct {
	BasePath       string
	Alerts         *handlers.AlertHandler
	Store          kvstore.Store
	AllowedOrigins []string

	RateLimitEnabled bool
	RateLimit        string
	RateLimitStore   limiter.Store

	MetricsEnabled  bool
	MetricsEndpoint string
}

// NewRouter builds the Gin engine, wires middleware and registers the alert routes.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Alerts == nil {
		return nil, errors.New("alert handler must be provided")
	}
	if opts.Store == nil {
		return nil, errors.New("kv store must be provided")
	}

	r := gin.New()
	// Route on the escaped path so ids containing "/" resolve as one parameter.
	r.UseRawPath = true
	r.UnescapePathValues = true

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(opts.AllowedOrigins...))
	if opts.RateLimitEnabled {
		limit, err := middleware.RateLimit(middleware.RateLimitConfig{
			Rate:      opts.RateLimit,
			Store:     opts.RateLimitStore,
			SkipPaths: []string{"/health", metricsPath(opts.MetricsEndpoint)},
		})
		if err != nil {
			return nil, err
		}
		r.Use(limit)
	}

	registerHealthRoutes(r, opts.Store)
	if opts.MetricsEnabled {
		registerMetricsRoute(r, opts.MetricsEndpoint)
	}

	api := r.Group(normaliseBasePath(opts.BasePath))
	registerAlertRoutes(api, opts.Alerts)

	r.NoRoute(middleware.NotFoundHandler)
	return r, nil
}

func normaliseBasePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultBasePath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
