package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	appErrors "github.com/charlesng35/safeguard/pkg/errors"
	"github.com/charlesng35/safeguard/pkg/logger"
	"github.com/charlesng35/safeguard/pkg/metrics"
	"github.com/charlesng35/safeguard/pkg/response"
)

// DefaultRate allows 300 requests per minute per client IP.
const DefaultRate = "300-M"

// RateLimitConfig configures the request limiter. Rate uses the limiter
// formatted syntax, e.g. "100-M" or "10-S". A nil Store selects an in-process store.
type RateLimitConfig struct {
	Rate      string
	Store     limiter.Store
	SkipPaths []string
}

// RateLimit returns a middleware that limits requests per client IP.
func RateLimit(cfg RateLimitConfig) (gin.HandlerFunc, error) {
	formatted := strings.TrimSpace(cfg.Rate)
	if formatted == "" {
		formatted = DefaultRate
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("rate limit: parse rate %q: %w", formatted, err)
	}

	store := cfg.Store
	if store == nil {
		store = memory.NewStore()
	}
	lim := limiter.New(store, rate)
	skip := append([]string(nil), cfg.SkipPaths...)

	return func(c *gin.Context) {
		for _, prefix := range skip {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		state, err := lim.Get(c.Request.Context(), "ip:"+c.ClientIP())
		if err != nil {
			// Fail open on limiter errors.
			logger.WithModule("ratelimit").Warn("rate limit lookup failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(state.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(state.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(state.Reset, 10))

		if state.Reached {
			metrics.RateLimited.WithLabelValues(routeLabel(c)).Inc()
			response.Error(c, appErrors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}, nil
}
