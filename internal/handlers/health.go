package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/safeguard/internal/kvstore"
	appErrors "github.com/charlesng35/safeguard/pkg/errors"
	"github.com/charlesng35/safeguard/pkg/response"
)

const readinessTimeout = 2 * time.Second

// Health returns a simple liveness payload.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Readiness reports whether the key-value store answers a ping.
func Readiness(store kvstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			response.Error(c, appErrors.ErrServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(requestContext(c), readinessTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			response.Error(c, appErrors.ErrServiceUnavailable.WithInternal(err))
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ready"})
	}
}
