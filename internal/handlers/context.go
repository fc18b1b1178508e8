package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// pathParam returns the trimmed, already unescaped path parameter.
func pathParam(c *gin.Context, key string) string {
	return strings.TrimSpace(c.Param(key))
}
