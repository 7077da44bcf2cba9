package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type healthController struct{ checker HealthChecker }

func NewHealthController(checker HealthChecker) *healthController {
	return &healthController{checker: checker}
}

func (h *healthController) Handle(c *gin.Context) {
	if h.checker != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.checker.Health(ctx); err != nil {
			logger(c).Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "storage unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
