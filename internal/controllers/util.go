package controllers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/gaitkeepr/internal/middleware"
)

func logger(c *gin.Context) *slog.Logger {
	return middleware.Logger(c)
}
