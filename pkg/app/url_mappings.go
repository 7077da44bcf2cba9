package app

import (
	"github.com/osvaldoandrade/gaitkeepr/internal/controllers"
	"github.com/osvaldoandrade/gaitkeepr/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupMappings(app *Application) {
	e := app.Engine
	e.GET("/health", controllers.NewHealthController(app.Persistence).Handle)
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := e.Group("", middleware.AuthMiddleware(app.Validator))
	{
		api.POST("/upload",
			middleware.RateLimitUpload(app.RateLimiter, app.Config),
			controllers.NewUploadVideoController(app.Jobs, app.Config.MaxUploadBytes).Handle,
		)
		api.GET("/results/:job_id", controllers.NewGetResultController(app.Jobs).Handle)
		api.POST("/chat",
			middleware.RateLimitChat(app.RateLimiter, app.Config),
			controllers.NewChatController(app.Coach).Handle,
		)
	}
}
