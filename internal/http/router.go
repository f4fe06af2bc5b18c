package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/OneCard-OSS/OneCard/internal/config"
	"github.com/OneCard-OSS/OneCard/internal/http/handler"
	"github.com/OneCard-OSS/OneCard/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *middleware.Auth) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	api := r.Group("/api/v1")
	{
		api.POST("/login", authHandler.Login)
		api.POST("/card-response", authHandler.CardResponse)
		api.GET("/nfc-status", authHandler.NFCStatus)
		api.GET("/authorize", authHandler.OAuthAuthorize)
		api.POST("/authorize", authHandler.OAuthAuthorize)
		api.POST("/token", authHandler.Token)
		api.POST("/logout", authHandler.Logout)
		api.GET("/userinfo", authMiddleware.RequireBearer, authHandler.UserInfo)
	}

	r.GET("/.well-known/openid-configuration", authHandler.OpenIDConfig)

	return r
}
