package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cvalue-web/internal/shared/config"
	"cvalue-web/internal/shared/server/middleware"
	"cvalue-web/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup, cfg config.Config) {
	rg.GET("/me", meHandler(cfg))
}

func meHandler(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		visitorID := middleware.VisitorIDFromContext(c)
		if visitorID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing visitor identity", nil)
			return
		}
		respond.JSON(c, http.StatusOK, gin.H{
			"visitorId":  visitorID,
			"appName":    cfg.AppName,
			"appVersion": cfg.AppVersion,
		})
	}
}
