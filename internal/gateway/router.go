package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/config"
)

func SetupRouter(cfg *config.Config, ctrl *Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST(cfg.WebhookPath, ctrl.Webhook)

	log.Info().Str("module", "gateway").Str("webhook", cfg.WebhookPath).Msg("router setup")
	return r
}
