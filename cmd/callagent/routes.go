package main

import (
	"net/http"

	"call-agent/internal/config"
	"call-agent/internal/httpapi"
	"call-agent/internal/telephony"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, a *app) {
	h := httpapi.Handlers{
		Scripts: a.scripts,
		Calls:   a.initiator,
		Status:  a.provider,
		Session: a.session,
		Health:  a.provider,
	}

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", h.Ready)

	// Provider webhooks.
	{
		cb := telephony.StatusCallbackHandler{
			Sink:               a.session,
			AuthToken:          a.cfg.Twilio.AuthToken,
			CallbackURL:        a.cfg.StatusCallbackURL(),
			ValidateSignatures: a.cfg.Twilio.ValidateWebhooks,
		}
		r.POST(config.StatusCallbackPath, cb.HandleStatusCallback)
	}

	api := r.Group("/api")
	{
		api.POST("/script", h.GenerateScript)
		api.POST("/call", h.StartCall)
		api.GET("/call/:sid", h.GetCallStatus)

		sess := api.Group("/session")
		sess.GET("", h.GetSession)
		sess.DELETE("", h.ResetSession)
		sess.PUT("/script", h.SetSessionScript)
		sess.POST("/script", h.GenerateSessionScript)
		sess.POST("/call", h.StartSessionCall)
		sess.GET("/stream", h.SessionStream)
	}
}
