package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"call-agent/internal/apperr"
	"call-agent/internal/calls"
	"call-agent/internal/script"
	"call-agent/internal/session"
	"call-agent/internal/telephony"
	"call-agent/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ScriptGenerator interface {
	Generate(ctx context.Context, b script.Brief) (string, error)
}

type CallStarter interface {
	Start(ctx context.Context, req calls.Request) (calls.Handle, error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
// Every failure answers 400 with a user-facing {"error"} message; details go
// to the request log only.
type Handlers struct {
	Scripts ScriptGenerator
	Calls   CallStarter
	Status  telephony.StatusFetcher
	Session *session.Session
	Health  HealthChecker
}

// --- Stateless actions ---

func (h Handlers) GenerateScript(c *gin.Context) {
	var b script.Brief
	if err := c.ShouldBindJSON(&b); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.MsgScriptInvalid})
		return
	}
	text, err := h.Scripts.Generate(c.Request.Context(), b)
	if err != nil {
		logger.FromGin(c).Warn("script generation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.ScriptMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"script": text})
}

func (h Handlers) StartCall(c *gin.Context) {
	var req calls.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.MsgCallInvalid})
		return
	}
	handle, err := h.Calls.Start(c.Request.Context(), req)
	if err != nil {
		logger.FromGin(c).Warn("call start failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.CallMessage(err)})
		return
	}
	c.JSON(http.StatusOK, handle)
}

type callStatusResponse struct {
	Status    string     `json:"status"`
	Direction string     `json:"direction"`
	Duration  string     `json:"duration"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

func (h Handlers) GetCallStatus(c *gin.Context) {
	sid := c.Param("sid")
	if sid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.MsgStatusRetrieval})
		return
	}
	st, err := h.Status.FetchCallStatus(c.Request.Context(), sid)
	if err != nil {
		logger.FromGin(c).Warn("call status lookup failed", "call_sid", sid, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.MsgStatusRetrieval})
		return
	}
	c.JSON(http.StatusOK, callStatusResponse{
		Status:    string(calls.NormalizeStatus(st.Status)),
		Direction: st.Direction,
		Duration:  st.Duration,
		StartTime: st.StartTime,
		EndTime:   st.EndTime,
	})
}

// --- Session ---

func (h Handlers) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

type setScriptRequest struct {
	Script string `json:"script"`
}

func (h Handlers) SetSessionScript(c *gin.Context) {
	var req setScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	h.Session.SetScript(req.Script)
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

func (h Handlers) GenerateSessionScript(c *gin.Context) {
	var b script.Brief
	if err := c.ShouldBindJSON(&b); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.MsgScriptInvalid})
		return
	}
	if err := h.Session.GenerateScript(c.Request.Context(), b); err != nil {
		if h.sessionClosed(c, err) {
			return
		}
		logger.FromGin(c).Warn("session script generation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.ScriptMessage(err)})
		return
	}
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

func (h Handlers) StartSessionCall(c *gin.Context) {
	var opts session.CallOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.MsgCallInvalid})
		return
	}
	if _, err := h.Session.StartCall(c.Request.Context(), opts); err != nil {
		if h.sessionClosed(c, err) {
			return
		}
		logger.FromGin(c).Warn("session call start failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.CallMessage(err)})
		return
	}
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

func (h Handlers) ResetSession(c *gin.Context) {
	h.Session.Reset()
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

func (h Handlers) sessionClosed(c *gin.Context, err error) bool {
	if !errors.Is(err, session.ErrClosed) {
		return false
	}
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	return true
}

// --- Health ---

func (h Handlers) Ready(c *gin.Context) {
	if h.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Health.HealthCheck(ctx); err != nil {
		logger.FromGin(c).Warn("readiness check failed", "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
