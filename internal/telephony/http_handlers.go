package telephony

import (
	"net/http"

	"call-agent/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallbackSink receives provider-pushed status changes. seq is the provider's
// per-call sequence number, -1 when unknown. It reports whether the status was
// applied to a tracked call.
type CallbackSink interface {
	ObserveCallback(callSID, status string, seq int) bool
}

// StatusCallbackHandler converts the Twilio status callback to internal types
// and hands it to the sink.
//
// No business logic here.
type StatusCallbackHandler struct {
	Sink CallbackSink

	// AuthToken and CallbackURL are used for X-Twilio-Signature validation
	// when ValidateSignatures is set. CallbackURL must be the exact URL given
	// to Twilio as StatusCallback.
	AuthToken          string
	CallbackURL        string
	ValidateSignatures bool
}

func (h StatusCallbackHandler) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status sink not configured"})
		return
	}

	form, err := ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if h.ValidateSignatures {
		sig := c.GetHeader("X-Twilio-Signature")
		if !ValidateSignature(h.AuthToken, h.CallbackURL, c.Request.PostForm, sig) {
			log.Warn("twilio status callback signature rejected", "call_sid", form.CallSid)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
	}

	if form.CallSid == "" || form.CallStatus == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid and CallStatus required"})
		return
	}

	seq := form.Sequence()
	applied := h.Sink.ObserveCallback(form.CallSid, form.CallStatus, seq)
	log.Debug("twilio status callback", "call_sid", form.CallSid, "status", form.CallStatus, "seq", seq, "applied", applied)
	c.Status(http.StatusNoContent)
}
