package httpapi

import (
	"io"
	"net/http"
	"time"

	"live777go/internal/core/domain"
	apperrors "live777go/pkg/errors"
	"live777go/pkg/tracing"
	"live777go/pkg/validation"

	"github.com/gin-gonic/gin"
)

// WHIP implements `POST /whip/{stream}`: the request body is an SDP
// offer, the response is an SDP answer with Location/Link headers.
func (h *Handler) WHIP(c *gin.Context) {
	streamID := c.Param("stream")
	if err := validation.ValidateStreamID(streamID); err != nil {
		c.Error(apperrors.InvalidSDP(err.Error()))
		return
	}

	ctx, span := tracing.TraceWHIP(c.Request.Context(), streamID)
	defer span.End()
	start := time.Now()

	offer, err := readSDPBody(c)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.Error(err)
		return
	}

	answer, sessionID, err := h.manager.Publish(domain.StreamID(streamID), offer)
	if err != nil {
		tracing.RecordError(ctx, err)
		h.recordFailure(err)
		c.Error(err)
		return
	}
	tracing.MeasureDuration(ctx, start, "whip.publish")

	h.writeSessionCreated(c, streamID, string(sessionID), answer)
}

// WHEP implements `POST /whep/{stream}`, symmetric to WHIP for
// subscribers.
func (h *Handler) WHEP(c *gin.Context) {
	streamID := c.Param("stream")
	if err := validation.ValidateStreamID(streamID); err != nil {
		c.Error(apperrors.InvalidSDP(err.Error()))
		return
	}

	ctx, span := tracing.TraceWHEP(c.Request.Context(), streamID)
	defer span.End()
	start := time.Now()

	offer, err := readSDPBody(c)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.Error(err)
		return
	}

	answer, sessionID, err := h.manager.Subscribe(domain.StreamID(streamID), offer)
	if err != nil {
		tracing.RecordError(ctx, err)
		h.recordFailure(err)
		c.Error(err)
		return
	}
	tracing.MeasureDuration(ctx, start, "whep.subscribe")

	h.writeSessionCreated(c, streamID, string(sessionID), answer)
}

func readSDPBody(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", apperrors.InvalidSDP("failed to read request body")
	}
	if len(body) == 0 {
		return "", apperrors.InvalidSDP("empty SDP body")
	}
	return string(body), nil
}

// writeSessionCreated writes the 201 response shared by WHIP and WHEP:
// SDP answer body, Location to the new session resource, and a Link
// header per configured ICE server.
func (h *Handler) writeSessionCreated(c *gin.Context, streamID, sessionID, answerSDP string) {
	c.Header("Location", "/session/"+streamID+"/"+sessionID)
	for _, v := range linkHeaderValues(h.cfg.ICEServers) {
		c.Writer.Header().Add("Link", v)
	}
	c.Data(http.StatusCreated, "application/sdp", []byte(answerSDP))
}

func (h *Handler) recordFailure(err error) {
	if h.metrics == nil {
		return
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		h.metrics.RecordNegotiationFailed(string(appErr.Code))
	}
}
