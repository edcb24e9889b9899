package httpapi

import (
	"io"
	"net/http"
	"strings"

	"live777go/internal/core/domain"
	apperrors "live777go/pkg/errors"

	"github.com/gin-gonic/gin"
)

// PatchSession implements `PATCH /session/{stream}/{session}`: a
// trickle-ICE fragment body (the common case), or a
// `{ kind, enabled }` change-resource body when Content-Type is JSON.
func (h *Handler) PatchSession(c *gin.Context) {
	streamID := domain.StreamID(c.Param("stream"))
	sessionID := domain.SessionID(c.Param("session"))

	if isJSONRequest(c) {
		var req struct {
			Kind    string `json:"kind" binding:"required"`
			Enabled bool   `json:"enabled"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.InvalidSDP(err.Error()))
			return
		}
		kind, ok := domain.ParseKind(req.Kind)
		if !ok {
			c.Error(apperrors.InvalidSDP("unknown kind " + req.Kind))
			return
		}
		if err := h.manager.ChangeResource(streamID, sessionID, kind, req.Enabled); err != nil {
			c.Error(err)
			return
		}
		c.Header("ETag", string(sessionID))
		c.Status(http.StatusNoContent)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(apperrors.InvalidSDP("failed to read trickle-ICE body"))
		return
	}
	if err := h.manager.AddICECandidate(streamID, sessionID, string(body)); err != nil {
		c.Error(err)
		return
	}
	c.Header("ETag", string(sessionID))
	c.Status(http.StatusNoContent)
}

// DeleteSession implements `DELETE /session/{stream}/{session}`.
func (h *Handler) DeleteSession(c *gin.Context) {
	streamID := domain.StreamID(c.Param("stream"))
	sessionID := domain.SessionID(c.Param("session"))
	if err := h.manager.RemoveSession(streamID, sessionID); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetLayer implements `GET /session/{stream}/{session}/layer`.
func (h *Handler) GetLayer(c *gin.Context) {
	streamID := domain.StreamID(c.Param("stream"))
	rids, err := h.manager.Layers(streamID)
	if err != nil {
		c.Error(err)
		return
	}
	out := make([]gin.H, 0, len(rids))
	for _, r := range rids {
		out = append(out, gin.H{"encoding_id": string(r)})
	}
	c.JSON(http.StatusOK, out)
}

// SetLayer implements `POST /session/{stream}/{session}/layer`.
func (h *Handler) SetLayer(c *gin.Context) {
	streamID := domain.StreamID(c.Param("stream"))
	sessionID := domain.SessionID(c.Param("session"))

	var req struct {
		EncodingID string `json:"encoding_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.InvalidSDP(err.Error()))
		return
	}
	if err := h.manager.SelectLayer(streamID, sessionID, domain.Rid(req.EncodingID)); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteLayer implements `DELETE /session/{stream}/{session}/layer`:
// reverts the subscriber to ENABLE (any layer).
func (h *Handler) DeleteLayer(c *gin.Context) {
	streamID := domain.StreamID(c.Param("stream"))
	sessionID := domain.SessionID(c.Param("session"))
	if err := h.manager.SelectLayer(streamID, sessionID, domain.RidEnable); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func isJSONRequest(c *gin.Context) bool {
	return strings.HasPrefix(c.GetHeader("Content-Type"), "application/json")
}
