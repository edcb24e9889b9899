package httpapi

import (
	"net/http"
	"strings"

	"live777go/internal/core/domain"
	apperrors "live777go/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AdminInfos implements `GET /admin/infos?streams=a,b`.
func (h *Handler) AdminInfos(c *gin.Context) {
	var filter map[string]bool
	if streams := c.Query("streams"); streams != "" {
		filter = make(map[string]bool)
		for _, id := range strings.Split(streams, ",") {
			if id != "" {
				filter[id] = true
			}
		}
	}
	c.JSON(http.StatusOK, h.manager.Info(filter))
}

// AdminCascade implements `POST /admin/cascade/{stream}`: a
// `src` body field pulls this stream from a remote WHEP endpoint, a `dst`
// field pushes it to a remote WHIP endpoint. Exactly one of the two must
// be set.
func (h *Handler) AdminCascade(c *gin.Context) {
	streamID := domain.StreamID(c.Param("stream"))

	var req struct {
		Src   string `json:"src"`
		Dst   string `json:"dst"`
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.InvalidSDP(err.Error()))
		return
	}

	switch {
	case req.Src != "" && req.Dst == "":
		if err := h.manager.CascadePull(c.Request.Context(), streamID, req.Src, req.Token); err != nil {
			c.Error(err)
			return
		}
	case req.Dst != "" && req.Src == "":
		if err := h.manager.CascadePush(c.Request.Context(), streamID, req.Dst, req.Token, h.cfg.Strategy.CascadePushCloseSub); err != nil {
			c.Error(err)
			return
		}
	default:
		c.Error(apperrors.InvalidSDP("exactly one of src or dst is required"))
		return
	}

	c.Status(http.StatusNoContent)
}
