package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SSE implements `GET /api/sse/{streams}`: a live feed of
// ForwardInfo snapshots for the named streams (comma-separated), starting
// with the current snapshot and then one per matching lifecycle event.
func (h *Handler) SSE(c *gin.Context) {
	filter := make(map[string]bool)
	for _, id := range strings.Split(c.Param("streams"), ",") {
		if id != "" {
			filter[id] = true
		}
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	for _, info := range h.manager.Info(filter) {
		c.SSEvent("snapshot", info)
	}
	c.Writer.Flush()

	recv := h.bus.Subscribe()
	ctx := c.Request.Context()
	for {
		event, _, err := recv.Recv(ctx)
		if err != nil {
			return
		}
		if len(filter) > 0 && !filter[event.Stream.ID] {
			continue
		}
		infos := h.manager.Info(map[string]bool{event.Stream.ID: true})
		if len(infos) == 0 {
			continue
		}
		c.SSEvent("snapshot", infos[0])
		c.Writer.Flush()
	}
}
