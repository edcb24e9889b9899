// Package httpapi implements the HTTP/REST surface: WHIP/WHEP ingestion
// and egress, session control, admin introspection and cascade, metrics,
// and the SSE snapshot feed.
package httpapi

import (
	"go.uber.org/zap"

	"live777go/internal/eventbus"
	"live777go/internal/infrastructure/middleware"
	"live777go/internal/infrastructure/monitoring"
	"live777go/internal/stream"
	"live777go/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler wires the Manager, the lifecycle event bus and the Prometheus
// collector to gin routes.
type Handler struct {
	manager *stream.Manager
	cfg     *config.Config
	metrics *monitoring.Collector
	bus     *eventbus.Bus
	logger  *zap.Logger
}

func NewHandler(manager *stream.Manager, cfg *config.Config, metrics *monitoring.Collector, bus *eventbus.Bus, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, cfg: cfg, metrics: metrics, bus: bus, logger: logger}
}

// SetupRoutes installs every route on router, with ambient
// cross-cutting middleware (CORS, rate limiting, tracing, recovery, error
// mapping) applied globally and auth applied per group.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(
		middleware.RecoveryMiddleware(h.logger),
		middleware.TracingMiddleware(),
		middleware.CORS(h.cfg),
		middleware.NewHTTPRateLimitMiddleware(h.cfg),
		middleware.ErrorHandlerMiddleware(h.logger),
	)

	user := router.Group("/")
	user.Use(middleware.UserAuth(h.cfg))
	{
		user.POST("/whip/:stream", h.WHIP)
		user.POST("/whep/:stream", h.WHEP)
		user.PATCH("/session/:stream/:session", h.PatchSession)
		user.DELETE("/session/:stream/:session", h.DeleteSession)
		user.GET("/session/:stream/:session/layer", h.GetLayer)
		user.POST("/session/:stream/:session/layer", h.SetLayer)
		user.DELETE("/session/:stream/:session/layer", h.DeleteLayer)
		user.GET("/api/sse/:streams", h.SSE)
	}

	admin := router.Group("/")
	admin.Use(middleware.AdminAuth(h.cfg))
	{
		admin.GET("/admin/infos", h.AdminInfos)
		admin.POST("/admin/cascade/:stream", h.AdminCascade)
		admin.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

