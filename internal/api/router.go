package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sensor-collector/internal/logging"
	"sensor-collector/internal/metrics"
)

// NewRouter mounts the read-only query API under basePath and again at the
// root, where the dashboard expects it.
func NewRouter(basePath string, h *Handler, logger *logging.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLoggingMiddleware(logger))
	r.Use(CORSMiddleware())
	if m != nil {
		r.Use(MetricsMiddleware(m))
	}

	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	register := func(g *gin.RouterGroup) {
		g.GET("/data", h.GetReadings)
		g.GET("/alerts", h.GetAlerts)
		g.GET("/stats", h.GetStats)
		g.GET("/ws", h.ServeWS)
	}
	register(&r.RouterGroup)
	if basePath != "" && basePath != "/" {
		register(r.Group(basePath))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}
