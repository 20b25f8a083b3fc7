package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sensor-collector/internal/db"
	"sensor-collector/internal/logging"
	"sensor-collector/internal/notify"
	"sensor-collector/internal/stats"
)

const (
	defaultReadingsLimit = 100
	defaultAlertsLimit   = 50
	maxLimit             = 1000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	db     db.Gateway
	stats  *stats.Aggregator
	hub    *notify.Hub
	logger *logging.Logger
}

func NewHandler(gw db.Gateway, agg *stats.Aggregator, hub *notify.Hub, logger *logging.Logger) *Handler {
	return &Handler{db: gw, stats: agg, hub: hub, logger: logger}
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Sensor Dashboard Backend is running"})
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Errorf("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetReadings(c *gin.Context) {
	skip, limit, ok := pageParams(c, defaultReadingsLimit)
	if !ok {
		return
	}

	readings, err := h.db.RecentReadings(c.Request.Context(), skip, limit)
	if err != nil {
		h.logger.Errorf("Failed to get readings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get readings"})
		return
	}

	h.logger.Debugf("Retrieved %d readings", len(readings))
	c.JSON(http.StatusOK, readings)
}

func (h *Handler) GetAlerts(c *gin.Context) {
	skip, limit, ok := pageParams(c, defaultAlertsLimit)
	if !ok {
		return
	}

	alerts, err := h.db.RecentAlerts(c.Request.Context(), skip, limit)
	if err != nil {
		h.logger.Errorf("Failed to get alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alerts"})
		return
	}

	h.logger.Debugf("Retrieved %d alerts", len(alerts))
	c.JSON(http.StatusOK, alerts)
}

func (h *Handler) GetStats(c *gin.Context) {
	st, err := h.stats.Dashboard(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to get stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// ServeWS upgrades the request and keeps the connection registered on the
// alert hub until the client goes away.
func (h *Handler) ServeWS(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed disabled"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if !h.hub.AddConnection(conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"))
		return
	}
	defer h.hub.RemoveConnection(conn)

	// Drain client frames so close and ping are processed
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pageParams parses skip/limit and writes a 400 on bad input.
func pageParams(c *gin.Context, defaultLimit int) (skip, limit int, ok bool) {
	skip, limit = 0, defaultLimit
	var err error

	if raw := c.Query("skip"); raw != "" {
		skip, err = strconv.Atoi(raw)
		if err != nil || skip < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "skip must be a non-negative integer"})
			return 0, 0, false
		}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 1000"})
			return 0, 0, false
		}
	}
	return skip, limit, true
}
