package handler

import (
	"context"
	"net/http"
	"time"

	"traffic-light/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type ConnectionCounter interface {
	Count() int
}

type HealthHandler struct {
	broker      Pinger
	driver      string
	connections ConnectionCounter
}

func NewHealthHandler(broker Pinger, driver string, connections ConnectionCounter) *HealthHandler {
	return &HealthHandler{broker: broker, driver: driver, connections: connections}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := httpdto.HealthResponse{
		Status: "healthy",
		Broker: h.driver,
	}
	if h.connections != nil {
		resp.Connections = h.connections.Count()
	}
	if err := h.broker.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
