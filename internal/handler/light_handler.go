package handler

import (
	"errors"
	"net/http"

	"traffic-light/internal/services"
	"traffic-light/internal/transport/httpdto"

	relay_errors "traffic-light/pkg/errors"

	"github.com/gin-gonic/gin"
)

type LightHandler struct {
	service *services.LightService
}

func NewLightHandler(service *services.LightService) *LightHandler {
	return &LightHandler{service: service}
}

// Update handles POST /update-traffic-light.
func (h *LightHandler) Update(c *gin.Context) {
	var req httpdto.UpdateLightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, httpdto.NewStatusError("invalid request: color is required"))
		return
	}

	if _, err := h.service.Update(c.Request.Context(), req.Color); err != nil {
		switch {
		case errors.Is(err, relay_errors.ErrValidation):
			c.JSON(http.StatusUnprocessableEntity, httpdto.NewStatusError(err.Error()))
		default:
			c.JSON(http.StatusServiceUnavailable, httpdto.NewStatusError(err.Error()))
		}
		return
	}
	c.JSON(http.StatusOK, httpdto.NewStatusOK())
}
