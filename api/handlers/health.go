package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/tracing"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the current status of every tenant worker
func Status(fleetService interfaces.FleetService) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, _ := opentracing.StartSpanFromContext(c.Request.Context(), "Handlers.Status")
		defer span.Finish()
		tracing.TagComponentRest(span)

		status := fleetService.Status()
		c.JSON(http.StatusOK, status)
	}
}
