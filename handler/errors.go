package handler

import (
	"net/http"

	"github.com/Ampplex/InfluencerFlow-sub001/pkg/logger"
	"github.com/Ampplex/InfluencerFlow-sub001/service"
	"github.com/gin-gonic/gin"
)

// HTTPStatus maps a service error kind onto the response status. Conflicts
// are reported as plain client errors.
func HTTPStatus(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation, service.KindFileValidation, service.KindConflict:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	status := HTTPStatus(kind)

	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", "kind", kind.String(), "error", err)
	} else {
		logger.Debug(c.Request.Context(), "request rejected", "kind", kind.String(), "error", err)
	}

	c.JSON(status, gin.H{"error": service.PublicMessage(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
