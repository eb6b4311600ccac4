package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RX12/RF-LOS-CH/core"
)

// toHTTPStatus maps analysis errors onto HTTP status codes: invalid
// input is the caller's fault, upstream geodata failures surface as a
// bad gateway, anything else is internal.
func toHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(toHTTPStatus(err), gin.H{"error": err.Error()})
}
