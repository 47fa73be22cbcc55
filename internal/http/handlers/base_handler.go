// README: Base handler utilities (JSON helpers, driver resolution, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smartdispatch/internal/http/middleware"
	"smartdispatch/internal/maps"
	"smartdispatch/internal/modules/dispatch"
)

const driverHeader = "X-Driver-ID"

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDispatchError maps domain errors to HTTP statuses. Anything unknown
// is a 500 with the detail kept out of the response.
func writeDispatchError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest),
		errors.Is(err, dispatch.ErrInvalidConfig),
		errors.Is(err, dispatch.ErrIllegalModeTransition):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrTripNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, maps.ErrUnresolvableAddress):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, maps.ErrServiceUnavailable),
		errors.Is(err, maps.ErrMatrixUnavailable),
		errors.Is(err, dispatch.ErrSettingsUnavailable):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// engineFor resolves the request's driver engine, writing the error response
// when the driver's saved settings cannot be loaded.
func engineFor(c *gin.Context, registry *dispatch.Registry, drivers driverResolver) (*dispatch.Engine, bool) {
	engine, err := registry.Get(c.Request.Context(), drivers.driverID(c))
	if err != nil {
		writeDispatchError(c, err)
		return nil, false
	}
	return engine, true
}

// driverResolver picks the driver a request acts for: the authenticated
// caller first, then an explicit header or query parameter, then the
// deployment's default driver.
type driverResolver struct {
	defaultID string
}

func (r driverResolver) driverID(c *gin.Context) string {
	if uid := middleware.CallerUID(c); uid != "" {
		return uid
	}
	if id := strings.TrimSpace(c.GetHeader(driverHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.Query("driver_id")); id != "" {
		return id
	}
	return r.defaultID
}
