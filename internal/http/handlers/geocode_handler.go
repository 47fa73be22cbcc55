package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smartdispatch/internal/maps"
	"smartdispatch/internal/types"
)

type GeocodeHandler struct {
	mapper maps.Mapper
}

func NewGeocodeHandler(mapper maps.Mapper) *GeocodeHandler {
	return &GeocodeHandler{mapper: mapper}
}

// ReverseGeocode takes lat/lng from the query string or, for the console's
// POST, from a JSON body.
func (h *GeocodeHandler) ReverseGeocode(c *gin.Context) {
	var p types.Point
	if c.Request.Method == http.MethodPost {
		if err := c.ShouldBindJSON(&p); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	} else {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			writeError(c, http.StatusBadRequest, "lat and lng must be numbers")
			return
		}
		p = types.Point{Lat: lat, Lng: lng}
	}
	if err := p.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	addr, err := h.mapper.ReverseGeocode(c.Request.Context(), p)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"address": addr, "lat": p.Lat, "lng": p.Lng})
}
