// README: Planned trip queue handlers; trips are addressed by their index in queue order.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smartdispatch/internal/modules/dispatch"
)

type TripHandler struct {
	registry *dispatch.Registry
	drivers  driverResolver
}

func NewTripHandler(registry *dispatch.Registry, defaultDriverID string) *TripHandler {
	return &TripHandler{registry: registry, drivers: driverResolver{defaultID: defaultDriverID}}
}

type tripsResponse struct {
	Plans []dispatch.PlannedTrip `json:"plans"`
}

func (h *TripHandler) List(c *gin.Context) {
	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, tripsResponse{Plans: engine.PlannedTrips()})
}

type createTripRequest struct {
	Origin            string `json:"origin"`
	Destination       string `json:"destination"`
	DepartureTime     string `json:"departure_time"`
	TimeWindowMinutes *int   `json:"time_window_minutes"`
	MinOrders         *int   `json:"min_orders"`
	MaxOrders         *int   `json:"max_orders"`
}

func (h *TripHandler) Create(c *gin.Context) {
	var req createTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	trip := dispatch.PlannedTripPatch{
		TimeWindowMinutes: req.TimeWindowMinutes,
		MinOrders:         req.MinOrders,
		MaxOrders:         req.MaxOrders,
	}.Apply(dispatch.NewPlannedTrip(req.Origin, req.Destination, req.DepartureTime))

	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	trips, err := engine.AddPlannedTrip(c.Request.Context(), trip)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, tripsResponse{Plans: trips})
}

type updateTripRequest struct {
	Index *int `json:"index"`
	dispatch.PlannedTripPatch
}

func (h *TripHandler) Update(c *gin.Context) {
	var req updateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Index == nil {
		writeError(c, http.StatusBadRequest, "index is required")
		return
	}
	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	trips, err := engine.UpdatePlannedTrip(c.Request.Context(), *req.Index, req.PlannedTripPatch)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tripsResponse{Plans: trips})
}

func (h *TripHandler) Complete(c *gin.Context) {
	index, err := strconv.Atoi(c.Query("index"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "index must be an integer")
		return
	}
	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	trips, err := engine.CompletePlannedTrip(c.Request.Context(), index)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tripsResponse{Plans: trips})
}
