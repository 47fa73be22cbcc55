// README: Order evaluation, driver responses, probe polling and route preview.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartdispatch/internal/maps"
	"smartdispatch/internal/modules/detour"
	"smartdispatch/internal/modules/dispatch"
)

type DispatchHandler struct {
	registry *dispatch.Registry
	drivers  driverResolver
}

func NewDispatchHandler(registry *dispatch.Registry, defaultDriverID string) *DispatchHandler {
	return &DispatchHandler{registry: registry, drivers: driverResolver{defaultID: defaultDriverID}}
}

type newOrderRequest struct {
	Pickup   string `json:"pickup"`
	Delivery string `json:"delivery"`
	Price    string `json:"price"`
}

type evaluateRequest struct {
	CurrentState detour.DriverState `json:"current_state"`
	NewOrder     newOrderRequest    `json:"new_order"`
}

func (h *DispatchHandler) EvaluateNewOrder(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cand, err := detour.NewOrderCandidate(req.NewOrder.Pickup, req.NewOrder.Delivery, req.NewOrder.Price)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	dec, err := engine.EvaluateOrder(c.Request.Context(), req.CurrentState, cand)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, dec)
}

type orderResponseRequest struct {
	Fingerprint string `json:"fingerprint"`
	Accepted    bool   `json:"accepted"`
	// ContinueSearching defaults to true when omitted.
	ContinueSearching *bool `json:"continue_searching"`
}

func (h *DispatchHandler) OrderResponse(c *gin.Context) {
	var req orderResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cont := true
	if req.ContinueSearching != nil {
		cont = *req.ContinueSearching
	}
	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	mode, err := engine.ResolveOrderResponse(c.Request.Context(), req.Fingerprint, req.Accepted, cont)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok", "mode": mode.Alias(), "mode_name": mode})
}

type probeRequest struct {
	CurrentState *detour.DriverState `json:"current_state"`
}

// ProbePublishTrip answers the trip-publishing probe. The body is optional.
func (h *DispatchHandler) ProbePublishTrip(c *gin.Context) {
	var req probeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, engine.PublishSuggestion(req.CurrentState))
}

type previewRequest struct {
	CurrentState detour.DriverState `json:"current_state"`
	Tactics      int                `json:"tactics"`
}

func (h *DispatchHandler) CurrentRoutePreview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	p, err := engine.RoutePreview(c.Request.Context(), req.CurrentState, maps.Tactics(req.Tactics))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}
