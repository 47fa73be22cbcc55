package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartdispatch/internal/modules/dispatch"
)

// ModeHandler serves the driver's mode and per-mode thresholds.
type ModeHandler struct {
	registry *dispatch.Registry
	drivers  driverResolver
}

func NewModeHandler(registry *dispatch.Registry, defaultDriverID string) *ModeHandler {
	return &ModeHandler{registry: registry, drivers: driverResolver{defaultID: defaultDriverID}}
}

type modeResponse struct {
	Mode string        `json:"mode"`
	Name dispatch.Mode `json:"mode_name"`
}

func newModeResponse(m dispatch.Mode) modeResponse {
	return modeResponse{Mode: m.Alias(), Name: m}
}

func (h *ModeHandler) Get(c *gin.Context) {
	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, newModeResponse(engine.Mode()))
}

type setModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *ModeHandler) Put(c *gin.Context) {
	var req setModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "mode is required")
		return
	}
	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	m, err := engine.SetMode(c.Request.Context(), req.Mode)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newModeResponse(m))
}

func (h *ModeHandler) GetConfig(c *gin.Context) {
	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, engine.ModeConfig())
}

// PutConfig applies a partial update; omitted fields keep their values.
func (h *ModeHandler) PutConfig(c *gin.Context) {
	var patch dispatch.ModeConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	engine, ok := engineFor(c, h.registry, h.drivers)
	if !ok {
		return
	}
	cfg, err := engine.UpdateModeConfig(c.Request.Context(), patch)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cfg)
}
