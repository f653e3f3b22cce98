package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tankfleet-cloud/internal/auth"
	livenessapp "tankfleet-cloud/internal/liveness/application"
	registry "tankfleet-cloud/internal/registry/domain"
)

// HeartbeatHandler ingests device heartbeats. The tank identity comes
// from the device token, never from the body.
type HeartbeatHandler struct {
	monitor *livenessapp.Monitor
}

// NewHeartbeatHandler constructs a handler.
func NewHeartbeatHandler(monitor *livenessapp.Monitor) (*HeartbeatHandler, error) {
	if monitor == nil {
		return nil, errors.New("heartbeat handler: nil monitor")
	}
	return &HeartbeatHandler{monitor: monitor}, nil
}

type heartbeatRequest struct {
	LightState      *bool    `json:"light_state"`
	Temperature     *float64 `json:"temperature"`
	PH              *float64 `json:"ph"`
	FirmwareVersion string   `json:"firmware_version"`
}

// ServeHTTP handles POST /api/v1/node/heartbeat.
func (h *HeartbeatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tankID := auth.TankIDFromContext(r.Context())
	if tankID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req heartbeatRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	telemetry := registry.Telemetry{
		LightState:      req.LightState,
		Temperature:     req.Temperature,
		PH:              req.PH,
		FirmwareVersion: req.FirmwareVersion,
	}
	if err := h.monitor.RecordHeartbeat(r.Context(), tankID, telemetry); err != nil {
		switch {
		case errors.Is(err, registry.ErrTankNotFound):
			http.Error(w, "unknown tank", http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
