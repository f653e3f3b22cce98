package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"tankfleet-cloud/internal/auth"
	registryapp "tankfleet-cloud/internal/registry/application"
	registry "tankfleet-cloud/internal/registry/domain"
)

// RegisterHandler serves the device registration endpoint. It sits
// outside the device token middleware: a registering tank has no token
// yet and authenticates with the fleet pre-shared key instead.
type RegisterHandler struct {
	service *registryapp.Service
}

// NewRegisterHandler constructs a handler.
func NewRegisterHandler(service *registryapp.Service) (*RegisterHandler, error) {
	if service == nil {
		return nil, errors.New("register handler: nil service")
	}
	return &RegisterHandler{service: service}, nil
}

type registerRequest struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// ServeHTTP handles POST /api/v1/node/register.
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req registerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	reg, err := h.service.Register(r.Context(), req.Name, req.Key)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidKey):
			http.Error(w, "invalid key", http.StatusUnauthorized)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if reg.Created {
		w.WriteHeader(http.StatusCreated)
	}
	_ = json.NewEncoder(w).Encode(reg)
}

// TanksHandler serves the admin fleet roster.
type TanksHandler struct {
	service *registryapp.Service
}

// NewTanksHandler constructs a handler.
func NewTanksHandler(service *registryapp.Service) (*TanksHandler, error) {
	if service == nil {
		return nil, errors.New("tanks handler: nil service")
	}
	return &TanksHandler{service: service}, nil
}

type tankView struct {
	TankID          string   `json:"tank_id"`
	Name            string   `json:"name"`
	IsOnline        bool     `json:"is_online"`
	LastSeenAt      string   `json:"last_seen_at,omitempty"`
	LightState      *bool    `json:"light_state,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	PH              *float64 `json:"ph,omitempty"`
	FirmwareVersion string   `json:"firmware_version,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

// ServeHTTP handles GET /api/v1/tanks.
func (h *TanksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tanks, err := h.service.ListTanks(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]tankView, 0, len(tanks))
	for i := range tanks {
		views = append(views, toTankView(&tanks[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func toTankView(tank *registry.Tank) tankView {
	view := tankView{
		TankID:          tank.ID,
		Name:            tank.Name,
		IsOnline:        tank.IsOnline,
		LightState:      tank.LightState,
		Temperature:     tank.Temperature,
		PH:              tank.PH,
		FirmwareVersion: tank.FirmwareVersion,
		CreatedAt:       tank.CreatedAt.Format(time.RFC3339),
	}
	if !tank.LastSeenAt.IsZero() {
		view.LastSeenAt = tank.LastSeenAt.Format(time.RFC3339)
	}
	return view
}
