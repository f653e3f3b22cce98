package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	commands "tankfleet-cloud/internal/commands/domain"
	scheduleapp "tankfleet-cloud/internal/schedule/application"
	schedule "tankfleet-cloud/internal/schedule/domain"
)

// Handler serves the per-tank schedule endpoints under /api/v1/tanks/.
type Handler struct {
	service *scheduleapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *scheduleapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("schedule handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP dispatches /api/v1/tanks/{id}/schedule and
// /api/v1/tanks/{id}/override.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tankID, action, ok := splitTankPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch action {
	case "schedule":
		h.handleSchedule(w, r, tankID)
	case "override":
		h.handleOverride(w, r, tankID)
	default:
		http.NotFound(w, r)
	}
}

type scheduleRequest struct {
	LightOn  string `json:"light_on"`
	LightOff string `json:"light_off"`
	Enabled  *bool  `json:"enabled"`
}

type scheduleView struct {
	TankID    string `json:"tank_id"`
	LightOn   string `json:"light_on"`
	LightOff  string `json:"light_off"`
	Enabled   bool   `json:"enabled"`
	Override  string `json:"override"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request, tankID string) {
	switch r.Method {
	case http.MethodGet:
		settings, err := h.service.GetSettings(r.Context(), tankID)
		if err != nil {
			respondScheduleError(w, err)
			return
		}
		respondSettings(w, settings)
	case http.MethodPut:
		h.handleScheduleUpdate(w, r, tankID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleScheduleUpdate(w http.ResponseWriter, r *http.Request, tankID string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req scheduleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if req.LightOn != "" || req.LightOff != "" {
		if req.LightOn == "" || req.LightOff == "" {
			http.Error(w, "light_on and light_off must be set together", http.StatusBadRequest)
			return
		}
		if _, err := h.service.UpdateWindow(r.Context(), tankID, req.LightOn, req.LightOff); err != nil {
			respondScheduleError(w, err)
			return
		}
	}
	if req.Enabled != nil {
		if err := h.service.ToggleSchedule(r.Context(), tankID, *req.Enabled); err != nil {
			respondScheduleError(w, err)
			return
		}
	}

	settings, err := h.service.GetSettings(r.Context(), tankID)
	if err != nil {
		respondScheduleError(w, err)
		return
	}
	respondSettings(w, settings)
}

type overrideRequest struct {
	State string `json:"state"`
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request, tankID string) {
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

	var req overrideRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	cmd, err := h.service.SetOverride(r.Context(), tankID, req.State)
	if err != nil {
		respondScheduleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"tank_id":    tankID,
		"state":      req.State,
		"command_id": cmd.ID,
	})
}

func respondSettings(w http.ResponseWriter, settings *schedule.Settings) {
	view := scheduleView{
		TankID:   settings.TankID,
		LightOn:  settings.LightOn.String(),
		LightOff: settings.LightOff.String(),
		Enabled:  settings.Enabled,
		Override: string(settings.Override),
	}
	if !settings.UpdatedAt.IsZero() {
		view.UpdatedAt = settings.UpdatedAt.Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

func respondScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrSettingsNotFound):
		http.Error(w, "unknown tank", http.StatusNotFound)
	case errors.Is(err, schedule.ErrInvalidWindow), errors.Is(err, schedule.ErrInvalidOverride),
		errors.Is(err, commands.ErrUnknownCommandType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// splitTankPath extracts the tank id and trailing action from
// /api/v1/tanks/{id}/{action}.
func splitTankPath(path string) (string, string, bool) {
	rest, ok := strings.CutPrefix(path, "/api/v1/tanks/")
	if !ok {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
