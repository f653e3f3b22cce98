package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"tankfleet-cloud/internal/auth"
	commandsapp "tankfleet-cloud/internal/commands/application"
	commands "tankfleet-cloud/internal/commands/domain"
	registry "tankfleet-cloud/internal/registry/domain"
)

// DeviceHandler serves the polling endpoints a tank uses to fetch and
// acknowledge commands.
type DeviceHandler struct {
	queue *commandsapp.Queue
}

// NewDeviceHandler constructs a handler.
func NewDeviceHandler(queue *commandsapp.Queue) (*DeviceHandler, error) {
	if queue == nil {
		return nil, errors.New("device commands handler: nil queue")
	}
	return &DeviceHandler{queue: queue}, nil
}

// ServeHTTP handles GET /api/v1/node/command.
func (h *DeviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tankID := auth.TankIDFromContext(r.Context())
	if tankID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cmd, err := h.queue.Poll(r.Context(), tankID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if cmd == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toCommandView(cmd))
}

// AckHandler serves command acknowledgements.
type AckHandler struct {
	queue *commandsapp.Queue
}

// NewAckHandler constructs a handler.
func NewAckHandler(queue *commandsapp.Queue) (*AckHandler, error) {
	if queue == nil {
		return nil, errors.New("ack handler: nil queue")
	}
	return &AckHandler{queue: queue}, nil
}

type ackRequest struct {
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error"`
}

// ServeHTTP handles POST /api/v1/node/command/ack.
func (h *AckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	var req ackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.CommandID == "" {
		http.Error(w, "command_id required", http.StatusBadRequest)
		return
	}

	if err := h.queue.Acknowledge(r.Context(), tankID, req.CommandID, req.Success, req.Error); err != nil {
		switch {
		case errors.Is(err, commands.ErrCommandNotFound):
			http.Error(w, "unknown command", http.StatusNotFound)
		case errors.Is(err, commands.ErrNotCommandOwner):
			http.Error(w, "forbidden", http.StatusForbidden)
		case errors.Is(err, commands.ErrNotDispatched):
			http.Error(w, "command not in flight", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminHandler serves operator command issuance and history queries.
type AdminHandler struct {
	queue *commandsapp.Queue
}

// NewAdminHandler constructs a handler.
func NewAdminHandler(queue *commandsapp.Queue) (*AdminHandler, error) {
	if queue == nil {
		return nil, errors.New("admin commands handler: nil queue")
	}
	return &AdminHandler{queue: queue}, nil
}

type issueRequest struct {
	TankID string            `json:"tank_id"`
	Type   string            `json:"type"`
	Params map[string]string `json:"params"`
}

// ServeHTTP handles POST/GET /api/v1/commands.
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req issueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.TankID == "" {
		http.Error(w, "tank_id required", http.StatusBadRequest)
		return
	}

	cmd, err := h.queue.Enqueue(r.Context(), req.TankID, commands.Type(req.Type), req.Params, commands.SourceAdmin)
	if err != nil {
		switch {
		case errors.Is(err, commands.ErrUnknownCommandType):
			http.Error(w, "unknown command type", http.StatusBadRequest)
		case errors.Is(err, registry.ErrTankNotFound):
			http.Error(w, "unknown tank", http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toCommandView(cmd))
}

func (h *AdminHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	tankID := r.URL.Query().Get("tank_id")
	if tankID == "" {
		http.Error(w, "tank_id required", http.StatusBadRequest)
		return
	}
	from, to, err := parseTimeRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	history, err := h.queue.History(r.Context(), tankID, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]commandView, 0, len(history))
	for i := range history {
		views = append(views, toCommandView(&history[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	fromValue := r.URL.Query().Get("from")
	toValue := r.URL.Query().Get("to")
	now := time.Now().UTC()

	from := now.AddDate(0, 0, -7)
	to := now
	var err error
	if fromValue != "" {
		if from, err = time.Parse(time.RFC3339, fromValue); err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
	}
	if toValue != "" {
		if to, err = time.Parse(time.RFC3339, toValue); err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}

type commandView struct {
	CommandID  string            `json:"command_id"`
	TankID     string            `json:"tank_id"`
	Type       string            `json:"type"`
	Params     map[string]string `json:"params,omitempty"`
	Source     string            `json:"source"`
	Status     string            `json:"status"`
	RetryCount int               `json:"retry_count"`
	CreatedAt  string            `json:"created_at"`
	Error      string            `json:"error,omitempty"`
}

func toCommandView(cmd *commands.Command) commandView {
	return commandView{
		CommandID:  cmd.ID,
		TankID:     cmd.TankID,
		Type:       string(cmd.Type),
		Params:     cmd.Params,
		Source:     string(cmd.Source),
		Status:     string(cmd.Status),
		RetryCount: cmd.RetryCount,
		CreatedAt:  cmd.CreatedAt.UTC().Format(time.RFC3339),
		Error:      cmd.Error,
	}
}
