package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	commandsapp "tankfleet-cloud/internal/commands/application"
	"tankfleet-cloud/internal/events"
	registryapp "tankfleet-cloud/internal/registry/application"
	registry "tankfleet-cloud/internal/registry/domain"
	"tankfleet-cloud/internal/reports"
)

const timeLayout = time.RFC3339

const defaultEventLimit = 100

// EventLister reads back recorded audit events.
type EventLister interface {
	ListByTank(ctx context.Context, tankID string, limit int) ([]events.Event, error)
}

// EventsHandler serves audit trail queries.
type EventsHandler struct {
	lister EventLister
}

// NewEventsHandler constructs an EventsHandler.
func NewEventsHandler(lister EventLister) *EventsHandler {
	return &EventsHandler{lister: lister}
}

type eventView struct {
	EventID   string `json:"event_id"`
	TankID    string `json:"tank_id"`
	Type      string `json:"type"`
	Source    string `json:"source,omitempty"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ServeHTTP handles GET /api/v1/events.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.lister == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	tankID := r.URL.Query().Get("tank_id")
	if tankID == "" {
		http.Error(w, "tank_id is required", http.StatusBadRequest)
		return
	}
	limit := defaultEventLimit
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	list, err := h.lister.ListByTank(r.Context(), tankID, limit)
	if err != nil {
		http.Error(w, "query events error", http.StatusInternalServerError)
		return
	}
	views := make([]eventView, 0, len(list))
	for _, event := range list {
		views = append(views, eventView{
			EventID:   event.ID,
			TankID:    event.TankID,
			Type:      string(event.Type),
			Source:    event.Source,
			Detail:    event.Detail,
			CreatedAt: event.CreatedAt.Format(timeLayout),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

// ExportCommandsXLSXHandler serves command history workbook exports.
type ExportCommandsXLSXHandler struct {
	registry *registryapp.Service
	queue    *commandsapp.Queue
}

// NewExportCommandsXLSXHandler constructs a ExportCommandsXLSXHandler.
func NewExportCommandsXLSXHandler(registry *registryapp.Service, queue *commandsapp.Queue) *ExportCommandsXLSXHandler {
	return &ExportCommandsXLSXHandler{registry: registry, queue: queue}
}

// ServeHTTP handles GET /api/v1/exports/commands.xlsx.
func (h *ExportCommandsXLSXHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.registry == nil || h.queue == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	tankID := r.URL.Query().Get("tank_id")
	if tankID == "" {
		http.Error(w, "tank_id is required", http.StatusBadRequest)
		return
	}
	from, to, err := parseRangeQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tank, err := h.registry.GetTank(r.Context(), tankID)
	if err != nil {
		if errors.Is(err, registry.ErrTankNotFound) {
			http.Error(w, "unknown tank", http.StatusNotFound)
			return
		}
		http.Error(w, "query tank error", http.StatusInternalServerError)
		return
	}
	history, err := h.queue.History(r.Context(), tankID, from, to)
	if err != nil {
		http.Error(w, "query commands error", http.StatusInternalServerError)
		return
	}

	data, err := reports.BuildCommandHistoryXLSX(tank, history, from, to)
	if err != nil {
		http.Error(w, "build export error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "commands-"+tankID+".xlsx"))
	_, _ = w.Write(data)
}

// FleetReportPDFHandler serves the fleet status PDF.
type FleetReportPDFHandler struct {
	registry *registryapp.Service
}

// NewFleetReportPDFHandler constructs a FleetReportPDFHandler.
func NewFleetReportPDFHandler(registry *registryapp.Service) *FleetReportPDFHandler {
	return &FleetReportPDFHandler{registry: registry}
}

// ServeHTTP handles GET /api/v1/reports/fleet.pdf.
func (h *FleetReportPDFHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.registry == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	tanks, err := h.registry.ListTanks(r.Context())
	if err != nil {
		http.Error(w, "query tanks error", http.StatusInternalServerError)
		return
	}
	data, err := reports.BuildFleetStatusPDF(tanks, time.Now().UTC())
	if err != nil {
		http.Error(w, "build report error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="fleet.pdf"`)
	_, _ = w.Write(data)
}

func parseRangeQuery(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -7)
	to := now

	var err error
	if value := r.URL.Query().Get("from"); value != "" {
		if from, err = time.Parse(timeLayout, value); err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
	}
	if value := r.URL.Query().Get("to"); value != "" {
		if to, err = time.Parse(timeLayout, value); err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}
