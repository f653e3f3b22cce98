package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	apihttp "tankfleet-cloud/internal/api/http"
	"tankfleet-cloud/internal/auth"
	commandsapp "tankfleet-cloud/internal/commands/application"
	commandsrepo "tankfleet-cloud/internal/commands/infrastructure/postgres"
	commandshttp "tankfleet-cloud/internal/commands/interfaces/http"
	"tankfleet-cloud/internal/coordinator"
	"tankfleet-cloud/internal/events"
	livenessapp "tankfleet-cloud/internal/liveness/application"
	livenesshttp "tankfleet-cloud/internal/liveness/interfaces/http"
	"tankfleet-cloud/internal/notify"
	"tankfleet-cloud/internal/observability/metrics"
	registryapp "tankfleet-cloud/internal/registry/application"
	registryrepo "tankfleet-cloud/internal/registry/infrastructure/postgres"
	registryhttp "tankfleet-cloud/internal/registry/interfaces/http"
	scheduleapp "tankfleet-cloud/internal/schedule/application"
	schedulerepo "tankfleet-cloud/internal/schedule/infrastructure/postgres"
	schedulehttp "tankfleet-cloud/internal/schedule/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := coordinator.LoadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	intervals, err := cfg.ParseIntervals()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	location, err := cfg.Location()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init()
	clock := systemClock{}
	secret := []byte(cfg.TokenSecret)

	var notifier notify.Notifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL)
	}

	tankRepo := registryrepo.NewTankRepository(db)
	commandRepo := commandsrepo.NewRepository(db)
	scheduleRepo := schedulerepo.NewRepository(db)
	eventRepo := events.NewRepository(db)

	registryService, err := registryapp.NewService(tankRepo, scheduleRepo, eventRepo, notifier, cfg.DevicePSK, secret, intervals.TokenTTL, clock, logger)
	if err != nil {
		logger.Fatalf("registry service error: %v", err)
	}
	monitor, err := livenessapp.NewMonitor(tankRepo, eventRepo, notifier, intervals.OfflineThreshold, clock, logger)
	if err != nil {
		logger.Fatalf("liveness monitor error: %v", err)
	}
	queue, err := commandsapp.NewQueue(commandRepo, tankRepo, eventRepo, notifier, cfg.MaxRetries, clock, logger)
	if err != nil {
		logger.Fatalf("command queue error: %v", err)
	}
	reconciler, err := scheduleapp.NewReconciler(scheduleRepo, tankRepo, queue, eventRepo, location, clock, logger)
	if err != nil {
		logger.Fatalf("reconciler error: %v", err)
	}
	scheduleService, err := scheduleapp.NewService(scheduleRepo, tankRepo, queue, eventRepo, notifier, clock, logger)
	if err != nil {
		logger.Fatalf("schedule service error: %v", err)
	}

	driver, err := coordinator.NewDriver(monitor, queue, reconciler, intervals, clock, logger)
	if err != nil {
		logger.Fatalf("driver error: %v", err)
	}
	driver.Start(context.Background())

	registerHandler, err := registryhttp.NewRegisterHandler(registryService)
	if err != nil {
		logger.Fatalf("register handler error: %v", err)
	}
	tanksHandler, err := registryhttp.NewTanksHandler(registryService)
	if err != nil {
		logger.Fatalf("tanks handler error: %v", err)
	}
	heartbeatHandler, err := livenesshttp.NewHeartbeatHandler(monitor)
	if err != nil {
		logger.Fatalf("heartbeat handler error: %v", err)
	}
	deviceCommandHandler, err := commandshttp.NewDeviceHandler(queue)
	if err != nil {
		logger.Fatalf("device command handler error: %v", err)
	}
	ackHandler, err := commandshttp.NewAckHandler(queue)
	if err != nil {
		logger.Fatalf("ack handler error: %v", err)
	}
	adminCommandHandler, err := commandshttp.NewAdminHandler(queue)
	if err != nil {
		logger.Fatalf("admin command handler error: %v", err)
	}
	scheduleHandler, err := schedulehttp.NewHandler(scheduleService)
	if err != nil {
		logger.Fatalf("schedule handler error: %v", err)
	}

	deviceAuth := auth.NewDeviceMiddleware(secret)
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/api/v1/node/"})
	adminAuth := auth.NewMiddleware(secret, policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/node/register", registerHandler)
	mux.Handle("/api/v1/node/heartbeat", deviceAuth.Wrap(heartbeatHandler))
	mux.Handle("/api/v1/node/command", deviceAuth.Wrap(deviceCommandHandler))
	mux.Handle("/api/v1/node/command/ack", deviceAuth.Wrap(ackHandler))
	mux.Handle("/api/v1/commands", adminCommandHandler)
	mux.Handle("/api/v1/tanks", tanksHandler)
	mux.Handle("/api/v1/tanks/", scheduleHandler)
	mux.Handle("/api/v1/events", apihttp.NewEventsHandler(eventRepo))
	mux.Handle("/api/v1/exports/commands.xlsx", apihttp.NewExportCommandsXLSXHandler(registryService, queue))
	mux.Handle("/api/v1/reports/fleet.pdf", apihttp.NewFleetReportPDFHandler(registryService))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.ListenAddr, Handler: loggingMiddleware(adminAuth.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.ListenAddr)
	logger.Fatal(server.ListenAndServe())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
