package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	app "github.com/R3E-Network/factory_os/internal/app"
	"github.com/R3E-Network/factory_os/internal/app/system"
	"github.com/R3E-Network/factory_os/internal/middleware"
)

const apiPrefix = "/api/v1"

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app      *app.Application
	validate *validator.Validate
	audit    *auditLog
	origins  []string
}

// NewHandler returns the router exposing the REST API. Call it before
// application.Start: an audit file sink is registered on the application
// lifecycle so it is closed on Stop.
func NewHandler(application *app.Application) (http.Handler, error) {
	cfg := application.Config()
	log := application.Logger()

	var sink auditSink
	if cfg.AuditLogPath != "" {
		fileSink, err := newFileAuditSink(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		sink = fileSink
	}

	h := &handler{
		app:      application,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		audit:    newAuditLog(500, sink),
		origins:  cfg.AllowedOrigins(),
	}
	if sink != nil {
		if err := application.Attach(auditCloser{log: h.audit}); err != nil {
			_ = h.audit.close()
			return nil, err
		}
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)
	r.Use(middleware.MetricsMiddleware(application.Metrics))

	r.HandleFunc("/", h.index).Methods(http.MethodGet)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.ready).Methods(http.MethodGet)
	r.Handle("/metrics", application.Metrics.Handler()).Methods(http.MethodGet)

	protect := func(next http.HandlerFunc) http.Handler { return next }
	if cfg.Auth.Required {
		authMW := middleware.NewAuthMiddleware(application.Auth, log, nil)
		protect = func(next http.HandlerFunc) http.Handler { return authMW.Handler(next) }
	}
	limit := application.AILimiter.Handler

	api := r.PathPrefix(apiPrefix).Subrouter()
	api.HandleFunc("/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/system/info", h.systemInfo).Methods(http.MethodGet)
	api.Handle("/devices", protect(h.listDevices)).Methods(http.MethodGet)
	api.Handle("/devices", protect(h.saveDevice)).Methods(http.MethodPost)
	api.Handle("/devices/{device_id}", protect(h.getDevice)).Methods(http.MethodGet)
	api.Handle("/audit", protect(h.listAudit)).Methods(http.MethodGet)
	api.Handle("/ai/ask", limit(http.HandlerFunc(h.askAI))).Methods(http.MethodPost)
	api.HandleFunc("/ai/usage", h.aiUsage).Methods(http.MethodGet)
	api.Handle("/ai/ws", limit(http.HandlerFunc(h.aiWebsocket))).Methods(http.MethodGet)

	cors := middleware.NewCORSMiddleware(h.origins)
	var root http.Handler = r
	root = cors.Handler(root)
	root = middleware.RecoveryMiddleware(log)(root)
	root = middleware.LoggingMiddleware(log)(root)
	return root, nil
}

// auditCloser closes the audit sink when the application stops.
type auditCloser struct {
	log *auditLog
}

var _ system.Service = auditCloser{}

func (auditCloser) Name() string                 { return "audit-log" }
func (auditCloser) Start(context.Context) error  { return nil }
func (c auditCloser) Stop(context.Context) error { return c.log.close() }
