package httpapi

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	app "github.com/R3E-Network/factory_os/internal/app"
	"github.com/R3E-Network/factory_os/internal/app/auth"
	"github.com/R3E-Network/factory_os/internal/app/domain/device"
	"github.com/R3E-Network/factory_os/internal/app/storage"
	svcerrors "github.com/R3E-Network/factory_os/internal/errors"
	"github.com/R3E-Network/factory_os/internal/httputil"
	"github.com/R3E-Network/factory_os/internal/logging"
	"github.com/R3E-Network/factory_os/internal/middleware"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexPage struct {
	Service    string
	Version    string
	Location   string
	AIProvider string
	AuthMode   string
}

func (h *handler) index(w http.ResponseWriter, r *http.Request) {
	cfg := h.app.Config()
	authMode := "mock token"
	if !h.app.Auth.MockMode() {
		authMode = "JWT"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTemplate.Execute(w, indexPage{
		Service:    app.ServiceName,
		Version:    app.Version,
		Location:   cfg.FactoryLocation,
		AIProvider: h.app.GenAI().Provider(),
		AuthMode:   authMode,
	})
	if err != nil {
		h.app.Logger().WithContext(r.Context()).WithError(err).Error("render landing page")
	}
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   app.ServiceName,
		"version":   app.Version,
		"location":  h.app.Config().FactoryLocation,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Ready(r.Context()); err != nil {
		httputil.WriteServiceError(w, r, svcerrors.Unavailable("Device store unavailable", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := httputil.DecodeJSONLenient(r.Body, &req); err != nil {
		httputil.WriteServiceError(w, r, svcerrors.Validation("Invalid login payload", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteServiceError(w, r, validationError(err))
		return
	}
	if req.Password == nil {
		httputil.WriteServiceError(w, r, svcerrors.Validation("Request validation failed", nil).
			WithDetails("password", "required"))
		return
	}

	token, err := h.app.Auth.Login(req.Username, req.PasswordValue())
	if err != nil {
		h.record(r, "login_failed", req.Username, svcerrors.HTTPStatus(err), "")
		h.app.Logger().LogSecurityEvent(r.Context(), "login_failed", map[string]interface{}{
			"username": req.Username,
		})
		httputil.WriteServiceError(w, r, err)
		return
	}

	h.record(r, "login", req.Username, http.StatusOK, "")
	httputil.WriteJSON(w, http.StatusOK, token)
}

type deviceResponse struct {
	Name     string          `json:"name"`
	Metadata device.Metadata `json:"metadata"`
}

func (h *handler) getDevice(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["device_id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httputil.WriteServiceError(w, r, svcerrors.Validation("device_id must be an integer", err).
			WithDetails("device_id", raw))
		return
	}

	d, err := h.app.Devices.Get(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, deviceResponse{
		Name:     d.Name,
		Metadata: device.Metadata{Firmware: device.DefaultFirmware},
	})
}

func (h *handler) listDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.DeviceFilter{
		FactoryID: strings.TrimSpace(q.Get("factory_id")),
		Status:    strings.ToLower(strings.TrimSpace(q.Get("status"))),
	}
	list, err := h.app.Devices.List(r.Context(), filter)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"devices": list,
		"count":   len(list),
	})
}

func (h *handler) saveDevice(w http.ResponseWriter, r *http.Request) {
	var d device.Device
	if err := httputil.DecodeJSON(r.Body, &d); err != nil {
		httputil.WriteServiceError(w, r, svcerrors.BadRequest("Invalid device payload").WithDetails("reason", err.Error()))
		return
	}
	created := d.ID == 0
	if !created {
		exists, err := h.app.Devices.Exists(r.Context(), d.ID)
		if err != nil {
			httputil.WriteServiceError(w, r, err)
			return
		}
		created = !exists
	}

	saved, err := h.app.Devices.Save(r.Context(), d)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.record(r, "device_saved", middleware.GetUserID(r.Context()), status, strconv.FormatInt(saved.ID, 10))
	httputil.WriteJSON(w, status, saved)
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteServiceError(w, r, svcerrors.Validation("limit must be a non-negative integer", err))
			return
		}
		limit = n
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": h.audit.listLimit(limit)})
}

type askResponse struct {
	FactoryResponse string `json:"factory_response"`
	InputReceived   string `json:"input_received"`
}

func (h *handler) askAI(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prompt := q.Get("prompt")
	if strings.TrimSpace(prompt) == "" {
		httputil.WriteServiceError(w, r, svcerrors.Validation("prompt is required", nil).
			WithDetails("field", "prompt"))
		return
	}

	answer := h.app.GenAI().Ask(r.Context(), prompt, q.Get("system"))
	httputil.WriteJSON(w, http.StatusOK, askResponse{FactoryResponse: answer, InputReceived: prompt})
}

func (h *handler) aiUsage(w http.ResponseWriter, _ *http.Request) {
	svc := h.app.GenAI()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"provider":     svc.Provider(),
		"total_tokens": svc.TokenUsage(),
	})
}

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteServiceError(w, r, svcerrors.NotFound("Resource"))
}

func (h *handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteServiceError(w, r, svcerrors.MethodNotAllowed())
}

func (h *handler) record(r *http.Request, action, user string, status int, detail string) {
	err := h.audit.add(auditEntry{
		Action:    action,
		User:      user,
		Path:      r.URL.Path,
		Method:    r.Method,
		Status:    status,
		RequestID: logging.GetTraceID(r.Context()),
		Remote:    r.RemoteAddr,
		Detail:    detail,
	})
	if err != nil {
		h.app.Logger().WithContext(r.Context()).WithError(err).Warn("audit sink write failed")
	}
}

// validationError turns validator field errors into a 422 with one detail
// per field.
func validationError(err error) *svcerrors.ServiceError {
	se := svcerrors.Validation("Request validation failed", err)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			se.WithDetails(strings.ToLower(fe.Field()), fe.Tag())
		}
	}
	return se
}
