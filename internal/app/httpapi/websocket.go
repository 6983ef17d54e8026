package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/factory_os/internal/httputil"
	"github.com/R3E-Network/factory_os/internal/logging"
)

const (
	wsReadLimit  = 64 << 10
	wsWriteWait  = 10 * time.Second
	wsIdleWindow = 2 * time.Minute
)

type wsRequest struct {
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
}

type wsResponse struct {
	FactoryResponse string `json:"factory_response,omitempty"`
	InputReceived   string `json:"input_received,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (h *handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin applies the CORS origin list to websocket handshakes.
// Requests without an Origin header are not from browsers and pass.
func (h *handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// aiWebsocket answers every {"prompt": ...} frame with the same body as
// POST /ai/ask until the client disconnects.
func (h *handler) aiWebsocket(w http.ResponseWriter, r *http.Request) {
	up := h.upgrader()
	// the hijacked handshake does not carry headers already set on w
	respHeader := http.Header{}
	if id := logging.GetTraceID(r.Context()); id != "" {
		respHeader.Set(httputil.RequestIDHeader, id)
	}
	conn, err := up.Upgrade(w, r, respHeader)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.app.Logger().WithContext(r.Context()).WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.app.Logger().WithContext(r.Context())
	log.Info("ai websocket connected")
	conn.SetReadLimit(wsReadLimit)

	svc := h.app.GenAI()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleWindow))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("ai websocket closed unexpectedly")
			}
			break
		}

		var req wsRequest
		resp := wsResponse{}
		switch {
		case json.Unmarshal(data, &req) != nil:
			resp.Error = "message must be a JSON object"
		case strings.TrimSpace(req.Prompt) == "":
			resp.Error = "prompt is required"
		default:
			resp.InputReceived = req.Prompt
			resp.FactoryResponse = svc.Ask(r.Context(), req.Prompt, req.System)
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(resp); err != nil {
			log.WithError(err).Warn("ai websocket write failed")
			break
		}
	}
	log.Info("ai websocket disconnected")
}
