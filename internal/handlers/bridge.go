package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/facebot/internal/links"
	"github.com/memohai/facebot/internal/relay"
	"github.com/memohai/facebot/internal/version"
)

// BridgeSource reports the bridge state and its link table.
type BridgeSource interface {
	Status() relay.Status
	Links() *links.Table
}

// BridgeHandler exposes read-only bridge state.
type BridgeHandler struct {
	source BridgeSource
	logger *slog.Logger
}

func NewBridgeHandler(log *slog.Logger, source BridgeSource) *BridgeHandler {
	return &BridgeHandler{
		source: source,
		logger: log.With(slog.String("handler", "bridge")),
	}
}

// Register mounts the liveness, health, status and link routes.
func (h *BridgeHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.HealthHead)
	e.GET("/health", h.Health)
	e.GET("/status", h.Status)
	e.GET("/links", h.Links)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string      `json:"status"`
	State           relay.State `json:"state"`
	RemoteConnected bool        `json:"remote_connected"`
}

// Ping answers as long as the process serves HTTP, whatever the bridge state.
func (h *BridgeHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Health returns 200 while the bridge is listening and 503 otherwise.
func (h *BridgeHandler) Health(c echo.Context) error {
	resp, code := h.health()
	return c.JSON(code, resp)
}

// HealthHead is Health without a body, for load balancer probes.
func (h *BridgeHandler) HealthHead(c echo.Context) error {
	_, code := h.health()
	return c.NoContent(code)
}

func (h *BridgeHandler) health() (HealthResponse, int) {
	st := h.source.Status()
	resp := HealthResponse{Status: "ok", State: st.State, RemoteConnected: st.RemoteConnected}
	if st.State != relay.StateListening || !st.RemoteConnected {
		resp.Status = "degraded"
		return resp, http.StatusServiceUnavailable
	}
	return resp, http.StatusOK
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	relay.Status
	Version string       `json:"version"`
	Build   version.Info `json:"build"`
}

func (h *BridgeHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{Status: h.source.Status(), Version: version.GetInfo(), Build: version.Get()})
}

// Links returns the active channel links, optionally filtered by ?channel= or ?thread=.
func (h *BridgeHandler) Links(c echo.Context) error {
	table := h.source.Links()
	channelID, threadID := c.QueryParam("channel"), c.QueryParam("thread")

	var out []links.Link
	switch {
	case channelID != "":
		for _, l := range table.FindAllByChannel(channelID) {
			if threadID == "" || l.RemoteThreadID == threadID {
				out = append(out, l)
			}
		}
	case threadID != "":
		out = table.FindAllByThread(threadID)
	default:
		out = table.All()
		if out == nil {
			out = []links.Link{}
		}
		return c.JSON(http.StatusOK, out)
	}
	if len(out) == 0 {
		return notFound("no link matches channel=%q thread=%q", channelID, threadID)
	}
	return c.JSON(http.StatusOK, out)
}
