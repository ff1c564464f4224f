package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskvox/taskvox-core/internal/config"
	"github.com/taskvox/taskvox-core/internal/tools"
)

// Handler upgrades downstream client connections and runs one relay
// session per connection.
type Handler struct {
	cfg      config.RelayConfig
	upstream config.UpstreamConfig
	bridge   *tools.Bridge
	logger   *slog.Logger
	upgrader websocket.Upgrader

	meter     metric.Meter
	sessions  metric.Int64Counter
	toolCalls metric.Int64Counter
}

func NewHandler(cfg config.RelayConfig, upstream config.UpstreamConfig, bridge *tools.Bridge, log *slog.Logger) *Handler {
	h := &Handler{
		cfg:      cfg,
		upstream: upstream,
		bridge:   bridge,
		logger:   log.With(slog.String("component", "relay")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The voice channel transport is assumed pre-authenticated.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		meter: otel.Meter("github.com/taskvox/taskvox-core/relay"),
	}

	var err error
	if h.sessions, err = h.meter.Int64Counter("taskvox_relay_sessions_total",
		metric.WithDescription("Voice sessions accepted")); err != nil {
		h.logger.Warn("failed to initialize session counter", slog.String("error", err.Error()))
	}
	if h.toolCalls, err = h.meter.Int64Counter("taskvox_relay_tool_calls_total",
		metric.WithDescription("Tool calls executed on behalf of the upstream service")); err != nil {
		h.logger.Warn("failed to initialize tool call counter", slog.String("error", err.Error()))
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	if h.sessions != nil {
		h.sessions.Add(r.Context(), 1)
	}

	s := newSession(sessionParams{
		id:           uuid.NewString(),
		down:         conn,
		upstream:     h.upstream,
		bridge:       h.bridge,
		logger:       h.logger,
		writeTimeout: time.Duration(h.cfg.WriteTimeoutMS) * time.Millisecond,
		onToolCall: func() {
			if h.toolCalls != nil {
				h.toolCalls.Add(r.Context(), 1)
			}
		},
	})
	s.run(r.Context())
}
