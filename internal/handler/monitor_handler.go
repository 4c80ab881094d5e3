package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // keeps slow queries from stalling the stream
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams live proctoring events of a test to staff.
type MonitorHandler struct {
	proctoringService *service.ProctoringService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(proctoringService *service.ProctoringService, log zerolog.Logger, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		proctoringService: proctoringService,
		log:               log.With().Str("component", "monitor_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// MonitorTest godoc
// WS /ws/v1/staff/tests/:test_id/monitor?token=
// Sends a snapshot of every assigned student, then forwards flag, reset and
// submission events as they happen.
func (h *MonitorHandler) MonitorTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, ok := paramUUID(c, "test_id")
	if !ok {
		return
	}

	// Fail before the upgrade so an unknown test is a plain 404.
	snapshot, err := h.proctoringService.Snapshot(c.Request.Context(), testID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("staff_id", claims.UserID).
		Str("test_id", testID.String()).
		Logger()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.proctoringService.Subscribe(ctx, testID)
	defer pubsub.Close()
	events := pubsub.Channel()

	if err := ws.WriteTyped(conn, snapshot); err != nil {
		return
	}
	wsLog.Info().Msg("Staff attached to live monitor")

	// Only this goroutine writes; the reader hands pings over.
	pings := make(chan struct{}, 1)
	go h.readLoop(conn, wsLog, pings, cancel)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			wsLog.Info().Msg("Staff detached from live monitor")
			return

		case msg, ok := <-events:
			if !ok {
				return
			}
			// Forward raw JSON; the payload is already a MonitorEvent.
			err = ws.WriteRaw(conn, []byte(msg.Payload))

		case <-pings:
			err = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})

		case <-refresh.C:
			err = h.sendRefresh(ctx, conn, wsLog, testID)

		case <-keepAlive.C:
			err = ws.Ping(conn)
		}
		if err != nil {
			wsLog.Debug().Err(err).Msg("Monitor write failed")
			return
		}
	}
}

// readLoop consumes client messages until the connection closes.
func (h *MonitorHandler) readLoop(conn *websocket.Conn, wsLog zerolog.Logger, pings chan<- struct{}, cancel context.CancelFunc) {
	defer cancel()
	ws.ExtendOnPong(conn)
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}
		switch msg.Action {
		case ws.ActionPing:
			select {
			case pings <- struct{}{}:
			default:
			}
		default:
			wsLog.Debug().Str("action", string(msg.Action)).Msg("Unknown action")
		}
	}
}

// sendRefresh resends the snapshot so a client that missed events converges.
func (h *MonitorHandler) sendRefresh(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, testID uuid.UUID) error {
	rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	snapshot, err := h.proctoringService.Snapshot(rctx, testID)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Monitor refresh failed")
		return ws.WriteError(conn, "snapshot refresh failed, retrying")
	}
	return ws.WriteTyped(conn, snapshot)
}
