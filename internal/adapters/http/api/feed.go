package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/okian/facecheck/pkg/logger"
)

const (
	feedPingInterval = 10 * time.Second
	feedPongWait     = 3 * feedPingInterval
	feedWriteTimeout = 5 * time.Second
	feedReadLimit    = 1024
)

// FeedHandler streams recognition events, overlay data included, over a
// websocket. Clients only listen; anything they send is discarded.
type FeedHandler struct {
	deps     FeedDependencies
	upgrader websocket.Upgrader
	baseCtx  context.Context
	logger   logger.Logger
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(deps FeedDependencies) *FeedHandler {
	return &FeedHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		baseCtx: context.Background(),
		logger:  logger.Get().Named("feed"),
	}
}

// HandleFeed handles GET /ws/recognitions.
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	events, unsubscribe := h.deps.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(h.baseCtx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// Reader: notices when the client goes away.
	conn.SetReadLimit(feedReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	g.Go(func() error {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return nil
			}
		}
	})

	// Writer: events and keepalive pings. Closing the connection on exit
	// unblocks the reader.
	g.Go(func() error {
		defer func() { _ = conn.Close() }()
		ping := time.NewTicker(feedPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(feedWriteTimeout))
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					return err
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		h.logger.Debug(r.Context(), "feed connection closed", logger.Error(err))
	}
}
