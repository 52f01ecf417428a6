package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/furzing/leakWhisperer/internal/domain"
)

// wsSubscriber adapts a websocket connection to broadcast.Subscriber.
type wsSubscriber struct {
	id          string
	conn        *websocket.Conn
	sendTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *wsSubscriber) ID() string { return s.id }

func (s *wsSubscriber) Send(ctx context.Context, event domain.LeakEvent) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.sendTimeout)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(event)
}

func (s *wsSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// handleLeakSocket registers the connection with the hub and reads client
// frames until it goes away. Client frames carry no meaning and are dropped.
func (s *Server) handleLeakSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := &wsSubscriber{
		id:          uuid.NewString(),
		conn:        conn,
		sendTimeout: s.opts.SendTimeout,
	}
	s.deps.Hub.Register(sub)
	s.logger.Info("leak subscriber connected", "subscriber_id", sub.id, "remote", r.RemoteAddr)

	defer func() {
		s.deps.Hub.Unregister(sub.id)
		_ = sub.Close()
		s.logger.Info("leak subscriber disconnected", "subscriber_id", sub.id)
	}()

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
