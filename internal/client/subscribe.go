package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/topichat/internal/feed"
	"github.com/npezzotti/topichat/internal/server"
	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

const (
	joinId  = 1
	leaveId = 2

	writeWait   = 5 * time.Second
	eventBuffer = 64
)

// roomSubscription is one websocket joined to a single room.
type roomSubscription struct {
	roomId string
	conn   *websocket.Conn
	log    *zap.Logger

	events chan types.ChangeEvent
	joined chan *server.Response
	done   chan struct{}
	quit   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ feed.Subscription = (*roomSubscription)(nil)

// Subscribe opens a websocket, joins roomId and streams the room's change
// events until Close. Joining subscribes the user to the room if needed.
func (c *Client) Subscribe(ctx context.Context, roomId string) (feed.Subscription, error) {
	wsURL := *c.base
	wsURL.Scheme = "ws"
	if c.base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = c.base.Path + "/ws"

	conn, resp, err := c.dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL.Redacted(), err)
	}

	s := &roomSubscription{
		roomId: roomId,
		conn:   conn,
		log:    c.log.With(zap.String("room_id", roomId)),
		events: make(chan types.ChangeEvent, eventBuffer),
		joined: make(chan *server.Response, 1),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
	go s.read()

	join := server.ClientMessage{
		BaseMessage: server.BaseMessage{Id: joinId, Timestamp: time.Now().UTC()},
		Join:        &server.Join{RoomId: roomId},
	}
	if err := s.write(join); err != nil {
		s.Close()
		return nil, fmt.Errorf("join room: %w", err)
	}

	select {
	case r := <-s.joined:
		if r.ResponseCode != http.StatusOK {
			s.Close()
			return nil, &StatusError{Code: r.ResponseCode, Message: r.Error}
		}
	case <-s.done:
		s.Close()
		return nil, errors.New("join room: connection closed")
	case <-ctx.Done():
		s.Close()
		return nil, fmt.Errorf("join room: %w", ctx.Err())
	}

	s.log.Debug("subscribed")
	return s, nil
}

func (s *roomSubscription) Events() <-chan types.ChangeEvent {
	return s.events
}

func (s *roomSubscription) write(msg server.ClientMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *roomSubscription) read() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("ws read", zap.Error(err))
			}
			return
		}

		var msg server.ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		switch {
		case msg.Response != nil && msg.Id == joinId:
			select {
			case s.joined <- msg.Response:
			default:
			}
		case msg.Change != nil && msg.Change.RoomId == s.roomId:
			select {
			case s.events <- *msg.Change:
			case <-s.quit:
				return
			}
		case msg.Notification != nil && msg.Notification.RoomDeleted != nil &&
			msg.Notification.RoomDeleted.RoomId == s.roomId:
			s.log.Info("room deleted")
			return
		}
	}
}

// Close leaves the room without unsubscribing from it and closes the
// socket. It is safe to call more than once.
func (s *roomSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)

		leave := server.ClientMessage{
			BaseMessage: server.BaseMessage{Id: leaveId, Timestamp: time.Now().UTC()},
			Leave:       &server.Leave{RoomId: s.roomId},
		}
		if err := s.write(leave); err != nil {
			s.log.Debug("leave room", zap.Error(err))
		}

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		s.writeMu.Unlock()

		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.closeErr = err
		}
		<-s.done
		s.log.Debug("unsubscribed")
	})
	return s.closeErr
}
