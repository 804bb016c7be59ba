package server

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/stats"
	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

type unloadRoomRequest struct {
	roomId  string
	deleted bool
}

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the loaded rooms and routes membership requests and
// message changes to them.
type ChatServer struct {
	log            *zap.Logger
	db             database.Repository
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	registerChan   chan *Client
	deregisterChan chan *Client
	unloadRoomChan chan unloadRoomRequest
	changeChan     chan types.ChangeEvent
	rooms          map[string]*Room
	stop           chan stopReq
	done           chan struct{}
}

func NewChatServer(logger *zap.Logger, db database.Repository, su stats.StatsProvider) (*ChatServer, error) {
	su.RegisterMetric(stats.ConnectedClients)
	su.RegisterMetric(stats.ActiveRooms)

	return &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client),
		deregisterChan: make(chan *Client),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		changeChan:     make(chan types.ChangeEvent, 256),
		rooms:          make(map[string]*Room),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case client := <-cs.registerChan:
			cs.log.Debug("adding connection", zap.String("username", client.user.Username))
			cs.addClient(client)
			cs.stats.Incr(stats.ConnectedClients)
		case client := <-cs.deregisterChan:
			cs.log.Debug("removing connection", zap.String("username", client.user.Username))
			if cs.removeClient(client) {
				cs.stats.Decr(stats.ConnectedClients)
			}
		case req := <-cs.unloadRoomChan:
			cs.unloadRoom(req)
		case ev := <-cs.changeChan:
			cs.routeChange(ev)
		case req := <-cs.stop:
			cs.log.Info("shutting down rooms")
			for id, r := range cs.rooms {
				done := make(chan string)
				r.exit <- exitReq{done: done}
				<-done
				delete(cs.rooms, id)
				cs.stats.Decr(stats.ActiveRooms)
			}

			cs.clientsLock.Lock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.Unlock()

			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) handleJoin(joinMsg *ClientMessage) {
	if room, ok := cs.rooms[joinMsg.Join.RoomId]; ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			cs.log.Warn("join channel full", zap.String("room_id", room.externalId))
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	dbRoom, err := cs.db.GetRoomByExternalId(joinMsg.Join.RoomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			joinMsg.client.queueMessage(ErrRoomNotFound(joinMsg.Id))
			return
		}
		cs.log.Error("GetRoomByExternalId", zap.String("room_id", joinMsg.Join.RoomId), zap.Error(err))
		joinMsg.client.queueMessage(ErrInternalError(joinMsg.Id))
		return
	}

	room := newRoom(cs, dbRoom)
	cs.rooms[room.externalId] = room
	cs.stats.Incr(stats.ActiveRooms)
	room.joinChan <- joinMsg

	go room.start()
}

func (cs *ChatServer) routeChange(ev types.ChangeEvent) {
	room, ok := cs.rooms[ev.RoomId]
	if !ok {
		return
	}

	select {
	case room.changeChan <- ev:
	default:
		cs.log.Warn("change channel full, dropping event",
			zap.String("room_id", ev.RoomId), zap.Int("message_id", ev.Message.Id))
	}
}

func (cs *ChatServer) unloadRoom(req unloadRoomRequest) {
	r, ok := cs.rooms[req.roomId]
	if !ok {
		return
	}

	if !req.deleted && r.clientCount() > 0 {
		// a client joined after the room asked to be unloaded
		return
	}

	cs.log.Info("unloading room", zap.String("room_id", req.roomId), zap.Bool("deleted", req.deleted))
	delete(cs.rooms, req.roomId)
	cs.stats.Decr(stats.ActiveRooms)

	done := make(chan string)
	r.exit <- exitReq{deleted: req.deleted, done: done}
	<-done
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	if _, ok := cs.clients[c]; !ok {
		return false
	}
	delete(cs.clients, c)
	return true
}

// RegisterClient hands a new connection to the server and starts its pumps.
func (cs *ChatServer) RegisterClient(c *Client) {
	select {
	case cs.registerChan <- c:
	case <-cs.done:
		c.conn.Close()
		return
	}

	go c.Write()
	go c.Read()
}

// DeleteRoom notifies the room's clients that it is gone and unloads it.
func (cs *ChatServer) DeleteRoom(ctx context.Context, externalId string) error {
	select {
	case cs.unloadRoomChan <- unloadRoomRequest{roomId: externalId, deleted: true}:
		return nil
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeChanges forwards events to the rooms they belong to until events
// closes, ctx is done, or the server stops.
func (cs *ChatServer) ConsumeChanges(ctx context.Context, events <-chan types.ChangeEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			select {
			case cs.changeChan <- ev:
			case <-cs.done:
				return
			case <-ctx.Done():
				return
			}
		case <-cs.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
