package server

import (
	"sync"
	"time"

	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

const idleRoomTimeout = time.Second * 5

type exitReq struct {
	deleted bool
	done    chan string
}

type Room struct {
	id         int
	externalId string
	cs         *ChatServer
	joinChan   chan *ClientMessage
	leaveChan  chan *ClientMessage
	changeChan chan types.ChangeEvent
	clients    map[*Client]struct{}
	userMap    map[int]map[*Client]struct{}
	clientLock sync.RWMutex
	log        *zap.Logger
	// killTimer unloads the room once it has had no clients for idleRoomTimeout
	killTimer *time.Timer
	exit      chan exitReq
}

func newRoom(cs *ChatServer, dbRoom database.Room) *Room {
	return &Room{
		id:         dbRoom.Id,
		externalId: dbRoom.ExternalId,
		cs:         cs,
		joinChan:   make(chan *ClientMessage, 256),
		leaveChan:  make(chan *ClientMessage, 256),
		changeChan: make(chan types.ChangeEvent, 256),
		clients:    make(map[*Client]struct{}),
		userMap:    make(map[int]map[*Client]struct{}),
		log:        cs.log.With(zap.String("room_id", dbRoom.ExternalId)),
		exit:       make(chan exitReq),
	}
}

func (r *Room) start() {
	r.log.Debug("starting room")
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leave := <-r.leaveChan:
			r.handleLeave(leave)
		case ev := <-r.changeChan:
			r.handleChange(ev)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Debug("room timed out")
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.externalId}:
	default:
		r.log.Warn("unload channel full, restarting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Debug("room exiting", zap.Bool("deleted", e.deleted))
	if e.deleted {
		r.broadcast(&ServerMessage{
			Notification: &Notification{
				RoomDeleted: &RoomDeleted{RoomId: r.externalId},
			},
		})
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.externalId)
	}
	r.clients = make(map[*Client]struct{})
	r.userMap = make(map[int]map[*Client]struct{})
	r.clientLock.Unlock()

	if e.done != nil {
		e.done <- r.externalId
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	if !r.cs.db.SubscriptionExists(c.user.Id, r.id) {
		r.log.Info("creating subscription", zap.String("username", c.user.Username))
		if _, err := r.cs.db.CreateSubscription(c.user.Id, r.id, false); err != nil {
			if r.clientCount() == 0 {
				r.killTimer.Reset(idleRoomTimeout)
			}
			r.log.Error("CreateSubscription", zap.Error(err))
			c.queueMessage(ErrInternalError(join.Id))
			return
		}

		r.broadcast(&ServerMessage{
			Notification: &Notification{
				SubscriptionChange: &SubscriptionChange{
					RoomId:     r.externalId,
					Subscribed: true,
					User:       types.User{Id: c.user.Id, Username: c.user.Username},
				},
			},
		})
	}

	r.addClient(c)
	c.queueMessage(NoErrOK(join.Id, map[string]any{"room_id": r.externalId}))
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	c := leaveMsg.client

	if leaveMsg.Leave.Unsubscribe {
		r.log.Info("unsubscribing", zap.Int("user_id", leaveMsg.GetUserId()))
		if err := r.cs.db.DeleteSubscription(leaveMsg.GetUserId(), r.id); err != nil {
			r.log.Error("DeleteSubscription", zap.Error(err))
			c.queueMessage(ErrInternalError(leaveMsg.Id))
			return
		}

		r.removeAllClientsForUser(leaveMsg.GetUserId())
		c.queueMessage(NoErrOK(leaveMsg.Id, nil))

		r.broadcast(&ServerMessage{
			Notification: &Notification{
				SubscriptionChange: &SubscriptionChange{
					RoomId:     r.externalId,
					Subscribed: false,
					User:       types.User{Id: c.user.Id, Username: c.user.Username},
				},
			},
		})
		return
	}

	r.removeClient(c)
	if leaveMsg.Id != 0 {
		c.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}
}

// handleChange fans a message change out to the room. Viewer-relative
// reaction flags belong to whoever caused the change, so they are cleared.
func (r *Room) handleChange(ev types.ChangeEvent) {
	ev.Message = ev.Message.Shared().Masked()

	r.broadcast(&ServerMessage{Change: &ev})
}

func (r *Room) clientCount() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()
	return len(r.clients)
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) getClient(c *Client) (*Client, bool) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()
	_, ok := r.clients[c]
	if !ok {
		return nil, false
	}
	return c, true
}

func (r *Room) deleteClient(c *Client) {
	delete(r.clients, c)
	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	r.deleteClient(c)
	c.delRoom(r.externalId)

	if len(r.clients) == 0 {
		r.log.Debug("no clients, starting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) removeAllClientsForUser(userId int) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	for client := range r.userMap[userId] {
		delete(r.clients, client)
		client.delRoom(r.externalId)
	}
	delete(r.userMap, userId)

	if len(r.clients) == 0 {
		r.log.Debug("no clients, starting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	msg.Timestamp = Now()

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()
	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}
		client.queueMessage(msg)
	}
}
