package feed

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/npezzotti/topichat/internal/types"
)

const rowHeight = 10

// fakeStore is an in-memory room that publishes its writes to a fakeHub.
type fakeStore struct {
	mu        sync.Mutex
	hub       *fakeHub
	rows      []types.Message
	nextId    int
	clock     time.Time
	markReads int
	offsets   []int
	reactions types.ReactionState

	listErr   error
	deleteErr error
	toggleErr error
	getErr    error
}

func newFakeStore(hub *fakeHub, seeded int) *fakeStore {
	s := &fakeStore{hub: hub, clock: epoch}
	for i := 0; i < seeded; i++ {
		s.add("room", 1, "seed")
	}
	return s
}

func (s *fakeStore) add(roomId string, userId int, content string) types.Message {
	s.nextId++
	s.clock = s.clock.Add(time.Minute)
	m := types.Message{
		Id:          s.nextId,
		RoomId:      roomId,
		UserId:      userId,
		Username:    "user",
		Content:     content,
		CreatedAt:   s.clock,
		CuratorKind: types.CuratorNone,
	}
	s.rows = append(s.rows, m)
	return m
}

func (s *fakeStore) ListMessages(_ context.Context, roomId string, offset, limit int) ([]types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets = append(s.offsets, offset)
	if s.listErr != nil {
		return nil, s.listErr
	}

	var newestFirst []types.Message
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].RoomId == roomId {
			newestFirst = append(newestFirst, s.rows[i])
		}
	}
	if offset >= len(newestFirst) {
		return nil, nil
	}
	end := min(offset+limit, len(newestFirst))
	return slices.Clone(newestFirst[offset:end]), nil
}

func (s *fakeStore) GetMessage(_ context.Context, id int) (types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return types.Message{}, s.getErr
	}
	for _, m := range s.rows {
		if m.Id == id {
			return m, nil
		}
	}
	return types.Message{}, errors.New("not found")
}

func (s *fakeStore) InsertMessage(ctx context.Context, roomId, content string, replyingTo *int) (types.Message, error) {
	s.mu.Lock()
	m := s.add(roomId, 1, content)
	m.ReplyingToId = replyingTo
	s.rows[len(s.rows)-1] = m
	s.mu.Unlock()

	s.hub.publish(types.ChangeEvent{Kind: types.ChangeInsert, RoomId: roomId, Message: m})
	return m, nil
}

func (s *fakeStore) DeleteMessage(_ context.Context, id int) error {
	s.mu.Lock()
	if s.deleteErr != nil {
		s.mu.Unlock()
		return s.deleteErr
	}
	var updated types.Message
	for i := range s.rows {
		if s.rows[i].Id == id {
			s.rows[i].IsDeleted = true
			updated = s.rows[i]
		}
	}
	s.mu.Unlock()

	s.hub.publish(types.ChangeEvent{Kind: types.ChangeUpdate, RoomId: updated.RoomId, Message: updated})
	return nil
}

func (s *fakeStore) MarkRead(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markReads++
	return nil
}

func (s *fakeStore) ToggleReaction(_ context.Context, _ int, _ types.ReactionKind) (types.ReactionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reactions, s.toggleErr
}

func (s *fakeStore) edit(id int, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].Id == id {
			s.rows[i].Content = content
		}
	}
}

func (s *fakeStore) listOffsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.offsets)
}

type fakeHub struct {
	mu   sync.Mutex
	subs map[*fakeSub]struct{}
	err  error
}

func newFakeHub() *fakeHub {
	return &fakeHub{subs: make(map[*fakeSub]struct{})}
}

func (h *fakeHub) Subscribe(_ context.Context, roomId string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	s := &fakeSub{hub: h, roomId: roomId, ch: make(chan types.ChangeEvent, 64)}
	h.subs[s] = struct{}{}
	return s, nil
}

func (h *fakeHub) publish(ev types.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.roomId == ev.RoomId {
			s.ch <- ev
		}
	}
}

// drop ends every subscription as if the connection went away.
func (h *fakeHub) drop() {
	h.mu.Lock()
	subs := make([]*fakeSub, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (h *fakeHub) active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

type fakeSub struct {
	hub    *fakeHub
	roomId string
	ch     chan types.ChangeEvent
	once   sync.Once
}

func (s *fakeSub) Events() <-chan types.ChangeEvent {
	return s.ch
}

func (s *fakeSub) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
	return nil
}

// fakeViewport draws every message as one fixed-height row.
type fakeViewport struct {
	mu sync.Mutex
	m  Metrics
}

func newFakeViewport(clientHeight int) *fakeViewport {
	return &fakeViewport{m: Metrics{ClientHeight: clientHeight}}
}

func (v *fakeViewport) Layout(msgs []types.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.m.ScrollHeight = len(msgs) * rowHeight
}

func (v *fakeViewport) Metrics() Metrics {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.m
}

func (v *fakeViewport) ScrollTo(top int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.m.ScrollTop = max(0, top)
}

type fakeAsker struct {
	mu        sync.Mutex
	questions []string
	err       error
}

func (a *fakeAsker) AskCurator(_ context.Context, _ string, question string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.questions = append(a.questions, question)
	return a.err
}

func (a *fakeAsker) asked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.questions)
}
