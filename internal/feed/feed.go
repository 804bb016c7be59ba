// Package feed keeps the list of messages a viewer sees in one room in sync
// with the store, the live change feed and the viewer's own edits.
package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/topichat/internal/command"
	"github.com/npezzotti/topichat/internal/reaction"
	"github.com/npezzotti/topichat/internal/snapshot"
	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

const (
	PageSize = 30
	// NearBottomThreshold is how close to the bottom the viewer must be for
	// a new message to scroll into view on its own.
	NearBottomThreshold = 100

	cacheTimeout = 5 * time.Second
)

var (
	ErrClosed        = errors.New("feed: closed")
	ErrAlreadyOpen   = errors.New("feed: already open")
	ErrNoViewer      = errors.New("feed: no signed-in viewer")
	ErrEmptyMessage  = errors.New("feed: message is empty")
	ErrNotInView     = errors.New("feed: message not loaded")
	ErrNoMoreHistory = errors.New("feed: no older messages")
)

// LiveLostNotice is shown in the list when the change feed ends while the
// feed is still open.
const LiveLostNotice = "Live updates stopped. Reopen the room to catch up."

// Store is the entity store as seen by one viewer. ListMessages returns
// newest first.
type Store interface {
	reaction.Store
	ListMessages(ctx context.Context, roomId string, offset, limit int) ([]types.Message, error)
	GetMessage(ctx context.Context, id int) (types.Message, error)
	InsertMessage(ctx context.Context, roomId, content string, replyingTo *int) (types.Message, error)
	DeleteMessage(ctx context.Context, id int) error
	MarkRead(ctx context.Context, roomId string) error
}

// Subscription delivers a room's change events in the order the change feed
// produced them. Close must be safe to call more than once.
type Subscription interface {
	Events() <-chan types.ChangeEvent
	Close() error
}

type ChangeFeed interface {
	Subscribe(ctx context.Context, roomId string) (Subscription, error)
}

// Viewport is the scroll container the feed is drawn in. Layout must update
// ScrollHeight synchronously for the given messages.
type Viewport interface {
	Layout(msgs []types.Message)
	Metrics() Metrics
	ScrollTo(top int)
}

type Option func(*Feed)

func WithPageSize(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

func WithNearBottomThreshold(n int) Option {
	return func(f *Feed) {
		f.threshold = n
	}
}

type state struct {
	messages []types.Message
	hasMore  bool
	notice   bool
	live     bool
}

type scrollMode int

const (
	scrollNone scrollMode = iota
	scrollAnchor
	scrollBottom
	scrollAbsolute
)

type scroll struct {
	mode scrollMode
	top  int
}

type Feed struct {
	roomId    string
	viewerId  int
	store     Store
	changes   ChangeFeed
	cache     snapshot.Cache
	vp        Viewport
	commands  *command.Dispatcher
	reactions *reaction.Aggregator
	log       *zap.Logger
	pageSize  int
	threshold int

	mu       sync.Mutex
	st       state
	onChange func()
	localSeq int

	lifecycle sync.Mutex
	opened    bool
	closed    bool
	sub       Subscription
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a feed for roomId. A viewerId of 0 means nobody is signed in;
// the feed is then read-only. cache, vp and commands may be nil.
func New(roomId string, viewerId int, store Store, changes ChangeFeed, cache snapshot.Cache, vp Viewport, commands *command.Dispatcher, logger *zap.Logger, opts ...Option) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if vp == nil {
		vp = &nopViewport{}
	}

	f := &Feed{
		roomId:    roomId,
		viewerId:  viewerId,
		store:     store,
		changes:   changes,
		cache:     cache,
		vp:        vp,
		commands:  commands,
		log:       logger.With(zap.String("room_id", roomId)),
		pageSize:  PageSize,
		threshold: NearBottomThreshold,
		st:        state{hasMore: true},
	}
	for _, opt := range opts {
		opt(f)
	}

	f.reactions = reaction.NewAggregator(store, func() (int, bool) {
		return f.viewerId, f.viewerId > 0
	}, f.log)
	return f
}

func (f *Feed) RoomId() string {
	return f.roomId
}

// OnChange registers fn to run after every change to the list. It is called
// without the list locked but may run while Open holds the feed, so fn must
// not call Open or Close.
func (f *Feed) OnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

func (f *Feed) Messages() []types.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.st.messages)
}

func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.hasMore
}

// Live reports whether change events are still arriving. It is false
// before Open and after the change feed drops.
func (f *Feed) Live() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.live
}

// NewMessageNotice reports whether messages arrived while the viewer was
// scrolled away from the bottom.
func (f *Feed) NewMessageNotice() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.notice
}

// update derives the next state from the current one and lays the viewport
// out again. fn sees the viewport as it was before the change.
func (f *Feed) update(fn func(prev state, m Metrics) (state, scroll)) {
	f.mu.Lock()
	before := f.vp.Metrics()
	next, sc := fn(f.st, before)
	f.st = next
	f.vp.Layout(next.messages)

	switch sc.mode {
	case scrollAnchor:
		f.vp.ScrollTo(AnchorOffset(before, f.vp.Metrics()))
	case scrollBottom:
		f.vp.ScrollTo(f.vp.Metrics().Bottom())
	case scrollAbsolute:
		f.vp.ScrollTo(sc.top)
	}
	cb := f.onChange
	f.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (f *Feed) find(id int) (types.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := indexOf(f.st.messages, id); i >= 0 {
		return f.st.messages[i], true
	}
	return types.Message{}, false
}

func (f *Feed) replace(msg types.Message) {
	f.update(func(prev state, _ Metrics) (state, scroll) {
		if indexOf(prev.messages, msg.Id) < 0 {
			return prev, scroll{}
		}
		prev.messages = Merge(prev.messages, msg)
		return prev, scroll{}
	})
}

// Open shows the last snapshot of the room, if any, then subscribes to
// changes and loads the newest page. The room is marked read once the page
// is in. On error nothing stays subscribed and Open may be called again.
func (f *Feed) Open(ctx context.Context) error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	if f.closed {
		return ErrClosed
	}
	if f.opened {
		return ErrAlreadyOpen
	}

	restored := f.restore(ctx)

	sub, err := f.changes.Subscribe(ctx, f.roomId)
	if err != nil {
		return fmt.Errorf("subscribe to room changes: %w", err)
	}

	page, err := f.store.ListMessages(ctx, f.roomId, 0, f.pageSize)
	if err != nil {
		if cerr := sub.Close(); cerr != nil {
			f.log.Warn("failed to unsubscribe", zap.Error(cerr))
		}
		return fmt.Errorf("load messages: %w", err)
	}

	f.update(func(prev state, _ Metrics) (state, scroll) {
		next := state{
			messages: ascending(page),
			hasMore:  len(page) >= f.pageSize,
			notice:   prev.notice,
			live:     true,
		}
		for _, m := range prev.messages {
			if m.Local {
				next.messages = Merge(next.messages, m)
			}
		}
		if restored {
			return next, scroll{}
		}
		return next, scroll{mode: scrollBottom}
	})

	if err := f.store.MarkRead(ctx, f.roomId); err != nil {
		f.log.Warn("failed to mark room read", zap.Error(err))
	}
	if restored {
		if err := f.cache.Discard(ctx, f.roomId); err != nil {
			f.log.Warn("failed to discard snapshot", zap.Error(err))
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	f.opened = true
	f.sub = sub
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.consume(loopCtx, sub, f.done)

	f.log.Debug("feed opened", zap.Int("messages", len(page)), zap.Bool("restored", restored))
	return nil
}

func (f *Feed) restore(ctx context.Context) bool {
	if f.cache == nil {
		return false
	}

	snap, ok, err := f.cache.Load(ctx, f.roomId)
	if err != nil {
		f.log.Warn("failed to load snapshot", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}

	f.update(func(prev state, _ Metrics) (state, scroll) {
		return state{messages: snap.Messages, hasMore: snap.HasMore}, scroll{mode: scrollAbsolute, top: snap.ScrollTop}
	})
	return true
}

// LoadOlder fetches the page before the oldest loaded message and keeps the
// viewport anchored on what the viewer was looking at.
func (f *Feed) LoadOlder(ctx context.Context) (int, error) {
	f.mu.Lock()
	hasMore := f.st.hasMore
	offset := len(f.st.messages) - countLocal(f.st.messages)
	f.mu.Unlock()

	if f.isClosed() {
		return 0, ErrClosed
	}
	if !hasMore {
		return 0, ErrNoMoreHistory
	}

	page, err := f.store.ListMessages(ctx, f.roomId, offset, f.pageSize)
	if err != nil {
		f.log.Warn("failed to load older messages", zap.Int("offset", offset), zap.Error(err))
		return 0, fmt.Errorf("load older messages: %w", err)
	}

	older := ascending(page)
	added := 0
	f.update(func(prev state, _ Metrics) (state, scroll) {
		next := prev
		next.messages = Prepend(prev.messages, older)
		added = len(next.messages) - len(prev.messages)
		if len(page) < f.pageSize {
			next.hasMore = false
		}
		return next, scroll{mode: scrollAnchor}
	})
	return added, nil
}

func countLocal(list []types.Message) int {
	n := 0
	for _, m := range list {
		if m.Local {
			n++
		}
	}
	return n
}

func (f *Feed) consume(ctx context.Context, sub Subscription, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				if ctx.Err() == nil {
					f.log.Warn("change feed closed, live updates stopped")
					f.update(func(prev state, _ Metrics) (state, scroll) {
						prev.live = false
						return prev, scroll{}
					})
					f.AppendLocal(LiveLostNotice)
				}
				return
			}
			f.apply(ctx, ev)
		}
	}
}

// apply merges one change event. Rows are refetched so counts and viewer
// flags are relative to this viewer; the inline row is used if that fails.
// Updates only touch messages already in the list; older rows arrive
// through LoadOlder.
func (f *Feed) apply(ctx context.Context, ev types.ChangeEvent) {
	if ev.RoomId != f.roomId {
		return
	}

	switch ev.Kind {
	case types.ChangeDelete:
		f.update(func(prev state, _ Metrics) (state, scroll) {
			prev.messages = Remove(prev.messages, ev.Message.Id)
			return prev, scroll{}
		})
		return
	case types.ChangeUpdate:
		if _, ok := f.find(ev.Message.Id); !ok {
			f.log.Debug("ignoring update for message not loaded", zap.Int("message_id", ev.Message.Id))
			return
		}
	case types.ChangeInsert:
	default:
		f.log.Warn("ignoring unknown change kind", zap.String("kind", string(ev.Kind)))
		return
	}

	row := ev.Message
	if fetched, err := f.store.GetMessage(ctx, row.Id); err == nil {
		row = fetched
	} else {
		f.log.Debug("using inline row", zap.Int("message_id", row.Id), zap.Error(err))
	}
	row = row.Masked()

	f.update(func(prev state, m Metrics) (state, scroll) {
		_, exists := findIn(prev.messages, row.Id)
		if !exists && ev.Kind == types.ChangeUpdate {
			return prev, scroll{}
		}
		prev.messages = Merge(prev.messages, row)
		if exists || ev.Kind != types.ChangeInsert {
			return prev, scroll{}
		}
		if m.DistanceFromBottom() <= f.threshold {
			return prev, scroll{mode: scrollBottom}
		}
		prev.notice = true
		return prev, scroll{}
	})
}

func findIn(list []types.Message, id int) (types.Message, bool) {
	if i := indexOf(list, id); i >= 0 {
		return list[i], true
	}
	return types.Message{}, false
}

// RevealNew scrolls to the newest message and clears the notice.
func (f *Feed) RevealNew() {
	f.update(func(prev state, _ Metrics) (state, scroll) {
		prev.notice = false
		return prev, scroll{mode: scrollBottom}
	})
}

// Send stores the viewer's message and shows it right away. When the text
// is a curator command the question is handed off without waiting on it.
func (f *Feed) Send(ctx context.Context, text string, replyingTo *int) (types.Message, error) {
	if f.isClosed() {
		return types.Message{}, ErrClosed
	}
	if f.viewerId == 0 {
		return types.Message{}, ErrNoViewer
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Message{}, ErrEmptyMessage
	}

	msg, err := f.store.InsertMessage(ctx, f.roomId, text, replyingTo)
	if err != nil {
		f.log.Warn("failed to send message", zap.Error(err))
		return types.Message{}, fmt.Errorf("send message: %w", err)
	}
	msg = msg.Masked()

	f.update(func(prev state, _ Metrics) (state, scroll) {
		prev.messages = Merge(prev.messages, msg)
		return prev, scroll{mode: scrollBottom}
	})

	if f.commands != nil && f.commands.Dispatch(f.roomId, text) {
		f.log.Debug("curator question dispatched", zap.Int("message_id", msg.Id))
	}
	return msg, nil
}

func (f *Feed) ToggleLike(ctx context.Context, id int) error {
	return f.toggle(ctx, id, types.ReactionLike)
}

func (f *Feed) ToggleDislike(ctx context.Context, id int) error {
	return f.toggle(ctx, id, types.ReactionDislike)
}

func (f *Feed) toggle(ctx context.Context, id int, kind types.ReactionKind) error {
	if f.isClosed() {
		return ErrClosed
	}
	msg, ok := f.find(id)
	if !ok || msg.Local {
		return ErrNotInView
	}

	return f.reactions.Toggle(ctx, id, kind, msg.Reactions(), func(s types.ReactionState) {
		f.update(func(prev state, _ Metrics) (state, scroll) {
			cur, ok := findIn(prev.messages, id)
			if !ok {
				return prev, scroll{}
			}
			prev.messages = Merge(prev.messages, cur.WithReactions(s))
			return prev, scroll{}
		})
	})
}

// Delete soft-deletes one of the viewer's messages. The row is masked
// immediately and put back exactly as it was if the store refuses.
func (f *Feed) Delete(ctx context.Context, id int) error {
	if f.isClosed() {
		return ErrClosed
	}
	if f.viewerId == 0 {
		return ErrNoViewer
	}
	before, ok := f.find(id)
	if !ok || before.Local {
		return ErrNotInView
	}

	deleted := before
	deleted.IsDeleted = true
	f.replace(deleted.Masked())

	if err := f.store.DeleteMessage(ctx, id); err != nil {
		f.log.Warn("failed to delete message, restoring it", zap.Int("message_id", id), zap.Error(err))
		f.replace(before)
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// AppendLocal shows a notice in the list that only this viewer sees. It is
// never stored and is left out of snapshots.
func (f *Feed) AppendLocal(content string) types.Message {
	f.mu.Lock()
	f.localSeq--
	id := f.localSeq
	f.mu.Unlock()

	msg := types.Message{
		Id:          id,
		RoomId:      f.roomId,
		Username:    "system",
		Content:     content,
		CreatedAt:   time.Now().UTC(),
		CuratorKind: types.CuratorNone,
		Local:       true,
	}
	f.update(func(prev state, _ Metrics) (state, scroll) {
		prev.messages = Merge(prev.messages, msg)
		return prev, scroll{mode: scrollBottom}
	})
	return msg
}

func (f *Feed) isClosed() bool {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	return f.closed
}

// Close unsubscribes, waits for the event loop and saves a snapshot of the
// room for the next visit. It is safe to call more than once.
func (f *Feed) Close() error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	if f.sub != nil {
		f.cancel()
		if err := f.sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
		}
		<-f.done
	}

	if f.opened && f.cache != nil {
		f.mu.Lock()
		snap := snapshot.Snapshot{
			Messages:  slices.DeleteFunc(slices.Clone(f.st.messages), func(m types.Message) bool { return m.Local }),
			ScrollTop: f.vp.Metrics().ScrollTop,
			HasMore:   f.st.hasMore,
			SavedAt:   time.Now().UTC(),
		}
		f.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()
		if err := f.cache.Save(ctx, f.roomId, snap); err != nil {
			errs = append(errs, fmt.Errorf("save snapshot: %w", err))
		}
	}

	f.log.Debug("feed closed")
	return errors.Join(errs...)
}

type nopViewport struct {
	m Metrics
}

func (v *nopViewport) Layout([]types.Message) {}

func (v *nopViewport) Metrics() Metrics { return v.m }

func (v *nopViewport) ScrollTo(top int) { v.m.ScrollTop = top }
