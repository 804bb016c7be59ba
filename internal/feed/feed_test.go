package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/topichat/internal/command"
	"github.com/npezzotti/topichat/internal/snapshot"
	"github.com/npezzotti/topichat/internal/testutil"
	"github.com/npezzotti/topichat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func openFeed(t *testing.T, store *fakeStore, hub *fakeHub, viewerId int, opts ...Option) (*Feed, *fakeViewport) {
	t.Helper()
	vp := newFakeViewport(100)
	f := New("room", viewerId, store, hub, nil, vp, nil, testutil.TestLogger(t), opts...)
	require.NoError(t, f.Open(context.Background()))
	t.Cleanup(func() { f.Close() })
	return f, vp
}

func countId(list []types.Message, id int) int {
	n := 0
	for _, m := range list {
		if m.Id == id {
			n++
		}
	}
	return n
}

func TestOpen(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 40)

	f, vp := openFeed(t, store, hub, 1)

	msgs := f.Messages()
	require.Len(t, msgs, PageSize)
	assert.Equal(t, 11, msgs[0].Id, "expected the newest page")
	assert.Equal(t, 40, msgs[len(msgs)-1].Id)
	assert.True(t, IsSorted(msgs), "expected ascending order")
	assert.True(t, f.HasMore())
	assert.Equal(t, 1, store.markReads, "expected the room to be marked read")
	assert.Equal(t, 1, hub.active())
	assert.Equal(t, 200, vp.Metrics().ScrollTop, "expected to start at the bottom")
}

func TestOpen_ShortRoom(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 5)

	f, _ := openFeed(t, store, hub, 1)
	assert.Len(t, f.Messages(), 5)
	assert.False(t, f.HasMore(), "expected a short first page to end history")
}

func TestOpen_Twice(t *testing.T) {
	hub := newFakeHub()
	f, _ := openFeed(t, newFakeStore(hub, 1), hub, 1)
	assert.ErrorIs(t, f.Open(context.Background()), ErrAlreadyOpen)
}

func TestOpen_FailureUnsubscribes(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 10)
	store.listErr = errors.New("connection reset")

	f := New("room", 1, store, hub, nil, nil, nil, testutil.TestLogger(t))
	err := f.Open(context.Background())

	assert.Error(t, err)
	assert.Equal(t, 0, hub.active(), "expected no subscription to leak")
	assert.False(t, f.Live())

	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()

	require.NoError(t, f.Open(context.Background()), "expected open to succeed once the store recovers")
	assert.Len(t, f.Messages(), 10)
	assert.Equal(t, 1, hub.active())
	assert.True(t, f.Live())
	assert.NoError(t, f.Close())
}

func TestOpen_SubscribeFailure(t *testing.T) {
	hub := newFakeHub()
	hub.err = errors.New("socket closed")

	f := New("room", 1, newFakeStore(hub, 1), hub, nil, nil, nil, testutil.TestLogger(t))
	assert.Error(t, f.Open(context.Background()))
	assert.NoError(t, f.Close())
}

func TestLoadOlder(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 40)
	f, vp := openFeed(t, store, hub, 1)

	vp.ScrollTo(0)
	anchor := f.Messages()[0].Id
	positionBefore := indexOf(f.Messages(), anchor)*rowHeight - vp.Metrics().ScrollTop

	added, err := f.LoadOlder(context.Background())
	require.NoError(t, err)

	msgs := f.Messages()
	assert.Equal(t, 10, added)
	assert.Len(t, msgs, 40)
	assert.True(t, IsSorted(msgs))
	assert.False(t, f.HasMore(), "expected a short page to end history")
	assert.Equal(t, []int{0, PageSize}, store.listOffsets(), "expected offset to be the loaded count")
	assert.Equal(t, 100, vp.Metrics().ScrollTop)

	positionAfter := indexOf(msgs, anchor)*rowHeight - vp.Metrics().ScrollTop
	assert.Equal(t, positionBefore, positionAfter, "expected the visible message not to move")

	_, err = f.LoadOlder(context.Background())
	assert.ErrorIs(t, err, ErrNoMoreHistory)
}

func TestLoadOlder_Failure(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 40)
	f, _ := openFeed(t, store, hub, 1)

	store.mu.Lock()
	store.listErr = errors.New("timeout")
	store.mu.Unlock()

	_, err := f.LoadOlder(context.Background())
	assert.Error(t, err)
	assert.Len(t, f.Messages(), PageSize, "expected the list to be unchanged")
	assert.True(t, f.HasMore())
}

func TestLoadOlder_ConcurrentWithRealtime(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 60)
	f, vp := openFeed(t, store, hub, 1)
	vp.ScrollTo(0)

	var wg sync.WaitGroup
	inserted := make([]int, 5)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range inserted {
			m, err := store.InsertMessage(context.Background(), "room", "live", nil)
			assert.NoError(t, err)
			inserted[i] = m.Id
		}
	}()
	go func() {
		defer wg.Done()
		_, err := f.LoadOlder(context.Background())
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.Eventually(t, func() bool {
		msgs := f.Messages()
		for _, id := range inserted {
			if countId(msgs, id) != 1 {
				return false
			}
		}
		return true
	}, waitFor, tick, "expected every live message exactly once")

	msgs := f.Messages()
	assert.True(t, IsSorted(msgs), "expected order to survive interleaved updates")
	for _, m := range msgs {
		assert.Equal(t, 1, countId(msgs, m.Id), "expected no duplicates")
	}
}

func TestRealtime_TwoViewers(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 40)
	opt := WithNearBottomThreshold(2 * rowHeight)

	sender, senderVp := openFeed(t, store, hub, 1, opt)
	reading, readingVp := openFeed(t, store, hub, 2, opt)
	following, followingVp := openFeed(t, store, hub, 3, opt)

	readingVp.ScrollTo(0)
	before := reading.Messages()

	sent, err := sender.Send(context.Background(), "hello from tab A", nil)
	require.NoError(t, err)

	for _, f := range []*Feed{reading, following} {
		assert.Eventually(t, func() bool {
			msgs := f.Messages()
			return len(msgs) > 0 && msgs[len(msgs)-1].Id == sent.Id
		}, waitFor, tick, "expected the message to be appended")
	}

	after := reading.Messages()
	assert.Equal(t, before, after[:len(before)], "expected earlier messages not to move")
	assert.True(t, reading.NewMessageNotice(), "expected a notice when scrolled up")
	assert.Equal(t, 0, readingVp.Metrics().ScrollTop, "expected no scroll when scrolled up")

	assert.False(t, following.NewMessageNotice())
	assert.Equal(t, followingVp.Metrics().Bottom(), followingVp.Metrics().ScrollTop, "expected auto-scroll at the bottom")

	assert.False(t, sender.NewMessageNotice(), "expected no notice for the sender's own message")
	assert.Equal(t, senderVp.Metrics().Bottom(), senderVp.Metrics().ScrollTop)

	reading.RevealNew()
	assert.False(t, reading.NewMessageNotice())
	assert.Equal(t, readingVp.Metrics().Bottom(), readingVp.Metrics().ScrollTop)
}

func TestRealtime_DuplicateDelivery(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 3)
	f, _ := openFeed(t, store, hub, 1)

	store.mu.Lock()
	dup := store.add("room", 2, "twice")
	last := store.add("room", 2, "after")
	store.mu.Unlock()

	hub.publish(types.ChangeEvent{Kind: types.ChangeInsert, RoomId: "room", Message: dup})
	hub.publish(types.ChangeEvent{Kind: types.ChangeInsert, RoomId: "room", Message: dup})
	hub.publish(types.ChangeEvent{Kind: types.ChangeInsert, RoomId: "room", Message: last})

	assert.Eventually(t, func() bool {
		msgs := f.Messages()
		return msgs[len(msgs)-1].Id == last.Id
	}, waitFor, tick)
	assert.Equal(t, 1, countId(f.Messages(), dup.Id), "expected a repeated insert to be merged")
	assert.Len(t, f.Messages(), 5)
}

func TestRealtime_UpdateAndDelete(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 3)
	store.getErr = errors.New("refetch failed")
	f, _ := openFeed(t, store, hub, 1)

	edited := f.Messages()[1]
	edited.IsDeleted = true
	hub.publish(types.ChangeEvent{Kind: types.ChangeUpdate, RoomId: "room", Message: edited})
	hub.publish(types.ChangeEvent{Kind: types.ChangeDelete, RoomId: "room", Message: types.Message{Id: 3}})
	hub.publish(types.ChangeEvent{Kind: types.ChangeInsert, RoomId: "elsewhere", Message: types.Message{Id: 99}})

	assert.Eventually(t, func() bool {
		return len(f.Messages()) == 2
	}, waitFor, tick, "expected the delete event to remove the row")

	msgs := f.Messages()
	assert.Equal(t, []int{1, 2}, ids(msgs))
	assert.Equal(t, types.DeletedContent, msgs[1].Content, "expected the inline row to be used and masked")
	assert.False(t, f.NewMessageNotice(), "expected updates not to raise the notice")
}

func TestRealtime_UpdateForUnloadedMessage(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 100)
	f, _ := openFeed(t, store, hub, 1)

	hub.publish(types.ChangeEvent{Kind: types.ChangeUpdate, RoomId: "room", Message: types.Message{Id: 5, RoomId: "room", Content: "seed"}})
	store.edit(80, "edited")
	hub.publish(types.ChangeEvent{Kind: types.ChangeUpdate, RoomId: "room", Message: types.Message{Id: 80, RoomId: "room"}})

	assert.Eventually(t, func() bool {
		m, ok := findIn(f.Messages(), 80)
		return ok && m.Content == "edited"
	}, waitFor, tick, "expected the loaded message to be updated")

	msgs := f.Messages()
	assert.Len(t, msgs, PageSize, "expected the update for an older message to be dropped")
	assert.Zero(t, countId(msgs, 5))

	added, err := f.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PageSize, added)
	assert.Equal(t, []int{0, PageSize}, store.listOffsets(), "expected offset to skip nothing")

	msgs = f.Messages()
	assert.True(t, IsSorted(msgs), "expected ascending order after loading older messages")
	assert.Equal(t, 41, msgs[0].Id)
	assert.Equal(t, 1, countId(msgs, 70), "expected no history row to be skipped")
}

func TestRealtime_ChangeFeedDropped(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 3)
	f, _ := openFeed(t, store, hub, 1)
	require.True(t, f.Live())

	hub.drop()

	assert.Eventually(t, func() bool {
		return !f.Live()
	}, waitFor, tick, "expected the feed to report live updates stopped")

	assert.Eventually(t, func() bool {
		msgs := f.Messages()
		last := msgs[len(msgs)-1]
		return last.Local && last.Content == LiveLostNotice
	}, waitFor, tick, "expected a local notice in the list")
}

func TestSend(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 2)
	asker := &fakeAsker{}
	d := command.NewDispatcher([]string{"/질문"}, asker, testutil.TestLogger(t))

	f := New("room", 1, store, hub, nil, nil, d, testutil.TestLogger(t))
	require.NoError(t, f.Open(context.Background()))
	defer f.Close()

	plain, err := f.Send(context.Background(), "  안녕하세요 ", nil)
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요", plain.Content)

	cmd, err := f.Send(context.Background(), "/질문 오메가3 효능 알려줘", &plain.Id)
	require.NoError(t, err)
	assert.Equal(t, "/질문 오메가3 효능 알려줘", cmd.Content, "expected the command text to be stored as typed")
	require.NotNil(t, cmd.ReplyingToId)
	assert.Equal(t, plain.Id, *cmd.ReplyingToId)

	d.Wait()
	assert.Equal(t, []string{"오메가3 효능 알려줘"}, asker.asked())

	msgs := f.Messages()
	assert.Equal(t, cmd.Id, msgs[len(msgs)-1].Id, "expected the sender to see their message at once")

	_, err = f.Send(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSend_CuratorFailureShowsLocalNotice(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 2)
	asker := &fakeAsker{err: errors.New("quota exceeded")}

	var f *Feed
	d := command.NewDispatcher([]string{"/q"}, asker, testutil.TestLogger(t),
		command.WithErrorHandler(func(_, question string, _ error) {
			f.AppendLocal("The curator could not answer: " + question)
		}))
	f = New("room", 1, store, hub, snapshot.NewMemoryCache(time.Minute), nil, d, testutil.TestLogger(t))
	require.NoError(t, f.Open(context.Background()))
	defer f.Close()

	_, err := f.Send(context.Background(), "/q why?", nil)
	require.NoError(t, err)
	d.Wait()

	msgs := f.Messages()
	last := msgs[len(msgs)-1]
	assert.True(t, last.Local, "expected a local pseudo-message")
	assert.Less(t, last.Id, 0)
	assert.Contains(t, last.Content, "why?")
	assert.Equal(t, command.StyleLocal, d.Style(last))
}

func TestSignedOut(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 2)
	f, _ := openFeed(t, store, hub, 0)
	before := f.Messages()

	_, err := f.Send(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrNoViewer)
	assert.NoError(t, f.ToggleLike(context.Background(), before[0].Id), "expected a silent no-op")
	assert.ErrorIs(t, f.Delete(context.Background(), before[0].Id), ErrNoViewer)
	assert.Equal(t, before, f.Messages())
}

func TestToggleReactions(t *testing.T) {
	t.Run("applies the authoritative counts", func(t *testing.T) {
		hub := newFakeHub()
		store := newFakeStore(hub, 2)
		store.reactions = types.ReactionState{LikeCount: 5, Liked: true}
		f, _ := openFeed(t, store, hub, 1)

		id := f.Messages()[0].Id
		require.NoError(t, f.ToggleLike(context.Background(), id))

		got, _ := f.find(id)
		assert.Equal(t, store.reactions, got.Reactions())
	})

	t.Run("restores the exact prior state on failure", func(t *testing.T) {
		hub := newFakeHub()
		store := newFakeStore(hub, 2)
		store.toggleErr = errors.New("network down")
		f, _ := openFeed(t, store, hub, 1)

		start := types.ReactionState{LikeCount: 2, DislikeCount: 1, Liked: true}
		target := f.Messages()[0].WithReactions(start)
		f.replace(target)

		assert.Error(t, f.ToggleDislike(context.Background(), target.Id))
		got, _ := f.find(target.Id)
		assert.Equal(t, target, got, "expected the pre-toggle snapshot back")
	})

	t.Run("unknown message", func(t *testing.T) {
		hub := newFakeHub()
		f, _ := openFeed(t, newFakeStore(hub, 1), hub, 1)
		assert.ErrorIs(t, f.ToggleLike(context.Background(), 404), ErrNotInView)
	})
}

func TestDelete(t *testing.T) {
	t.Run("masks the message", func(t *testing.T) {
		hub := newFakeHub()
		store := newFakeStore(hub, 2)
		f, _ := openFeed(t, store, hub, 1)

		id := f.Messages()[0].Id
		require.NoError(t, f.Delete(context.Background(), id))

		got, _ := f.find(id)
		assert.True(t, got.IsDeleted)
		assert.Equal(t, types.DeletedContent, got.Content)
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		hub := newFakeHub()
		store := newFakeStore(hub, 2)
		store.deleteErr = errors.New("forbidden")
		f, _ := openFeed(t, store, hub, 1)

		before := f.Messages()
		assert.Error(t, f.Delete(context.Background(), before[1].Id))
		assert.Equal(t, before, f.Messages(), "expected the exact original row back")
	})
}

func TestSnapshot(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 40)
	cache := snapshot.NewMemoryCache(time.Minute)

	vp := newFakeViewport(100)
	first := New("room", 1, store, hub, cache, vp, nil, testutil.TestLogger(t))
	require.NoError(t, first.Open(context.Background()))
	first.AppendLocal("only for me")
	vp.ScrollTo(50)
	require.NoError(t, first.Close())
	assert.Equal(t, 0, hub.active(), "expected close to unsubscribe")

	snap, ok, err := cache.Load(context.Background(), "room")
	require.NoError(t, err)
	require.True(t, ok, "expected a snapshot on close")
	assert.Len(t, snap.Messages, PageSize, "expected local notices to be left out")
	assert.Equal(t, 50, snap.ScrollTop)
	assert.True(t, snap.HasMore)

	t.Run("restored before the network answers", func(t *testing.T) {
		offline := newFakeHub()
		offline.err = errors.New("offline")
		vp := newFakeViewport(100)
		f := New("room", 1, store, offline, cache, vp, nil, testutil.TestLogger(t))

		assert.Error(t, f.Open(context.Background()))
		assert.Equal(t, snap.Messages, f.Messages())
		assert.Equal(t, 50, vp.Metrics().ScrollTop)
		require.NoError(t, f.Close())
	})

	t.Run("discarded after reconciling", func(t *testing.T) {
		store.mu.Lock()
		store.add("room", 2, "while away")
		store.mu.Unlock()

		f := New("room", 1, store, hub, cache, newFakeViewport(100), nil, testutil.TestLogger(t))
		require.NoError(t, f.Open(context.Background()))

		msgs := f.Messages()
		assert.Equal(t, "while away", msgs[len(msgs)-1].Content)
		_, ok, err := cache.Load(context.Background(), "room")
		require.NoError(t, err)
		assert.False(t, ok, "expected the snapshot to be discarded")
		require.NoError(t, f.Close())
	})
}

func TestClose(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 3)
	f := New("room", 1, store, hub, nil, nil, nil, testutil.TestLogger(t))
	require.NoError(t, f.Open(context.Background()))

	assert.NoError(t, f.Close())
	assert.NoError(t, f.Close(), "expected close to be idempotent")
	assert.Equal(t, 0, hub.active())
	assert.Zero(t, countLocal(f.Messages()), "expected no lost-updates notice on a normal close")

	assert.ErrorIs(t, f.Open(context.Background()), ErrClosed)
	_, err := f.Send(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.LoadOlder(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOnChange(t *testing.T) {
	hub := newFakeHub()
	store := newFakeStore(hub, 3)
	f := New("room", 1, store, hub, nil, nil, nil, testutil.TestLogger(t))

	var mu sync.Mutex
	calls := 0
	f.OnChange(func() {
		mu.Lock()
		calls++
		mu.Unlock()
		_ = f.Messages()
	})
	require.NoError(t, f.Open(context.Background()))
	defer f.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, calls, "expected a change notification on open")
}
