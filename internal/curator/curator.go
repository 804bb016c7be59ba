// Package curator posts generated messages as the distinguished curator
// account: idle prompts, news summaries and answers to questions. It also
// writes daily digests of busy rooms.
package curator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/topichat/internal/changefeed"
	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/llm"
	"github.com/npezzotti/topichat/internal/news"
	"github.com/npezzotti/topichat/internal/stats"
	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 8

	// SummaryWindow is how far back a room digest looks.
	SummaryWindow = 24 * time.Hour
	// MinSummaryMessages skips rooms with too little conversation to digest.
	MinSummaryMessages = 10
)

var ErrEmptyQuestion = errors.New("question is empty")

// Store is the slice of the repository the curator needs.
type Store interface {
	GetCuratorAccount() (database.User, error)
	GetRoomById(roomId int) (database.Room, error)
	ListIdleRooms(now time.Time) ([]database.Room, error)
	ListNewsInterests() ([]string, error)
	ListRoomsByInterest(interest string) ([]database.Room, error)
	CreateMessage(params database.CreateMessageParams) (database.Message, error)
	ListActiveRooms(since time.Time) ([]database.Room, error)
	ListMessageContents(roomId int, since time.Time) ([]string, error)
	CreateRoomSummary(params database.CreateRoomSummaryParams) (database.RoomSummary, error)
}

// Summary reports one batch run. Failed counts branches that errored
// without stopping their siblings.
type Summary struct {
	RunId     string `json:"run_id"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

type Curator struct {
	store       Store
	gen         llm.Generator
	finder      news.Finder
	pub         changefeed.Publisher
	stats       stats.StatsProvider
	log         *zap.Logger
	concurrency int
	now         func() time.Time
}

type Option func(*Curator)

// WithConcurrency bounds how many rooms or interests are worked at once.
func WithConcurrency(n int) Option {
	return func(c *Curator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Curator) {
		c.now = now
	}
}

func New(store Store, gen llm.Generator, finder news.Finder, pub changefeed.Publisher, st stats.StatsProvider, logger *zap.Logger, opts ...Option) *Curator {
	c := &Curator{
		store:       store,
		gen:         gen,
		finder:      finder,
		pub:         pub,
		stats:       st,
		log:         logger,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tally struct {
	processed atomic.Int32
	failed    atomic.Int32
}

func (t *tally) summary(runId string) Summary {
	return Summary{RunId: runId, Processed: int(t.processed.Load()), Failed: int(t.failed.Load())}
}

func (c *Curator) fail(log *zap.Logger, t *tally, msg string, err error) {
	log.Error(msg, zap.Error(err))
	t.failed.Add(1)
	c.stats.Incr(stats.CuratorFailures)
}

// RunIdle posts a conversation starter into every room that has been quiet
// longer than its idle threshold.
func (c *Curator) RunIdle(ctx context.Context) (Summary, error) {
	runId := uuid.NewString()
	log := c.log.With(zap.String("run_id", runId), zap.String("job", "idle"))

	curatorAcc, err := c.store.GetCuratorAccount()
	if err != nil {
		return Summary{RunId: runId}, fmt.Errorf("get curator account: %w", err)
	}

	now := c.now()
	rooms, err := c.store.ListIdleRooms(now)
	if err != nil {
		return Summary{RunId: runId}, fmt.Errorf("list idle rooms: %w", err)
	}
	log.Info("found idle rooms", zap.Int("count", len(rooms)))

	var (
		t tally
		g errgroup.Group
	)
	g.SetLimit(c.concurrency)
	for _, room := range rooms {
		g.Go(func() error {
			prompt := idlePrompt(room, now.Sub(room.LastActivity()))
			text, err := c.gen.Generate(ctx, prompt, idleSystemInstruction(room))
			if err != nil {
				c.fail(log.With(zap.Int("room_id", room.Id)), &t, "generate idle prompt", err)
				return nil
			}

			if _, err := c.post(ctx, curatorAcc.Id, room, text, types.CuratorIdle); err != nil {
				c.fail(log.With(zap.Int("room_id", room.Id)), &t, "post idle prompt", err)
				return nil
			}
			t.processed.Add(1)
			return nil
		})
	}
	g.Wait()

	s := t.summary(runId)
	log.Info("idle run complete", zap.Int("processed", s.Processed), zap.Int("failed", s.Failed))
	return s, nil
}

// RunNews finds an article for each interest with summaries enabled and
// shares one summary with every room of that interest.
func (c *Curator) RunNews(ctx context.Context) (Summary, error) {
	runId := uuid.NewString()
	log := c.log.With(zap.String("run_id", runId), zap.String("job", "news"))

	curatorAcc, err := c.store.GetCuratorAccount()
	if err != nil {
		return Summary{RunId: runId}, fmt.Errorf("get curator account: %w", err)
	}

	interests, err := c.store.ListNewsInterests()
	if err != nil {
		return Summary{RunId: runId}, fmt.Errorf("list interests: %w", err)
	}
	log.Info("found interests", zap.Int("count", len(interests)))

	var (
		t tally
		g errgroup.Group
	)
	g.SetLimit(c.concurrency)
	for _, interest := range interests {
		g.Go(func() error {
			ilog := log.With(zap.String("interest", interest))

			article, err := c.finder.FindLatest(ctx, interest)
			if err != nil {
				c.fail(ilog, &t, "find article", err)
				return nil
			}
			if article == nil {
				ilog.Info("no article found")
				return nil
			}

			summary, err := c.gen.Generate(ctx, newsPrompt(interest, article), newsSystemInstruction)
			if err != nil {
				c.fail(ilog, &t, "summarize article", err)
				return nil
			}
			content := newsContent(summary, article)

			rooms, err := c.store.ListRoomsByInterest(interest)
			if err != nil {
				c.fail(ilog, &t, "list rooms", err)
				return nil
			}

			for _, room := range rooms {
				if !room.EnableArticleSummary {
					continue
				}
				if _, err := c.post(ctx, curatorAcc.Id, room, content, types.CuratorNews); err != nil {
					c.fail(ilog.With(zap.Int("room_id", room.Id)), &t, "post news summary", err)
					continue
				}
				t.processed.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	s := t.summary(runId)
	log.Info("news run complete", zap.Int("processed", s.Processed), zap.Int("failed", s.Failed))
	return s, nil
}

// RunSummaries writes a digest for every room with enough conversation in
// the last SummaryWindow. Digests are stored apart from the message list.
func (c *Curator) RunSummaries(ctx context.Context) (Summary, error) {
	runId := uuid.NewString()
	log := c.log.With(zap.String("run_id", runId), zap.String("job", "summaries"))

	since := c.now().Add(-SummaryWindow)
	rooms, err := c.store.ListActiveRooms(since)
	if err != nil {
		return Summary{RunId: runId}, fmt.Errorf("list active rooms: %w", err)
	}
	log.Info("found active rooms", zap.Int("count", len(rooms)))

	var (
		t tally
		g errgroup.Group
	)
	g.SetLimit(c.concurrency)
	for _, room := range rooms {
		g.Go(func() error {
			rlog := log.With(zap.Int("room_id", room.Id))

			contents, err := c.store.ListMessageContents(room.Id, since)
			if err != nil {
				c.fail(rlog, &t, "list messages", err)
				return nil
			}
			if len(contents) < MinSummaryMessages {
				rlog.Debug("too few messages to summarize", zap.Int("messages", len(contents)))
				return nil
			}

			text, err := c.gen.Generate(ctx, summaryPrompt(contents), summarySystemInstruction(room))
			if err != nil {
				c.fail(rlog, &t, "generate summary", err)
				return nil
			}

			if _, err := c.store.CreateRoomSummary(database.CreateRoomSummaryParams{
				RoomId:  room.Id,
				Title:   summaryTitle,
				Content: strings.TrimSpace(text),
			}); err != nil {
				c.fail(rlog, &t, "store summary", err)
				return nil
			}
			t.processed.Add(1)
			return nil
		})
	}
	g.Wait()

	s := t.summary(runId)
	log.Info("summaries run complete", zap.Int("processed", s.Processed), zap.Int("failed", s.Failed))
	return s, nil
}

// Answer replies to a question in a room using the room persona, or a
// default instruction naming the room's interest.
func (c *Curator) Answer(ctx context.Context, roomId int, question string) (types.Message, error) {
	if question == "" {
		return types.Message{}, ErrEmptyQuestion
	}

	room, err := c.store.GetRoomById(roomId)
	if err != nil {
		return types.Message{}, fmt.Errorf("get room: %w", err)
	}

	curatorAcc, err := c.store.GetCuratorAccount()
	if err != nil {
		return types.Message{}, fmt.Errorf("get curator account: %w", err)
	}

	text, err := c.gen.Generate(ctx, question, qaSystemInstruction(room))
	if err != nil {
		c.stats.Incr(stats.CuratorFailures)
		return types.Message{}, fmt.Errorf("generate answer: %w", err)
	}

	return c.post(ctx, curatorAcc.Id, room, text, types.CuratorQA)
}

func (c *Curator) post(ctx context.Context, curatorId int, room database.Room, content string, kind types.CuratorKind) (types.Message, error) {
	row, err := c.store.CreateMessage(database.CreateMessageParams{
		RoomId:      room.Id,
		UserId:      curatorId,
		Content:     content,
		CuratorKind: kind,
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}
	c.stats.Incr(stats.CuratorMessages)

	msg := row.Wire()
	if err := c.pub.Publish(ctx, types.ChangeEvent{
		Kind:    types.ChangeInsert,
		RoomId:  room.ExternalId,
		Message: msg,
	}); err != nil {
		c.log.Warn("publish curator message", zap.Int("message_id", msg.Id), zap.Error(err))
	}

	return msg, nil
}
