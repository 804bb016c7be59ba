package curator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/llm"
	"github.com/npezzotti/topichat/internal/news"
	"github.com/npezzotti/topichat/internal/stats"
	"github.com/npezzotti/topichat/internal/testutil"
	"github.com/npezzotti/topichat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev types.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type stubFinder struct {
	articles map[string]*news.Article
	errs     map[string]error
}

func (f *stubFinder) FindLatest(ctx context.Context, interest string) (*news.Article, error) {
	if err := f.errs[interest]; err != nil {
		return nil, err
	}
	return f.articles[interest], nil
}

var curatorAccount = database.User{Id: 99, Username: "curator", IsCurator: true}

func newStats() *stats.MockStatsUpdater {
	st := &stats.MockStatsUpdater{}
	st.On("Incr", mock.Anything).Maybe()
	return st
}

func messageFor(params database.CreateMessageParams, externalId string) database.Message {
	return database.Message{
		Id:             params.RoomId * 10,
		RoomId:         params.RoomId,
		RoomExternalId: externalId,
		UserId:         params.UserId,
		Username:       "curator",
		Content:        params.Content,
		CuratorKind:    string(params.CuratorKind),
	}
}

func TestCurator_RunIdle(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-48 * time.Hour)
	rooms := []database.Room{
		{Id: 1, ExternalId: "r1", Name: "go", Interest: "golang", LastMessageAt: &last},
		{Id: 2, ExternalId: "r2", Name: "misc", Persona: "You are a pirate.", CreatedAt: last},
		{Id: 3, ExternalId: "r3", Name: "broken", Interest: "rust", LastMessageAt: &last},
	}

	repo := &database.MockRepository{}
	repo.On("GetCuratorAccount").Return(curatorAccount, nil)
	repo.On("ListIdleRooms", now).Return(rooms, nil)
	repo.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
		return p.RoomId != 3
	})).Return(func(p database.CreateMessageParams) database.Message {
		return messageFor(p, map[int]string{1: "r1", 2: "r2"}[p.RoomId])
	}, nil)

	gen := &llm.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.Contains(p, "golang") }),
		mock.MatchedBy(func(s string) bool { return strings.Contains(s, "golang") })).Return("what are you building?", nil)
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.Contains(p, "general discussion") }),
		"You are a pirate.").Return("ahoy, who's around?", nil)
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.Contains(p, "rust") }),
		mock.Anything).Return("", errors.New("quota exceeded"))

	pub := &recordingPublisher{}
	c := New(repo, gen, &stubFinder{}, pub, newStats(), testutil.TestLogger(t), WithClock(func() time.Time { return now }))

	summary, err := c.RunIdle(context.Background())
	require.NoError(t, err, "expected per-room failures not to fail the batch")
	assert.NotEmpty(t, summary.RunId, "expected a run id")
	assert.Equal(t, 2, summary.Processed, "expected two rooms processed")
	assert.Equal(t, 1, summary.Failed, "expected one room failed")

	require.Len(t, pub.events, 2, "expected an insert event per posted message")
	for _, ev := range pub.events {
		assert.Equal(t, types.ChangeInsert, ev.Kind)
		assert.Equal(t, types.CuratorIdle, ev.Message.CuratorKind, "expected idle curator kind")
		assert.Equal(t, ev.RoomId, ev.Message.RoomId)
	}
	repo.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestCurator_RunIdle_BatchErrors(t *testing.T) {
	tcases := []struct {
		name  string
		setup func(repo *database.MockRepository)
	}{
		{
			name: "curator account missing",
			setup: func(repo *database.MockRepository) {
				repo.On("GetCuratorAccount").Return(database.User{}, errors.New("no rows"))
			},
		},
		{
			name: "room query fails",
			setup: func(repo *database.MockRepository) {
				repo.On("GetCuratorAccount").Return(curatorAccount, nil)
				repo.On("ListIdleRooms", mock.Anything).Return(nil, errors.New("db down"))
			},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &database.MockRepository{}
			tc.setup(repo)

			c := New(repo, &llm.MockGenerator{}, &stubFinder{}, &recordingPublisher{}, newStats(), testutil.TestLogger(t))
			summary, err := c.RunIdle(context.Background())
			assert.Error(t, err, "expected batch error")
			assert.NotEmpty(t, summary.RunId, "expected run id even on failure")
		})
	}
}

func TestCurator_RunNews(t *testing.T) {
	repo := &database.MockRepository{}
	repo.On("GetCuratorAccount").Return(curatorAccount, nil)
	repo.On("ListNewsInterests").Return([]string{"golang", "rust", "cooking"}, nil)
	repo.On("ListRoomsByInterest", "golang").Return([]database.Room{
		{Id: 1, ExternalId: "g1", Interest: "golang", EnableArticleSummary: true},
		{Id: 2, ExternalId: "g2", Interest: "golang", EnableArticleSummary: false},
		{Id: 4, ExternalId: "g4", Interest: "golang", EnableArticleSummary: true},
	}, nil)
	repo.On("CreateMessage", mock.Anything).Return(func(p database.CreateMessageParams) database.Message {
		return messageFor(p, "g")
	}, nil)

	finder := &stubFinder{
		articles: map[string]*news.Article{
			"golang": {Title: "Go 2 released", URL: "https://example.com/go2"},
		},
		errs: map[string]error{"rust": errors.New("feed unavailable")},
	}

	gen := &llm.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.Contains(p, "Go 2 released") }),
		newsSystemInstruction).Return("Big news for gophers.", nil).Once()

	pub := &recordingPublisher{}
	c := New(repo, gen, finder, pub, newStats(), testutil.TestLogger(t))

	summary, err := c.RunNews(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed, "expected one message per enabled golang room")
	assert.Equal(t, 1, summary.Failed, "expected the failing interest to be counted")

	repo.AssertNumberOfCalls(t, "CreateMessage", 2)
	for _, call := range repo.Calls {
		if call.Method != "CreateMessage" {
			continue
		}
		p := call.Arguments.Get(0).(database.CreateMessageParams)
		assert.NotEqual(t, 2, p.RoomId, "expected disabled room to be skipped")
		assert.Equal(t, types.CuratorNews, p.CuratorKind)
		assert.Equal(t, curatorAccount.Id, p.UserId, "expected curator author")
		assert.Contains(t, p.Content, "https://example.com/go2", "expected article link in content")
	}
	gen.AssertExpectations(t)
}

func TestCurator_Answer(t *testing.T) {
	tcases := []struct {
		name        string
		room        database.Room
		expectedSys string
	}{
		{
			name:        "persona overrides default",
			room:        database.Room{Id: 5, ExternalId: "abc", Interest: "golang", Persona: "You are terse."},
			expectedSys: "You are terse.",
		},
		{
			name:        "default names interest",
			room:        database.Room{Id: 5, ExternalId: "abc", Interest: "golang"},
			expectedSys: "당신은 golang 주제의 채팅방을 담당하는 전문 AI 큐레이터입니다. 사용자의 질문에 대해 명확하고 간결하게 한국어로 답변해주세요.",
		},
		{
			name:        "default without interest",
			room:        database.Room{Id: 5, ExternalId: "abc"},
			expectedSys: "당신은 general 주제의 채팅방을 담당하는 전문 AI 큐레이터입니다. 사용자의 질문에 대해 명확하고 간결하게 한국어로 답변해주세요.",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &database.MockRepository{}
			repo.On("GetRoomById", 5).Return(tc.room, nil)
			repo.On("GetCuratorAccount").Return(curatorAccount, nil)
			repo.On("CreateMessage", database.CreateMessageParams{
				RoomId:      5,
				UserId:      curatorAccount.Id,
				Content:     "42",
				CuratorKind: types.CuratorQA,
			}).Return(database.Message{Id: 7, RoomId: 5, RoomExternalId: "abc", UserId: 99, Content: "42", CuratorKind: "qa"}, nil)

			gen := &llm.MockGenerator{}
			gen.On("Generate", mock.Anything, "what is the answer?", tc.expectedSys).Return("42", nil)

			pub := &recordingPublisher{}
			c := New(repo, gen, &stubFinder{}, pub, newStats(), testutil.TestLogger(t))

			msg, err := c.Answer(context.Background(), 5, "what is the answer?")
			require.NoError(t, err)
			assert.Equal(t, "42", msg.Content)
			assert.Equal(t, types.CuratorQA, msg.CuratorKind)
			require.Len(t, pub.events, 1, "expected insert event")
			assert.Equal(t, "abc", pub.events[0].RoomId)
			gen.AssertExpectations(t)
		})
	}
}

func TestCurator_AnswerFailures(t *testing.T) {
	repo := &database.MockRepository{}
	repo.On("GetRoomById", 5).Return(database.Room{Id: 5}, nil)
	repo.On("GetCuratorAccount").Return(curatorAccount, nil)

	gen := &llm.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", llm.ErrMissingAPIKey)

	c := New(repo, gen, &stubFinder{}, &recordingPublisher{}, newStats(), testutil.TestLogger(t))

	_, err := c.Answer(context.Background(), 5, "")
	assert.ErrorIs(t, err, ErrEmptyQuestion, "expected empty question error")

	_, err = c.Answer(context.Background(), 5, "hello?")
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey, "expected generator error to be wrapped")
	repo.AssertNotCalled(t, "CreateMessage", mock.Anything)
}

func TestCurator_PublishFailureKeepsMessage(t *testing.T) {
	repo := &database.MockRepository{}
	repo.On("GetRoomById", 5).Return(database.Room{Id: 5, ExternalId: "abc"}, nil)
	repo.On("GetCuratorAccount").Return(curatorAccount, nil)
	repo.On("CreateMessage", mock.Anything).Return(database.Message{Id: 7, RoomExternalId: "abc", Content: "ok"}, nil)

	gen := &llm.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("ok", nil)

	c := New(repo, gen, &stubFinder{}, &recordingPublisher{err: errors.New("closed")}, newStats(), testutil.TestLogger(t))
	msg, err := c.Answer(context.Background(), 5, "q")
	require.NoError(t, err, "expected stored message to be returned despite publish failure")
	assert.Equal(t, 7, msg.Id)
}

func conversation(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("message %d", i+1)
	}
	return lines
}

func TestCurator_RunSummaries(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	since := now.Add(-SummaryWindow)
	rooms := []database.Room{
		{Id: 1, ExternalId: "r1", Name: "go", Interest: "golang"},
		{Id: 2, ExternalId: "r2", Name: "quiet", Interest: "chess"},
		{Id: 3, ExternalId: "r3", Name: "broken", Interest: "rust"},
		{Id: 4, ExternalId: "r4", Name: "unreadable"},
	}

	repo := &database.MockRepository{}
	defer repo.AssertExpectations(t)
	repo.On("ListActiveRooms", since).Return(rooms, nil).Once()
	repo.On("ListMessageContents", 1, since).Return(conversation(MinSummaryMessages), nil).Once()
	repo.On("ListMessageContents", 2, since).Return(conversation(MinSummaryMessages-1), nil).Once()
	repo.On("ListMessageContents", 3, since).Return(conversation(12), nil).Once()
	repo.On("ListMessageContents", 4, since).Return(nil, errors.New("db down")).Once()
	repo.On("CreateRoomSummary", database.CreateRoomSummaryParams{
		RoomId:  1,
		Title:   summaryTitle,
		Content: "- people shared side projects",
	}).Return(database.RoomSummary{Id: 7, RoomId: 1}, nil).Once()

	gen := &llm.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.Contains(p, "message 10") }),
		mock.MatchedBy(func(s string) bool { return strings.Contains(s, "golang") })).Return("  - people shared side projects\n", nil).Once()
	gen.On("Generate", mock.Anything, mock.Anything,
		mock.MatchedBy(func(s string) bool { return strings.Contains(s, "rust") })).Return("", errors.New("quota exceeded")).Once()

	pub := &recordingPublisher{}
	c := New(repo, gen, &stubFinder{}, pub, newStats(), testutil.TestLogger(t), WithClock(func() time.Time { return now }))

	summary, err := c.RunSummaries(context.Background())
	require.NoError(t, err, "expected per-room failures not to fail the batch")
	assert.NotEmpty(t, summary.RunId)
	assert.Equal(t, 1, summary.Processed, "expected one digest written")
	assert.Equal(t, 2, summary.Failed, "expected the generate and list failures counted")
	assert.Empty(t, pub.events, "expected digests not to be posted as messages")
	gen.AssertExpectations(t)
}

func TestCurator_RunSummaries_ListFails(t *testing.T) {
	repo := &database.MockRepository{}
	repo.On("ListActiveRooms", mock.Anything).Return(nil, errors.New("db down"))

	c := New(repo, &llm.MockGenerator{}, &stubFinder{}, &recordingPublisher{}, newStats(), testutil.TestLogger(t))
	summary, err := c.RunSummaries(context.Background())
	assert.Error(t, err, "expected batch error")
	assert.NotEmpty(t, summary.RunId, "expected run id even on failure")
}
