package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/topichat/internal/config"
	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/server"
	"github.com/npezzotti/topichat/internal/stats"
	"github.com/npezzotti/topichat/internal/testutil"
	"github.com/npezzotti/topichat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func Test_createRoom(t *testing.T) {
	mockRoom := database.Room{
		Id:          1,
		Name:        "Test Room",
		ExternalId:  "EoGKUXPHgz",
		Description: "This is a test room",
		Interest:    "go",
		OwnerId:     1,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	tcases := []struct {
		name        string
		userId      int
		body        any
		shortIdErr  error
		callsDb     bool
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name:    "creates a room",
			userId:  1,
			body:    CreateRoomRequest{Name: mockRoom.Name, Description: mockRoom.Description, Interest: "go"},
			callsDb: true,
		},
		{
			name:        "invalid body",
			userId:      1,
			body:        "invalid json",
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "missing name",
			userId:      1,
			body:        CreateRoomRequest{Description: "no name"},
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "unauthorized",
			body:        CreateRoomRequest{Name: mockRoom.Name},
			expectedErr: NewUnauthorizedError(),
		},
		{
			name:        "short id failure",
			userId:      1,
			body:        CreateRoomRequest{Name: mockRoom.Name},
			shortIdErr:  errors.New("entropy"),
			expectedErr: NewInternalServerError(nil),
		},
		{
			name:        "db error",
			userId:      1,
			body:        CreateRoomRequest{Name: mockRoom.Name, Description: mockRoom.Description, Interest: "go"},
			callsDb:     true,
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.callsDb {
				mockRepo.On("CreateRoom", database.CreateRoomParams{
					Name:        mockRoom.Name,
					Description: mockRoom.Description,
					Interest:    "go",
					OwnerId:     tc.userId,
					ExternalId:  mockRoom.ExternalId,
				}).Return(mockRoom, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			app.generateShortId = func() (string, error) {
				if tc.shortIdErr != nil {
					return "", tc.shortIdErr
				}
				return mockRoom.ExternalId, nil
			}

			rr := httptest.NewRecorder()
			app.createRoom(rr, newRequest(t, http.MethodPost, "/api/rooms", tc.body, tc.userId))

			if tc.expectedErr != nil {
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code, "expected status code to match")
				assert.Equal(t, *tc.expectedErr, decodeApiError(t, rr), "expected ApiError response")
				return
			}

			assert.Equal(t, http.StatusCreated, rr.Code)
			var room types.Room
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
			assert.Equal(t, mockRoom.Id, room.Id, "expected room id to match")
			assert.Equal(t, mockRoom.ExternalId, room.ExternalId, "expected room external id to match")
			assert.Equal(t, mockRoom.Interest, room.Interest, "expected room interest to match")
			assert.Equal(t, mockRoom.OwnerId, room.OwnerId, "expected room owner id to match requester ID")
		})
	}
}

func Test_getRoom(t *testing.T) {
	room := database.Room{Id: 3, ExternalId: "abc", Name: "go", OwnerId: 2}

	tcases := []struct {
		name     string
		sub      database.Subscription
		subErr   error
		status   int
		isMember bool
		isAdmin  bool
	}{
		{name: "admin member", sub: database.Subscription{IsAdmin: true}, status: http.StatusOK, isMember: true, isAdmin: true},
		{name: "plain member", sub: database.Subscription{}, status: http.StatusOK, isMember: true},
		{name: "not a member", subErr: sql.ErrNoRows, status: http.StatusOK},
		{name: "subscription lookup fails", subErr: errors.New("db error"), status: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("GetRoomByExternalId", "abc").Return(room, nil).Once()
			mockRepo.On("GetSubscription", 1, room.Id).Return(tc.sub, tc.subErr).Once()

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.getRoom(rr, newRequest(t, http.MethodGet, "/api/rooms?id=abc", nil, 1))

			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}
			var access types.RoomAccess
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&access))
			assert.Equal(t, "abc", access.Room.ExternalId)
			assert.Equal(t, tc.isMember, access.IsMember, "expected membership to match")
			assert.Equal(t, tc.isAdmin, access.IsAdmin, "expected admin flag to match")
		})
	}

	t.Run("missing id", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{})
		rr := httptest.NewRecorder()
		app.getRoom(rr, newRequest(t, http.MethodGet, "/api/rooms", nil, 1))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown room", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetRoomByExternalId", "nope").Return(database.Room{}, sql.ErrNoRows).Once()
		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.getRoom(rr, newRequest(t, http.MethodGet, "/api/rooms?id=nope", nil, 1))
		assert.Equal(t, *NewNotFoundError(), decodeApiError(t, rr))
	})
}

func Test_updateRoomSettings(t *testing.T) {
	room := database.Room{Id: 3, ExternalId: "abc", Name: "go"}
	body := UpdateRoomSettingsRequest{Name: "golang", Persona: "You are a gopher.", IdleThresholdMinutes: 60, EnableArticleSummary: true}

	t.Run("admin updates settings", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", "abc").Return(room, nil).Once()
		mockRepo.On("GetSubscription", 1, 3).Return(database.Subscription{IsAdmin: true}, nil).Once()
		updated := room
		updated.Name = "golang"
		updated.Persona = body.Persona
		updated.IdleThresholdMinutes = 60
		updated.EnableArticleSummary = true
		mockRepo.On("UpdateRoomSettings", database.UpdateRoomSettingsParams{
			RoomId:               3,
			Name:                 "golang",
			Persona:              body.Persona,
			IdleThresholdMinutes: 60,
			EnableArticleSummary: true,
		}).Return(updated, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.updateRoomSettings(rr, newRequest(t, http.MethodPut, "/api/rooms/settings?id=abc", body, 1))

		assert.Equal(t, http.StatusOK, rr.Code)
		var got types.Room
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, 60, got.IdleThresholdMinutes)
		assert.True(t, got.EnableArticleSummary)
	})

	t.Run("non-admin is forbidden", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", "abc").Return(room, nil).Once()
		mockRepo.On("GetSubscription", 1, 3).Return(database.Subscription{}, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.updateRoomSettings(rr, newRequest(t, http.MethodPut, "/api/rooms/settings?id=abc", body, 1))

		assert.Equal(t, *NewForbiddenError(), decodeApiError(t, rr))
	})

	t.Run("non-member is forbidden", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", "abc").Return(room, nil).Once()
		mockRepo.On("GetSubscription", 1, 3).Return(database.Subscription{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.updateRoomSettings(rr, newRequest(t, http.MethodPut, "/api/rooms/settings?id=abc", body, 1))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("negative idle threshold is rejected", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{})
		rr := httptest.NewRecorder()
		bad := UpdateRoomSettingsRequest{Name: "golang", IdleThresholdMinutes: -1}
		app.updateRoomSettings(rr, newRequest(t, http.MethodPut, "/api/rooms/settings?id=abc", bad, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func Test_deleteRoom(t *testing.T) {
	mockRoom := database.Room{Id: 1, Name: "Test Room", ExternalId: "EoGKUXPHgz", OwnerId: 1}

	tcases := []struct {
		name        string
		userId      int
		roomErr     error
		deleteErr   error
		callsDelete bool
		expectedErr *ApiError
	}{
		{name: "owner deletes room", userId: 1, callsDelete: true},
		{name: "non-owner is forbidden", userId: 2, expectedErr: NewForbiddenError()},
		{name: "room not found", userId: 1, roomErr: sql.ErrNoRows, expectedErr: NewNotFoundError()},
		{name: "delete fails", userId: 1, callsDelete: true, deleteErr: errors.New("db error"), expectedErr: NewInternalServerError(nil)},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			su := &stats.MockStatsUpdater{}
			su.On("RegisterMetric", mock.Anything).Return().Times(2)
			cs, err := server.NewChatServer(testutil.TestLogger(t), mockRepo, su)
			require.NoError(t, err)
			go cs.Run()
			defer cs.Shutdown(t.Context())

			mockRepo.On("GetRoomByExternalId", mockRoom.ExternalId).Return(mockRoom, tc.roomErr).Once()
			if tc.callsDelete {
				mockRepo.On("DeleteRoom", mockRoom.Id).Return(tc.deleteErr).Once()
			}

			app := NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), cs, mockRepo, nil, &config.Config{})
			rr := httptest.NewRecorder()
			app.deleteRoom(rr, newRequest(t, http.MethodDelete, "/api/rooms?id="+mockRoom.ExternalId, nil, tc.userId))

			if tc.expectedErr != nil {
				assert.Equal(t, *tc.expectedErr, decodeApiError(t, rr))
				return
			}
			assert.Equal(t, http.StatusNoContent, rr.Code)
		})
	}
}

func Test_getUsersSubscriptions(t *testing.T) {
	readAt := time.Now().UTC().Truncate(time.Second)
	dbSubs := []database.Subscription{
		{
			Id:         1,
			AccountId:  1,
			Username:   "testuser",
			RoomId:     3,
			IsAdmin:    true,
			LastReadAt: &readAt,
			Room:       database.Room{Id: 3, ExternalId: "abc", Name: "go"},
		},
	}

	t.Run("lists subscriptions", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("ListSubscriptions", 1).Return(dbSubs, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.getUsersSubscriptions(rr, newRequest(t, http.MethodGet, "/api/subscriptions", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)
		var subs []types.Subscription
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&subs))
		require.Len(t, subs, 1)
		assert.Equal(t, "abc", subs[0].Room.ExternalId)
		assert.Equal(t, "testuser", subs[0].User.Username)
		assert.True(t, subs[0].IsAdmin)
		require.NotNil(t, subs[0].LastReadAt)
		assert.True(t, readAt.Equal(*subs[0].LastReadAt), "expected last read time to match")
	})

	t.Run("empty list is an empty array", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("ListSubscriptions", 1).Return([]database.Subscription{}, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.getUsersSubscriptions(rr, newRequest(t, http.MethodGet, "/api/subscriptions", nil, 1))

		assert.JSONEq(t, "[]", rr.Body.String())
	})
}

func Test_markRead(t *testing.T) {
	room := database.Room{Id: 3, ExternalId: "abc"}

	tcases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "advances watermark", status: http.StatusNoContent},
		{name: "not subscribed", err: sql.ErrNoRows, status: http.StatusNotFound},
		{name: "db error", err: errors.New("db error"), status: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("GetRoomByExternalId", "abc").Return(room, nil).Once()
			mockRepo.On("UpdateLastReadAt", 1, 3, mock.MatchedBy(func(ts time.Time) bool {
				return time.Since(ts) < time.Minute
			})).Return(tc.err).Once()

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.markRead(rr, newRequest(t, http.MethodPost, "/api/rooms/read?id=abc", nil, 1))

			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func Test_getRoomSummaries(t *testing.T) {
	room := database.Room{Id: 3, ExternalId: "abc"}
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []database.RoomSummary{
		{Id: 2, RoomId: 3, Title: "오늘의 대화 요약", Content: "- newer", CreatedAt: created},
		{Id: 1, RoomId: 3, Title: "오늘의 대화 요약", Content: "- older", CreatedAt: created.Add(-24 * time.Hour)},
	}

	t.Run("lists newest first", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", "abc").Return(room, nil).Once()
		mockRepo.On("ListRoomSummaries", 3, defaultSummaryLimit).Return(rows, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.getRoomSummaries(rr, newRequest(t, http.MethodGet, "/api/rooms/summaries?id=abc", nil, 1))

		require.Equal(t, http.StatusOK, rr.Code)
		var got []types.RoomSummary
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		require.Len(t, got, 2)
		assert.Equal(t, "abc", got[0].RoomId, "expected the external room id")
		assert.Equal(t, "- newer", got[0].Content)
		assert.Equal(t, 1, got[1].Id)
	})

	tcases := []struct {
		name   string
		target string
		setup  func(repo *database.MockRepository)
		status int
	}{
		{name: "missing id", target: "/api/rooms/summaries", status: http.StatusBadRequest},
		{name: "bad limit", target: "/api/rooms/summaries?id=abc&limit=-1", status: http.StatusBadRequest},
		{
			name:   "unknown room",
			target: "/api/rooms/summaries?id=abc",
			setup: func(repo *database.MockRepository) {
				repo.On("GetRoomByExternalId", "abc").Return(database.Room{}, sql.ErrNoRows).Once()
			},
			status: http.StatusNotFound,
		},
		{
			name:   "db error",
			target: "/api/rooms/summaries?id=abc&limit=500",
			setup: func(repo *database.MockRepository) {
				repo.On("GetRoomByExternalId", "abc").Return(room, nil).Once()
				repo.On("ListRoomSummaries", 3, maxPageSize).Return(nil, errors.New("db error")).Once()
			},
			status: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.setup != nil {
				tc.setup(mockRepo)
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.getRoomSummaries(rr, newRequest(t, http.MethodGet, tc.target, nil, 1))

			assert.Equal(t, tc.status, rr.Code)
		})
	}
}
