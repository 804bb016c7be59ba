package api

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/topichat/internal/config"
	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/server"
	"github.com/npezzotti/topichat/internal/stats"
	"github.com/npezzotti/topichat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func Test_serveWs(t *testing.T) {
	mockUser := database.User{
		Id:           1,
		Username:     "testuser",
		EmailAddress: "testuser@example.com",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	t.Run("successful websocket upgrade and client registration", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		su.On("RegisterMetric", mock.Anything).Return().Times(2)
		su.On("Incr", stats.ConnectedClients).Return().Once()
		su.On("Decr", stats.ConnectedClients).Return().Maybe()

		cs, err := server.NewChatServer(testutil.TestLogger(t), mockRepo, su)
		require.NoError(t, err, "failed to create chat server")
		go cs.Run()
		defer cs.Shutdown(t.Context())

		mockRepo.On("GetAccountById", mockUser.Id).Return(mockUser, nil).Once()

		cfg := &config.Config{AllowedOrigins: []string{"http://allowed.example"}}
		app := NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), cs, mockRepo, nil, cfg)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			app.serveWs(w, r.WithContext(WithUserId(r.Context(), 1)))
		}))
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://allowed.example"}})
		require.NoError(t, err)
		defer conn.Close()
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	})

	t.Run("disallowed origin is rejected", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		mockRepo.On("GetAccountById", mockUser.Id).Return(mockUser, nil).Once()

		cfg := &config.Config{AllowedOrigins: []string{"http://allowed.example"}}
		app := NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, mockRepo, nil, cfg)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			app.serveWs(w, r.WithContext(WithUserId(r.Context(), 1)))
		}))
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example"}})
		assert.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	errorTestCases := []struct {
		name        string
		userId      int
		mockErr     error
		expectedErr *ApiError
	}{
		{name: "unauthorized user", userId: 0, expectedErr: NewUnauthorizedError()},
		{name: "user not found", userId: 1, mockErr: sql.ErrNoRows, expectedErr: NewNotFoundError()},
		{name: "db error", userId: 1, mockErr: errors.New("db error"), expectedErr: NewInternalServerError(nil)},
	}

	for _, tc := range errorTestCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.userId > 0 {
				mockRepo.On("GetAccountById", tc.userId).Return(database.User{}, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.serveWs(rr, newRequest(t, http.MethodGet, "/ws", nil, tc.userId))

			apiErr := decodeApiError(t, rr)
			assert.Equal(t, apiErr.StatusCode, rr.Code)
			assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError to match")
		})
	}
}
