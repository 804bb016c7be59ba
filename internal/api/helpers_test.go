package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/npezzotti/topichat/internal/config"
	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/testutil"
	"github.com/npezzotti/topichat/internal/types"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

func newTestApp(t *testing.T, db database.Repository, opts ...AppOption) *GoChatApp {
	t.Helper()
	cfg := &config.Config{SigningKey: testSigningKey}
	return NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, db, nil, cfg, opts...)
}

// newRequest builds a request with an optional JSON body and, when userId
// is positive, an authenticated context.
func newRequest(t *testing.T, method, target string, body any, userId int) *http.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(buf).Encode(b), "failed to encode request body")
	}

	req := httptest.NewRequest(method, target, buf)
	if userId > 0 {
		req = req.WithContext(WithUserId(req.Context(), userId))
	}
	return req
}

func decodeApiError(t *testing.T, rr *httptest.ResponseRecorder) ApiError {
	t.Helper()
	var apiErr ApiError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr), "failed to decode error response")
	return apiErr
}

// findCookie is a helper function to find a cookie by name in the response recorder.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev types.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []types.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.ChangeEvent(nil), p.events...)
}
