// Package client talks to a topichat server over its HTTP API and websocket
// endpoint on behalf of one signed-in user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/topichat/internal/command"
	"github.com/npezzotti/topichat/internal/feed"
	"github.com/npezzotti/topichat/internal/reaction"
	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	}
	return false
}

type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	log    *zap.Logger
}

var (
	_ feed.Store      = (*Client)(nil)
	_ feed.ChangeFeed = (*Client)(nil)
	_ reaction.Store  = (*Client)(nil)
	_ command.Asker   = (*Client)(nil)
)

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// New returns a client for the server at baseURL. The session cookie set by
// Login is kept in a cookie jar shared by HTTP requests and the websocket.
func New(baseURL string, logger *zap.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", base.Scheme)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		base: base,
		http: &http.Client{Jar: jar, Timeout: defaultTimeout},
		dialer: &websocket.Dialer{
			Jar:              jar,
			HandshakeTimeout: 10 * time.Second,
		},
		log: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// errorBody covers both error shapes the server writes.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		msg := eb.Message
		if eb.Error != "" {
			msg = eb.Error
		}
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Register(ctx context.Context, email, username, password string) (types.User, error) {
	var u types.User
	err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	}, &u)
	return u, err
}

func (c *Client) Login(ctx context.Context, email, password string) (types.User, error) {
	var u types.User
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, map[string]string{
		"email":    email,
		"password": password,
	}, &u)
	return u, err
}

func (c *Client) Session(ctx context.Context) (types.User, error) {
	var u types.User
	err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, nil, &u)
	return u, err
}

// SetInterests replaces the user's interests and joins the matching rooms.
func (c *Client) SetInterests(ctx context.Context, interests []string) (types.User, error) {
	var u types.User
	err := c.do(ctx, http.MethodPut, "/api/account/interests", nil, map[string][]string{
		"interests": interests,
	}, &u)
	return u, err
}

func (c *Client) Subscriptions(ctx context.Context) ([]types.Subscription, error) {
	var subs []types.Subscription
	err := c.do(ctx, http.MethodGet, "/api/subscriptions", nil, nil, &subs)
	return subs, err
}

func (c *Client) Room(ctx context.Context, roomId string) (types.RoomAccess, error) {
	var ra types.RoomAccess
	err := c.do(ctx, http.MethodGet, "/api/rooms", url.Values{"id": {roomId}}, nil, &ra)
	return ra, err
}

func (c *Client) ListMessages(ctx context.Context, roomId string, offset, limit int) ([]types.Message, error) {
	q := url.Values{
		"room_id": {roomId},
		"offset":  {strconv.Itoa(offset)},
		"limit":   {strconv.Itoa(limit)},
	}
	var msgs []types.Message
	err := c.do(ctx, http.MethodGet, "/api/messages", q, nil, &msgs)
	return msgs, err
}

func (c *Client) GetMessage(ctx context.Context, id int) (types.Message, error) {
	var m types.Message
	err := c.do(ctx, http.MethodGet, "/api/messages/"+strconv.Itoa(id), nil, nil, &m)
	return m, err
}

func (c *Client) InsertMessage(ctx context.Context, roomId, content string, replyingTo *int) (types.Message, error) {
	var m types.Message
	err := c.do(ctx, http.MethodPost, "/api/messages", nil, map[string]any{
		"room_id":        roomId,
		"content":        content,
		"replying_to_id": replyingTo,
	}, &m)
	return m, err
}

func (c *Client) DeleteMessage(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/api/messages/"+strconv.Itoa(id), nil, nil, nil)
}

func (c *Client) MarkRead(ctx context.Context, roomId string) error {
	return c.do(ctx, http.MethodPost, "/api/rooms/read", url.Values{"id": {roomId}}, nil, nil)
}

func (c *Client) ToggleReaction(ctx context.Context, messageId int, kind types.ReactionKind) (types.ReactionState, error) {
	var s types.ReactionState
	err := c.do(ctx, http.MethodPost, "/api/messages/"+strconv.Itoa(messageId)+"/reactions", nil, map[string]string{
		"kind": string(kind),
	}, &s)
	return s, err
}

// AskCurator asks the room's Q&A curator. The answer arrives in the room
// like any other message.
func (c *Client) AskCurator(ctx context.Context, roomId, question string) error {
	return c.do(ctx, http.MethodPost, "/api/curator/qa", nil, map[string]string{
		"room_id":  roomId,
		"question": question,
	}, nil)
}

func (c *Client) Comments(ctx context.Context, messageId int) ([]*types.CommentTree, error) {
	var forest []*types.CommentTree
	err := c.do(ctx, http.MethodGet, "/api/messages/"+strconv.Itoa(messageId)+"/comments", nil, nil, &forest)
	return forest, err
}

func (c *Client) AddComment(ctx context.Context, messageId int, content string, replyingTo *int) (types.Comment, error) {
	var cm types.Comment
	err := c.do(ctx, http.MethodPost, "/api/messages/"+strconv.Itoa(messageId)+"/comments", nil, map[string]any{
		"content":        content,
		"replying_to_id": replyingTo,
	}, &cm)
	return cm, err
}

func (c *Client) DeleteComment(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/api/comments/"+strconv.Itoa(id), nil, nil, nil)
}
