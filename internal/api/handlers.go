package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

const (
	defaultPageSize     = 30
	maxPageSize         = 100
	defaultSummaryLimit = 7
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,max=32"`
	Password string `json:"password" validate:"required,min=6"`
}

type UpdateAccountRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Password string `json:"password" validate:"required,min=6"`
}

type UpdateInterestsRequest struct {
	Interests []string `json:"interests" validate:"max=20,dive,required,max=64"`
}

type CreateRoomRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Interest    string `json:"interest" validate:"max=64"`
}

type UpdateRoomSettingsRequest struct {
	Name                 string `json:"name" validate:"required,max=100"`
	Persona              string `json:"persona" validate:"max=2000"`
	IdleThresholdMinutes int    `json:"idle_threshold_minutes" validate:"min=0,max=10080"`
	EnableArticleSummary bool   `json:"enable_article_summary"`
}

type CreateMessageRequest struct {
	RoomId       string `json:"room_id" validate:"required"`
	Content      string `json:"content" validate:"required,max=4000"`
	ReplyingToId *int   `json:"replying_to_id,omitempty"`
}

type ReactionRequest struct {
	Kind string `json:"kind" validate:"required,oneof=like dislike"`
}

type CreateCommentRequest struct {
	Content      string `json:"content" validate:"required,max=2000"`
	ReplyingToId *int   `json:"replying_to_id,omitempty"`
}

type AskCuratorRequest struct {
	RoomId   string `json:"room_id" validate:"required"`
	Question string `json:"question" validate:"required"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("json encode", zap.Error(err))
	}
}

// decodeRequest reads a JSON body into v and validates its struct tags.
func (s *GoChatApp) decodeRequest(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("validate body: %w", err)
	}
	return nil
}

func pathId(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}
