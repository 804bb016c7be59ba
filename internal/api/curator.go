package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/npezzotti/topichat/internal/curator"
	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

// CuratorService runs the curator batches and answers questions.
type CuratorService interface {
	RunIdle(ctx context.Context) (curator.Summary, error)
	RunNews(ctx context.Context) (curator.Summary, error)
	RunSummaries(ctx context.Context) (curator.Summary, error)
	Answer(ctx context.Context, roomId int, question string) (types.Message, error)
}

type curatorResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	*curator.Summary
	Data *types.Message `json:"data,omitempty"`
}

func (s *GoChatApp) curatorUnavailable(w http.ResponseWriter) bool {
	if s.curator != nil {
		return false
	}
	s.writeJson(w, http.StatusServiceUnavailable, curatorResponse{Error: "curator is not configured"})
	return true
}

func (s *GoChatApp) runBatch(w http.ResponseWriter, r *http.Request, name string, run func(context.Context) (curator.Summary, error)) {
	summary, err := run(r.Context())
	if err != nil {
		s.log.Error("curator batch failed", zap.String("job", name), zap.Error(err))
		s.writeJson(w, http.StatusInternalServerError, curatorResponse{Error: err.Error()})
		return
	}

	s.writeJson(w, http.StatusOK, curatorResponse{
		Message: name + " run complete",
		Summary: &summary,
	})
}

func (s *GoChatApp) runIdle(w http.ResponseWriter, r *http.Request) {
	if s.curatorUnavailable(w) {
		return
	}
	s.runBatch(w, r, "idle", s.curator.RunIdle)
}

func (s *GoChatApp) runNews(w http.ResponseWriter, r *http.Request) {
	if s.curatorUnavailable(w) {
		return
	}
	s.runBatch(w, r, "news", s.curator.RunNews)
}

func (s *GoChatApp) runSummaries(w http.ResponseWriter, r *http.Request) {
	if s.curatorUnavailable(w) {
		return
	}
	s.runBatch(w, r, "summaries", s.curator.RunSummaries)
}

// askCurator answers a question in a room as the curator. Requests are
// limited per room.
func (s *GoChatApp) askCurator(w http.ResponseWriter, r *http.Request) {
	if s.curatorUnavailable(w) {
		return
	}

	var req AskCuratorRequest
	if err := s.decodeRequest(r, &req); err != nil {
		s.writeJson(w, http.StatusBadRequest, curatorResponse{Error: "room_id and question are required"})
		return
	}

	room, err := s.db.GetRoomByExternalId(req.RoomId)
	if errors.Is(err, sql.ErrNoRows) {
		s.writeJson(w, http.StatusNotFound, curatorResponse{Error: "room not found"})
		return
	}
	if err != nil {
		s.writeJson(w, http.StatusInternalServerError, curatorResponse{Error: err.Error()})
		return
	}

	if !s.qaLimiter.Allow(room.ExternalId) {
		s.writeJson(w, http.StatusTooManyRequests, curatorResponse{Error: "too many questions, try again later"})
		return
	}

	msg, err := s.curator.Answer(r.Context(), room.Id, req.Question)
	if err != nil {
		s.log.Error("curator answer failed", zap.String("room_id", room.ExternalId), zap.Error(err))
		s.writeJson(w, http.StatusInternalServerError, curatorResponse{Error: err.Error()})
		return
	}

	masked := msg.Masked()
	s.writeJson(w, http.StatusOK, curatorResponse{Message: "curator response sent", Data: &masked})
}
