package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/thread"
	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

// getComments returns the comment forest of a message, masked for display.
func (s *GoChatApp) getComments(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, err := pathId(r)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetMessage(id, userId); err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rows, err := s.db.ListComments(id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	comments := make([]types.Comment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, row.Wire())
	}

	s.writeJson(w, http.StatusOK, thread.Mask(thread.BuildTree(comments)))
}

func (s *GoChatApp) createComment(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, err := pathId(r)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateCommentRequest
	if err := s.decodeRequest(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetMessage(id, userId); err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.ReplyingToId != nil {
		parent, err := s.db.GetComment(*req.ReplyingToId)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && parent.MessageId != id) {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	comment, err := s.db.CreateComment(database.CreateCommentParams{
		MessageId:    id,
		UserId:       userId,
		Content:      req.Content,
		ReplyingToId: req.ReplyingToId,
	})
	if err != nil {
		s.log.Error("create comment", zap.Int("message_id", id), zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// the parent's comment count changed
	if row, err := s.db.GetMessage(id, userId); err != nil {
		s.log.Warn("reload message after comment", zap.Int("message_id", id), zap.Error(err))
	} else {
		s.publish(r.Context(), types.ChangeUpdate, row.Wire())
	}

	s.writeJson(w, http.StatusCreated, comment.Wire())
}

func (s *GoChatApp) deleteComment(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, err := pathId(r)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	comment, err := s.db.GetComment(id)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if comment.UserId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.SoftDeleteComment(comment.Id); err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
