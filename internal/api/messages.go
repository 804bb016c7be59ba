package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/stats"
	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

// getMessages returns one page of a room's messages, newest first.
func (s *GoChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("room_id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rows, err := s.db.GetMessages(room.Id, userId, offset, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.Wire().Masked())
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *GoChatApp) getMessage(w http.ResponseWriter, r *http.Request) {
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

	row, err := s.db.GetMessage(id, userId)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, row.Wire().Masked())
}

func (s *GoChatApp) createMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateMessageRequest
	if err := s.decodeRequest(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(req.RoomId)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.ReplyingToId != nil {
		parent, err := s.db.GetMessage(*req.ReplyingToId, userId)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && parent.RoomId != room.Id) {
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

	row, err := s.db.CreateMessage(database.CreateMessageParams{
		RoomId:       room.Id,
		UserId:       userId,
		Content:      req.Content,
		ReplyingToId: req.ReplyingToId,
		CuratorKind:  types.CuratorNone,
	})
	if err != nil {
		s.log.Error("create message", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	s.incr(stats.MessagesCreated)

	msg := row.Wire()
	s.publish(r.Context(), types.ChangeInsert, msg)

	s.writeJson(w, http.StatusCreated, msg.Masked())
}

// deleteMessage soft-deletes a message owned by the viewer. Replies keep
// their own content.
func (s *GoChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
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

	row, err := s.db.GetMessage(id, userId)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if row.UserId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !row.IsDeleted {
		if err := s.db.SoftDeleteMessage(row.Id); err != nil {
			errResp := dbError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		row.IsDeleted = true
		s.publish(r.Context(), types.ChangeUpdate, row.Wire())
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) toggleReaction(w http.ResponseWriter, r *http.Request) {
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

	var req ReactionRequest
	if err := s.decodeRequest(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	row, err := s.db.GetMessage(id, userId)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	state, err := s.db.ToggleReaction(row.Id, userId, types.ReactionKind(req.Kind))
	if err != nil {
		s.log.Error("toggle reaction", zap.Int("message_id", row.Id), zap.Error(err))
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	s.incr(stats.ReactionsToggled)

	s.publish(r.Context(), types.ChangeUpdate, row.Wire().WithReactions(state))

	s.writeJson(w, http.StatusOK, state)
}
