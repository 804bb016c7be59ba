package api

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

func (s *GoChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var createRoomReq CreateRoomRequest
	if err := s.decodeRequest(r, &createRoomReq); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Error("generate short id", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newRoom, err := s.db.CreateRoom(database.CreateRoomParams{
		Name:        createRoomReq.Name,
		Description: createRoomReq.Description,
		Interest:    createRoomReq.Interest,
		OwnerId:     userId,
		ExternalId:  sid,
	})
	if err != nil {
		s.log.Error("create room", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, newRoom.Wire())
}

// roomAccess resolves the viewer's membership of a room once, on entry.
func (s *GoChatApp) roomAccess(userId int, room database.Room) (types.RoomAccess, error) {
	access := types.RoomAccess{Room: room.Wire()}
	sub, err := s.db.GetSubscription(userId, room.Id)
	if errors.Is(err, sql.ErrNoRows) {
		return access, nil
	}
	if err != nil {
		return access, err
	}
	access.IsMember = true
	access.IsAdmin = sub.IsAdmin
	return access, nil
}

func (s *GoChatApp) getRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	access, err := s.roomAccess(userId, room)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, access)
}

func (s *GoChatApp) updateRoomSettings(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateRoomSettingsRequest
	if err := s.decodeRequest(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	access, err := s.roomAccess(userId, room)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !access.IsAdmin {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	updated, err := s.db.UpdateRoomSettings(database.UpdateRoomSettingsParams{
		RoomId:               room.Id,
		Name:                 req.Name,
		Persona:              req.Persona,
		IdleThresholdMinutes: req.IdleThresholdMinutes,
		EnableArticleSummary: req.EnableArticleSummary,
	})
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, updated.Wire())
}

func (s *GoChatApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if room.OwnerId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteRoom(room.Id); err != nil {
		s.log.Error("delete room", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if s.cs != nil {
		if err := s.cs.DeleteRoom(r.Context(), room.ExternalId); err != nil {
			s.log.Error("delete room from chat server", zap.Error(err))
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *GoChatApp) getUsersSubscriptions(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbSubs, err := s.db.ListSubscriptions(userId)
	if err != nil {
		s.log.Error("list subscriptions", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	subs := make([]types.Subscription, 0, len(dbSubs))
	for _, dbSub := range dbSubs {
		subs = append(subs, types.Subscription{
			Id:         dbSub.Id,
			User:       types.User{Id: dbSub.AccountId, Username: dbSub.Username},
			Room:       dbSub.Room.Wire(),
			IsAdmin:    dbSub.IsAdmin,
			LastReadAt: dbSub.LastReadAt,
			CreatedAt:  dbSub.CreatedAt,
			UpdatedAt:  dbSub.UpdatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, subs)
}

// markRead advances the viewer's last-read watermark for a room.
func (s *GoChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.UpdateLastReadAt(userId, room.Id, time.Now().UTC()); err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getRoomSummaries lists the curator's digests of a room, newest first.
func (s *GoChatApp) getRoomSummaries(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserId(r.Context()); !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit, err := queryInt(r, "limit", defaultSummaryLimit)
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

	rows, err := s.db.ListRoomSummaries(room.Id, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	summaries := make([]types.RoomSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, row.Wire(room.ExternalId))
	}

	s.writeJson(w, http.StatusOK, summaries)
}
