package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/npezzotti/topichat/internal/database"
	"go.uber.org/zap"
)

func (s *GoChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := s.decodeRequest(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	}

	newUser, err := s.db.CreateAccount(params)
	if err != nil {
		s.log.Error("create account", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, newUser.Wire())
}

func (s *GoChatApp) account(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.session(w, r)
	case http.MethodPut:
		userId, ok := UserId(r.Context())
		if !ok {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		curUser, err := s.db.GetAccountById(userId)
		if err != nil {
			errResp := dbError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		var req UpdateAccountRequest
		if err := s.decodeRequest(r, &req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		pwdHash, err := hashPassword(req.Password)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		dbUser, err := s.db.UpdateAccount(database.UpdateAccountParams{
			UserId:       curUser.Id,
			Username:     req.Username,
			PasswordHash: pwdHash,
		})
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, dbUser.Wire())
	default:
		errResp := NewMethodNotAllowedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	}
}

func (s *GoChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, user.Wire())
}

func (s *GoChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := s.decodeRequest(r, &lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := dbUser.Wire()
	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// a failed assignment must not block the session
	if err := s.assignInterestRooms(dbUser.Id, dbUser.Interests); err != nil {
		s.log.Warn("assign interest rooms", zap.Int("user_id", dbUser.Id), zap.Error(err))
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, u)
}

func (s *GoChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) updateInterests(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateInterestsRequest
	if err := s.decodeRequest(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.UpdateInterests(userId, normalizeInterests(req.Interests))
	if err != nil {
		errResp := dbError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.assignInterestRooms(dbUser.Id, dbUser.Interests); err != nil {
		s.log.Error("assign interest rooms", zap.Int("user_id", dbUser.Id), zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, dbUser.Wire())
}

// normalizeInterests trims each interest and drops blanks and duplicates,
// keeping first occurrence order.
func normalizeInterests(interests []string) []string {
	seen := make(map[string]struct{}, len(interests))
	out := make([]string, 0, len(interests))
	for _, in := range interests {
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		if _, ok := seen[in]; ok {
			continue
		}
		seen[in] = struct{}{}
		out = append(out, in)
	}
	return out
}

// assignInterestRooms subscribes the user to one room per interest,
// creating the room under the curator account when none exists yet.
func (s *GoChatApp) assignInterestRooms(userId int, interests []string) error {
	if len(interests) == 0 {
		return nil
	}

	var curatorId int
	for _, interest := range interests {
		room, err := s.db.GetRoomByInterest(interest)
		if errors.Is(err, sql.ErrNoRows) {
			if curatorId == 0 {
				acc, err := s.db.GetCuratorAccount()
				if err != nil {
					return fmt.Errorf("get curator account: %w", err)
				}
				curatorId = acc.Id
			}

			sid, err := s.generateShortId()
			if err != nil {
				return fmt.Errorf("generate short id: %w", err)
			}

			room, err = s.db.CreateRoom(database.CreateRoomParams{
				Name:        interest,
				Description: fmt.Sprintf("A chatroom for %s", interest),
				Interest:    interest,
				OwnerId:     curatorId,
				ExternalId:  sid,
			})
			if err != nil {
				return fmt.Errorf("create room for %q: %w", interest, err)
			}
			s.log.Info("created interest room", zap.String("interest", interest), zap.String("room_id", room.ExternalId))
		} else if err != nil {
			return fmt.Errorf("get room for %q: %w", interest, err)
		}

		if s.db.SubscriptionExists(userId, room.Id) {
			continue
		}
		if _, err := s.db.CreateSubscription(userId, room.Id, false); err != nil {
			return fmt.Errorf("subscribe to %q: %w", interest, err)
		}
	}

	return nil
}
