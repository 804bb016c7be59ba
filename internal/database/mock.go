package database

import (
	"time"

	"github.com/npezzotti/topichat/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

var _ Repository = (*MockRepository)(nil)

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) UpdateInterests(accountId int, interests []string) (User, error) {
	args := m.Called(accountId, interests)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetCuratorAccount() (User, error) {
	args := m.Called()
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoomById(roomId int) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoomByInterest(interest string) (Room, error) {
	args := m.Called(interest)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) UpdateRoomSettings(params UpdateRoomSettingsParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) DeleteRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockRepository) ListIdleRooms(now time.Time) ([]Room, error) {
	args := m.Called(now)
	rooms, _ := args.Get(0).([]Room)
	return rooms, args.Error(1)
}
func (m *MockRepository) ListNewsInterests() ([]string, error) {
	args := m.Called()
	interests, _ := args.Get(0).([]string)
	return interests, args.Error(1)
}
func (m *MockRepository) ListRoomsByInterest(interest string) ([]Room, error) {
	args := m.Called(interest)
	rooms, _ := args.Get(0).([]Room)
	return rooms, args.Error(1)
}
func (m *MockRepository) ListActiveRooms(since time.Time) ([]Room, error) {
	args := m.Called(since)
	rooms, _ := args.Get(0).([]Room)
	return rooms, args.Error(1)
}
func (m *MockRepository) CreateSubscription(accountId, roomId int, isAdmin bool) (Subscription, error) {
	args := m.Called(accountId, roomId, isAdmin)
	return args.Get(0).(Subscription), args.Error(1)
}
func (m *MockRepository) GetSubscription(accountId, roomId int) (Subscription, error) {
	args := m.Called(accountId, roomId)
	return args.Get(0).(Subscription), args.Error(1)
}
func (m *MockRepository) SubscriptionExists(accountId, roomId int) bool {
	args := m.Called(accountId, roomId)
	return args.Bool(0)
}
func (m *MockRepository) ListSubscriptions(accountId int) ([]Subscription, error) {
	args := m.Called(accountId)
	subs, _ := args.Get(0).([]Subscription)
	return subs, args.Error(1)
}
func (m *MockRepository) DeleteSubscription(accountId, roomId int) error {
	args := m.Called(accountId, roomId)
	return args.Error(0)
}
func (m *MockRepository) UpdateLastReadAt(accountId, roomId int, readAt time.Time) error {
	args := m.Called(accountId, roomId, readAt)
	return args.Error(0)
}
func (m *MockRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	if fn, ok := args.Get(0).(func(CreateMessageParams) Message); ok {
		return fn(params), args.Error(1)
	}
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessage(messageId, viewerId int) (Message, error) {
	args := m.Called(messageId, viewerId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessages(roomId, viewerId, offset, limit int) ([]Message, error) {
	args := m.Called(roomId, viewerId, offset, limit)
	msgs, _ := args.Get(0).([]Message)
	return msgs, args.Error(1)
}
func (m *MockRepository) SoftDeleteMessage(messageId int) error {
	args := m.Called(messageId)
	return args.Error(0)
}
func (m *MockRepository) ToggleReaction(messageId, accountId int, kind types.ReactionKind) (types.ReactionState, error) {
	args := m.Called(messageId, accountId, kind)
	return args.Get(0).(types.ReactionState), args.Error(1)
}
func (m *MockRepository) CreateComment(params CreateCommentParams) (Comment, error) {
	args := m.Called(params)
	return args.Get(0).(Comment), args.Error(1)
}
func (m *MockRepository) GetComment(commentId int) (Comment, error) {
	args := m.Called(commentId)
	return args.Get(0).(Comment), args.Error(1)
}
func (m *MockRepository) ListComments(messageId int) ([]Comment, error) {
	args := m.Called(messageId)
	comments, _ := args.Get(0).([]Comment)
	return comments, args.Error(1)
}
func (m *MockRepository) SoftDeleteComment(commentId int) error {
	args := m.Called(commentId)
	return args.Error(0)
}
func (m *MockRepository) ListMessageContents(roomId int, since time.Time) ([]string, error) {
	args := m.Called(roomId, since)
	contents, _ := args.Get(0).([]string)
	return contents, args.Error(1)
}
func (m *MockRepository) CreateRoomSummary(params CreateRoomSummaryParams) (RoomSummary, error) {
	args := m.Called(params)
	return args.Get(0).(RoomSummary), args.Error(1)
}
func (m *MockRepository) ListRoomSummaries(roomId, limit int) ([]RoomSummary, error) {
	args := m.Called(roomId, limit)
	summaries, _ := args.Get(0).([]RoomSummary)
	return summaries, args.Error(1)
}
