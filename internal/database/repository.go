package database

import (
	"time"

	"github.com/npezzotti/topichat/internal/types"
)

type Repository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	UpdateInterests(accountId int, interests []string) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	GetCuratorAccount() (User, error)

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomById(roomId int) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	GetRoomByInterest(interest string) (Room, error)
	UpdateRoomSettings(params UpdateRoomSettingsParams) (Room, error)
	DeleteRoom(roomId int) error
	ListIdleRooms(now time.Time) ([]Room, error)
	ListNewsInterests() ([]string, error)
	ListRoomsByInterest(interest string) ([]Room, error)
	ListActiveRooms(since time.Time) ([]Room, error)

	CreateSubscription(accountId, roomId int, isAdmin bool) (Subscription, error)
	GetSubscription(accountId, roomId int) (Subscription, error)
	SubscriptionExists(accountId, roomId int) bool
	ListSubscriptions(accountId int) ([]Subscription, error)
	DeleteSubscription(accountId, roomId int) error
	UpdateLastReadAt(accountId, roomId int, readAt time.Time) error

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessage(messageId, viewerId int) (Message, error)
	GetMessages(roomId, viewerId, offset, limit int) ([]Message, error)
	SoftDeleteMessage(messageId int) error
	ToggleReaction(messageId, accountId int, kind types.ReactionKind) (types.ReactionState, error)

	CreateComment(params CreateCommentParams) (Comment, error)
	GetComment(commentId int) (Comment, error)
	ListComments(messageId int) ([]Comment, error)
	SoftDeleteComment(commentId int) error

	ListMessageContents(roomId int, since time.Time) ([]string, error)
	CreateRoomSummary(params CreateRoomSummaryParams) (RoomSummary, error)
	ListRoomSummaries(roomId, limit int) ([]RoomSummary, error)
}
