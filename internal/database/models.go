package database

import (
	"time"

	"github.com/npezzotti/topichat/internal/types"
)

type Room struct {
	Id                   int
	Name                 string
	ExternalId           string
	Description          string
	Interest             string
	Persona              string
	IdleThresholdMinutes int
	EnableArticleSummary bool
	OwnerId              int
	LastMessageAt        *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (r Room) Wire() types.Room {
	return types.Room{
		Id:                   r.Id,
		Name:                 r.Name,
		ExternalId:           r.ExternalId,
		Description:          r.Description,
		Interest:             r.Interest,
		Persona:              r.Persona,
		IdleThresholdMinutes: r.IdleThresholdMinutes,
		EnableArticleSummary: r.EnableArticleSummary,
		OwnerId:              r.OwnerId,
		LastMessageAt:        r.LastMessageAt,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

// LastActivity is when the room last saw a message, or its creation time.
func (r Room) LastActivity() time.Time {
	if r.LastMessageAt != nil {
		return *r.LastMessageAt
	}
	return r.CreatedAt
}

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	Interests    []string
	IsCurator    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) Wire() types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		Interests:    u.Interests,
		IsCurator:    u.IsCurator,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

type Subscription struct {
	Id         int
	AccountId  int
	Username   string
	RoomId     int
	IsAdmin    bool
	LastReadAt *time.Time
	Room       Room
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Message struct {
	Id              int
	RoomId          int
	RoomExternalId  string
	UserId          int
	Username        string
	Content         string
	ReplyingToId    *int
	ParentUsername  string
	ParentContent   string
	ParentIsDeleted bool
	IsDeleted       bool
	CuratorKind     string
	LikeCount       int
	DislikeCount    int
	CommentCount    int
	// ViewerReaction is the requesting viewer's reaction kind, or empty.
	ViewerReaction string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Wire converts the row to its unmasked API shape.
func (m Message) Wire() types.Message {
	msg := types.Message{
		Id:                m.Id,
		RoomId:            m.RoomExternalId,
		UserId:            m.UserId,
		Username:          m.Username,
		Content:           m.Content,
		CreatedAt:         m.CreatedAt,
		ReplyingToId:      m.ReplyingToId,
		IsDeleted:         m.IsDeleted,
		CuratorKind:       types.CuratorKind(m.CuratorKind),
		LikeCount:         m.LikeCount,
		DislikeCount:      m.DislikeCount,
		CommentCount:      m.CommentCount,
		ViewerHasLiked:    m.ViewerReaction == string(types.ReactionLike),
		ViewerHasDisliked: m.ViewerReaction == string(types.ReactionDislike),
	}
	if msg.CuratorKind == "" {
		msg.CuratorKind = types.CuratorNone
	}
	if m.ReplyingToId != nil {
		msg.Parent = &types.ParentPreview{
			Id:        *m.ReplyingToId,
			Username:  m.ParentUsername,
			Content:   m.ParentContent,
			IsDeleted: m.ParentIsDeleted,
		}
	}
	return msg
}

type Comment struct {
	Id           int
	MessageId    int
	UserId       int
	Username     string
	Content      string
	ReplyingToId *int
	IsDeleted    bool
	CreatedAt    time.Time
}

func (c Comment) Wire() types.Comment {
	return types.Comment{
		Id:           c.Id,
		MessageId:    c.MessageId,
		UserId:       c.UserId,
		Username:     c.Username,
		Content:      c.Content,
		ReplyingToId: c.ReplyingToId,
		IsDeleted:    c.IsDeleted,
		CreatedAt:    c.CreatedAt,
	}
}

type RoomSummary struct {
	Id        int
	RoomId    int
	Title     string
	Content   string
	CreatedAt time.Time
}

func (s RoomSummary) Wire(roomExternalId string) types.RoomSummary {
	return types.RoomSummary{
		Id:        s.Id,
		RoomId:    roomExternalId,
		Title:     s.Title,
		Content:   s.Content,
		CreatedAt: s.CreatedAt,
	}
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	PasswordHash string
}

type CreateRoomParams struct {
	Name        string
	Description string
	Interest    string
	OwnerId     int
	ExternalId  string
}

type UpdateRoomSettingsParams struct {
	RoomId               int
	Name                 string
	Persona              string
	IdleThresholdMinutes int
	EnableArticleSummary bool
}

type CreateMessageParams struct {
	RoomId       int
	UserId       int
	Content      string
	ReplyingToId *int
	CuratorKind  types.CuratorKind
}

type CreateRoomSummaryParams struct {
	RoomId  int
	Title   string
	Content string
}

type CreateCommentParams struct {
	MessageId    int
	UserId       int
	Content      string
	ReplyingToId *int
}
