package types

import (
	"time"
)

// DeletedContent replaces the body of soft-deleted messages and comments.
const DeletedContent = "[deleted]"

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Interests    []string  `json:"interests,omitempty"`
	IsCurator    bool      `json:"is_curator,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id                   int        `json:"id"`
	Name                 string     `json:"name"`
	ExternalId           string     `json:"external_id"`
	Description          string     `json:"description"`
	Interest             string     `json:"interest,omitempty"`
	Persona              string     `json:"persona,omitempty"`
	IdleThresholdMinutes int        `json:"idle_threshold_minutes"`
	EnableArticleSummary bool       `json:"enable_article_summary"`
	OwnerId              int        `json:"owner_id"`
	LastMessageAt        *time.Time `json:"last_message_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at,omitempty"`
}

// RoomAccess is the viewer's relationship to a room, resolved once when the
// room is entered and passed to whatever needs it.
type RoomAccess struct {
	Room     Room `json:"room"`
	IsMember bool `json:"is_member"`
	IsAdmin  bool `json:"is_admin"`
}

type Subscription struct {
	Id         int        `json:"id"`
	User       User       `json:"user"`
	Room       Room       `json:"room"`
	IsAdmin    bool       `json:"is_admin"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at,omitempty"`
}

type CuratorKind string

const (
	CuratorNone CuratorKind = "none"
	CuratorIdle CuratorKind = "idle"
	CuratorNews CuratorKind = "news"
	CuratorQA   CuratorKind = "qa"
)

func (k CuratorKind) Valid() bool {
	switch k {
	case CuratorNone, CuratorIdle, CuratorNews, CuratorQA:
		return true
	}
	return false
}

// ParentPreview is the quoted parent of a reply in the main feed.
type ParentPreview struct {
	Id        int    `json:"id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	IsDeleted bool   `json:"is_deleted"`
}

type Message struct {
	Id                int            `json:"id"`
	RoomId            string         `json:"room_id"`
	UserId            int            `json:"user_id"`
	Username          string         `json:"username"`
	Content           string         `json:"content"`
	CreatedAt         time.Time      `json:"created_at"`
	ReplyingToId      *int           `json:"replying_to_id,omitempty"`
	Parent            *ParentPreview `json:"parent,omitempty"`
	IsDeleted         bool           `json:"is_deleted"`
	CuratorKind       CuratorKind    `json:"curator_kind"`
	LikeCount         int            `json:"like_count"`
	DislikeCount      int            `json:"dislike_count"`
	CommentCount      int            `json:"comment_count"`
	ViewerHasLiked    bool           `json:"viewer_has_liked"`
	ViewerHasDisliked bool           `json:"viewer_has_disliked"`
	// Local marks a message synthesized by the client that was never stored.
	Local bool `json:"-"`
}

// Masked returns a copy safe for display. Deleting a message never touches
// its replies, only the quoted preview they carry.
func (m Message) Masked() Message {
	if m.IsDeleted {
		m.Content = DeletedContent
	}
	if m.Parent != nil && m.Parent.IsDeleted {
		p := *m.Parent
		p.Content = DeletedContent
		m.Parent = &p
	}
	return m
}

func (m Message) IsCurator() bool {
	return m.CuratorKind != "" && m.CuratorKind != CuratorNone
}

func (m Message) Reactions() ReactionState {
	return ReactionState{
		LikeCount:    m.LikeCount,
		DislikeCount: m.DislikeCount,
		Liked:        m.ViewerHasLiked,
		Disliked:     m.ViewerHasDisliked,
	}
}

func (m Message) WithReactions(s ReactionState) Message {
	m.LikeCount = s.LikeCount
	m.DislikeCount = s.DislikeCount
	m.ViewerHasLiked = s.Liked
	m.ViewerHasDisliked = s.Disliked
	return m
}

// Shared returns a copy without the viewer flags, for messages that are
// sent to every subscriber of a room.
func (m Message) Shared() Message {
	m.ViewerHasLiked = false
	m.ViewerHasDisliked = false
	return m
}

// Before reports whether m sorts ahead of o in a feed.
func (m Message) Before(o Message) bool {
	if m.CreatedAt.Equal(o.CreatedAt) {
		return m.Id < o.Id
	}
	return m.CreatedAt.Before(o.CreatedAt)
}

type Comment struct {
	Id           int       `json:"id"`
	MessageId    int       `json:"message_id"`
	UserId       int       `json:"user_id"`
	Username     string    `json:"username"`
	Content      string    `json:"content"`
	ReplyingToId *int      `json:"replying_to_id,omitempty"`
	IsDeleted    bool      `json:"is_deleted"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c Comment) Masked() Comment {
	if c.IsDeleted {
		c.Content = DeletedContent
	}
	return c
}

// RoomSummary is a digest of a room's recent conversation, written by the
// curator and shown apart from the message list.
type RoomSummary struct {
	Id        int       `json:"id"`
	RoomId    string    `json:"room_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type CommentTree struct {
	Comment  Comment        `json:"comment"`
	Children []*CommentTree `json:"children"`
}

type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

type ReactionState struct {
	LikeCount    int  `json:"like_count"`
	DislikeCount int  `json:"dislike_count"`
	Liked        bool `json:"liked"`
	Disliked     bool `json:"disliked"`
}

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is a row-level change to a message in a room.
type ChangeEvent struct {
	Kind    ChangeKind `json:"kind"`
	RoomId  string     `json:"room_id"`
	Message Message    `json:"message"`
}
