package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/npezzotti/topichat/internal/types"
)

const (
	accountColumns = "id, username, email, interests, is_curator, created_at, updated_at"
	roomColumns    = "id, external_id, name, description, interest, persona, idle_threshold_minutes, " +
		"enable_article_summary, owner_id, last_message_at, created_at, updated_at"

	// messageSelect needs the viewer id as its first parameter.
	messageSelect = `
		SELECT
			m.id, m.room_id, r.external_id, m.user_id, a.username, m.content,
			m.replying_to_id, COALESCE(pa.username, ''), COALESCE(p.content, ''), COALESCE(p.is_deleted, FALSE),
			m.is_deleted, m.curator_kind,
			(SELECT COUNT(*) FROM message_reactions mr WHERE mr.message_id = m.id AND mr.kind = 'like'),
			(SELECT COUNT(*) FROM message_reactions mr WHERE mr.message_id = m.id AND mr.kind = 'dislike'),
			(SELECT COUNT(*) FROM message_comments mc WHERE mc.message_id = m.id AND NOT mc.is_deleted),
			COALESCE((SELECT v.kind FROM message_reactions v WHERE v.message_id = m.id AND v.account_id = $1), ''),
			m.created_at, m.updated_at
		FROM messages m
		JOIN rooms r ON r.id = m.room_id
		JOIN accounts a ON a.id = m.user_id
		LEFT JOIN messages p ON p.id = m.replying_to_id
		LEFT JOIN accounts pa ON pa.id = p.user_id`

	commentSelect = `
		SELECT c.id, c.message_id, c.user_id, a.username, c.content, c.replying_to_id, c.is_deleted, c.created_at
		FROM message_comments c
		JOIN accounts a ON a.id = c.user_id`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		pq.Array(&u.Interests),
		&u.IsCurator,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func scanRoom(row scanner) (Room, error) {
	var (
		r             Room
		lastMessageAt sql.NullTime
	)
	err := row.Scan(
		&r.Id,
		&r.ExternalId,
		&r.Name,
		&r.Description,
		&r.Interest,
		&r.Persona,
		&r.IdleThresholdMinutes,
		&r.EnableArticleSummary,
		&r.OwnerId,
		&lastMessageAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		r.LastMessageAt = &t
	}
	return r, err
}

func scanMessage(row scanner) (Message, error) {
	var (
		m            Message
		replyingToId sql.NullInt64
	)
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.RoomExternalId,
		&m.UserId,
		&m.Username,
		&m.Content,
		&replyingToId,
		&m.ParentUsername,
		&m.ParentContent,
		&m.ParentIsDeleted,
		&m.IsDeleted,
		&m.CuratorKind,
		&m.LikeCount,
		&m.DislikeCount,
		&m.CommentCount,
		&m.ViewerReaction,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	m.ReplyingToId = nullIntPtr(replyingToId)
	return m, err
}

func scanComment(row scanner) (Comment, error) {
	var (
		c            Comment
		replyingToId sql.NullInt64
	)
	err := row.Scan(
		&c.Id,
		&c.MessageId,
		&c.UserId,
		&c.Username,
		&c.Content,
		&replyingToId,
		&c.IsDeleted,
		&c.CreatedAt,
	)
	c.ReplyingToId = nullIntPtr(replyingToId)
	return c, err
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func intPtrArg(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func (db *PgRepository) CreateAccount(params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING "+accountColumns,
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		now,
	)

	return scanAccount(row)
}

func (db *PgRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING "+accountColumns,
		params.UserId,
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
	)

	return scanAccount(row)
}

func (db *PgRepository) UpdateInterests(accountId int, interests []string) (User, error) {
	if interests == nil {
		interests = []string{}
	}
	row := db.conn.QueryRow(
		"UPDATE accounts SET interests = $2, updated_at = $3 WHERE id = $1 RETURNING "+accountColumns,
		accountId,
		pq.Array(interests),
		time.Now().UTC(),
	)

	return scanAccount(row)
}

func (db *PgRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	return scanAccount(row)
}

func (db *PgRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, interests, is_curator, created_at, updated_at, password_hash "+
			"FROM accounts WHERE email = $1 AND NOT is_curator LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		pq.Array(&u.Interests),
		&u.IsCurator,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.PasswordHash,
	)

	return u, err
}

func (db *PgRepository) GetCuratorAccount() (User, error) {
	row := db.conn.QueryRow("SELECT " + accountColumns + " FROM accounts WHERE is_curator LIMIT 1")
	return scanAccount(row)
}

func (db *PgRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	row := tx.QueryRow(
		"INSERT INTO rooms (name, description, interest, external_id, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING "+roomColumns,
		params.Name,
		params.Description,
		params.Interest,
		params.ExternalId,
		params.OwnerId,
		now,
	)

	room, err := scanRoom(row)
	if err != nil {
		return Room{}, fmt.Errorf("insert room: %w", err)
	}

	// the owner administers the room
	if _, err := tx.Exec(
		"INSERT INTO subscriptions (account_id, room_id, is_admin, created_at, updated_at) VALUES ($1, $2, TRUE, $3, $3)",
		params.OwnerId,
		room.Id,
		now,
	); err != nil {
		return Room{}, fmt.Errorf("insert owner subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Room{}, fmt.Errorf("commit transaction: %w", err)
	}

	return room, nil
}

func (db *PgRepository) GetRoomById(id int) (Room, error) {
	row := db.conn.QueryRow("SELECT "+roomColumns+" FROM rooms WHERE id = $1 LIMIT 1", id)
	return scanRoom(row)
}

func (db *PgRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow("SELECT "+roomColumns+" FROM rooms WHERE external_id = $1 LIMIT 1", externalId)
	return scanRoom(row)
}

// GetRoomByInterest returns the oldest room tagged with interest.
func (db *PgRepository) GetRoomByInterest(interest string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT "+roomColumns+" FROM rooms WHERE interest = $1 ORDER BY created_at, id LIMIT 1",
		interest,
	)
	return scanRoom(row)
}

func (db *PgRepository) UpdateRoomSettings(params UpdateRoomSettingsParams) (Room, error) {
	row := db.conn.QueryRow(
		"UPDATE rooms SET name = $2, persona = $3, idle_threshold_minutes = $4, enable_article_summary = $5, updated_at = $6 "+
			"WHERE id = $1 RETURNING "+roomColumns,
		params.RoomId,
		params.Name,
		params.Persona,
		params.IdleThresholdMinutes,
		params.EnableArticleSummary,
		time.Now().UTC(),
	)
	return scanRoom(row)
}

func (db *PgRepository) DeleteRoom(id int) error {
	res, err := db.conn.Exec("DELETE FROM rooms WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgRepository) queryRooms(query string, args ...any) ([]Room, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// ListIdleRooms returns rooms with idle prompts enabled whose last activity
// is older than their threshold.
func (db *PgRepository) ListIdleRooms(now time.Time) ([]Room, error) {
	return db.queryRooms(
		"SELECT "+roomColumns+" FROM rooms "+
			"WHERE idle_threshold_minutes > 0 "+
			"AND COALESCE(last_message_at, created_at) < $1::timestamptz - make_interval(mins => idle_threshold_minutes) "+
			"ORDER BY id",
		now.UTC(),
	)
}

func (db *PgRepository) ListNewsInterests() ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT DISTINCT interest FROM rooms WHERE interest <> '' AND enable_article_summary ORDER BY interest",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interests []string
	for rows.Next() {
		var interest string
		if err := rows.Scan(&interest); err != nil {
			return nil, fmt.Errorf("scan interest: %w", err)
		}
		interests = append(interests, interest)
	}

	return interests, rows.Err()
}

func (db *PgRepository) ListRoomsByInterest(interest string) ([]Room, error) {
	return db.queryRooms("SELECT "+roomColumns+" FROM rooms WHERE interest = $1 ORDER BY id", interest)
}

// ListActiveRooms returns rooms with at least one message since the given
// time.
func (db *PgRepository) ListActiveRooms(since time.Time) ([]Room, error) {
	return db.queryRooms(
		"SELECT "+roomColumns+" FROM rooms r "+
			"WHERE EXISTS (SELECT 1 FROM messages m WHERE m.room_id = r.id AND m.created_at > $1) "+
			"ORDER BY id",
		since.UTC(),
	)
}

func (db *PgRepository) CreateSubscription(accountId, roomId int, isAdmin bool) (Subscription, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		`WITH s AS (
			INSERT INTO subscriptions (account_id, room_id, is_admin, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			RETURNING id, account_id, room_id, is_admin, created_at, updated_at
		)
		SELECT s.id, s.account_id, a.username, s.room_id, s.is_admin, s.created_at, s.updated_at
		FROM s JOIN accounts a ON a.id = s.account_id`,
		accountId,
		roomId,
		isAdmin,
		now,
	)

	var sub Subscription
	err := row.Scan(
		&sub.Id,
		&sub.AccountId,
		&sub.Username,
		&sub.RoomId,
		&sub.IsAdmin,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)

	return sub, err
}

func (db *PgRepository) GetSubscription(accountId, roomId int) (Subscription, error) {
	var (
		sub        Subscription
		lastReadAt sql.NullTime
	)
	err := db.conn.QueryRow(
		"SELECT s.id, s.account_id, a.username, s.room_id, s.is_admin, s.last_read_at, s.created_at, s.updated_at "+
			"FROM subscriptions s JOIN accounts a ON a.id = s.account_id "+
			"WHERE s.account_id = $1 AND s.room_id = $2",
		accountId,
		roomId,
	).Scan(
		&sub.Id,
		&sub.AccountId,
		&sub.Username,
		&sub.RoomId,
		&sub.IsAdmin,
		&lastReadAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if lastReadAt.Valid {
		t := lastReadAt.Time
		sub.LastReadAt = &t
	}

	return sub, err
}

func (db *PgRepository) SubscriptionExists(accountId, roomId int) bool {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM subscriptions WHERE account_id = $1 AND room_id = $2)",
		accountId,
		roomId,
	).Scan(&exists)

	return err == nil && exists
}

func (db *PgRepository) ListSubscriptions(accountId int) ([]Subscription, error) {
	rows, err := db.conn.Query(
		`SELECT s.id, s.account_id, s.room_id, s.is_admin, s.last_read_at, s.created_at, s.updated_at,
			r.id, r.external_id, r.name, r.description, r.interest, r.persona, r.idle_threshold_minutes,
			r.enable_article_summary, r.owner_id, r.last_message_at, r.created_at, r.updated_at
		FROM subscriptions s
		JOIN rooms r ON r.id = s.room_id
		WHERE s.account_id = $1
		ORDER BY COALESCE(r.last_message_at, r.created_at) DESC`,
		accountId,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var (
			sub           Subscription
			lastReadAt    sql.NullTime
			lastMessageAt sql.NullTime
		)
		if err := rows.Scan(
			&sub.Id,
			&sub.AccountId,
			&sub.RoomId,
			&sub.IsAdmin,
			&lastReadAt,
			&sub.CreatedAt,
			&sub.UpdatedAt,
			&sub.Room.Id,
			&sub.Room.ExternalId,
			&sub.Room.Name,
			&sub.Room.Description,
			&sub.Room.Interest,
			&sub.Room.Persona,
			&sub.Room.IdleThresholdMinutes,
			&sub.Room.EnableArticleSummary,
			&sub.Room.OwnerId,
			&lastMessageAt,
			&sub.Room.CreatedAt,
			&sub.Room.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if lastReadAt.Valid {
			t := lastReadAt.Time
			sub.LastReadAt = &t
		}
		if lastMessageAt.Valid {
			t := lastMessageAt.Time
			sub.Room.LastMessageAt = &t
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

func (db *PgRepository) DeleteSubscription(accountId, roomId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM subscriptions WHERE account_id = $1 AND room_id = $2",
		accountId,
		roomId,
	)
	return err
}

// UpdateLastReadAt only ever moves the watermark forward.
func (db *PgRepository) UpdateLastReadAt(accountId, roomId int, readAt time.Time) error {
	res, err := db.conn.Exec(
		"UPDATE subscriptions SET last_read_at = GREATEST(COALESCE(last_read_at, $3), $3), updated_at = NOW() "+
			"WHERE account_id = $1 AND room_id = $2",
		accountId,
		roomId,
		readAt.UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateMessage stores a message and advances the room's last activity in
// the same transaction.
func (db *PgRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	kind := params.CuratorKind
	if kind == "" {
		kind = types.CuratorNone
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		id        int
		createdAt time.Time
	)
	now := time.Now().UTC()
	if err := tx.QueryRow(
		"INSERT INTO messages (room_id, user_id, content, replying_to_id, curator_kind, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id, created_at",
		params.RoomId,
		params.UserId,
		params.Content,
		intPtrArg(params.ReplyingToId),
		string(kind),
		now,
	).Scan(&id, &createdAt); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(
		"UPDATE rooms SET last_message_at = $2 WHERE id = $1 AND (last_message_at IS NULL OR last_message_at < $2)",
		params.RoomId,
		createdAt,
	); err != nil {
		return Message{}, fmt.Errorf("update room activity: %w", err)
	}

	msg, err := scanMessage(tx.QueryRow(messageSelect+" WHERE m.id = $2", params.UserId, id))
	if err != nil {
		return Message{}, fmt.Errorf("read message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit transaction: %w", err)
	}

	return msg, nil
}

func (db *PgRepository) GetMessage(messageId, viewerId int) (Message, error) {
	return scanMessage(db.conn.QueryRow(messageSelect+" WHERE m.id = $2", viewerId, messageId))
}

// GetMessages pages through a room newest first.
func (db *PgRepository) GetMessages(roomId, viewerId, offset, limit int) ([]Message, error) {
	rows, err := db.conn.Query(
		messageSelect+" WHERE m.room_id = $2 ORDER BY m.created_at DESC, m.id DESC OFFSET $3 LIMIT $4",
		viewerId,
		roomId,
		offset,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgRepository) SoftDeleteMessage(messageId int) error {
	res, err := db.conn.Exec(
		"UPDATE messages SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1",
		messageId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ToggleReaction flips the account's reaction on a message and returns the
// counts recomputed from the reaction rows. The primary key on
// (message_id, account_id) keeps like and dislike mutually exclusive.
func (db *PgRepository) ToggleReaction(messageId, accountId int, kind types.ReactionKind) (types.ReactionState, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return types.ReactionState{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(
		"SELECT kind FROM message_reactions WHERE message_id = $1 AND account_id = $2 FOR UPDATE",
		messageId,
		accountId,
	).Scan(&current)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.Exec(
			"INSERT INTO message_reactions (message_id, account_id, kind) VALUES ($1, $2, $3) "+
				"ON CONFLICT (message_id, account_id) DO UPDATE SET kind = EXCLUDED.kind",
			messageId,
			accountId,
			string(kind),
		)
	case err != nil:
		return types.ReactionState{}, fmt.Errorf("read reaction: %w", err)
	case current == string(kind):
		_, err = tx.Exec(
			"DELETE FROM message_reactions WHERE message_id = $1 AND account_id = $2",
			messageId,
			accountId,
		)
	default:
		_, err = tx.Exec(
			"UPDATE message_reactions SET kind = $3, created_at = NOW() WHERE message_id = $1 AND account_id = $2",
			messageId,
			accountId,
			string(kind),
		)
	}
	if err != nil {
		return types.ReactionState{}, fmt.Errorf("write reaction: %w", err)
	}

	var (
		state  types.ReactionState
		viewer string
	)
	if err := tx.QueryRow(
		`SELECT
			COUNT(*) FILTER (WHERE kind = 'like'),
			COUNT(*) FILTER (WHERE kind = 'dislike'),
			COALESCE(MAX(kind) FILTER (WHERE account_id = $2), '')
		FROM message_reactions WHERE message_id = $1`,
		messageId,
		accountId,
	).Scan(&state.LikeCount, &state.DislikeCount, &viewer); err != nil {
		return types.ReactionState{}, fmt.Errorf("count reactions: %w", err)
	}
	state.Liked = viewer == string(types.ReactionLike)
	state.Disliked = viewer == string(types.ReactionDislike)

	if err := tx.Commit(); err != nil {
		return types.ReactionState{}, fmt.Errorf("commit transaction: %w", err)
	}

	return state, nil
}

func (db *PgRepository) CreateComment(params CreateCommentParams) (Comment, error) {
	var id int
	if err := db.conn.QueryRow(
		"INSERT INTO message_comments (message_id, user_id, content, replying_to_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id",
		params.MessageId,
		params.UserId,
		params.Content,
		intPtrArg(params.ReplyingToId),
		time.Now().UTC(),
	).Scan(&id); err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	return db.GetComment(id)
}

func (db *PgRepository) GetComment(commentId int) (Comment, error) {
	return scanComment(db.conn.QueryRow(commentSelect+" WHERE c.id = $1", commentId))
}

// ListComments returns every comment under a message in creation order.
func (db *PgRepository) ListComments(messageId int) ([]Comment, error) {
	rows, err := db.conn.Query(commentSelect+" WHERE c.message_id = $1 ORDER BY c.created_at, c.id", messageId)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}

	return comments, rows.Err()
}

func (db *PgRepository) SoftDeleteComment(commentId int) error {
	res, err := db.conn.Exec(
		"UPDATE message_comments SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1",
		commentId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListMessageContents returns the text of a room's messages since the given
// time, oldest first. Deleted messages are left out.
func (db *PgRepository) ListMessageContents(roomId int, since time.Time) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT content FROM messages WHERE room_id = $1 AND created_at > $2 AND NOT is_deleted "+
			"ORDER BY created_at, id",
		roomId,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query message contents: %w", err)
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan message content: %w", err)
		}
		contents = append(contents, content)
	}

	return contents, rows.Err()
}

func (db *PgRepository) CreateRoomSummary(params CreateRoomSummaryParams) (RoomSummary, error) {
	s := RoomSummary{RoomId: params.RoomId, Title: params.Title, Content: params.Content}
	if err := db.conn.QueryRow(
		"INSERT INTO room_summaries (room_id, title, content, created_at) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, created_at",
		params.RoomId,
		params.Title,
		params.Content,
		time.Now().UTC(),
	).Scan(&s.Id, &s.CreatedAt); err != nil {
		return RoomSummary{}, fmt.Errorf("insert room summary: %w", err)
	}

	return s, nil
}

// ListRoomSummaries returns a room's summaries, newest first.
func (db *PgRepository) ListRoomSummaries(roomId, limit int) ([]RoomSummary, error) {
	rows, err := db.conn.Query(
		"SELECT id, room_id, title, content, created_at FROM room_summaries "+
			"WHERE room_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		roomId,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query room summaries: %w", err)
	}
	defer rows.Close()

	var summaries []RoomSummary
	for rows.Next() {
		var s RoomSummary
		if err := rows.Scan(&s.Id, &s.RoomId, &s.Title, &s.Content, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}
