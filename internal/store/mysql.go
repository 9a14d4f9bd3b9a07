package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysql "github.com/go-sql-driver/mysql"

	"roomchat/internal/apperr"
	"roomchat/internal/models"
)

const (
	errDuplicateEntry  = 1062
	errDataTooLong     = 1406
	errNoReferencedRow = 1452
)

// MySQL is the Store backed by the schema in migrations/.
type MySQL struct {
	db *sql.DB
}

var (
	_ Store = (*MySQL)(nil)
	_ Store = (*Memory)(nil)
)

func NewMySQL(db *sql.DB) *MySQL {
	return &MySQL{db: db}
}

// translate maps driver errors onto the apperr taxonomy.
func translate(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDuplicateEntry:
			return fmt.Errorf("%s: %w", what, apperr.ErrConflict)
		case errNoReferencedRow:
			return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
		case errDataTooLong:
			return fmt.Errorf("%s: %w", what, apperr.ErrValidation)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (s *MySQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = "id, email, username, display_color, password_hash, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.DisplayColor, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *MySQL) CreateUser(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (email, username, display_color, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		u.Email, u.Username, u.DisplayColor, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return translate(err, "create user %q", u.Username)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	u.ID = id
	return nil
}

func (s *MySQL) GetUser(ctx context.Context, id int64) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		return models.User{}, translate(err, "user %d", id)
	}
	return u, nil
}

func (s *MySQL) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE LOWER(email) = LOWER(?)", email))
	if err != nil {
		return models.User{}, translate(err, "user %q", email)
	}
	return u, nil
}

func (s *MySQL) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE LOWER(username) = LOWER(?)", username))
	if err != nil {
		return models.User{}, translate(err, "user %q", username)
	}
	return u, nil
}

func (s *MySQL) queryUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "query users")
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *MySQL) GetUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryUsers(ctx,
		"SELECT "+userColumns+" FROM users WHERE id IN ("+placeholders(len(ids))+")",
		int64Args(ids)...)
}

func (s *MySQL) ListUsers(ctx context.Context, excludeID int64) ([]models.User, error) {
	return s.queryUsers(ctx,
		"SELECT "+userColumns+" FROM users WHERE id <> ? ORDER BY username ASC, id ASC", excludeID)
}

func (s *MySQL) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (models.User, error) {
	var (
		sets []string
		args []any
	)
	if upd.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *upd.Username)
	}
	if upd.DisplayColor != nil {
		sets = append(sets, "display_color = ?")
		args = append(args, *upd.DisplayColor)
	}
	if !upd.UpdatedAt.IsZero() {
		sets = append(sets, "updated_at = ?")
		args = append(args, upd.UpdatedAt)
	}
	if len(sets) > 0 {
		args = append(args, id)
		if _, err := s.db.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
			return models.User{}, translate(err, "update user %d", id)
		}
	}
	return s.GetUser(ctx, id)
}

func (s *MySQL) DeleteUser(ctx context.Context, id int64) error {
	// room_members rows go with the user through ON DELETE CASCADE
	if _, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id); err != nil {
		return translate(err, "delete user %d", id)
	}
	return nil
}

const roomColumns = "id, name, is_general, created_by, created_at"

func scanRoom(row rowScanner) (models.Room, error) {
	var r models.Room
	err := row.Scan(&r.ID, &r.Name, &r.IsGeneral, &r.CreatedBy, &r.CreatedAt)
	return r, err
}

func (s *MySQL) GetRoom(ctx context.Context, id int64) (models.Room, error) {
	r, err := scanRoom(s.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id))
	if err != nil {
		return models.Room{}, translate(err, "room %d", id)
	}
	return r, nil
}

func (s *MySQL) GetRooms(ctx context.Context, ids []int64) ([]models.Room, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE id IN ("+placeholders(len(ids))+")",
		int64Args(ids)...)
	if err != nil {
		return nil, translate(err, "query rooms")
	}
	defer rows.Close()

	var out []models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *MySQL) GetGeneralRoom(ctx context.Context) (models.Room, error) {
	r, err := scanRoom(s.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE general_slot = 1"))
	if err != nil {
		return models.Room{}, translate(err, "general room")
	}
	return r, nil
}

func (s *MySQL) CreateRoom(ctx context.Context, room *models.Room, members []models.Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// general_slot is UNIQUE and NULL for ordinary rooms, so only one row
	// can ever carry the general flag.
	var slot any
	if room.IsGeneral {
		slot = 1
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO rooms (name, is_general, general_slot, created_by, created_at) VALUES (?, ?, ?, ?, ?)",
		room.Name, room.IsGeneral, slot, room.CreatedBy, room.CreatedAt)
	if err != nil {
		return translate(err, "create room %q", room.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	for _, m := range members {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO room_members (room_id, user_id, can_access_history, joined_at) VALUES (?, ?, ?, ?)",
			id, m.UserID, m.CanAccessHistory, m.JoinedAt); err != nil {
			return translate(err, "add member %d to room %d", m.UserID, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit room: %w", err)
	}
	room.ID = id
	return nil
}

const membershipColumns = "room_id, user_id, can_access_history, joined_at"

func scanMembership(row rowScanner) (models.Membership, error) {
	var m models.Membership
	err := row.Scan(&m.RoomID, &m.UserID, &m.CanAccessHistory, &m.JoinedAt)
	return m, err
}

func (s *MySQL) GetMembership(ctx context.Context, roomID, userID int64) (models.Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx,
		"SELECT "+membershipColumns+" FROM room_members WHERE room_id = ? AND user_id = ?", roomID, userID))
	if err != nil {
		return models.Membership{}, translate(err, "membership %d/%d", roomID, userID)
	}
	return m, nil
}

func (s *MySQL) AddMemberships(ctx context.Context, roomID int64, members []models.Membership) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var tmp int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM rooms WHERE id = ? FOR UPDATE", roomID).Scan(&tmp); err != nil {
		return nil, translate(err, "room %d", roomID)
	}

	var inserted []int64
	for _, m := range members {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO room_members (room_id, user_id, can_access_history, joined_at) VALUES (?, ?, ?, ?)",
			roomID, m.UserID, m.CanAccessHistory, m.JoinedAt); err != nil {
			if isDuplicate(err) {
				continue
			}
			return nil, translate(err, "add member %d to room %d", m.UserID, roomID)
		}
		inserted = append(inserted, m.UserID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit members: %w", err)
	}
	return inserted, nil
}

func (s *MySQL) ListMembershipsByUser(ctx context.Context, userID int64) ([]models.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+membershipColumns+" FROM room_members WHERE user_id = ? ORDER BY joined_at ASC, room_id ASC", userID)
	if err != nil {
		return nil, translate(err, "memberships of user %d", userID)
	}
	defer rows.Close()

	var out []models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MySQL) ListMembers(ctx context.Context, roomIDs []int64) ([]models.Member, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT m.room_id, u.id, u.username, u.display_color, m.can_access_history, m.joined_at
		FROM room_members m JOIN users u ON u.id = m.user_id
		WHERE m.room_id IN (`+placeholders(len(roomIDs))+`)
		ORDER BY m.room_id ASC, m.joined_at ASC, u.id ASC`, int64Args(roomIDs)...)
	if err != nil {
		return nil, translate(err, "list members")
	}
	defer rows.Close()

	var out []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.RoomID, &m.ID, &m.Username, &m.DisplayColor, &m.CanAccessHistory, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const messageColumns = "id, room_id, sender_id, content, created_at"

func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt)
	return m, err
}

func (s *MySQL) CreateMessage(ctx context.Context, m *models.Message) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (room_id, sender_id, content, created_at) VALUES (?, ?, ?, ?)",
		m.RoomID, m.SenderID, m.Content, m.CreatedAt)
	if err != nil {
		return translate(err, "create message in room %d", m.RoomID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	m.ID = id
	return nil
}

func (s *MySQL) GetMessage(ctx context.Context, id int64) (models.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = ?", id))
	if err != nil {
		return models.Message{}, translate(err, "message %d", id)
	}
	return m, nil
}

func (s *MySQL) ListMessages(ctx context.Context, q MessageQuery) ([]models.Message, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE room_id = ?"
	args := []any{q.RoomID}
	if !q.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, q.Since)
	}
	if q.Before != nil {
		query += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		args = append(args, q.Before.CreatedAt, q.Before.CreatedAt, q.Before.ID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "list messages of room %d", q.RoomID)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MySQL) AddReaction(ctx context.Context, r *models.Reaction) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO message_reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE message_id = message_id`,
		r.MessageID, r.UserID, r.Emoji, r.CreatedAt); err != nil {
		return translate(err, "add reaction to message %d", r.MessageID)
	}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?",
		r.MessageID, r.UserID, r.Emoji).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return translate(err, "read reaction on message %d", r.MessageID)
	}
	return nil
}

func (s *MySQL) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?",
		messageID, userID, emoji); err != nil {
		return translate(err, "remove reaction from message %d", messageID)
	}
	return nil
}

func (s *MySQL) ListReactions(ctx context.Context, messageIDs []int64) ([]models.Reaction, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, message_id, user_id, emoji, created_at FROM message_reactions WHERE message_id IN ("+
			placeholders(len(messageIDs))+") ORDER BY created_at ASC, id ASC",
		int64Args(messageIDs)...)
	if err != nil {
		return nil, translate(err, "list reactions")
	}
	defer rows.Close()

	var out []models.Reaction
	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.ID, &r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
