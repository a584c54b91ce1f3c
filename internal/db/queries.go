package db

import (
	"database/sql"
	"strings"

	"github.com/goccy/go-json"

	"github.com/coedaniel/aws-propuestas-v3/internal/errors"
)

// Session is a stored conversation header.
type Session struct {
	ID        string
	Title     *string
	Model     *string
	ProjectID *string
	CreatedAt int64
	UpdatedAt int64
}

// Message is a stored conversation turn. Seq orders messages within a session.
type Message struct {
	ID           string
	SessionID    string
	Seq          int
	Role         string
	Content      string
	Capabilities []string
	CreatedAt    int64
}

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.AppError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// InsertSession stores a new session header.
func InsertSession(db *sql.DB, s *Session) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, title, model, project_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, toNullString(s.Title), toNullString(s.Model), toNullString(s.ProjectID), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetSession retrieves a session header by id.
func GetSession(db *sql.DB, id string) (*Session, error) {
	var (
		s         Session
		title     sql.NullString
		model     sql.NullString
		projectID sql.NullString
	)
	err := db.QueryRow(`
		SELECT id, title, model, project_id, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`, id).Scan(&s.ID, &title, &model, &projectID, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("session", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	s.Title = fromNullString(title)
	s.Model = fromNullString(model)
	s.ProjectID = fromNullString(projectID)
	return &s, nil
}

// UpdateSession rewrites the mutable header fields of a session.
func UpdateSession(db *sql.DB, s *Session) error {
	result, err := db.Exec(`
		UPDATE sessions SET title = ?, model = ?, project_id = ?, updated_at = ?
		WHERE id = ?
	`, toNullString(s.Title), toNullString(s.Model), toNullString(s.ProjectID), s.UpdatedAt, s.ID)
	if err != nil {
		return errors.NewInternal(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rows == 0 {
		return errors.NewNotFound("session", s.ID)
	}
	return nil
}

// ListMessages returns the messages of a session in sequence order.
func ListMessages(db *sql.DB, sessionID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, session_id, seq, role, content, capabilities_json, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var (
			m        Message
			capsJSON sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &m.Role, &m.Content, &capsJSON, &m.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		if capsJSON.Valid && capsJSON.String != "" {
			if err := json.Unmarshal([]byte(capsJSON.String), &m.Capabilities); err != nil {
				return nil, errors.NewInternal(err)
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return msgs, nil
}

// AppendMessages inserts msgs after the last stored message of the session
// and bumps the session's updated_at, all in one transaction. Seq values are
// assigned here and written back into msgs.
func AppendMessages(db *sql.DB, sessionID string, msgs []Message, updatedAt int64) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, updatedAt, sessionID)
	if err != nil {
		return errors.NewInternal(err)
	}
	if rows, err := result.RowsAffected(); err != nil {
		return errors.NewInternal(err)
	} else if rows == 0 {
		return errors.NewNotFound("session", sessionID)
	}

	var last int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE session_id = ?`, sessionID).Scan(&last); err != nil {
		return errors.NewInternal(err)
	}

	for i := range msgs {
		m := &msgs[i]
		m.SessionID = sessionID
		m.Seq = last + i + 1

		var capsJSON sql.NullString
		if len(m.Capabilities) > 0 {
			data, err := json.Marshal(m.Capabilities)
			if err != nil {
				return errors.NewInternal(err)
			}
			capsJSON = sql.NullString{String: string(data), Valid: true}
		}

		_, err := tx.Exec(`
			INSERT INTO messages (id, session_id, seq, role, content, capabilities_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, m.ID, sessionID, m.Seq, m.Role, m.Content, capsJSON, m.CreatedAt)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrUniqueConstraint
			}
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteSession removes a session and all of its messages.
func DeleteSession(db *sql.DB, id string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return errors.NewInternal(err)
	}
	result, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rows == 0 {
		return errors.NewNotFound("session", id)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
