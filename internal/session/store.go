package session

import (
	"database/sql"
	"strings"
	"time"

	"github.com/coedaniel/aws-propuestas-v3/internal/db"
	"github.com/coedaniel/aws-propuestas-v3/internal/errors"
	"github.com/coedaniel/aws-propuestas-v3/internal/llm"
)

// Store persists sessions in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore wraps an initialized database (see db.Init).
func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

// CreateInput contains the optional header fields of a new session.
type CreateInput struct {
	Title     string `json:"title,omitempty"`
	Model     string `json:"model,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
}

// Create stores and returns a new empty session.
func (st *Store) Create(input CreateInput) (*State, error) {
	id, err := NewID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().UTC()
	s := &State{
		ID:        id,
		Title:     strings.TrimSpace(input.Title),
		Model:     strings.TrimSpace(input.Model),
		ProjectID: strings.TrimSpace(input.ProjectID),
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.InsertSession(st.db, toRow(s)); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads a session and its full history.
func (st *Store) Load(id string) (*State, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("session id is required")
	}
	row, err := db.GetSession(st.db, id)
	if err != nil {
		return nil, err
	}
	rows, err := db.ListMessages(st.db, id)
	if err != nil {
		return nil, err
	}

	s := &State{
		ID:        row.ID,
		Title:     deref(row.Title),
		Model:     deref(row.Model),
		ProjectID: deref(row.ProjectID),
		Messages:  make([]Message, 0, len(rows)),
		CreatedAt: time.Unix(row.CreatedAt, 0).UTC(),
		UpdatedAt: time.Unix(row.UpdatedAt, 0).UTC(),
	}
	for _, m := range rows {
		s.Messages = append(s.Messages, Message{
			ID:           m.ID,
			Role:         llm.Role(m.Role),
			Content:      m.Content,
			Timestamp:    time.Unix(m.CreatedAt, 0).UTC(),
			Capabilities: m.Capabilities,
		})
	}
	s.saved = len(s.Messages)
	return s, nil
}

// Save persists the header and appends messages added since the last Save.
func (st *Store) Save(s *State) error {
	s.UpdatedAt = time.Now().UTC()
	if err := db.UpdateSession(st.db, toRow(s)); err != nil {
		return err
	}

	pending := s.Unsaved()
	if len(pending) == 0 {
		return nil
	}
	rows := make([]db.Message, 0, len(pending))
	for _, m := range pending {
		rows = append(rows, db.Message{
			ID:           m.ID,
			Role:         string(m.Role),
			Content:      m.Content,
			Capabilities: m.Capabilities,
			CreatedAt:    m.Timestamp.Unix(),
		})
	}
	if err := db.AppendMessages(st.db, s.ID, rows, s.UpdatedAt.Unix()); err != nil {
		return err
	}
	s.saved = len(s.Messages)
	return nil
}

// Delete removes a session and its history.
func (st *Store) Delete(id string) error {
	return db.DeleteSession(st.db, id)
}

func toRow(s *State) *db.Session {
	return &db.Session{
		ID:        s.ID,
		Title:     optional(s.Title),
		Model:     optional(s.Model),
		ProjectID: optional(s.ProjectID),
		CreatedAt: s.CreatedAt.Unix(),
		UpdatedAt: s.UpdatedAt.Unix(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
