// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/util"
)

// DefaultMaxSessions caps how many sessions are kept when no limit is given.
const DefaultMaxSessions = 100

// =============================================================================
// SESSION TYPES
// =============================================================================

// Session is a persisted chat: its messages plus the sequencer state needed
// to resume it.
type Session struct {
	ID        string
	Summary   string
	Mode      string
	Params    model.Params
	LastCode  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []model.Message
}

// SessionMeta contains metadata for listing sessions.
type SessionMeta struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	Mode         string    `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ShortID is the id prefix shown in lists and accepted by Resolve.
func (m SessionMeta) ShortID() string {
	return util.RunePrefix([]rune(m.ID), 8)
}

// Preview returns the first user message, truncated.
func (s *Session) Preview(maxLen int) string {
	for _, msg := range s.Messages {
		if msg.Role == model.RoleUser && msg.Content != "" {
			return msg.Preview(maxLen)
		}
	}
	return ""
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSessionNotFound is returned when a session id or prefix matches nothing.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAmbiguousID is returned when an id prefix matches several sessions.
	ErrAmbiguousID = errors.New("session id prefix is ambiguous")
)

// =============================================================================
// SESSION STORE
// =============================================================================

// Store persists sessions in SQLite.
type Store struct {
	db   *sql.DB
	path string

	// MaxSessions limits stored sessions (0 = unlimited).
	MaxSessions int
}

// Open opens (creating if needed) the session database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases and pragmas consistent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init metadata: %w", err)
	}

	return &Store{db: db, path: path, MaxSessions: DefaultMaxSessions}, nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save persists a session and returns its ID. Loading placeholders are not
// stored and partially revealed messages are stored as they stand.
func (s *Store) Save(ctx context.Context, sess *Session) (string, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Summary == "" {
		sess.Summary = summarize(sess)
	}
	sess.UpdatedAt = time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = sess.UpdatedAt
	}

	params, err := json.Marshal(sess.Params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, summary, mode, params, last_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			mode = excluded.mode,
			params = excluded.params,
			last_code = excluded.last_code,
			updated_at = excluded.updated_at`,
		sess.ID, sess.Summary, sess.Mode, string(params), sess.LastCode,
		sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sess.ID); err != nil {
		return "", fmt.Errorf("failed to replace messages: %w", err)
	}

	seq := 0
	for _, msg := range sess.Messages {
		if msg.Loading {
			continue
		}
		kind, payload, err := encodePayload(msg.Payload)
		if err != nil {
			return "", err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, seq, role, content, code, payload_kind, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, seq, string(msg.Role), msg.Content, msg.Code, kind, payload, msg.CreatedAt.UnixMilli())
		if err != nil {
			return "", fmt.Errorf("failed to save message %d: %w", seq, err)
		}
		seq++
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	if s.MaxSessions > 0 {
		if err := s.enforceLimit(ctx); err != nil {
			return sess.ID, err
		}
	}
	return sess.ID, nil
}

// summarize creates a summary from the first user message.
func summarize(sess *Session) string {
	if p := sess.Preview(50); p != "" {
		return util.SingleLine(p)
	}
	return "New session"
}

// enforceLimit removes the least recently updated sessions over the limit.
func (s *Store) enforceLimit(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions ORDER BY updated_at DESC, id LIMIT -1 OFFSET ?
		)`, s.MaxSessions)
	if err != nil {
		return fmt.Errorf("failed to enforce session limit: %w", err)
	}
	return nil
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load retrieves a session by ID.
func (s *Store) Load(ctx context.Context, id string) (*Session, error) {
	sess := &Session{ID: id}
	var params string
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT summary, mode, params, last_code, created_at, updated_at
		FROM sessions WHERE id = ?`, id).
		Scan(&sess.Summary, &sess.Mode, &params, &sess.LastCode, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = time.UnixMilli(created)
	sess.UpdatedAt = time.UnixMilli(updated)
	sess.Params = model.DefaultParams()
	if err := json.Unmarshal([]byte(params), &sess.Params); err != nil {
		return nil, fmt.Errorf("corrupt params for session %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, code, payload_kind, payload, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			role, content, code, kind string
			payload                   sql.NullString
			at                        int64
		)
		if err := rows.Scan(&role, &content, &code, &kind, &payload, &at); err != nil {
			return nil, err
		}
		if !model.Role(role).Valid() {
			return nil, fmt.Errorf("session %s: unknown role %q", id, role)
		}
		msg := model.NewMessage(model.Role(role), content)
		msg.Code = code
		msg.CreatedAt = time.UnixMilli(at)
		if kind != "" && payload.Valid {
			p, err := decodePayload(kind, []byte(payload.String))
			if err != nil {
				return nil, fmt.Errorf("session %s: %w", id, err)
			}
			msg.Payload = p
		}
		sess.Messages = append(sess.Messages, msg)
	}
	return sess, rows.Err()
}

// Resolve expands a full id or a unique id prefix to the stored id.
func (s *Store) Resolve(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", ErrSessionNotFound
	}
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE id LIKE ? ESCAPE '\' LIMIT 2`, escaped+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", ErrSessionNotFound
	case 1:
		return ids[0], nil
	}
	for _, id := range ids {
		if id == prefix {
			return id, nil
		}
	}
	return "", ErrAmbiguousID
}

// LoadByIndex loads a session by its position in List (0 = most recent).
func (s *Store) LoadByIndex(ctx context.Context, index int) (*Session, error) {
	metas, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(metas) {
		return nil, ErrSessionNotFound
	}
	return s.Load(ctx, metas[index].ID)
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

const listQuery = `
	SELECT s.id, s.summary, s.mode, s.created_at, s.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
	FROM sessions s`

// List returns all saved sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]SessionMeta, error) {
	return s.queryMetas(ctx, listQuery+" ORDER BY s.updated_at DESC, s.id")
}

// Search finds sessions whose summary or any message content contains query.
// Matching ignores ASCII case only.
func (s *Store) Search(ctx context.Context, query string) ([]SessionMeta, error) {
	if strings.TrimSpace(query) == "" {
		return s.List(ctx)
	}
	pattern := "%" + strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(query) + "%"
	return s.queryMetas(ctx, listQuery+`
		WHERE s.summary LIKE ?1 ESCAPE '\'
		   OR EXISTS (SELECT 1 FROM messages m WHERE m.session_id = s.id AND m.content LIKE ?1 ESCAPE '\')
		ORDER BY s.updated_at DESC, s.id`, pattern)
}

func (s *Store) queryMetas(ctx context.Context, query string, args ...any) ([]SessionMeta, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metas := []SessionMeta{}
	for rows.Next() {
		var m SessionMeta
		var created, updated int64
		if err := rows.Scan(&m.ID, &m.Summary, &m.Mode, &created, &updated, &m.MessageCount); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(created)
		m.UpdatedAt = time.UnixMilli(updated)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a session by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Clear removes all saved sessions.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions")
	return err
}

// =============================================================================
// PAYLOAD ENCODING
// =============================================================================

func encodePayload(p model.Payload) (string, sql.NullString, error) {
	if p == nil {
		return "", sql.NullString{}, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("failed to encode %s payload: %w", p.Kind(), err)
	}
	return p.Kind(), sql.NullString{String: string(data), Valid: true}, nil
}

func decodePayload(kind string, data []byte) (model.Payload, error) {
	var p model.Payload
	switch kind {
	case model.KindAnalysis:
		p = &model.StrategyAnalysis{}
	case model.KindBacktest:
		p = &model.BacktestResult{}
	case model.KindDataPrep:
		p = &model.DataPreparation{}
	case model.KindPriceStats:
		p = &model.PriceStats{}
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return p, nil
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatSessionList renders sessions as a fixed-width table.
func FormatSessionList(sessions []SessionMeta) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	sb.WriteString(util.PadRight("ID", 10) + " " + util.PadRight("Updated", 17) + " " +
		util.PadLeft("Msgs", 5) + "  Summary\n")
	sb.WriteString(strings.Repeat("-", 72) + "\n")
	for _, m := range sessions {
		sb.WriteString(util.PadRight(m.ShortID(), 10) + " " +
			util.PadRight(m.UpdatedAt.Format("2006-01-02 15:04"), 17) + " " +
			util.PadLeft(fmt.Sprint(m.MessageCount), 5) + "  " +
			util.TruncateWidth(m.Summary, 36) + "\n")
	}
	return sb.String()
}

// ExportMarkdown renders the session as Markdown, including generated code.
func (s *Session) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# Session " + s.ID + "\n\n")
	sb.WriteString("Created: " + s.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")
	for _, msg := range s.Messages {
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.CreatedAt.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		if msg.Code != "" {
			sb.WriteString("\n\n```python\n" + msg.Code + "\n```")
		}
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}
