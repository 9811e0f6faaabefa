package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkgate/inkgate/internal/logging"
)

const maxTitleLength = 100

// NewAttachment pairs a source title with its raw content for storage.
type NewAttachment struct {
	Title   string
	Content string
}

// CreateSession inserts a new empty session and returns it.
func (s *Store) CreateSession(modelID string) (*Session, error) {
	now := time.Now().Unix()
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, model_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, modelID, now, now)
	if err != nil {
		return nil, &StorageError{Op: "create session", Err: err}
	}
	return &Session{ID: id, ModelID: modelID, CreatedAt: now, UpdatedAt: now}, nil
}

// GetSession loads a session with its full ordered message history,
// including tool invocations and inflated source content. Returns nil
// when no session has the given id.
func (s *Store) GetSession(id string) (*Session, error) {
	sess := &Session{}
	err := s.db.QueryRow(
		`SELECT id, title, model_id, created_at, updated_at,
		        input_tokens, output_tokens, reasoning_tokens, cache_tokens, total_tokens
		 FROM sessions WHERE id = ?`, id).Scan(
		&sess.ID, &sess.Title, &sess.ModelID, &sess.CreatedAt, &sess.UpdatedAt,
		&sess.Usage.InputTokens, &sess.Usage.OutputTokens,
		&sess.Usage.ReasoningTokens, &sess.Usage.CacheTokens, &sess.Usage.TotalTokens)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "load session", Err: err}
	}

	rows, err := s.db.Query(
		`SELECT id, ordinal, role, content, reasoning, created_at
		 FROM messages WHERE session_id = ? ORDER BY ordinal`, id)
	if err != nil {
		return nil, &StorageError{Op: "load messages", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Ordinal, &m.Role, &m.Content, &m.Reasoning, &m.CreatedAt); err != nil {
			return nil, &StorageError{Op: "scan message", Err: err}
		}
		sess.Messages = append(sess.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate messages", Err: err}
	}

	for i := range sess.Messages {
		m := &sess.Messages[i]
		if m.Tools, err = s.loadInvocations(m.ID); err != nil {
			return nil, err
		}
		if m.Sources, err = s.loadSources(m.ID); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func (s *Store) loadInvocations(messageID int64) ([]ToolInvocation, error) {
	rows, err := s.db.Query(
		`SELECT tool, arguments, result, error, status
		 FROM tool_invocations WHERE message_id = ? ORDER BY position`, messageID)
	if err != nil {
		return nil, &StorageError{Op: "load tool invocations", Err: err}
	}
	defer rows.Close()

	var out []ToolInvocation
	for rows.Next() {
		var inv ToolInvocation
		if err := rows.Scan(&inv.Tool, &inv.Arguments, &inv.Result, &inv.Error, &inv.Status); err != nil {
			return nil, &StorageError{Op: "scan tool invocation", Err: err}
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) loadSources(messageID int64) ([]Source, error) {
	rows, err := s.db.Query(
		`SELECT title, blob_hash FROM sources WHERE message_id = ? ORDER BY id`, messageID)
	if err != nil {
		return nil, &StorageError{Op: "load sources", Err: err}
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.Title, &src.Hash); err != nil {
			return nil, &StorageError{Op: "scan source", Err: err}
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		content, err := s.getBlob(out[i].Hash)
		if err != nil {
			return nil, err
		}
		out[i].Content = string(content)
	}
	return out, nil
}

// ListSessions returns summaries of all sessions, most recently updated
// first. Preview is the first user message, truncated.
func (s *Store) ListSessions() ([]SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.title, s.model_id, s.created_at, s.updated_at,
		        s.input_tokens, s.output_tokens, s.reasoning_tokens, s.cache_tokens, s.total_tokens,
		        (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id),
		        COALESCE((SELECT m.content FROM messages m
		                  WHERE m.session_id = s.id AND m.role = 'user'
		                  ORDER BY m.ordinal LIMIT 1), '')
		 FROM sessions s ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, &StorageError{Op: "list sessions", Err: err}
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.ModelID, &sum.CreatedAt, &sum.UpdatedAt,
			&sum.Usage.InputTokens, &sum.Usage.OutputTokens, &sum.Usage.ReasoningTokens,
			&sum.Usage.CacheTokens, &sum.Usage.TotalTokens,
			&sum.MessageCount, &sum.Preview); err != nil {
			return nil, &StorageError{Op: "scan session summary", Err: err}
		}
		sum.Preview = truncate(sum.Preview, maxTitleLength)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteSession removes a session, its messages, invocations and
// sources, releasing each source's blob reference. Reports whether a
// session was deleted.
func (s *Store) DeleteSession(id string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, &StorageError{Op: "begin delete", Err: err}
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT src.blob_hash FROM sources src
		 JOIN messages m ON m.id = src.message_id
		 WHERE m.session_id = ?`, id)
	if err != nil {
		return false, &StorageError{Op: "collect session blobs", Err: err}
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return false, &StorageError{Op: "scan blob hash", Err: err}
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return false, &StorageError{Op: "iterate blob hashes", Err: err}
	}
	rows.Close()

	res, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, &StorageError{Op: "delete session", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "delete session", Err: err}
	}

	for _, h := range hashes {
		if err := releaseBlob(tx, h); err != nil {
			return false, &StorageError{Op: "release blob", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, &StorageError{Op: "commit delete", Err: err}
	}
	return n > 0, nil
}

// UpdateSessionTitle sets a session's title, truncating to the display
// limit.
func (s *Store) UpdateSessionTitle(id, title string) error {
	_, err := s.db.Exec(`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`,
		truncate(title, maxTitleLength), time.Now().Unix(), id)
	if err != nil {
		return &StorageError{Op: "update title", Err: err}
	}
	return nil
}

// AddUserMessage appends a user message (with optional attachments) at
// the next ordinal. The first user message also becomes the session
// title. All writes happen in one transaction.
func (s *Store) AddUserMessage(sessionID, content string, attachments []NewAttachment) (*Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, &StorageError{Op: "begin user message", Err: err}
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	msg, err := insertMessage(tx, sessionID, "user", content, "", now)
	if err != nil {
		return nil, err
	}

	for _, att := range attachments {
		hash, err := putBlob(tx, []byte(att.Content))
		if err != nil {
			return nil, &StorageError{Op: "store attachment blob", Err: err}
		}
		if _, err := tx.Exec(
			`INSERT INTO sources (message_id, title, blob_hash) VALUES (?, ?, ?)`,
			msg.ID, att.Title, hash); err != nil {
			return nil, &StorageError{Op: "store source", Err: err}
		}
		msg.Sources = append(msg.Sources, Source{Title: att.Title, Hash: hash, Content: att.Content})
	}

	if msg.Ordinal == 1 {
		if _, err := tx.Exec(`UPDATE sessions SET title = ? WHERE id = ?`,
			truncate(content, maxTitleLength), sessionID); err != nil {
			return nil, &StorageError{Op: "set session title", Err: err}
		}
	}
	if _, err := tx.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
		return nil, &StorageError{Op: "touch session", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "commit user message", Err: err}
	}
	return msg, nil
}

// CommitTurn atomically persists a completed exchange: the assistant
// message with its reasoning, the turn's tool invocations in request
// order, and the session's token counter deltas. Either everything
// lands or nothing does.
func (s *Store) CommitTurn(sessionID string, turn Turn) (*Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, &StorageError{Op: "begin turn", Err: err}
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	msg, err := insertMessage(tx, sessionID, "assistant", turn.Content, turn.Reasoning, now)
	if err != nil {
		return nil, err
	}

	for i, inv := range turn.Invocations {
		if _, err := tx.Exec(
			`INSERT INTO tool_invocations (message_id, position, tool, arguments, result, error, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, i, inv.Tool, inv.Arguments, inv.Result, inv.Error, string(inv.Status)); err != nil {
			return nil, &StorageError{Op: "store tool invocation", Err: err}
		}
	}
	msg.Tools = turn.Invocations

	u := turn.Usage
	total := u.InputTokens + u.OutputTokens
	if _, err := tx.Exec(
		`UPDATE sessions SET
		    input_tokens = input_tokens + ?,
		    output_tokens = output_tokens + ?,
		    reasoning_tokens = reasoning_tokens + ?,
		    cache_tokens = cache_tokens + ?,
		    total_tokens = total_tokens + ?,
		    updated_at = ?
		 WHERE id = ?`,
		u.InputTokens, u.OutputTokens, u.ReasoningTokens, u.CacheTokens, total, now, sessionID); err != nil {
		return nil, &StorageError{Op: "update token counters", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "commit turn", Err: err}
	}
	logging.Debug("store: committed turn for session %s (%d tool invocations)", sessionID, len(turn.Invocations))
	return msg, nil
}

// insertMessage appends a message at the next ordinal for the session.
func insertMessage(tx *sql.Tx, sessionID, role, content, reasoning string, now int64) (*Message, error) {
	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		return nil, &StorageError{Op: "check session", Err: err}
	}
	if exists == 0 {
		return nil, &StorageError{Op: "append message", Err: fmt.Errorf("session %s not found", sessionID)}
	}

	var ordinal int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(ordinal), 0) + 1 FROM messages WHERE session_id = ?`,
		sessionID).Scan(&ordinal); err != nil {
		return nil, &StorageError{Op: "next ordinal", Err: err}
	}

	res, err := tx.Exec(
		`INSERT INTO messages (session_id, ordinal, role, content, reasoning, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, ordinal, role, content, reasoning, now)
	if err != nil {
		return nil, &StorageError{Op: "insert message", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, &StorageError{Op: "insert message", Err: err}
	}
	return &Message{ID: id, Role: role, Ordinal: ordinal, Content: content, Reasoning: reasoning, CreatedAt: now}, nil
}

// CleanupOldSessions deletes sessions whose last activity is older than
// maxAge and returns how many were removed.
func (s *Store) CleanupOldSessions(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	rows, err := s.db.Query(`SELECT id FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, &StorageError{Op: "find stale sessions", Err: err}
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, &StorageError{Op: "scan stale session", Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, &StorageError{Op: "iterate stale sessions", Err: err}
	}
	rows.Close()

	deleted := 0
	for _, id := range ids {
		ok, err := s.DeleteSession(id)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	if deleted > 0 {
		logging.Info("store: cleaned up %d stale session(s)", deleted)
	}
	return deleted, nil
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "..."
}
