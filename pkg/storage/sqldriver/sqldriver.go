// Package sqldriver implements storage.Driver over database/sql. The sqlite
// and postgres packages open the connection and pick the placeholder style.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

// Rebinder rewrites '?' placeholders into the driver's native style.
type Rebinder func(query string) string

// Question keeps '?' placeholders (SQLite).
func Question(query string) string { return query }

// Dollar rewrites '?' placeholders to $1, $2, ... (PostgreSQL).
func Dollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
		id              TEXT NOT NULL,
		position        INTEGER NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		sent_at         TEXT NOT NULL,
		PRIMARY KEY (conversation_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS messages_by_position ON messages (conversation_id, position)`,
}

// Driver implements storage.Driver on a *sql.DB.
type Driver struct {
	db     *sql.DB
	rebind Rebinder
}

// New wraps db and creates the schema if needed. The Driver owns db and
// closes it on Close.
func New(ctx context.Context, db *sql.DB, rebind Rebinder) (*Driver, error) {
	d := &Driver{db: db, rebind: rebind}
	if err := d.migrate(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// DB returns the underlying database handle.
func (d *Driver) DB() *sql.DB {
	return d.db
}

func (d *Driver) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// List returns every conversation, most recently updated first.
func (d *Driver) List(ctx context.Context) ([]*llm.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, title, created_at, updated_at FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	var convs []*llm.Conversation
	byID := map[string]*llm.Conversation{}
	for rows.Next() {
		conv := &llm.Conversation{Messages: []llm.ChatMessage{}}
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
		byID[conv.ID] = conv
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	msgRows, err := d.db.QueryContext(ctx,
		`SELECT conversation_id, id, role, content, sent_at FROM messages ORDER BY conversation_id, position`)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var convID string
		var msg llm.ChatMessage
		if err := msgRows.Scan(&convID, &msg.ID, &msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if conv, ok := byID[convID]; ok {
			conv.Messages = append(conv.Messages, msg)
		}
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	if convs == nil {
		convs = []*llm.Conversation{}
	}
	storage.SortByUpdated(convs)
	return convs, nil
}

// Get retrieves a conversation with its messages in order.
func (d *Driver) Get(ctx context.Context, id string) (*llm.Conversation, error) {
	conv := &llm.Conversation{Messages: []llm.ChatMessage{}}
	err := d.db.QueryRowContext(ctx,
		d.rebind(`SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`), id,
	).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ConversationID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation %s: %w", id, err)
	}

	rows, err := d.db.QueryContext(ctx,
		d.rebind(`SELECT id, role, content, sent_at FROM messages WHERE conversation_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, fmt.Errorf("getting messages of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg llm.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting messages of %s: %w", id, err)
	}

	return conv, nil
}

// Put inserts or replaces a conversation and all of its messages.
func (d *Driver) Put(ctx context.Context, conv *llm.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}
	if conv.ID == "" {
		return errors.New("cannot store conversation without id")
	}

	return d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, d.rebind(`
			INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				title = excluded.title,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at`),
			conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upserting conversation %s: %w", conv.ID, err)
		}

		if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM messages WHERE conversation_id = ?`), conv.ID); err != nil {
			return fmt.Errorf("clearing messages of %s: %w", conv.ID, err)
		}

		insert := d.rebind(`INSERT INTO messages (conversation_id, id, position, role, content, sent_at) VALUES (?, ?, ?, ?, ?, ?)`)
		for i, msg := range conv.Messages {
			if _, err := tx.ExecContext(ctx, insert, conv.ID, msg.ID, i, msg.Role, msg.Content, msg.Timestamp); err != nil {
				return fmt.Errorf("inserting message %s: %w", msg.ID, err)
			}
		}
		return nil
	})
}

// Delete removes a conversation and its messages.
func (d *Driver) Delete(ctx context.Context, id string) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM messages WHERE conversation_id = ?`), id); err != nil {
			return fmt.Errorf("deleting messages of %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM conversations WHERE id = ?`), id); err != nil {
			return fmt.Errorf("deleting conversation %s: %w", id, err)
		}
		return nil
	})
}

// AppendMessage adds msg after the conversation's last message.
func (d *Driver) AppendMessage(ctx context.Context, conversationID string, msg llm.ChatMessage) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		if err := d.touch(ctx, tx, conversationID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, d.rebind(`
			INSERT INTO messages (conversation_id, id, position, role, content, sent_at)
			SELECT ?, ?, COALESCE(MAX(position), -1) + 1, ?, ?, ?
			FROM messages WHERE conversation_id = ?`),
			conversationID, msg.ID, msg.Role, msg.Content, msg.Timestamp, conversationID,
		); err != nil {
			return fmt.Errorf("appending message %s: %w", msg.ID, err)
		}
		return nil
	})
}

// ReplaceMessage sets the content of an existing message.
func (d *Driver) ReplaceMessage(ctx context.Context, conversationID, messageID, content string) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		if err := d.touch(ctx, tx, conversationID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			d.rebind(`UPDATE messages SET content = ? WHERE conversation_id = ? AND id = ?`),
			content, conversationID, messageID,
		)
		if err != nil {
			return fmt.Errorf("replacing message %s: %w", messageID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return storage.NotFoundError{ConversationID: conversationID, MessageID: messageID}
		}
		return nil
	})
}

// Rename sets the conversation title.
func (d *Driver) Rename(ctx context.Context, id, title string) error {
	res, err := d.db.ExecContext(ctx,
		d.rebind(`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`),
		title, storage.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("renaming conversation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.NotFoundError{ConversationID: id}
	}
	return nil
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.db.Close()
}

// touch bumps updated_at, failing with NotFoundError for unknown ids.
func (d *Driver) touch(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx,
		d.rebind(`UPDATE conversations SET updated_at = ? WHERE id = ?`),
		storage.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating conversation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.NotFoundError{ConversationID: id}
	}
	return nil
}

func (d *Driver) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
