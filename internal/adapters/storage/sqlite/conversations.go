package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

func (s *Store) ListConversations(ctx context.Context, userID domain.UserID) ([]domain.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, messages, message_count, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC, id`, string(userID))
	if err != nil {
		return nil, mapErr(fmt.Errorf("list conversations: %w", err))
	}
	defer rows.Close()

	var out []domain.ConversationSummary
	for rows.Next() {
		var (
			id, title, raw string
			count          int
			updated        int64
		)
		if err := rows.Scan(&id, &title, &raw, &count, &updated); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}

		if title == "" {
			// derived from the first user message
			var msgs []domain.Message
			if err := json.Unmarshal([]byte(raw), &msgs); err == nil {
				title = domain.DeriveTitle("", msgs)
			} else {
				title = domain.DefaultTitle
			}
		}

		out = append(out, domain.ConversationSummary{
			ID:           domain.ConversationID(id),
			Title:        title,
			MessageCount: count,
			UpdatedAt:    time.Unix(0, updated),
		})
	}
	return out, rows.Err()
}

func (s *Store) GetConversation(ctx context.Context, userID domain.UserID, id domain.ConversationID) (*domain.Conversation, error) {
	var (
		title, raw       string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT title, messages, created_at, updated_at
		FROM conversations
		WHERE id = ? AND user_id = ?`, string(id), string(userID),
	).Scan(&title, &raw, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapErr(fmt.Errorf("get conversation: %w", err))
	}

	var msgs []domain.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("decode messages of %s: %w", id, err)
	}

	return &domain.Conversation{
		ID:        id,
		UserID:    userID,
		Title:     domain.DeriveTitle(title, msgs),
		Messages:  msgs,
		CreatedAt: time.Unix(0, created),
		UpdatedAt: time.Unix(0, updated),
	}, nil
}

func (s *Store) UpsertConversation(ctx context.Context, userID domain.UserID, messages []domain.Message, id domain.ConversationID) (domain.ConversationID, error) {
	raw, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("encode messages: %w", err)
	}
	now := s.now().UnixNano()

	if id == "" {
		id = domain.ConversationID(newID())
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations (id, user_id, messages, message_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(id), string(userID), string(raw), len(messages), now, now)
		if err != nil {
			return "", mapErr(fmt.Errorf("create conversation: %w", err))
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET messages = ?, message_count = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		string(raw), len(messages), now, string(id), string(userID))
	if err != nil {
		return "", mapErr(fmt.Errorf("update conversation: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", domain.ErrNotFound
	}
	return id, nil
}

func (s *Store) DeleteConversation(ctx context.Context, userID domain.UserID, id domain.ConversationID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND user_id = ?`,
		string(id), string(userID))
	if err != nil {
		return mapErr(fmt.Errorf("delete conversation: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
