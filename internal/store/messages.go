package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/celerix-dev/nestsync/pkg/schema"
)

// AppendMessage adds msg to the community feed.
func (s *Store) AppendMessage(ctx context.Context, msg schema.CommunityMessage) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO community_messages (id, author_label, text, timestamp, is_self, color_tag) VALUES (?, ?, ?, ?, ?, ?)`),
		msg.ID, msg.AuthorLabel, msg.Text, formatTime(msg.Timestamp), msg.IsSelf, msg.ColorTag)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest limit messages posted at or after since, oldest first.
func (s *Store) RecentMessages(ctx context.Context, since time.Time, limit int) ([]schema.CommunityMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, author_label, text, timestamp, is_self, color_tag FROM community_messages WHERE timestamp >= ? ORDER BY timestamp DESC LIMIT ?`),
		formatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []schema.CommunityMessage{}
	for rows.Next() {
		var (
			m  schema.CommunityMessage
			ts string
		)
		if err := rows.Scan(&m.ID, &m.AuthorLabel, &m.Text, &ts, &m.IsSelf, &m.ColorTag); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("decode message timestamp: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	slices.Reverse(msgs)
	return msgs, nil
}
