package storage

import (
	"context"
	"fmt"
	"time"
)

// ChatMessage is one turn of the simple assistant chat.
type ChatMessage struct {
	ID        string
	ShopID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// ChatLog records one chatbot exchange with its latency.
type ChatLog struct {
	ShopID         string
	UserMessage    string
	BotResponse    string
	Success        bool
	ResponseTimeMs int64
	IP             string
}

// VoiceLog records one voice parse attempt.
type VoiceLog struct {
	ShopID     string
	Transcript string
	ParsedData string
	Success    bool
	Error      string
	IP         string
}

func (r *SQLiteRepository) AddChatMessage(ctx context.Context, shopID, role, content string) (ChatMessage, error) {
	m := ChatMessage{ID: NewID(), ShopID: shopID, Role: role, Content: content, CreatedAt: time.Now().UTC()}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, shop_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, shopID, role, content, unix(m.CreatedAt))
	if err != nil {
		return ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	return m, nil
}

// RecentChatMessages returns the last limit messages in chronological order.
func (r *SQLiteRepository) RecentChatMessages(ctx context.Context, shopID string, limit int) ([]ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shop_id, role, content, created_at FROM (
			SELECT id, shop_id, role, content, created_at, rowid AS rid FROM chat_messages
			WHERE shop_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC, rid ASC`, shopID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var (
			m  ChatMessage
			at int64
		)
		if err := rows.Scan(&m.ID, &m.ShopID, &m.Role, &m.Content, &at); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.CreatedAt = fromUnix(at)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ClearChatMessages(ctx context.Context, shopID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE shop_id = ?`, shopID)
	if err != nil {
		return 0, fmt.Errorf("clear chat messages: %w", err)
	}
	return affected(res), nil
}

// CountChatMessagesSince counts messages of one role, used for the monthly chat quota.
func (r *SQLiteRepository) CountChatMessagesSince(ctx context.Context, shopID, role string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE shop_id = ? AND role = ? AND created_at >= ?`,
		shopID, role, unix(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chat messages: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) AddChatLog(ctx context.Context, l ChatLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_logs (id, shop_id, user_message, bot_response, success, response_time_ms, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		NewID(), l.ShopID, l.UserMessage, l.BotResponse, boolInt(l.Success), l.ResponseTimeMs,
		nullString(l.IP), unix(time.Now()))
	if err != nil {
		return fmt.Errorf("insert chat log: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CountChatLogsSince(ctx context.Context, shopID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_logs WHERE shop_id = ? AND created_at >= ?`, shopID, unix(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chat logs: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) AddVoiceLog(ctx context.Context, l VoiceLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO voice_logs (id, shop_id, transcript, parsed_data, success, error_message, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		NewID(), l.ShopID, l.Transcript, nullString(l.ParsedData), boolInt(l.Success),
		nullString(l.Error), nullString(l.IP), unix(time.Now()))
	if err != nil {
		return fmt.Errorf("insert voice log: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CountVoiceLogsSince(ctx context.Context, shopID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM voice_logs WHERE shop_id = ? AND created_at >= ?`, shopID, unix(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count voice logs: %w", err)
	}
	return n, nil
}
