package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction tells who sent a logged text.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageRecord is one logged SMS.
type MessageRecord struct {
	ID        uuid.UUID `json:"id"`
	Phone     string    `json:"phone"`
	Direction Direction `json:"direction"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageLog persists the SMS transcript to PostgreSQL for support review.
type MessageLog struct {
	db *sql.DB
}

func NewMessageLog(db *sql.DB) *MessageLog {
	if db == nil {
		panic("conversation: message log requires a database")
	}
	return &MessageLog{db: db}
}

func (l *MessageLog) Append(ctx context.Context, rec MessageRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO sms_messages (id, phone, direction, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Phone, string(rec.Direction), rec.Body, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("conversation: failed to append message: %w", err)
	}
	return nil
}

// Recent returns up to limit messages for phone, oldest first.
func (l *MessageLog) Recent(ctx context.Context, phone string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, phone, direction, body, created_at FROM sms_messages WHERE phone = $1 ORDER BY created_at DESC LIMIT $2`,
		phone, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var direction string
		if err := rows.Scan(&rec.ID, &rec.Phone, &direction, &rec.Body, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: failed to scan message: %w", err)
		}
		rec.Direction = Direction(direction)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: failed to read messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
