package scheduling

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ClientDirectory maps phone numbers to client records.
type ClientDirectory struct {
	pool PgxPool
}

func NewClientDirectory(pool PgxPool) *ClientDirectory {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &ClientDirectory{pool: pool}
}

// FindOrCreateClientByPhone upserts on phone so repeated calls return the same id.
func (d *ClientDirectory) FindOrCreateClientByPhone(ctx context.Context, phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("scheduling: phone is required")
	}
	ctx, span := tracer.Start(ctx, "scheduling.find_or_create_client")
	defer span.End()

	var id uuid.UUID
	err := d.pool.QueryRow(ctx, `
		INSERT INTO clients (id, phone)
		VALUES ($1, $2)
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id
	`, uuid.New(), phone).Scan(&id)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("scheduling: failed to upsert client: %w", err)
	}
	return id.String(), nil
}
