package scheduling

import (
	"context"
	"fmt"

	"github.com/wolfman30/salon-sms-booking/internal/conversation"
)

// Catalog reads bookable services from Postgres.
type Catalog struct {
	pool PgxPool
}

func NewCatalog(pool PgxPool) *Catalog {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &Catalog{pool: pool}
}

// ListActiveServices returns active, non-deleted services ordered by name.
func (c *Catalog) ListActiveServices(ctx context.Context) ([]conversation.Service, error) {
	ctx, span := tracer.Start(ctx, "scheduling.list_services")
	defer span.End()

	rows, err := c.pool.Query(ctx, `
		SELECT id, name, COALESCE(description, ''), price_cents, duration_minutes
		FROM services
		WHERE is_active AND deleted_at IS NULL
		ORDER BY name
	`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scheduling: failed to list services: %w", err)
	}
	defer rows.Close()

	var services []conversation.Service
	for rows.Next() {
		var svc conversation.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.PriceCents, &svc.DurationMinutes); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scheduling: failed to scan service: %w", err)
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scheduling: failed to read services: %w", err)
	}
	return services, nil
}
