package store

import (
	"context"
	"time"
)

// DomainEvent is a row of domain_events.
type DomainEvent struct {
	ID          string
	Topic       string
	AggregateID string
	Payload     []byte
	OccurredAt  time.Time
}

// InsertDomainEvent appends an event to the outbox table.
func (q *Queries) InsertDomainEvent(ctx context.Context, e DomainEvent) error {
	_, err := q.db.Exec(ctx, `INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
		VALUES ($1::uuid, $2, $3, $4::jsonb, $5)`, e.ID, e.Topic, e.AggregateID, string(e.Payload), e.OccurredAt)
	return translate(err)
}
