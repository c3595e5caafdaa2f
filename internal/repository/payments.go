package repository

import (
	"context"

	"github.com/sqlc-dev/pqtype"
)

// InsertPaymentEventParams holds the inputs for InsertPaymentEvent.
type InsertPaymentEventParams struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         pqtype.NullRawMessage
}

const insertPaymentEvent = `
INSERT INTO payment_events (provider, provider_event_id, event_type, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (provider, provider_event_id) DO NOTHING`

// InsertPaymentEvent stores a webhook event. Returns true if the event was
// new, false if it was already recorded (duplicate delivery).
func (q *Queries) InsertPaymentEvent(ctx context.Context, arg InsertPaymentEventParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertPaymentEvent,
		arg.Provider, arg.ProviderEventID, arg.EventType, arg.Payload)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
