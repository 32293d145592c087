package settlement

import (
	"context"
	"fmt"

	"github.com/joao-fontenele/digimarket/internal/database"
)

// EventLog keeps one row per verified provider confirmation.
type EventLog struct{}

func NewEventLog() *EventLog {
	return &EventLog{}
}

// Record stores the event and reports whether it was seen for the first
// time.
func (e *EventLog) Record(ctx context.Context, q database.Querier, c Confirmation) (bool, error) {
	result, err := q.ExecContext(ctx, `
		INSERT INTO payment_events (provider, event_id, event_type, target_tag)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, c.Provider, c.EventID, c.EventType, c.Tag)
	if err != nil {
		return false, fmt.Errorf("record payment event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
