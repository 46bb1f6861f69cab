package delivery

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/streamhouse/streamhouse/pkg/types"
)

// Event is a generated analytics event.
type Event struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	EventType string `json:"event_type"`
}

// EventColumns are the columns of tables fed by the generator.
var EventColumns = []types.ColumnDef{
	{Name: "id", Type: "string"},
	{Name: "session_id", Type: "string"},
	{Name: "message", Type: "string"},
	{Name: "event_type", Type: "string"},
}

// Generator produces synthetic events of one type.
type Generator struct {
	eventType string
	message   string
}

// NewGenerator creates a generator for eventType.
func NewGenerator(eventType string) *Generator {
	return &Generator{eventType: eventType, message: "this is a message"}
}

// Next returns one event keyed by a fresh session id.
func (g *Generator) Next() (Event, Record, error) {
	ev := Event{
		ID:        uuid.New().String(),
		SessionID: uuid.New().String(),
		Message:   g.message,
		EventType: g.eventType,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return Event{}, Record{}, err
	}
	return ev, Record{PartitionKey: ev.SessionID, Data: data}, nil
}

// Batch returns n records.
func (g *Generator) Batch(n int) ([]Record, error) {
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		_, r, err := g.Next()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
