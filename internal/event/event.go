package event

type Type string

const (
	TypeReadingCreated Type = "reading.created"
	TypeAlertRaised    Type = "alert.raised"
	TypeReadingsPruned Type = "readings.pruned"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
