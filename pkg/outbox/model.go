package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	// StatusFailed is terminal: it marks poison rows that exhausted their
	// dispatch attempts. Transient failures return to pending.
	StatusFailed Status = "failed"
)

// Event is one outbox row, written in the same local transaction as the
// business mutation it describes. Topic and Key route the published message.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Topic         string
	Key           string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RetryCount    int
	LastError     *string
}
