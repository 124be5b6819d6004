package model

import "time"

// Message is the envelope the broker attaches to every delivered
// payload, mirroring the Command shape from spec.md §3: topic, sender,
// timestamp, message_id, and the opaque payload.
type Message struct {
	Topic     string
	Sender    string
	Timestamp time.Time
	MessageID string
	Payload   any
}

// Result is the bus-facing outcome of a command, per spec.md §7: either
// a success value or a typed failure, never both.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Ok returns a successful Result.
func Ok() Result { return Result{Success: true} }

// Fail returns a failed Result carrying err's message.
func Fail(err error) Result {
	return Result{Success: false, Error: err.Error()}
}
