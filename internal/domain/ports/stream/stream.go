package stream

import "context"

// ChangeEvent is one update delivered by a change stream: the table it came
// from, the operation, and the new/old row images. Delivery is at-least-once,
// possibly duplicated and possibly reordered; consumers filter by table and
// compare New against Old to detect a real transition.
type ChangeEvent struct {
	Table string         `json:"table"`
	Op    string         `json:"op"`
	New   map[string]any `json:"new"`
	Old   map[string]any `json:"old"`
}

// Str returns a string column from the new row image, or "".
func (e ChangeEvent) Str(column string) string {
	if v, ok := e.New[column].(string); ok {
		return v
	}
	return ""
}

// OldStr returns a string column from the old row image, or "".
func (e ChangeEvent) OldStr(column string) string {
	if v, ok := e.Old[column].(string); ok {
		return v
	}
	return ""
}

// ChangeStream is a long-lived subscription to update events scoped to one
// account. The returned cancel func releases the subscription; the event
// channel is closed once the subscription ends.
type ChangeStream interface {
	Subscribe(ctx context.Context, userID string) (<-chan ChangeEvent, func(), error)
}
