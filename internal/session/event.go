package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Event is an accepted, immutable state change. Its wire form is kept as
// the exact bytes broadcast to clients.
type Event struct {
	Type   string
	Action string
	raw    json.RawMessage
}

// Bytes returns the wire form of the event. Callers must not modify it.
func (e Event) Bytes() []byte {
	return e.raw
}

func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.raw) == 0 {
		return []byte("null"), nil
	}
	return e.raw, nil
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var f struct {
		Type   string          `json:"type"`
		Action json.RawMessage `json:"action"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformed)
	}

	e.Type = f.Type
	e.Action = ""
	if f.Type == TypeSticky && len(f.Action) > 0 {
		var action string
		if err := json.Unmarshal(f.Action, &action); err != nil {
			return fmt.Errorf("%w: sticky action: %v", ErrMalformed, err)
		}
		e.Action = action
	}
	e.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Sticky is the materialized state of one sticky note.
type Sticky struct {
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	HTML string  `json:"html"`
	Z    int64   `json:"z"`
}

// Canonical sticky events. Field order is the wire order.
type (
	stickyCreated struct {
		Type   string  `json:"type"`
		Action string  `json:"action"`
		ID     string  `json:"id"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		HTML   string  `json:"html"`
		Z      int64   `json:"z"`
	}
	stickyEdited struct {
		Type   string `json:"type"`
		Action string `json:"action"`
		ID     string `json:"id"`
		HTML   string `json:"html"`
	}
	stickyMoved struct {
		Type   string  `json:"type"`
		Action string  `json:"action"`
		ID     string  `json:"id"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
	}
	stickyDeleted struct {
		Type   string `json:"type"`
		Action string `json:"action"`
		ID     string `json:"id"`
	}
)

func newStickyEvent(action string, v any) Event {
	return Event{Type: TypeSticky, Action: action, raw: Encode(v)}
}

// Encode marshals v without HTML escaping, so sticky markup is relayed as
// written. Values passed here are plain structs that cannot fail to encode.
func Encode(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		panic(fmt.Sprintf("session: encode %T: %v", v, err))
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}
