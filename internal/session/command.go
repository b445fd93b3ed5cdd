package session

import (
	"encoding/json"
	"fmt"
)

// Message discriminants.
const (
	TypeDraw           = "draw"
	TypeClear          = "clear"
	TypeGraph          = "graph"
	TypeVoice          = "voice"
	TypeSticky         = "sticky"
	TypeClients        = "clients"
	TypeClientsRequest = "clients-request"
	TypeSync           = "sync"
)

// Sticky actions.
const (
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionMove   = "move"
	ActionDelete = "delete"
)

// Default position for stickies created without coordinates.
const (
	DefaultStickyX = 50
	DefaultStickyY = 50
)

// Command is an inbound client message after parsing. The set of
// implementations is closed: see ParseCommand.
type Command interface {
	command()
}

type (
	// Passthrough is a draw, clear, graph or voice message. Its payload is
	// opaque and is relayed byte for byte.
	Passthrough struct {
		Type string
		Raw  json.RawMessage
	}

	// CreateSticky creates a sticky note. Nil fields take their defaults.
	// Z is only honoured by Replay; live creates always get the next z.
	CreateSticky struct {
		ID   string
		X    *float64
		Y    *float64
		HTML *string
		Z    *float64
	}

	EditSticky struct {
		ID   string
		HTML string
	}

	// MoveSticky updates the position of a sticky. A nil coordinate keeps
	// its current value.
	MoveSticky struct {
		ID string
		X  *float64
		Y  *float64
	}

	DeleteSticky struct {
		ID string
	}

	// ClientsRequest asks the server to re-announce the membership count.
	ClientsRequest struct{}
)

func (*Passthrough) command()    {}
func (*CreateSticky) command()   {}
func (*EditSticky) command()     {}
func (*MoveSticky) command()     {}
func (*DeleteSticky) command()   {}
func (*ClientsRequest) command() {}

// envelope holds the discriminant of any message. Other fields are left
// alone so passthrough payloads may use any shape.
type envelope struct {
	Type string `json:"type"`
}

// stickyFields holds every field a sticky command may carry.
type stickyFields struct {
	Action string   `json:"action"`
	ID     *string  `json:"id"`
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	HTML   *string  `json:"html"`
	Z      *float64 `json:"z"`
}

// ParseCommand parses a raw client message into a Command.
func ParseCommand(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch env.Type {
	case TypeDraw, TypeClear, TypeGraph, TypeVoice:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return &Passthrough{Type: env.Type, Raw: raw}, nil

	case TypeClients, TypeClientsRequest:
		return &ClientsRequest{}, nil

	case TypeSticky:
		return parseSticky(data)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
	}
}

func parseSticky(data []byte) (Command, error) {
	var f stickyFields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: sticky: %v", ErrMalformed, err)
	}

	id := ""
	if f.ID != nil {
		id = *f.ID
	}

	switch f.Action {
	case ActionCreate:
		return &CreateSticky{ID: id, X: f.X, Y: f.Y, HTML: f.HTML, Z: f.Z}, nil

	case ActionEdit:
		if id == "" {
			return nil, fmt.Errorf("%w: sticky edit without id", ErrMalformed)
		}
		if f.HTML == nil {
			return nil, fmt.Errorf("%w: sticky edit without html", ErrMalformed)
		}
		return &EditSticky{ID: id, HTML: *f.HTML}, nil

	case ActionMove:
		if id == "" {
			return nil, fmt.Errorf("%w: sticky move without id", ErrMalformed)
		}
		return &MoveSticky{ID: id, X: f.X, Y: f.Y}, nil

	case ActionDelete:
		if id == "" {
			return nil, fmt.Errorf("%w: sticky delete without id", ErrMalformed)
		}
		return &DeleteSticky{ID: id}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, f.Action)
	}
}
