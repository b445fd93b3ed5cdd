package session

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// IDGenerator assigns identifiers to stickies created without one.
// Implementations are only called with the store lock held.
type IDGenerator interface {
	NextID() string
}

// SequentialIDs yields s1, s2, s3, ... and keeps replays deterministic.
type SequentialIDs struct {
	n uint64
}

func (g *SequentialIDs) NextID() string {
	g.n++
	return "s" + strconv.FormatUint(g.n, 10)
}

// observe advances the sequence past an id seen during replay, so ids
// issued after a replay never repeat one from the replayed history.
func (g *SequentialIDs) observe(id string) {
	rest, ok := strings.CutPrefix(id, "s")
	if !ok {
		return
	}
	if n, err := strconv.ParseUint(rest, 10, 64); err == nil && n > g.n {
		g.n = n
	}
}

// UUIDIDs yields random UUIDs.
type UUIDIDs struct{}

func (UUIDIDs) NextID() string {
	return uuid.NewString()
}

// NewIDGenerator returns the generator for a configured mode.
func NewIDGenerator(mode string) IDGenerator {
	if mode == "uuid" {
		return UUIDIDs{}
	}
	return &SequentialIDs{}
}
