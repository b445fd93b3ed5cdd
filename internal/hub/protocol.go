package hub

import (
	"github.com/dgnsrekt/boardrelay/internal/session"
)

// clientsMessage announces the membership count.
type clientsMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// syncMessage brings a joining connection up to date.
type syncMessage struct {
	Type     string           `json:"type"`
	History  []session.Event  `json:"history"`
	Stickies []session.Sticky `json:"stickies"`
	Clients  int              `json:"clients"`
}

func buildClientsMessage(count int) []byte {
	return session.Encode(clientsMessage{Type: session.TypeClients, Count: count})
}

func buildSyncMessage(history []session.Event, stickies []session.Sticky, count int) []byte {
	if history == nil {
		history = []session.Event{}
	}
	if stickies == nil {
		stickies = []session.Sticky{}
	}
	return session.Encode(syncMessage{
		Type:     session.TypeSync,
		History:  history,
		Stickies: stickies,
		Clients:  count,
	})
}
