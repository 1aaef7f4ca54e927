package domain

import (
	"fmt"
	"time"
)

// MessageID identifies a message entry as either an optimistic local entry
// (created before backend confirmation) or a persisted backend record.
// A full history reload replaces optimistic entries with persisted ones
// wholesale; the two kinds are never merged item by item.
type MessageID struct {
	local  string
	server string
}

// OptimisticUserID returns a local ID for an optimistic user entry.
func OptimisticUserID(at time.Time) MessageID {
	return MessageID{local: fmt.Sprintf("u-%d", at.UnixMilli())}
}

// OptimisticAssistantID returns a local ID for an assistant placeholder entry.
func OptimisticAssistantID(at time.Time) MessageID {
	return MessageID{local: fmt.Sprintf("a-%d", at.UnixMilli())}
}

// PersistedID returns a MessageID for a backend-assigned identifier.
func PersistedID(serverID string) MessageID {
	return MessageID{server: serverID}
}

// IsOptimistic returns true if the entry has not been confirmed by the backend.
func (id MessageID) IsOptimistic() bool {
	return id.server == ""
}

// String returns the display form of the identifier.
func (id MessageID) String() string {
	if id.server != "" {
		return id.server
	}
	return id.local
}

// Message is one exchange entry in a conversation's message sequence.
// UserMessage is empty for assistant-only entries; BotResponse accumulates
// incrementally while Streaming is true.
type Message struct {
	ID           MessageID
	UserMessage  string
	BotResponse  string
	CreatedAt    time.Time
	PointsEarned int
	Streaming    bool
}
