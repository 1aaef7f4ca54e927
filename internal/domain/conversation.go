// Package domain contains core domain types for the SkillStream client.
package domain

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	// StatusActive means the conversation is ongoing and accepts new messages.
	StatusActive ConversationStatus = "ACTIVE"
	// StatusCompleted means the conversation has ended; a quiz can be generated.
	StatusCompleted ConversationStatus = "COMPLETED"
	// StatusArchived means the user archived the conversation.
	StatusArchived ConversationStatus = "ARCHIVED"
)

// Conversation is a bounded chat session between a user and the assistant.
// IDs are opaque and assigned by the backend on creation.
type Conversation struct {
	ID           string             `json:"id"`
	UserID       string             `json:"userId,omitempty"`
	Title        string             `json:"title,omitempty"`
	Topic        string             `json:"topic,omitempty"`
	Status       ConversationStatus `json:"status"`
	MessageCount int                `json:"messageCount"`
	StartedAt    time.Time          `json:"startedAt"`
	EndedAt      *time.Time         `json:"endedAt,omitempty"`
}

// IsActive returns true if the conversation still accepts messages.
func (c *Conversation) IsActive() bool {
	return c.Status == StatusActive
}

// DisplayTitle returns the best available label for list views.
func (c *Conversation) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	if c.Topic != "" {
		return c.Topic
	}
	return "New Conversation"
}

// IncrementMessageCount bumps the local message count after a completed send.
// The backend count is authoritative on the next reload.
func (c *Conversation) IncrementMessageCount() {
	c.MessageCount++
}
