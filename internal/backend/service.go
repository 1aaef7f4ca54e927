// Package backend provides the client for the learning platform's HTTP and
// event-stream API. The backend itself (chat generation, gamification rules,
// quiz generation) is external; this package only speaks its contract.
package backend

import (
	"context"
	"errors"
	"iter"

	"github.com/skillstream/skillstream/internal/domain"
)

var (
	// ErrNotFound is returned when the backend reports a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrUnauthorized is returned on rejected credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStreamStalled is returned when a message stream delivers no event
	// within the configured idle window and no terminal event has arrived.
	ErrStreamStalled = errors.New("message stream stalled")
)

// StreamEventType names the events delivered over a message stream.
type StreamEventType string

const (
	// StreamToken carries one incremental fragment of assistant text.
	StreamToken StreamEventType = "token"
	// StreamComplete ends the stream and carries the points award.
	StreamComplete StreamEventType = "complete"
)

// StreamEvent is one event from an open message stream. Transport failures
// and server-side error events are delivered through the error side of the
// sequence, never as a StreamEvent.
type StreamEvent struct {
	Type         StreamEventType
	Token        string
	PointsEarned int
	MessageID    string
}

// Service defines the operations the client consumes from the platform.
type Service interface {
	// Login authenticates and returns the user profile.
	Login(ctx context.Context, username, password string) (*domain.User, error)

	// CreateConversation starts a new ACTIVE conversation for the user.
	CreateConversation(ctx context.Context, userID string) (*domain.Conversation, error)

	// ListConversations returns the user's conversations, newest first.
	ListConversations(ctx context.Context, userID string) ([]*domain.Conversation, error)

	// GetConversation fetches a single conversation record.
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)

	// GetConversationMessages fetches the ordered message history.
	GetConversationMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)

	// EndConversation transitions the conversation to COMPLETED. Irreversible.
	EndConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)

	// DeleteConversation removes the conversation and its history.
	DeleteConversation(ctx context.Context, conversationID string) error

	// OpenMessageStream sends a message into a conversation and returns the
	// ordered event sequence: zero or more token events followed by exactly
	// one complete event, or an error terminating the sequence.
	OpenMessageStream(ctx context.Context, userID, conversationID, message string) iter.Seq2[*StreamEvent, error]

	// UserStats fetches the gamification summary for a user.
	UserStats(ctx context.Context, userID string) (*domain.UserStats, error)

	// Achievements fetches all achievements with the user's progress.
	Achievements(ctx context.Context, userID string) ([]*domain.Achievement, error)

	// Leaderboard fetches the points leaderboard, highest first.
	Leaderboard(ctx context.Context) ([]*domain.LeaderboardEntry, error)

	// GenerateQuiz asks the backend to build a quiz from a completed conversation.
	GenerateQuiz(ctx context.Context, conversationID string) (*domain.Quiz, error)

	// QuizByConversation fetches a quiz already associated with a conversation.
	QuizByConversation(ctx context.Context, conversationID string) (*domain.Quiz, error)

	// SubmitQuiz submits answers and returns the scored result.
	SubmitQuiz(ctx context.Context, quizID, userID string, answers []string) (*domain.QuizResult, error)
}
