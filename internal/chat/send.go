// Package chat implements the conversation store and the streaming message
// state machine. The state machine is independent of any UI and of the
// transport: it folds a sequence of stream events into an in-flight send,
// one event at a time, and reports the side effects each transition demands.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/skillstream/skillstream/internal/domain"
)

// FallbackResponse replaces an empty assistant placeholder when a send fails
// before any token arrived.
const FallbackResponse = "Error: Could not complete request."

// Phase is the state of one in-flight send.
type Phase int

const (
	// PhaseSending means the optimistic entries are appended and the stream
	// is open, but no token has arrived yet.
	PhaseSending Phase = iota
	// PhaseReceiving means at least one token has been folded in.
	PhaseReceiving
	// PhaseCompleted is terminal: the stream delivered its complete event.
	PhaseCompleted
	// PhaseFailed is terminal: the stream errored or was torn down.
	PhaseFailed
)

// String returns the phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhaseSending:
		return "sending"
	case PhaseReceiving:
		return "receiving"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal returns true once the send can no longer change.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// EventKind classifies incoming stream events.
type EventKind int

const (
	// EventToken carries one text fragment for the assistant placeholder.
	EventToken EventKind = iota
	// EventComplete finalizes the send with a points award.
	EventComplete
	// EventError finalizes the send as failed.
	EventError
)

// Event is one input to the state machine.
type Event struct {
	Kind         EventKind
	Token        string
	PointsEarned int
	MessageID    string
	Err          error
}

// Effects lists the side effects the caller must perform after a transition.
// The state machine itself never touches the session, the conversation list,
// or the network.
type Effects struct {
	// AwardPoints is the points delta to apply to the session total and
	// persist. Non-zero only on the completed transition.
	AwardPoints int
	// BumpMessageCount is true when the active conversation's local message
	// count should be incremented.
	BumpMessageCount bool
	// CloseStream is true when the transport connection should be torn down.
	CloseStream bool
	// Finished is true when the send reached a terminal phase.
	Finished bool
}

// Send tracks one in-flight message send. Exactly one user entry and one
// assistant placeholder belong to it, appended in that order; the placeholder
// streams until a terminal event arrives, after which it never streams again.
type Send struct {
	Phase     Phase
	User      *domain.Message
	Assistant *domain.Message
	// MessageID is the backend's id for the persisted exchange, known only
	// after completion. The optimistic entry IDs are superseded on the next
	// full history reload, not rewritten here.
	MessageID string
	Err       error
}

// NewSend creates the optimistic entries for a send of the given text.
func NewSend(text string, now time.Time) *Send {
	return &Send{
		Phase: PhaseSending,
		User: &domain.Message{
			ID:          domain.OptimisticUserID(now),
			UserMessage: text,
			CreatedAt:   now,
		},
		Assistant: &domain.Message{
			ID:        domain.OptimisticAssistantID(now),
			CreatedAt: now,
			Streaming: true,
		},
	}
}

// Apply folds one event into the send and returns the side effects the
// transition requires. Events arriving after a terminal phase are ignored.
// Fragments are concatenated in arrival order; there is no reordering,
// deduplication, or trimming — the transport delivers events in order on a
// single connection.
func (s *Send) Apply(ev Event) Effects {
	if s.Phase.Terminal() {
		return Effects{}
	}

	switch ev.Kind {
	case EventToken:
		s.Phase = PhaseReceiving
		s.Assistant.BotResponse += ev.Token
		return Effects{}

	case EventComplete:
		s.Phase = PhaseCompleted
		s.Assistant.Streaming = false
		s.Assistant.PointsEarned = ev.PointsEarned
		s.MessageID = ev.MessageID
		return Effects{
			AwardPoints:      ev.PointsEarned,
			BumpMessageCount: true,
			CloseStream:      true,
			Finished:         true,
		}

	case EventError:
		s.Phase = PhaseFailed
		s.Err = ev.Err
		s.Assistant.Streaming = false
		// A user-initiated teardown finalizes the placeholder as-is; only a
		// genuine failure with nothing received substitutes the fallback.
		if s.Assistant.BotResponse == "" && !errors.Is(ev.Err, context.Canceled) {
			s.Assistant.BotResponse = FallbackResponse
		}
		return Effects{CloseStream: true, Finished: true}

	default:
		return Effects{}
	}
}
