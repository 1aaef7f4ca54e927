package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/skillstream/skillstream/internal/backend"
	"github.com/skillstream/skillstream/internal/domain"
)

var (
	// ErrSendInFlight is returned when a send is triggered while another is
	// still streaming. The trigger is a no-op: no state changes.
	ErrSendInFlight = errors.New("a send is already in flight")
	// ErrNotSignedIn is returned when no user session is present.
	ErrNotSignedIn = errors.New("no signed-in user")
	// ErrConversationEnded is returned when sending into a conversation whose
	// status no longer permits it.
	ErrConversationEnded = errors.New("conversation is no longer active")
	// ErrEmptyMessage is returned for blank send text.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrNoActiveConversation is returned by operations that need a selected
	// conversation.
	ErrNoActiveConversation = errors.New("no active conversation")
)

// Session is the explicit session context threaded into the store. It owns
// the persisted current-user record; the store reads the user at operation
// boundaries and applies points exactly once per completed send.
type Session interface {
	// User returns a copy of the signed-in user, or nil.
	User() *domain.User
	// ApplyPoints adds a points award to the running total and persists it.
	ApplyPoints(ctx context.Context, delta int) error
}

// Snapshot is the read-only view handed to UI collaborators for rendering.
type Snapshot struct {
	Conversations []*domain.Conversation
	Active        *domain.Conversation
	Messages      []*domain.Message
	Loading       bool
	Err           string
}

// Store owns the conversation list, the active conversation, and the active
// conversation's message sequence. All mutation goes through its operations;
// a single boolean in-flight guard keeps sends mutually exclusive.
type Store struct {
	svc     backend.Service
	session Session
	logger  *slog.Logger

	mu            sync.Mutex
	conversations []*domain.Conversation
	activeID      string
	messages      []*domain.Message
	send          *Send
	loading       bool
	lastErr       string
	onToken       func(token string)
}

// NewStore creates a conversation store backed by the given service and
// session context.
func NewStore(svc backend.Service, session Session, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{svc: svc, session: session, logger: logger}
}

// SetTokenListener registers a hook fired for each token folded into the
// in-flight placeholder, in arrival order. The hook must not call back into
// the store.
func (s *Store) SetTokenListener(fn func(token string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onToken = fn
}

// Snapshot returns the current view state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Conversations: slices.Clone(s.conversations),
		Active:        s.activeLocked(),
		Messages:      slices.Clone(s.messages),
		Loading:       s.loading,
		Err:           s.lastErr,
	}
}

func (s *Store) activeLocked() *domain.Conversation {
	if s.activeID == "" {
		return nil
	}
	for _, c := range s.conversations {
		if c.ID == s.activeID {
			return c
		}
	}
	return nil
}

// LoadConversations replaces the conversation list wholesale from the
// backend. If any conversation is ACTIVE it becomes the active one and its
// history is loaded. Service errors degrade to an empty list so the view
// stays usable; they are logged, not surfaced.
func (s *Store) LoadConversations(ctx context.Context) {
	user := s.session.User()
	if user == nil {
		return
	}

	convs, err := s.svc.ListConversations(ctx, user.ID)
	if err != nil {
		s.logger.Warn("failed to load conversations", "user_id", user.ID, "error", err)
		convs = nil
	}

	activeID := ""
	for _, c := range convs {
		if c.IsActive() {
			activeID = c.ID
			break
		}
	}

	var history []*domain.Message
	if activeID != "" {
		history, err = s.svc.GetConversationMessages(ctx, activeID)
		if err != nil {
			s.logger.Warn("failed to load conversation history", "conversation_id", activeID, "error", err)
			history = nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = convs
	s.activeID = activeID
	s.messages = history
}

// SelectConversation makes the given conversation active and loads its
// history. On any failure nothing changes; the error is returned for display.
func (s *Store) SelectConversation(ctx context.Context, conversationID string) error {
	conv, err := s.svc.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	history, err := s.svc.GetConversationMessages(ctx, conversationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceConversationLocked(conv)
	s.activeID = conv.ID
	s.messages = history
	return nil
}

// CreateConversation starts a fresh conversation, prepends it to the list,
// makes it active, and clears the message sequence.
func (s *Store) CreateConversation(ctx context.Context) (*domain.Conversation, error) {
	user := s.session.User()
	if user == nil {
		return nil, ErrNotSignedIn
	}

	conv, err := s.svc.CreateConversation(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append([]*domain.Conversation{conv}, s.conversations...)
	s.activeID = conv.ID
	s.messages = nil
	return conv, nil
}

// EndConversation transitions the active conversation to COMPLETED. The
// transition is irreversible and disables further sends into it. On failure
// the conversation status is left untouched.
func (s *Store) EndConversation(ctx context.Context) (*domain.Conversation, error) {
	s.mu.Lock()
	active := s.activeLocked()
	s.mu.Unlock()
	if active == nil {
		return nil, ErrNoActiveConversation
	}

	ended, err := s.svc.EndConversation(ctx, active.ID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceConversationLocked(ended)
	return ended, nil
}

// DeleteConversation removes a conversation permanently. If it was active,
// the active selection and message sequence are cleared. No undo.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.svc.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = slices.DeleteFunc(s.conversations, func(c *domain.Conversation) bool {
		return c.ID == conversationID
	})
	if s.activeID == conversationID {
		s.activeID = ""
		s.messages = nil
	}
	return nil
}

// QuizForConversation returns the quiz for an ended conversation: it asks the
// backend to generate one and, if generation fails, falls back to any quiz
// already associated with the conversation before surfacing an error.
func (s *Store) QuizForConversation(ctx context.Context, conversationID string) (*domain.Quiz, error) {
	quiz, genErr := s.svc.GenerateQuiz(ctx, conversationID)
	if genErr == nil {
		return quiz, nil
	}
	s.logger.Warn("quiz generation failed, trying existing quiz", "conversation_id", conversationID, "error", genErr)

	quiz, err := s.svc.QuizByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("generate quiz: %w (existing quiz lookup also failed: %v)", genErr, err)
	}
	return quiz, nil
}

// SendMessage performs one send transaction: it lazily creates a conversation
// when none is active, appends the optimistic user entry and assistant
// placeholder, opens the message stream, folds its events in delivery order,
// and finalizes the placeholder on the terminal event. At most one send is in
// flight at a time; a second trigger is a no-op and returns ErrSendInFlight.
func (s *Store) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	user := s.session.User()
	if user == nil {
		return ErrNotSignedIn
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	active := s.activeLocked()
	if active != nil && !active.IsActive() {
		s.mu.Unlock()
		return ErrConversationEnded
	}
	s.loading = true
	s.lastErr = ""
	s.mu.Unlock()

	// Pending-Create: a failed create surfaces before anything is appended.
	if active == nil {
		conv, err := s.svc.CreateConversation(ctx, user.ID)
		if err != nil {
			s.finishSend(err)
			return err
		}
		s.mu.Lock()
		s.conversations = append([]*domain.Conversation{conv}, s.conversations...)
		s.activeID = conv.ID
		s.messages = nil
		s.mu.Unlock()
		active = conv
	}

	send := NewSend(text, time.Now())
	s.mu.Lock()
	s.send = send
	s.messages = append(s.messages, send.User, send.Assistant)
	s.mu.Unlock()

	err := s.consumeStream(ctx, user.ID, active, send)
	s.finishSend(err)
	return err
}

// consumeStream drives the state machine with the stream's events in
// delivery order until a terminal transition.
func (s *Store) consumeStream(ctx context.Context, userID string, conv *domain.Conversation, send *Send) error {
	var sendErr error

	apply := func(event Event) bool {
		s.mu.Lock()
		effects := send.Apply(event)
		if effects.BumpMessageCount {
			conv.IncrementMessageCount()
		}
		onToken := s.onToken
		s.mu.Unlock()

		if event.Kind == EventToken && onToken != nil {
			onToken(event.Token)
		}
		if effects.AwardPoints > 0 {
			if err := s.session.ApplyPoints(ctx, effects.AwardPoints); err != nil {
				s.logger.Warn("failed to persist points award", "user_id", userID, "error", err)
			}
		}
		if event.Kind == EventError {
			sendErr = event.Err
		}
		return effects.Finished
	}

	for ev, err := range s.svc.OpenMessageStream(ctx, userID, conv.ID, send.User.UserMessage) {
		var event Event
		switch {
		case err != nil:
			event = Event{Kind: EventError, Err: err}
		case ev.Type == backend.StreamToken:
			event = Event{Kind: EventToken, Token: ev.Token}
		case ev.Type == backend.StreamComplete:
			event = Event{Kind: EventComplete, PointsEarned: ev.PointsEarned, MessageID: ev.MessageID}
		default:
			continue
		}
		if apply(event) {
			break
		}
	}

	// A stream that ends without a terminal event still finalizes the
	// placeholder; it must never be left streaming forever.
	if !send.Phase.Terminal() {
		apply(Event{Kind: EventError, Err: fmt.Errorf("message stream ended early: %w", io.ErrUnexpectedEOF)})
	}

	if sendErr != nil {
		s.logger.Warn("send failed",
			"conversation_id", conv.ID,
			"phase", send.Phase.String(),
			"received_chars", len(send.Assistant.BotResponse),
			"error", sendErr,
		)
	} else {
		s.logger.Info("send completed",
			"conversation_id", conv.ID,
			"points_earned", send.Assistant.PointsEarned,
			"message_id", send.MessageID,
		)
	}
	return sendErr
}

func (s *Store) finishSend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.send = nil
	if err != nil {
		s.lastErr = err.Error()
	}
}

// replaceConversationLocked swaps the list entry matching the given
// conversation's id, or prepends it if absent.
func (s *Store) replaceConversationLocked(conv *domain.Conversation) {
	for i, c := range s.conversations {
		if c.ID == conv.ID {
			s.conversations[i] = conv
			return
		}
	}
	s.conversations = append([]*domain.Conversation{conv}, s.conversations...)
}
