package stubserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/skillstream/skillstream/internal/domain"
)

// handleChatStream handles GET /api/chat/stream/conversation. It persists the
// user message, streams a canned assistant reply token by token, and closes
// the stream with a terminal complete event carrying the points award.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	conversationID := r.URL.Query().Get("conversationId")
	message := r.URL.Query().Get("message")

	if userID == "" || conversationID == "" {
		Error(w, http.StatusBadRequest, "userId and conversationId are required")
		return
	}
	if message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	s.mu.Lock()
	user, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	if conv.Status != domain.StatusActive {
		s.mu.Unlock()
		Error(w, http.StatusConflict, "conversation has ended")
		return
	}
	if conv.Topic == "" {
		conv.Topic = topicFromMessage(message)
	}
	s.mu.Unlock()

	if !s.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Configure client retry behavior before any event.
	if _, err := io.WriteString(w, fmt.Sprintf("retry: %d\n\n", s.cfg.StreamRetryDelay.Milliseconds())); err != nil {
		s.logger.Warn("failed to write stream retry header", "error", err, "user_id", userID)
		return
	}
	flusher.Flush()

	s.logger.Info("chat stream opened",
		"user_id", userID,
		"conversation_id", conversationID,
		"message_length", len(message),
	)

	reply := replyFor(message)
	eventID := int64(0)

	for _, token := range tokenize(reply) {
		select {
		case <-r.Context().Done():
			s.logger.Info("chat stream disconnected", "user_id", userID, "conversation_id", conversationID)
			return
		case <-time.After(s.cfg.TokenDelay):
		}

		data, err := json.Marshal(map[string]string{"token": token})
		if err != nil {
			s.logger.Error("failed to marshal token event", "error", err)
			return
		}
		eventID++
		if err := writeSSEWithID(w, eventID, "token", string(data)); err != nil {
			s.logger.Warn("failed to write token event", "error", err, "user_id", userID)
			return
		}
		flusher.Flush()
	}

	messageID := uuid.NewString()
	s.mu.Lock()
	s.messages[conversationID] = append(s.messages[conversationID], &storedMessage{
		ID:           messageID,
		UserMessage:  message,
		BotResponse:  reply,
		CreatedAt:    time.Now(),
		PointsEarned: pointsPerMessage,
	})
	conv.MessageCount++
	user.ApplyPoints(pointsPerMessage)
	s.mu.Unlock()

	data, err := json.Marshal(map[string]any{
		"pointsEarned": pointsPerMessage,
		"messageId":    messageID,
	})
	if err != nil {
		s.logger.Error("failed to marshal complete event", "error", err)
		return
	}
	eventID++
	if err := writeSSEWithID(w, eventID, "complete", string(data)); err != nil {
		s.logger.Warn("failed to write complete event", "error", err, "user_id", userID)
		return
	}
	flusher.Flush()

	s.logger.Info("chat stream completed",
		"user_id", userID,
		"conversation_id", conversationID,
		"message_id", messageID,
	)
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
