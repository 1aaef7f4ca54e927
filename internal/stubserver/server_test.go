package stubserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skillstream/skillstream/internal/backend"
	"github.com/skillstream/skillstream/internal/config"
)

// newTestBackend starts a stub server and returns a real API client wired to
// it, exercising both sides of the contract.
func newTestBackend(t *testing.T) *backend.Client {
	t.Helper()

	srv := New(config.StubConfig{
		RateLimitPerMin:  1000,
		TokenDelay:       0,
		StreamRetryDelay: time.Second,
	}, slog.New(slog.DiscardHandler))
	t.Cleanup(srv.Close)

	r := chi.NewRouter()
	srv.RegisterRoutes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return backend.NewClient(backend.ClientConfig{
		BaseURL:           ts.URL + "/api",
		RequestTimeout:    5 * time.Second,
		StreamIdleTimeout: 5 * time.Second,
	}, nil)
}

func TestLoginSeededUser(t *testing.T) {
	c := newTestBackend(t)

	user, err := c.Login(context.Background(), "jdoe", "anything")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.FullName != "John Doe" || user.Level != 2 {
		t.Errorf("Unexpected user: %+v", user)
	}
	if user.LastLogin == nil {
		t.Error("Expected last login set")
	}

	if _, err := c.Login(context.Background(), "nobody", "x"); !errors.Is(err, backend.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for unknown user, got %v", err)
	}
}

func TestConversationLifecycle(t *testing.T) {
	c := newTestBackend(t)
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if !conv.IsActive() {
		t.Errorf("Expected ACTIVE conversation, got %s", conv.Status)
	}

	convs, err := c.ListConversations(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != conv.ID {
		t.Errorf("Unexpected list: %+v", convs)
	}

	ended, err := c.EndConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("EndConversation failed: %v", err)
	}
	if ended.Status != "COMPLETED" || ended.EndedAt == nil {
		t.Errorf("Unexpected ended conversation: %+v", ended)
	}
	if ended.Title == "" {
		t.Error("Expected a title assigned on end")
	}

	if _, err := c.EndConversation(ctx, conv.ID); err == nil {
		t.Error("Expected error ending an already-ended conversation")
	}

	if err := c.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if _, err := c.GetConversation(ctx, conv.ID); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestChatStreamPersistsExchange(t *testing.T) {
	c := newTestBackend(t)
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	var text strings.Builder
	var points int
	var messageID string
	for ev, err := range c.OpenMessageStream(ctx, "user-1", conv.ID, "how does onboarding work?") {
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}
		switch ev.Type {
		case backend.StreamToken:
			text.WriteString(ev.Token)
		case backend.StreamComplete:
			points = ev.PointsEarned
			messageID = ev.MessageID
		}
	}

	if points != pointsPerMessage {
		t.Errorf("Expected %d points, got %d", pointsPerMessage, points)
	}
	if messageID == "" {
		t.Error("Expected a persisted message id")
	}
	if !strings.Contains(text.String(), "Welcome aboard") {
		t.Errorf("Expected onboarding reply, got %q", text.String())
	}

	msgs, err := c.GetConversationMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversationMessages failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected one persisted exchange, got %d", len(msgs))
	}
	if msgs[0].ID.String() != messageID {
		t.Errorf("Expected persisted id %q, got %q", messageID, msgs[0].ID)
	}
	if msgs[0].BotResponse != text.String() {
		t.Errorf("Streamed and persisted responses differ:\n%q\n%q", text.String(), msgs[0].BotResponse)
	}

	got, err := c.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.MessageCount != 1 {
		t.Errorf("Expected message count 1, got %d", got.MessageCount)
	}
	if got.Topic == "" {
		t.Error("Expected topic derived from the first message")
	}
}

func TestChatStreamRejectsEndedConversation(t *testing.T) {
	c := newTestBackend(t)
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if _, err := c.EndConversation(ctx, conv.ID); err != nil {
		t.Fatalf("EndConversation failed: %v", err)
	}

	var streamErr error
	for _, err := range c.OpenMessageStream(ctx, "user-1", conv.ID, "too late") {
		if err != nil {
			streamErr = err
		}
	}
	if streamErr == nil || !strings.Contains(streamErr.Error(), "ended") {
		t.Errorf("Expected ended-conversation error, got %v", streamErr)
	}
}

func TestQuizFlow(t *testing.T) {
	c := newTestBackend(t)
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx, "user-3")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// Quiz generation requires an ended conversation with history.
	if _, err := c.GenerateQuiz(ctx, conv.ID); err == nil {
		t.Error("Expected error generating quiz for active conversation")
	}

	for _, err := range c.OpenMessageStream(ctx, "user-3", conv.ID, "tell me about security basics") {
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}
	}
	if _, err := c.EndConversation(ctx, conv.ID); err != nil {
		t.Fatalf("EndConversation failed: %v", err)
	}

	quiz, err := c.GenerateQuiz(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GenerateQuiz failed: %v", err)
	}
	if len(quiz.Questions) != 3 {
		t.Fatalf("Expected 3 questions, got %d", len(quiz.Questions))
	}

	// Generation is idempotent per conversation.
	again, err := c.GenerateQuiz(ctx, conv.ID)
	if err != nil || again.ID != quiz.ID {
		t.Errorf("Expected the same quiz on regeneration, got %+v (%v)", again, err)
	}
	looked, err := c.QuizByConversation(ctx, conv.ID)
	if err != nil || looked.ID != quiz.ID {
		t.Errorf("Expected quiz lookup to match, got %+v (%v)", looked, err)
	}

	statsBefore, err := c.UserStats(ctx, "user-3")
	if err != nil {
		t.Fatalf("UserStats failed: %v", err)
	}

	// The stub's correct answers are always the first option.
	answers := make([]string, len(quiz.Questions))
	for i, q := range quiz.Questions {
		answers[i] = q.Options[0]
	}
	result, err := c.SubmitQuiz(ctx, quiz.ID, "user-3", answers)
	if err != nil {
		t.Fatalf("SubmitQuiz failed: %v", err)
	}
	if result.Score != 3 || result.TotalQuestions != 3 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if result.PointsEarned != 3*pointsPerCorrectAnswer {
		t.Errorf("Expected %d points, got %d", 3*pointsPerCorrectAnswer, result.PointsEarned)
	}

	statsAfter, err := c.UserStats(ctx, "user-3")
	if err != nil {
		t.Fatalf("UserStats failed: %v", err)
	}
	if statsAfter.TotalPoints != statsBefore.TotalPoints+result.PointsEarned {
		t.Errorf("Expected points applied, before=%d after=%d", statsBefore.TotalPoints, statsAfter.TotalPoints)
	}
	if statsAfter.QuizzesPassed != statsBefore.QuizzesPassed+1 {
		t.Errorf("Expected a passed quiz recorded, got %d", statsAfter.QuizzesPassed)
	}
}

func TestGamificationViews(t *testing.T) {
	c := newTestBackend(t)
	ctx := context.Background()

	entries, err := c.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 seeded entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].TotalPoints > entries[i-1].TotalPoints {
			t.Errorf("Leaderboard out of order at %d: %+v", i, entries)
		}
	}
	if entries[0].FullName != "Priya Kumar" {
		t.Errorf("Expected top seed first, got %+v", entries[0])
	}

	stats, err := c.UserStats(ctx, "user-2")
	if err != nil {
		t.Fatalf("UserStats failed: %v", err)
	}
	if stats.Rank != 2 {
		t.Errorf("Expected rank 2 for user-2, got %d", stats.Rank)
	}

	achievements, err := c.Achievements(ctx, "user-1")
	if err != nil {
		t.Fatalf("Achievements failed: %v", err)
	}
	if len(achievements) != len(achievementDefs()) {
		t.Fatalf("Expected %d achievements, got %d", len(achievementDefs()), len(achievements))
	}
	for _, a := range achievements {
		if a.Progress > a.TargetValue {
			t.Errorf("Progress must be capped at target: %+v", a)
		}
	}
}

func TestStreamRateLimit(t *testing.T) {
	srv := New(config.StubConfig{
		RateLimitPerMin:  1,
		TokenDelay:       0,
		StreamRetryDelay: time.Second,
	}, slog.New(slog.DiscardHandler))
	t.Cleanup(srv.Close)

	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	c := backend.NewClient(backend.ClientConfig{
		BaseURL:           ts.URL + "/api",
		RequestTimeout:    5 * time.Second,
		StreamIdleTimeout: 5 * time.Second,
	}, nil)

	ctx := context.Background()
	conv, err := c.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	for _, err := range c.OpenMessageStream(ctx, "user-1", conv.ID, "first") {
		if err != nil {
			t.Fatalf("First stream failed: %v", err)
		}
	}

	var limited error
	for _, err := range c.OpenMessageStream(ctx, "user-1", conv.ID, "second") {
		if err != nil {
			limited = err
		}
	}
	if limited == nil || !strings.Contains(limited.Error(), "rate limit") {
		t.Errorf("Expected rate limit error, got %v", limited)
	}
}
