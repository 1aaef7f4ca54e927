// Package stubserver implements an in-memory stand-in for the learning
// platform backend. It serves the same REST and event-stream contract the
// client speaks, with canned assistant responses, for local development and
// integration tests.
package stubserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/skillstream/skillstream/internal/config"
	"github.com/skillstream/skillstream/internal/domain"
)

// pointsPerMessage is awarded for each completed chat exchange.
const pointsPerMessage = 10

// pointsPerCorrectAnswer is awarded per correct quiz answer.
const pointsPerCorrectAnswer = 20

// leaderboardSize caps the leaderboard response.
const leaderboardSize = 20

// conversationListSize caps the per-user conversation listing, newest first.
const conversationListSize = 20

// storedMessage is one persisted chat exchange in the wire shape the client
// reads back.
type storedMessage struct {
	ID           string    `json:"id"`
	UserMessage  string    `json:"userMessage"`
	BotResponse  string    `json:"botResponse"`
	CreatedAt    time.Time `json:"createdAt"`
	PointsEarned int       `json:"pointsEarned"`
}

// storedQuiz pairs the quiz sent to clients with the correct answers, which
// never leave the server.
type storedQuiz struct {
	quiz    *domain.Quiz
	answers []string
}

// Server is the stub backend. All state is in memory and lost on restart.
type Server struct {
	cfg     config.StubConfig
	logger  *slog.Logger
	limiter *RateLimiter

	mu            sync.Mutex
	users         map[string]*domain.User // by user ID
	usersByName   map[string]string       // username -> user ID
	conversations map[string]*domain.Conversation
	convOrder     []string                    // conversation IDs, newest first
	messages      map[string][]*storedMessage // conversation ID -> ordered history
	quizzes       map[string]*storedQuiz      // by quiz ID
	quizByConv    map[string]string           // conversation ID -> quiz ID
	quizzesPassed map[string]int              // user ID -> passed count
}

// New creates a stub server seeded with demo users.
func New(cfg config.StubConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		limiter:       NewRateLimiter(cfg.RateLimitPerMin, time.Minute),
		users:         make(map[string]*domain.User),
		usersByName:   make(map[string]string),
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]*storedMessage),
		quizzes:       make(map[string]*storedQuiz),
		quizByConv:    make(map[string]string),
		quizzesPassed: make(map[string]int),
	}

	for _, u := range seedUsers() {
		s.users[u.ID] = u
		s.usersByName[u.Username] = u.ID
	}

	return s
}

// Close releases server resources.
func (s *Server) Close() {
	s.limiter.Close()
}

// RegisterRoutes mounts the stub API on the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/create", s.handleCreateConversation)
			r.Get("/user/{userID}", s.handleListConversations)
			r.Get("/{conversationID}", s.handleGetConversation)
			r.Post("/{conversationID}/end", s.handleEndConversation)
			r.Delete("/{conversationID}", s.handleDeleteConversation)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Get("/conversation/{conversationID}/messages", s.handleMessages)
			r.Get("/stream/conversation", s.handleChatStream)
		})

		r.Route("/gamification", func(r chi.Router) {
			r.Get("/users/{userID}/stats", s.handleUserStats)
			r.Get("/users/{userID}/achievements", s.handleAchievements)
			r.Get("/leaderboard", s.handleLeaderboard)
		})

		r.Route("/quiz", func(r chi.Router) {
			r.Post("/generate/{conversationID}", s.handleGenerateQuiz)
			r.Get("/conversation/{conversationID}", s.handleQuizByConversation)
			r.Post("/{quizID}/submit", s.handleSubmitQuiz)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.usersByName[req.Username]
	if !ok {
		Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	user := s.users[userID]
	now := time.Now()
	user.LastLogin = &now

	s.logger.Info("login", "user_id", user.ID, "username", user.Username)
	JSON(w, http.StatusOK, user)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		Error(w, http.StatusNotFound, "user not found")
		return
	}

	conv := &domain.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    domain.StatusActive,
		StartedAt: time.Now(),
	}
	s.conversations[conv.ID] = conv
	s.convOrder = append([]string{conv.ID}, s.convOrder...)

	s.logger.Info("conversation created", "conversation_id", conv.ID, "user_id", userID)
	JSON(w, http.StatusOK, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	s.mu.Lock()
	defer s.mu.Unlock()

	convs := make([]*domain.Conversation, 0)
	for _, id := range s.convOrder {
		conv := s.conversations[id]
		if conv.UserID == userID {
			convs = append(convs, conv)
		}
		if len(convs) == conversationListSize {
			break
		}
	}
	JSON(w, http.StatusOK, convs)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[chi.URLParam(r, "conversationID")]
	if !ok {
		Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	JSON(w, http.StatusOK, conv)
}

func (s *Server) handleEndConversation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[chi.URLParam(r, "conversationID")]
	if !ok {
		Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	if conv.Status != domain.StatusActive {
		Error(w, http.StatusConflict, "conversation already ended")
		return
	}

	now := time.Now()
	conv.Status = domain.StatusCompleted
	conv.EndedAt = &now
	if conv.Title == "" {
		conv.Title = conv.Topic
	}
	if conv.Title == "" {
		conv.Title = "General Discussion"
	}

	s.logger.Info("conversation ended", "conversation_id", conv.ID, "messages", conv.MessageCount)
	JSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	delete(s.conversations, conversationID)
	delete(s.messages, conversationID)
	if quizID, ok := s.quizByConv[conversationID]; ok {
		delete(s.quizzes, quizID)
		delete(s.quizByConv, conversationID)
	}
	s.convOrder = slices.DeleteFunc(s.convOrder, func(id string) bool {
		return id == conversationID
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	msgs := s.messages[conversationID]
	if msgs == nil {
		msgs = []*storedMessage{}
	}
	JSON(w, http.StatusOK, msgs)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		Error(w, http.StatusNotFound, "user not found")
		return
	}

	progress := s.progressLocked(userID)
	JSON(w, http.StatusOK, &domain.UserStats{
		UserID:        user.ID,
		TotalPoints:   user.TotalPoints,
		Level:         user.Level,
		MessagesSent:  progress.MessagesSent,
		Rank:          s.rankLocked(userID),
		QuizzesPassed: progress.QuizzesPassed,
	})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		Error(w, http.StatusNotFound, "user not found")
		return
	}

	progress := s.progressLocked(userID)
	defs := achievementDefs()
	achievements := make([]*domain.Achievement, 0, len(defs))
	for _, def := range defs {
		current := def.progress(progress)
		if current > def.Target {
			current = def.Target
		}
		achievements = append(achievements, &domain.Achievement{
			ID:           def.ID,
			Name:         def.Name,
			Description:  def.Description,
			PointsReward: def.PointsReward,
			TargetValue:  def.Target,
			Progress:     current,
			Completed:    current >= def.Target,
		})
	}
	JSON(w, http.StatusOK, achievements)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]*domain.LeaderboardEntry, 0, len(s.users))
	for _, u := range s.users {
		entries = append(entries, &domain.LeaderboardEntry{
			UserID:      u.ID,
			FullName:    u.FullName,
			TotalPoints: u.TotalPoints,
			Level:       u.Level,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalPoints != entries[j].TotalPoints {
			return entries[i].TotalPoints > entries[j].TotalPoints
		}
		return entries[i].UserID < entries[j].UserID
	})
	if len(entries) > leaderboardSize {
		entries = entries[:leaderboardSize]
	}
	JSON(w, http.StatusOK, entries)
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	if conv.Status == domain.StatusActive {
		Error(w, http.StatusConflict, "conversation is still active")
		return
	}
	if len(s.messages[conversationID]) == 0 {
		Error(w, http.StatusUnprocessableEntity, "conversation has no messages")
		return
	}

	if quizID, ok := s.quizByConv[conversationID]; ok {
		JSON(w, http.StatusOK, s.quizzes[quizID].quiz)
		return
	}

	quiz := buildQuiz(conversationID, conv.DisplayTitle())
	s.quizzes[quiz.quiz.ID] = quiz
	s.quizByConv[conversationID] = quiz.quiz.ID

	s.logger.Info("quiz generated", "quiz_id", quiz.quiz.ID, "conversation_id", conversationID)
	JSON(w, http.StatusOK, quiz.quiz)
}

func (s *Server) handleQuizByConversation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quizID, ok := s.quizByConv[chi.URLParam(r, "conversationID")]
	if !ok {
		Error(w, http.StatusNotFound, "no quiz for conversation")
		return
	}
	JSON(w, http.StatusOK, s.quizzes[quizID].quiz)
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	quizID := chi.URLParam(r, "quizID")

	var req struct {
		UserID  string   `json:"userId"`
		Answers []string `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.quizzes[quizID]
	if !ok {
		Error(w, http.StatusNotFound, "quiz not found")
		return
	}
	user, ok := s.users[req.UserID]
	if !ok {
		Error(w, http.StatusNotFound, "user not found")
		return
	}
	if len(req.Answers) != len(stored.answers) {
		Error(w, http.StatusBadRequest,
			fmt.Sprintf("expected %d answers, got %d", len(stored.answers), len(req.Answers)))
		return
	}

	score := 0
	for i, answer := range req.Answers {
		if answer == stored.answers[i] {
			score++
		}
	}

	points := score * pointsPerCorrectAnswer
	user.ApplyPoints(points)
	// Passing means more than half the questions correct.
	if score*2 > len(stored.answers) {
		s.quizzesPassed[user.ID]++
	}

	s.logger.Info("quiz submitted",
		"quiz_id", quizID,
		"user_id", user.ID,
		"score", score,
		"points", points,
	)
	JSON(w, http.StatusOK, &domain.QuizResult{
		QuizID:         quizID,
		Score:          score,
		TotalQuestions: len(stored.answers),
		PointsEarned:   points,
	})
}

// progressLocked computes per-user counters. Caller holds s.mu.
func (s *Server) progressLocked(userID string) *userProgress {
	p := &userProgress{
		QuizzesPassed: s.quizzesPassed[userID],
	}
	if u, ok := s.users[userID]; ok {
		p.Level = u.Level
	}
	for _, conv := range s.conversations {
		if conv.UserID != userID {
			continue
		}
		p.MessagesSent += len(s.messages[conv.ID])
		if conv.Status == domain.StatusCompleted {
			p.ConversationsCompleted++
		}
	}
	return p
}

// rankLocked returns the user's 1-based position by points. Caller holds s.mu.
func (s *Server) rankLocked(userID string) int {
	target, ok := s.users[userID]
	if !ok {
		return 0
	}
	rank := 1
	for _, u := range s.users {
		if u.TotalPoints > target.TotalPoints {
			rank++
		}
	}
	return rank
}

// buildQuiz generates a canned three-question quiz about the conversation
// topic. The correct answer is recorded server-side only.
func buildQuiz(conversationID, topic string) *storedQuiz {
	quiz := &domain.Quiz{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Topic:          topic,
		Title:          "Quiz: " + topic,
		CreatedAt:      time.Now(),
	}

	questions := []struct {
		text    string
		options []string
		correct string
	}{
		{
			text:    fmt.Sprintf("What is the best first step when learning about %s?", topic),
			options: []string{"Break it into small steps", "Memorize everything at once", "Skip the fundamentals", "Avoid asking questions"},
			correct: "Break it into small steps",
		},
		{
			text:    "What should you do when you get stuck?",
			options: []string{"Give up", "Ask questions", "Start over from scratch", "Ignore the problem"},
			correct: "Ask questions",
		},
		{
			text:    fmt.Sprintf("How do you retain what you learned about %s?", topic),
			options: []string{"Read it once", "Practice each step", "Wait for a refresher", "Rely on notes alone"},
			correct: "Practice each step",
		},
	}

	stored := &storedQuiz{quiz: quiz}
	for i, q := range questions {
		quiz.Questions = append(quiz.Questions, domain.QuizQuestion{
			ID:       fmt.Sprintf("%s-q%d", quiz.ID, i+1),
			Question: q.text,
			Options:  q.options,
		})
		stored.answers = append(stored.answers, q.correct)
	}
	return stored
}
