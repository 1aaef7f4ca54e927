package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skillstream/skillstream/internal/domain"
)

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	BaseURL           string
	RequestTimeout    time.Duration
	StreamIdleTimeout time.Duration
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:           "http://localhost:8081/api",
		RequestTimeout:    30 * time.Second,
		StreamIdleTimeout: 180 * time.Second,
	}
}

// Client implements Service against the platform's HTTP API.
type Client struct {
	baseURL string
	// Streaming requests must not carry a whole-request timeout; they are
	// bounded by the caller's context and the idle watchdog instead.
	http       *http.Client
	stream     *http.Client
	idleWindow time.Duration
	logger     *slog.Logger
}

// Ensure Client implements Service.
var _ Service = (*Client)(nil)

// NewClient creates a new platform API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.StreamIdleTimeout <= 0 {
		cfg.StreamIdleTimeout = def.StreamIdleTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       &http.Client{Timeout: cfg.RequestTimeout},
		stream:     &http.Client{},
		idleWindow: cfg.StreamIdleTimeout,
		logger:     logger,
	}
}

// chatMessage is the wire shape of a persisted message record.
type chatMessage struct {
	ID           string    `json:"id"`
	UserMessage  string    `json:"userMessage"`
	BotResponse  string    `json:"botResponse"`
	CreatedAt    time.Time `json:"createdAt"`
	PointsEarned int       `json:"pointsEarned"`
}

func (m chatMessage) toDomain() *domain.Message {
	return &domain.Message{
		ID:           domain.PersistedID(m.ID),
		UserMessage:  m.UserMessage,
		BotResponse:  m.BotResponse,
		CreatedAt:    m.CreatedAt,
		PointsEarned: m.PointsEarned,
	}
}

// Login authenticates and returns the user profile.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.User, error) {
	body := map[string]string{"username": username, "password": password}
	var user domain.User
	if err := c.postJSON(ctx, "/auth/login", nil, body, &user); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &user, nil
}

// CreateConversation starts a new ACTIVE conversation for the user.
func (c *Client) CreateConversation(ctx context.Context, userID string) (*domain.Conversation, error) {
	q := url.Values{"userId": {userID}}
	var conv domain.Conversation
	if err := c.postJSON(ctx, "/conversations/create", q, nil, &conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, newest first.
func (c *Client) ListConversations(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	var convs []*domain.Conversation
	if err := c.getJSON(ctx, "/conversations/user/"+url.PathEscape(userID), nil, &convs); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// GetConversation fetches a single conversation record.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.getJSON(ctx, "/conversations/"+url.PathEscape(conversationID), nil, &conv); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// GetConversationMessages fetches the ordered message history.
func (c *Client) GetConversationMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	var wire []chatMessage
	path := "/chat/conversation/" + url.PathEscape(conversationID) + "/messages"
	if err := c.getJSON(ctx, path, nil, &wire); err != nil {
		return nil, fmt.Errorf("get conversation messages: %w", err)
	}
	messages := make([]*domain.Message, 0, len(wire))
	for _, m := range wire {
		messages = append(messages, m.toDomain())
	}
	return messages, nil
}

// EndConversation transitions the conversation to COMPLETED.
func (c *Client) EndConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	path := "/conversations/" + url.PathEscape(conversationID) + "/end"
	if err := c.postJSON(ctx, path, nil, nil, &conv); err != nil {
		return nil, fmt.Errorf("end conversation: %w", err)
	}
	return &conv, nil
}

// DeleteConversation removes the conversation and its history.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(conversationID), nil, nil, nil); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// UserStats fetches the gamification summary for a user.
func (c *Client) UserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	var stats domain.UserStats
	if err := c.getJSON(ctx, "/gamification/users/"+url.PathEscape(userID)+"/stats", nil, &stats); err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return &stats, nil
}

// Achievements fetches all achievements with the user's progress.
func (c *Client) Achievements(ctx context.Context, userID string) ([]*domain.Achievement, error) {
	var achievements []*domain.Achievement
	path := "/gamification/users/" + url.PathEscape(userID) + "/achievements"
	if err := c.getJSON(ctx, path, nil, &achievements); err != nil {
		return nil, fmt.Errorf("achievements: %w", err)
	}
	return achievements, nil
}

// Leaderboard fetches the points leaderboard, highest first.
func (c *Client) Leaderboard(ctx context.Context) ([]*domain.LeaderboardEntry, error) {
	var entries []*domain.LeaderboardEntry
	if err := c.getJSON(ctx, "/gamification/leaderboard", nil, &entries); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return entries, nil
}

// GenerateQuiz asks the backend to build a quiz from a completed conversation.
func (c *Client) GenerateQuiz(ctx context.Context, conversationID string) (*domain.Quiz, error) {
	var quiz domain.Quiz
	if err := c.postJSON(ctx, "/quiz/generate/"+url.PathEscape(conversationID), nil, nil, &quiz); err != nil {
		return nil, fmt.Errorf("generate quiz: %w", err)
	}
	return &quiz, nil
}

// QuizByConversation fetches a quiz already associated with a conversation.
func (c *Client) QuizByConversation(ctx context.Context, conversationID string) (*domain.Quiz, error) {
	var quiz domain.Quiz
	if err := c.getJSON(ctx, "/quiz/conversation/"+url.PathEscape(conversationID), nil, &quiz); err != nil {
		return nil, fmt.Errorf("quiz by conversation: %w", err)
	}
	return &quiz, nil
}

// SubmitQuiz submits answers and returns the scored result.
func (c *Client) SubmitQuiz(ctx context.Context, quizID, userID string, answers []string) (*domain.QuizResult, error) {
	body := map[string]any{"userId": userID, "answers": answers}
	var result domain.QuizResult
	if err := c.postJSON(ctx, "/quiz/"+url.PathEscape(quizID)+"/submit", nil, body, &result); err != nil {
		return nil, fmt.Errorf("submit quiz: %w", err)
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, query url.Values, body, out any) error {
	return c.do(ctx, http.MethodPost, path, query, body, out)
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var envelope errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error == "" {
		envelope.Error = strings.TrimSpace(string(data))
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		if envelope.Error != "" {
			return fmt.Errorf("%w: %s", ErrNotFound, envelope.Error)
		}
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		if envelope.Error != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, envelope.Error)
		}
		return ErrUnauthorized
	default:
		if envelope.Error != "" {
			return fmt.Errorf("backend returned %d: %s", resp.StatusCode, envelope.Error)
		}
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
}
