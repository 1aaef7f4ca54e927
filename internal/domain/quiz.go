package domain

import (
	"time"
)

// Quiz holds questions generated from a completed conversation.
type Quiz struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Topic          string         `json:"topic,omitempty"`
	Title          string         `json:"title,omitempty"`
	Questions      []QuizQuestion `json:"questions,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// QuizQuestion is a single multiple-choice question.
type QuizQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// QuizResult is the outcome of a submitted quiz attempt.
type QuizResult struct {
	QuizID         string `json:"quizId"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
	PointsEarned   int    `json:"pointsEarned"`
}
