package domain

// UserStats is the gamification summary shown on the dashboard.
type UserStats struct {
	UserID        string `json:"userId"`
	TotalPoints   int    `json:"totalPoints"`
	Level         int    `json:"level"`
	MessagesSent  int    `json:"messagesSent"`
	Rank          int    `json:"rank,omitempty"`
	QuizzesPassed int    `json:"quizzesPassed,omitempty"`
}

// Achievement is a platform-wide achievement with the user's progress.
type Achievement struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	PointsReward int    `json:"pointsReward"`
	TargetValue  int    `json:"targetValue"`
	Progress     int    `json:"progress"`
	Completed    bool   `json:"completed"`
}

// LeaderboardEntry is one row of the points leaderboard, ordered by points.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	FullName    string `json:"fullName"`
	TotalPoints int    `json:"totalPoints"`
	Level       int    `json:"level"`
}
