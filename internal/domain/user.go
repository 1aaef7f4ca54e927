package domain

import (
	"time"
)

// PointsPerLevel is the point total needed to advance one level.
const PointsPerLevel = 100

// User is the signed-in employee profile held by the client session.
// The backend is the source of truth; TotalPoints and Level are mutated
// locally only when a completed send delivers a points award.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	FullName    string     `json:"fullName"`
	Department  string     `json:"department,omitempty"`
	TotalPoints int        `json:"totalPoints"`
	Level       int        `json:"level"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
}

// ApplyPoints adds a points award to the running total and recomputes the level.
func (u *User) ApplyPoints(delta int) {
	u.TotalPoints += delta
	u.Level = LevelForPoints(u.TotalPoints)
}

// LevelForPoints returns the level reached at a given point total.
func LevelForPoints(totalPoints int) int {
	return totalPoints/PointsPerLevel + 1
}

// LevelProgress returns the fraction of the current level completed, in [0, 1).
func (u *User) LevelProgress() float64 {
	return float64(u.TotalPoints%PointsPerLevel) / float64(PointsPerLevel)
}
