// Package record provides the persisted session and insight entities.
package record

import (
	"time"

	"github.com/osa030/flowshift/internal/domain/focus"
)

// CompletedSession is the outcome of a finished focus session.
type CompletedSession struct {
	ID          string
	UserID      string
	Mode        focus.Mode
	DurationSec int
	StartedAt   time.Time
	CompletedAt time.Time
}

// InsightType classifies an insight card.
type InsightType string

const (
	InsightImprovement InsightType = "improvement"
	InsightAchievement InsightType = "achievement"
	InsightPattern     InsightType = "pattern"
	InsightSuggestion  InsightType = "suggestion"
)

// Insight is a short observation about the user's habits.
type Insight struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id,omitempty"`
	Type        InsightType `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Value       string      `json:"value,omitempty"`
	Trend       string      `json:"trend,omitempty"` // up, down, stable
	Color       string      `json:"color"`
	CreatedAt   time.Time   `json:"created_at,omitempty"`
}

// Stats summarises completed sessions.
type Stats struct {
	SessionsCompleted int           `json:"sessionsCompleted"`
	TotalFocusTime    time.Duration `json:"totalFocusTime"`
	CurrentStreak     int           `json:"currentStreak"` // days
	LongestStreak     int           `json:"longestStreak"` // days
	LastCompletedAt   *time.Time    `json:"lastCompletedAt,omitempty"`
}
