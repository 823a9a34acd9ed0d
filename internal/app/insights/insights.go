package insights

import (
	"fmt"
	"time"

	"github.com/osa030/flowshift/internal/domain/record"
)

// SampleInsights returns the insight cards shown to guests and when the backend is unavailable.
func SampleInsights() []record.Insight {
	return []record.Insight{
		{
			ID:          "1",
			Type:        record.InsightAchievement,
			Title:       "Focus Streak!",
			Description: "You completed 7 focus sessions this week - your best yet!",
			Value:       "7 sessions",
			Trend:       "up",
			Color:       "#10B981",
		},
		{
			ID:          "2",
			Type:        record.InsightPattern,
			Title:       "Peak Focus Time",
			Description: "Your most productive hours are between 9-11 AM",
			Value:       "9-11 AM",
			Color:       "#3B82F6",
		},
		{
			ID:          "3",
			Type:        record.InsightImprovement,
			Title:       "Screen Time Reduced",
			Description: "Down 23% from last week. Great progress!",
			Value:       "-23%",
			Trend:       "down",
			Color:       "#8B5CF6",
		},
		{
			ID:          "4",
			Type:        record.InsightSuggestion,
			Title:       "Break Reminder",
			Description: "You tend to skip breaks after 2 PM. Set reminders?",
			Color:       "#F59E0B",
		},
	}
}

// Derive builds insight cards from the user's own sessions.
func Derive(userID string, sessions []record.CompletedSession, stats record.Stats, now time.Time, loc *time.Location) []record.Insight {
	if stats.SessionsCompleted == 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	var result []record.Insight
	if stats.CurrentStreak >= 2 {
		result = append(result, record.Insight{
			ID:          "streak",
			UserID:      userID,
			Type:        record.InsightAchievement,
			Title:       "Focus Streak!",
			Description: fmt.Sprintf("You have focused %d days in a row - keep it going!", stats.CurrentStreak),
			Value:       fmt.Sprintf("%d days", stats.CurrentStreak),
			Trend:       "up",
			Color:       "#10B981",
			CreatedAt:   now,
		})
	}

	result = append(result, record.Insight{
		ID:          "total",
		UserID:      userID,
		Type:        record.InsightAchievement,
		Title:       "Sessions Completed",
		Description: fmt.Sprintf("%s of focused work so far.", formatDuration(stats.TotalFocusTime)),
		Value:       fmt.Sprintf("%d sessions", stats.SessionsCompleted),
		Color:       "#10B981",
		CreatedAt:   now,
	})

	if hour, ok := peakHour(sessions, loc); ok {
		window := hourRange(hour)
		result = append(result, record.Insight{
			ID:          "peak",
			UserID:      userID,
			Type:        record.InsightPattern,
			Title:       "Peak Focus Time",
			Description: fmt.Sprintf("Your most productive hours are between %s", window),
			Value:       window,
			Color:       "#3B82F6",
			CreatedAt:   now,
		})
	}

	if stats.CurrentStreak == 0 {
		result = append(result, record.Insight{
			ID:          "restart",
			UserID:      userID,
			Type:        record.InsightSuggestion,
			Title:       "Pick It Back Up",
			Description: "A short mindful session is an easy way to restart your streak.",
			Color:       "#F59E0B",
			CreatedAt:   now,
		})
	}
	return result
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours == 0 {
		return fmt.Sprintf("%d min", minutes)
	}
	return fmt.Sprintf("%dh %02dm", hours, minutes)
}
