package connect

import (
	"time"

	"github.com/osa030/flowshift/internal/app/insights"
	"github.com/osa030/flowshift/internal/app/notification"
	"github.com/osa030/flowshift/internal/app/session"
	"github.com/osa030/flowshift/internal/app/timer"
	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/domain/record"
)

// Service and procedure names.
const (
	ServiceName = "flowshift.v1.SessionService"

	ListModesProcedure      = "/" + ServiceName + "/ListModes"
	StartFocusProcedure     = "/" + ServiceName + "/StartFocus"
	StartBreathingProcedure = "/" + ServiceName + "/StartBreathing"
	PauseProcedure          = "/" + ServiceName + "/Pause"
	ResumeProcedure         = "/" + ServiceName + "/Resume"
	ResetProcedure          = "/" + ServiceName + "/Reset"
	RestartProcedure        = "/" + ServiceName + "/Restart"
	GetStatusProcedure      = "/" + ServiceName + "/GetStatus"
	ListSessionsProcedure   = "/" + ServiceName + "/ListSessions"
	CloseProcedure          = "/" + ServiceName + "/Close"
	SubscribeProcedure      = "/" + ServiceName + "/Subscribe"
	GetInsightsProcedure    = "/" + ServiceName + "/GetInsights"
)

// Mode describes a selectable focus mode.
type Mode struct {
	Mode        string `json:"mode"`
	DurationSec int    `json:"durationSec"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

type ListModesRequest struct{}

type ListModesResponse struct {
	Modes []Mode `json:"modes"`
}

type StartFocusRequest struct {
	Mode        string `json:"mode"`
	DurationSec int    `json:"durationSec,omitempty"` // required for custom, override otherwise
}

type StartBreathingRequest struct {
	DurationSec int `json:"durationSec,omitempty"`
}

// SessionRequest addresses an existing session.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// Status is the wire form of an engine snapshot.
type Status struct {
	SessionID string  `json:"sessionId"`
	Kind      string  `json:"kind"`
	State     string  `json:"state"`
	Running   bool    `json:"running"`
	Remaining int     `json:"remaining"`
	Total     int     `json:"total"`
	Progress  float64 `json:"progress"`

	Mode              string `json:"mode,omitempty"`
	Label             string `json:"label,omitempty"`
	SessionsCompleted int    `json:"sessionsCompleted,omitempty"`

	Phase          string  `json:"phase,omitempty"`
	PhaseElapsed   int     `json:"phaseElapsed,omitempty"`
	PhaseRemaining int     `json:"phaseRemaining,omitempty"`
	PhaseProgress  float64 `json:"phaseProgress,omitempty"`
	Cycles         int     `json:"cycles,omitempty"`
	Message        string  `json:"message,omitempty"`
}

type StatusResponse struct {
	Status Status `json:"status"`
}

type SessionInfo struct {
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
	Status    Status    `json:"status"`
}

type ListSessionsRequest struct{}

type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type CloseResponse struct{}

// NotificationType values.
const (
	NotificationInitialState = "initial_state"
)

// Notification is one streamed session event.
// The first message of a stream has type initial_state and sequence number zero.
type Notification struct {
	SequenceNo uint64    `json:"sequenceNo"`
	Type       string    `json:"type"`
	Status     Status    `json:"status"`
	At         time.Time `json:"at"`
}

type GetInsightsRequest struct{}

type Stats struct {
	SessionsCompleted int        `json:"sessionsCompleted"`
	TotalFocusSec     int64      `json:"totalFocusSec"`
	CurrentStreak     int        `json:"currentStreak"`
	LongestStreak     int        `json:"longestStreak"`
	LastCompletedAt   *time.Time `json:"lastCompletedAt,omitempty"`
}

type GetInsightsResponse struct {
	Stats    Stats            `json:"stats"`
	Insights []record.Insight `json:"insights"`
	Sample   bool             `json:"sample"`
}

func toMode(cfg focus.SessionConfig) Mode {
	return Mode{
		Mode:        string(cfg.Mode),
		DurationSec: cfg.DurationSec,
		Label:       cfg.Label,
		Description: cfg.Description,
		Color:       cfg.Color,
	}
}

// ToStatus converts an engine snapshot.
func ToStatus(sessionID string, snap timer.Snapshot) Status {
	status := Status{
		SessionID: sessionID,
		Kind:      string(snap.Kind),
		State:     snap.State.String(),
		Running:   snap.Running,
		Remaining: snap.Remaining,
		Total:     snap.Total,
		Progress:  snap.Progress,
	}
	switch snap.Kind {
	case timer.KindFocus:
		status.Mode = string(snap.Mode)
		status.Label = snap.Label
		status.SessionsCompleted = snap.SessionsCompleted
	case timer.KindBreathing:
		status.Phase = snap.Phase.String()
		status.PhaseElapsed = snap.PhaseElapsed
		status.PhaseRemaining = snap.PhaseRemaining
		status.PhaseProgress = snap.PhaseProgress
		status.Cycles = snap.Cycles
		status.Message = snap.Message
	}
	return status
}

// ToNotification converts a session notification.
func ToNotification(n *notification.Notification) *Notification {
	return &Notification{
		SequenceNo: n.SequenceNo,
		Type:       n.Type.String(),
		Status:     ToStatus(n.SessionID, n.Snapshot),
		At:         n.At,
	}
}

func toSessionInfo(info session.Info) SessionInfo {
	return SessionInfo{
		SessionID: info.ID,
		Kind:      string(info.Kind),
		CreatedAt: info.CreatedAt,
		Status:    ToStatus(info.ID, info.Snapshot),
	}
}

func toInsightsResponse(report *insights.Report) *GetInsightsResponse {
	resp := &GetInsightsResponse{
		Stats: Stats{
			SessionsCompleted: report.Stats.SessionsCompleted,
			TotalFocusSec:     int64(report.Stats.TotalFocusTime / time.Second),
			CurrentStreak:     report.Stats.CurrentStreak,
			LongestStreak:     report.Stats.LongestStreak,
			LastCompletedAt:   report.Stats.LastCompletedAt,
		},
		Insights: report.Insights,
		Sample:   report.Sample,
	}
	if resp.Insights == nil {
		resp.Insights = []record.Insight{}
	}
	return resp
}
