package postgres

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/shellguard/internal/history"
)

// EventModel maps to the "history_events" table.
type EventModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind             string    `gorm:"not null;index"`
	SessionID        string    `gorm:"index"`
	Command          string
	Args             string // JSON-encoded []string.
	WorkingDirectory string
	ExitCode         int
	Interactive      bool `gorm:"not null;default:false"`
	Reason           string
	Error            string
	DurationMs       int64
	CreatedAt        time.Time `gorm:"index"`
}

func (EventModel) TableName() string { return "history_events" }

func toEventModel(e history.Event) EventModel {
	var args string
	if len(e.Args) > 0 {
		data, _ := json.Marshal(e.Args)
		args = string(data)
	}
	return EventModel{
		ID:               e.ID,
		Kind:             string(e.Kind),
		SessionID:        e.SessionID,
		Command:          e.Command,
		Args:             args,
		WorkingDirectory: e.WorkingDirectory,
		ExitCode:         e.ExitCode,
		Interactive:      e.Interactive,
		Reason:           e.Reason,
		Error:            e.Error,
		DurationMs:       e.Duration.Milliseconds(),
		CreatedAt:        e.CreatedAt,
	}
}

func toEventDomain(m *EventModel) history.Event {
	var args []string
	if m.Args != "" {
		_ = json.Unmarshal([]byte(m.Args), &args)
	}
	return history.Event{
		ID:               m.ID,
		Kind:             history.Kind(m.Kind),
		SessionID:        m.SessionID,
		Command:          m.Command,
		Args:             args,
		WorkingDirectory: m.WorkingDirectory,
		ExitCode:         m.ExitCode,
		Interactive:      m.Interactive,
		Reason:           m.Reason,
		Error:            m.Error,
		Duration:         time.Duration(m.DurationMs) * time.Millisecond,
		CreatedAt:        m.CreatedAt,
	}
}
