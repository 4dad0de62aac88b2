package models

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	StatusPending JobStatus = "pending"
	StatusSent    JobStatus = "sent"
	StatusFailed  JobStatus = "failed"
)

// Job is one persisted request to send a specific email at a specific
// time. Created by the one-shot binary in schedule mode, mutated only
// by the worker, never deleted: sent and failed jobs stay for audit.
type Job struct {
	ID           string    `json:"id"`
	To           string    `json:"to"`
	Subject      string    `json:"subject"`
	Template     string    `json:"template,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`

	Status    JobStatus `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`

	// ThemeIndex freezes the theme chosen at enqueue time so the worker
	// reproduces the exact rendering that was promised, even after the
	// global rotation state has advanced.
	ThemeIndex *int   `json:"theme_index,omitempty"`
	ThemeName  string `json:"theme_name,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	FailedAt  *time.Time `json:"failed_at,omitempty"`
	Note      string     `json:"note,omitempty"`
}

// UnmarshalJSON tolerates a hand-edited scheduled_for that does not
// parse: the value stays the zero time and the worker fails that one
// job, instead of one bad record making the whole document unreadable.
func (j *Job) UnmarshalJSON(data []byte) error {
	type plain Job
	aux := struct {
		ScheduledFor json.RawMessage `json:"scheduled_for"`
		*plain
	}{plain: (*plain)(j)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.ScheduledFor) > 0 {
		_ = j.ScheduledFor.UnmarshalJSON(aux.ScheduledFor)
	}
	return nil
}

// Due reports whether a pending job's scheduled time has passed.
func (j Job) Due(now time.Time) bool {
	return j.Status == StatusPending && !j.ScheduledFor.After(now)
}

// Terminal reports whether the job can never be attempted again.
func (j Job) Terminal() bool {
	return j.Status == StatusSent || j.Status == StatusFailed
}
