package jobs

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAccessInvalidate drops cached permission snapshots after group or user changes.
	TaskAccessInvalidate = "access:invalidate"
	// TaskAccessFlush drops every cached permission snapshot.
	TaskAccessFlush = "access:flush"
)

// AccessInvalidatePayload names the snapshots to drop. All wins over GroupID, which wins
// over UserIDs.
type AccessInvalidatePayload struct {
	UserIDs []int64 `json:"user_ids,omitempty"`
	GroupID int64   `json:"group_id,omitempty"`
	All     bool    `json:"all,omitempty"`
}

// Scope reports which kind of invalidation the payload asks for.
func (p AccessInvalidatePayload) Scope() string {
	switch {
	case p.All:
		return "all"
	case p.GroupID > 0:
		return "group"
	case len(p.UserIDs) > 0:
		return "user"
	}
	return ""
}

// ErrEmptyInvalidation is returned for payloads that name nothing to invalidate.
var ErrEmptyInvalidation = errors.New("jobs: invalidation payload names no users, group or all")

// NewAccessInvalidateTask constructs an access invalidation task.
func NewAccessInvalidateTask(payload AccessInvalidatePayload) (*asynq.Task, error) {
	if payload.Scope() == "" {
		return nil, ErrEmptyInvalidation
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccessInvalidate, data), nil
}

// NewAccessFlushTask constructs the nightly flush task.
func NewAccessFlushTask() *asynq.Task {
	return asynq.NewTask(TaskAccessFlush, nil)
}
