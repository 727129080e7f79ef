// Package tasks defines the task model shared by every pipeline stage.
package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the user-visible task state. The pipeline tracks finer progress
// operationally (queue position, pending-operation markers), but only these
// four states are ever persisted.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

var ErrInvalidStatus = fmt.Errorf("invalid task status")

var StatusList = []Status{StatusQueued, StatusProcessing, StatusDone, StatusError}

// ParseStatus converts a stored string into a Status, rejecting anything
// outside the closed set.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusDone, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// CanTransition reports whether moving from s to next is a legal step of
// the lifecycle Queued → Processing → {Done | Error}. Terminal states
// absorb; a repeated write of the same terminal state is allowed so that
// redelivered terminal updates stay idempotent.
func (s Status) CanTransition(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s.Terminal() {
		return s == next
	}
	switch s {
	case StatusQueued:
		return next == StatusProcessing || next == StatusError
	case StatusProcessing:
		return next == StatusDone || next == StatusError
	}
	return false
}

// Display returns the human-readable label shown on the task listing page.
func (s Status) Display() string {
	switch s {
	case StatusQueued:
		return "В очереди"
	case StatusProcessing:
		return "В обработке"
	case StatusDone:
		return "Успешно завершено"
	case StatusError:
		return "Ошибка"
	}
	return string(s)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Task is the durable record of one conversion request. It is created by
// intake, mutated only by the stage currently holding it, and never deleted.
type Task struct {
	TaskID       uuid.UUID `json:"task_id"`
	CreatedAt    time.Time `json:"created_at"`
	LectureTitle string    `json:"lecture_title"`
	VideoURL     string    `json:"video_url"`
	Status       Status    `json:"status"`
	// Description doubles as the error detail when Status is Error and as
	// the final artifact key when Status is Done; nil otherwise.
	Description *string `json:"description,omitempty"`
}

// PendingOperation marks an outstanding asynchronous recognition operation.
// Written by the recognize stage, read and deleted only by the poller.
type PendingOperation struct {
	TaskID            uuid.UUID `json:"task_id"`
	OperationID       string    `json:"operation_id"`
	SourceArtifactKey string    `json:"object_name"`
	SubmittedAt       time.Time `json:"created_at"`
}
