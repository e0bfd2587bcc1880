// Package loop implements the autonomous heartbeat controller for animus.
//
// The controller is a timer-driven four-edge state machine. On each tick
// it assembles a briefing from the other components and spawns exactly
// one task to act on it. A running task may raise a blocking question,
// which pauses the loop until the user answers.
package loop

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// State represents the controller's lifecycle state.
type State int32

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Controller errors.
var (
	// ErrInvalidArgument is returned for a non-positive interval.
	ErrInvalidArgument = errors.New("invalid loop argument")

	// ErrQuestionNotFound is returned when answering an unknown or
	// already-resolved question.
	ErrQuestionNotFound = errors.New("blocking question not found")
)

// BlockingQuestion is an interrupt raised by a background task. It
// pauses the loop until the user answers; exactly one answer resolves it.
type BlockingQuestion struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	RaisedByTaskID string    `json:"raised_by_task_id"`
	Answer         string    `json:"answer,omitempty"`
	Resolved       bool      `json:"resolved"`
	RaisedAt       time.Time `json:"raised_at"`

	// answerCh delivers the answer back into the originating task's
	// context. Buffered so resolution never blocks on the asker.
	answerCh chan string
}

func newQuestion(taskID, question string) *BlockingQuestion {
	return &BlockingQuestion{
		ID:             uuid.NewString(),
		Question:       question,
		RaisedByTaskID: taskID,
		RaisedAt:       time.Now().UTC(),
		answerCh:       make(chan string, 1),
	}
}

// Snapshot is the externally visible loop state.
type Snapshot struct {
	State            State              `json:"state"`
	Interval         time.Duration      `json:"interval"`
	InvocationCount  int                `json:"invocation_count"`
	ExplicitlyPaused bool               `json:"explicitly_paused"`
	PendingQuestions []BlockingQuestion `json:"pending_questions"`
}
