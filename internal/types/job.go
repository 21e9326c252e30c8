// Package types holds the shared vocabulary for jobs, batches, and results
// that flows between the queue, the job store, the pipeline, and the API.
package types

import (
	"time"

	"github.com/google/uuid"
)

// ParsingType selects which extractor handles a document.
type ParsingType string

const (
	ParsingAuto           ParsingType = "auto"
	ParsingNutritionLabel ParsingType = "nutrition_label"
	ParsingRecipe         ParsingType = "recipe"
	ParsingDietGuide      ParsingType = "diet_guide"
	// ParsingUnknown tags a Result that detection could not classify; it is
	// never a valid value for a job's requested parsing_type.
	ParsingUnknown        ParsingType = "unknown"
)

// ValidParsingType reports whether t is one of the four accepted values.
func ValidParsingType(t ParsingType) bool {
	switch t {
	case ParsingAuto, ParsingNutritionLabel, ParsingRecipe, ParsingDietGuide:
		return true
	}
	return false
}

// Priority is a three-class total order: High dispatches before Normal
// before Low. Ties break on CreatedAt ascending, then JobID.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the dispatch-preference rank for p; lower ranks dispatch first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// ValidPriority reports whether p is a recognized priority class.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// State is the job lifecycle state machine described in spec §3.
type State string

const (
	StatePending   State = "pending"
	StateQueued    State = "queued"
	StateLeased    State = "leased"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is a state from which no further transition
// is possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Leased reports whether a job in state s is expected to carry a lease.
func (s State) Leased() bool {
	return s == StateLeased || s == StateRunning
}

// JobError carries the taxonomy from spec §7.
type JobError struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Stage   string         `json:"stage,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Job is the central entity: identity, inputs, lifecycle state, progress,
// timing, and terminal result or error.
type Job struct {
	ID          uuid.UUID   `json:"id"`
	BatchID     *uuid.UUID  `json:"batch_id,omitempty"`
	Filename    string      `json:"filename"`
	SizeBytes   int64       `json:"size_bytes"`
	ContentHash string      `json:"content_hash"`
	BlobHandle  string      `json:"blob_handle"`
	ParsingType ParsingType `json:"parsing_type"`
	Priority    Priority    `json:"priority"`
	CallbackURL string      `json:"callback_url,omitempty"`

	State    State  `json:"state"`
	Progress int    `json:"progress"`
	Stage    string `json:"stage,omitempty"`
	Attempts int    `json:"attempts"`

	// CancelRequested is set by a client-initiated cancellation of a job
	// already leased or running. The pipeline observes it at the next
	// stage boundary and ack-writes cancelled instead of completing.
	CancelRequested bool `json:"-"`

	LeaseOwner    string     `json:"lease_owner,omitempty"`
	LeaseDeadline *time.Time `json:"lease_deadline,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Result *Result   `json:"result,omitempty"`
	Error  *JobError `json:"error,omitempty"`
}

// Clone returns a deep-enough copy of j suitable for returning from a store
// read without letting the caller mutate internal state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.BatchID != nil {
		b := *j.BatchID
		cp.BatchID = &b
	}
	if j.LeaseDeadline != nil {
		d := *j.LeaseDeadline
		cp.LeaseDeadline = &d
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}

// Batch is an optional grouping envelope over a set of Jobs.
type Batch struct {
	ID          uuid.UUID `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	JobIDs      []uuid.UUID
}

// BatchStats are aggregate counts by state, derived from constituent Jobs.
type BatchStats struct {
	Total   int            `json:"total"`
	ByState map[State]int  `json:"by_state"`
}

// NewID generates a 128-bit random job/batch identifier.
func NewID() uuid.UUID {
	return uuid.New()
}
