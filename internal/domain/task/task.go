package task

import (
	"errors"
	"time"
)

// ErrNotFound covers both a missing task and a task owned by someone else.
// Callers must not be able to tell the two apart.
var ErrNotFound = errors.New("task not found or unauthorized")

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

const (
	CategoryWork      = "work"
	CategoryPersonal  = "personal"
	CategoryHealth    = "health"
	CategoryFinance   = "finance"
	CategoryEducation = "education"
	CategoryOther     = "other"
)

type Task struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Priority    string     `json:"priority"`
	Category    string     `json:"category"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type CreateTaskRequest struct {
	Title       string     `json:"title" binding:"required,min=1,max=200"`
	Description string     `json:"description" binding:"omitempty,max=1000"`
	Priority    string     `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	Category    string     `json:"category" binding:"omitempty,oneof=work personal health finance education other"`
	DueDate     *time.Time `json:"dueDate" binding:"omitempty"`
}

// ApplyDefaults fills the enum defaults for fields the client omitted.
func (r *CreateTaskRequest) ApplyDefaults() {
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}

	if r.Category == "" {
		r.Category = CategoryOther
	}
}

// UpdateTaskRequest uses pointer fields so an absent field can be told apart
// from a zero value: nil means "leave the stored value alone". Same limits as
// creation (the title cap is 200 on both paths).
type UpdateTaskRequest struct {
	Title       *string    `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string    `json:"description" binding:"omitempty,max=1000"`
	Completed   *bool      `json:"completed" binding:"omitempty"`
	Priority    *string    `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	Category    *string    `json:"category" binding:"omitempty,oneof=work personal health finance education other"`
	DueDate     *time.Time `json:"dueDate" binding:"omitempty"`
}
