package domain

import (
	"strings"
	"time"
)

// Task is a persisted work item created from a workstream
type Task struct {
	ID                  string
	ProjectID           string
	Title               string
	Description         string
	ParentTaskID        string // empty for root tasks
	HierarchyLevel      int
	IsEpic              bool
	StartDate           time.Time
	DueDate             time.Time
	DependsOn           []string
	Assignee            string
	EffortEstimateHours float64
	EstimateConfidence  float64
	CreatedAt           time.Time
}

// HasParent reports whether the task is attached to a parent task
func (t *Task) HasParent() bool {
	return t.ParentTaskID != ""
}

// Category returns how the task is reported in a hierarchy result
func (t *Task) Category() TaskCategory {
	switch {
	case t.HierarchyLevel == 0:
		return CategoryEpic
	case !t.HasParent():
		return CategoryStandalone
	case t.HierarchyLevel == 1:
		return CategoryTask
	default:
		return CategorySubtask
	}
}

// IsEpicLevel reports whether a task at the given level may be an epic.
// Only top-level tasks can be epics.
func IsEpicLevel(level int) bool {
	return level == 0
}

// DependencyEdge means Source must complete before Target
type DependencyEdge struct {
	SourceID string
	TargetID string
}

// Workstream is an AI-proposed unit of work, not yet persisted
type Workstream struct {
	ID                  string     `json:"id,omitempty"`
	Name                string     `json:"name" validate:"required"`
	Description         string     `json:"description,omitempty"`
	HierarchyLevel      int        `json:"hierarchy_level" validate:"gte=0"`
	ParentRef           string     `json:"parent,omitempty"`
	Dependencies        []string   `json:"dependencies,omitempty"`
	EstimatedComplexity Complexity `json:"estimated_complexity,omitempty" validate:"omitempty,oneof=low medium high"`
	KeyRequirements     []string   `json:"key_requirements,omitempty"`
	IsEpic              bool       `json:"is_epic,omitempty"`

	// IssueID is set once the workstream has been turned into a task
	IssueID string `json:"-"`
}

// Key returns the name used to look the workstream up by reference
func (w *Workstream) Key() string {
	return strings.TrimSpace(w.Name)
}

// DependencyProposal suggests that the work named From finishes before the
// work named To. Names are workstream names, ids or task titles.
type DependencyProposal struct {
	From   string `json:"from" validate:"required"`
	To     string `json:"to" validate:"required"`
	Reason string `json:"reason,omitempty"`
}
