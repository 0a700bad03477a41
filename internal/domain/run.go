package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImportRun is the audit record of one document import
type ImportRun struct {
	ID                 string
	ProjectID          string
	DocumentCount      int
	WorkstreamCount    int
	TaskCount          int
	DependencyCount    int
	ResourceCount      int
	ChecklistCount     int
	TimelinePhaseCount int
	Cost               decimal.Decimal
	Success            bool
	Errors             []string
	Warnings           []string
	Stages             []StageResult
	StartedAt          time.Time
	FinishedAt         time.Time
	Duration           time.Duration
}

// StageResult records how a single pipeline stage ended
type StageResult struct {
	Name   string      `json:"name"`
	Status StageStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// Document is one uploaded input to an import
type Document struct {
	ID   string
	Name string
	Kind DocumentKind
	MIME string
	Text string
	Raw  []byte
	Meta map[string]string
}

// ProjectContext is handed to AI collaborators alongside the corpus
type ProjectContext struct {
	ProjectID      string
	Name           string
	StartDate      time.Time
	ExistingTitles []string
}

// TimelinePhase is a phase extracted from the documents
type TimelinePhase struct {
	ID         string
	ProjectID  string
	Name       string
	StartDate  time.Time
	EndDate    time.Time
	Milestones []string
}

// Checklist is a generated list of checks attached to a task
type Checklist struct {
	ID             string
	TaskID         string
	WorkstreamName string
	Title          string
	Items          []ChecklistItem
}

// ChecklistItem is one line of a checklist
type ChecklistItem struct {
	Text     string `json:"text"`
	Required bool   `json:"required"`
}

// ResourceAssignment links a parsed effort row to a task
type ResourceAssignment struct {
	TaskID     string
	RowName    string
	Assignee   string
	Hours      float64
	Confidence float64
}

// EffortRow is one line of an effort estimate document
type EffortRow struct {
	Name       string
	Assignee   string
	Hours      float64
	Confidence float64
}
