package domain

// Complexity is the AI-estimated size of a workstream
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// TaskCategory classifies a created task by level and parent presence
type TaskCategory string

const (
	CategoryEpic       TaskCategory = "epic"
	CategoryTask       TaskCategory = "task"
	CategorySubtask    TaskCategory = "subtask"
	CategoryStandalone TaskCategory = "standalone"
)

// StageStatus represents the outcome of a single import stage
type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageSkipped StageStatus = "skipped"
	StageFailed  StageStatus = "failed"
)

// DocumentKind tells the pipeline how a document may be used beyond the corpus
type DocumentKind string

const (
	KindGeneral  DocumentKind = "general"
	KindEffort   DocumentKind = "effort"
	KindTimeline DocumentKind = "timeline"
)

// ToComplexity converts a string to a Complexity, defaulting to medium
func ToComplexity(s string) Complexity {
	switch s {
	case "low":
		return ComplexityLow
	case "high":
		return ComplexityHigh
	default:
		return ComplexityMedium
	}
}
