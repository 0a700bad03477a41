package pipeline

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/hochfrequenz/project-tracker/internal/dependencies"
	"github.com/hochfrequenz/project-tracker/internal/domain"
	"github.com/hochfrequenz/project-tracker/internal/hierarchy"
)

// WorkstreamDetector splits the corpus into workstreams. Its cost is
// accounted for outside the pipeline.
type WorkstreamDetector interface {
	Detect(ctx context.Context, corpus string, project domain.ProjectContext) ([]*domain.Workstream, error)
}

// TimelineExtractor finds phases and milestones in the corpus
type TimelineExtractor interface {
	ExtractTimeline(ctx context.Context, corpus string, project domain.ProjectContext) ([]domain.TimelinePhase, decimal.Decimal, error)
}

// DependencyAnalyzer proposes dependencies between workstreams
type DependencyAnalyzer interface {
	Analyze(ctx context.Context, workstreams []*domain.Workstream, tasks []*domain.Task) ([]domain.DependencyProposal, decimal.Decimal, error)
}

// ResourceParser reads effort rows from an effort document
type ResourceParser interface {
	Parse(ctx context.Context, doc *domain.Document) ([]domain.EffortRow, error)
}

// ChecklistGenerator writes a checklist for one workstream
type ChecklistGenerator interface {
	GenerateChecklist(ctx context.Context, ws *domain.Workstream, corpus string) (*domain.Checklist, decimal.Decimal, error)
}

// Collaborators are the external services a run may use. Only Detector is
// required; any other field may be nil.
type Collaborators struct {
	Detector     WorkstreamDetector
	Timeline     TimelineExtractor
	Dependencies DependencyAnalyzer
	Resources    ResourceParser
	Checklists   ChecklistGenerator
}

// Capabilities switch optional stages on. A stage whose capability is off
// behaves as if its collaborator were missing.
type Capabilities struct {
	Timeline     bool
	Dependencies bool
	Resources    bool
	Checklists   bool

	// UseReferenceDependencies falls back to the dependencies declared by
	// the workstreams when no analyzer is configured
	UseReferenceDependencies bool
}

// AllCapabilities enables every optional stage
func AllCapabilities() Capabilities {
	return Capabilities{
		Timeline:                 true,
		Dependencies:             true,
		Resources:                true,
		Checklists:               true,
		UseReferenceDependencies: true,
	}
}

// Store is the persistence the pipeline writes to
type Store interface {
	hierarchy.TaskStore
	dependencies.Store
	InsertTimelinePhases(ctx context.Context, projectID string, phases []domain.TimelinePhase) (int, error)
	InsertResourceAssignment(ctx context.Context, a domain.ResourceAssignment) error
	InsertChecklist(ctx context.Context, cl *domain.Checklist) (string, error)
	InsertImportRun(ctx context.Context, run *domain.ImportRun) (string, error)
}
