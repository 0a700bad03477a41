// Package dependencies writes explicit dependency edges between tasks that
// already exist in a project.
package dependencies

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/project-tracker/internal/depgraph"
	"github.com/hochfrequenz/project-tracker/internal/domain"
	"github.com/hochfrequenz/project-tracker/internal/matcher"
	"github.com/hochfrequenz/project-tracker/internal/taskstore"
)

// Store reads project tasks and edges and writes edge batches atomically
type Store interface {
	ListTasks(ctx context.Context, opts taskstore.ListOptions) ([]*domain.Task, error)
	ListEdges(ctx context.Context, projectID string) ([]domain.DependencyEdge, error)
	InsertEdges(ctx context.Context, edges []domain.DependencyEdge) (int, error)
}

// BatchResult summarizes one CreateBatch call
type BatchResult struct {
	Proposed int
	Resolved int
	Created  int
	Warnings []string
	Cycles   []string
}

// Creator resolves proposals to tasks and writes them as one batch
type Creator struct {
	store Store
	log   logrus.FieldLogger
}

// NewCreator creates a Creator. A nil logger uses the standard logger.
func NewCreator(store Store, log logrus.FieldLogger) *Creator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Creator{store: store, log: log}
}

// CreateBatch matches every proposal against the preferred tasks, usually
// the ones created by the current import, then the rest of the project. It checks
// the combined graph of existing and proposed edges for cycles and writes
// all new edges in one transaction. If any cycle is found nothing is
// written and a *depgraph.CycleError is returned with the result.
func (c *Creator) CreateBatch(ctx context.Context, projectID string, preferred []*domain.Task, proposals []domain.DependencyProposal) (*BatchResult, error) {
	res := &BatchResult{Proposed: len(proposals)}
	log := c.log.WithField("project_id", projectID)

	tasks, err := c.store.ListTasks(ctx, taskstore.ListOptions{ProjectID: projectID})
	if err != nil {
		return res, errors.Wrap(err, "list tasks")
	}
	existing, err := c.store.ListEdges(ctx, projectID)
	if err != nil {
		return res, errors.Wrap(err, "list edges")
	}

	titles := make(map[string]string, len(tasks))
	for _, t := range tasks {
		titles[t.ID] = t.Title
	}
	present := make(map[domain.DependencyEdge]bool, len(existing))
	graph := make([]depgraph.Edge, 0, len(existing)+len(proposals))
	for _, e := range existing {
		present[e] = true
		graph = append(graph, depgraph.Edge{
			SourceID:    e.SourceID,
			TargetID:    e.TargetID,
			SourceLabel: titles[e.SourceID],
			TargetLabel: titles[e.TargetID],
		})
	}

	for _, p := range proposals {
		from := resolve(p.From, preferred, tasks)
		to := resolve(p.To, preferred, tasks)
		if from == nil || to == nil {
			missing := p.From
			if from != nil {
				missing = p.To
			}
			res.warn(log, fmt.Sprintf("dependency %q -> %q: no task matches %q", p.From, p.To, missing))
			continue
		}
		res.Resolved++
		graph = append(graph, depgraph.Edge{
			SourceID:    from.ID,
			TargetID:    to.ID,
			SourceLabel: from.Title,
			TargetLabel: to.Title,
		})
	}

	valid, warnings, err := depgraph.Validate(graph)
	for _, w := range warnings {
		res.warn(log, w)
	}
	if err != nil {
		var cycleErr *depgraph.CycleError
		if errors.As(err, &cycleErr) {
			res.Cycles = cycleErr.Cycles
		}
		log.WithError(err).Error("Rejected dependency batch")
		return res, err
	}

	var batch []domain.DependencyEdge
	queued := make(map[domain.DependencyEdge]bool)
	for _, e := range valid {
		edge := domain.DependencyEdge{SourceID: e.SourceID, TargetID: e.TargetID}
		if present[edge] || queued[edge] {
			continue
		}
		queued[edge] = true
		batch = append(batch, edge)
	}
	if len(batch) == 0 {
		return res, nil
	}

	created, err := c.store.InsertEdges(ctx, batch)
	if err != nil {
		return res, errors.Wrap(err, "write dependency batch")
	}
	res.Created = created
	log.WithField("created", created).Info("Created dependencies")
	return res, nil
}

// resolve matches name against the preferred tasks before the rest of the
// project: ids first, then exact titles, then the looser matcher strategies.
func resolve(name string, preferred, all []*domain.Task) *domain.Task {
	id := strings.TrimSpace(name)
	for _, t := range preferred {
		if t != nil && t.ID == id {
			return t
		}
	}
	search := matcher.Normalize(name)
	if search == "" {
		return nil
	}
	for _, tasks := range [][]*domain.Task{preferred, all} {
		for _, t := range tasks {
			if t != nil && matcher.Normalize(t.Title) == search {
				return t
			}
		}
	}
	if t := matcher.FindMatchingIssue(name, preferred); t != nil {
		return t
	}
	return matcher.FindMatchingIssue(name, all)
}

func (r *BatchResult) warn(log logrus.FieldLogger, msg string) {
	r.Warnings = append(r.Warnings, msg)
	log.Warn(msg)
}
