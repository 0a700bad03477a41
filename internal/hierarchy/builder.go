// Package hierarchy turns detected workstreams into persisted tasks.
package hierarchy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/project-tracker/internal/domain"
	"github.com/hochfrequenz/project-tracker/internal/scheduler"
)

// TaskStore persists tasks. Insert may fail per call without affecting
// earlier inserts.
type TaskStore interface {
	InsertTask(ctx context.Context, task *domain.Task) (string, error)
}

// Result separates what was created from what failed
type Result struct {
	Created    []*domain.Task
	Epics      []*domain.Task
	Tasks      []*domain.Task
	Subtasks   []*domain.Task
	Standalone []*domain.Task
	Errors     []string
	Warnings   []string

	// NameIndex maps workstream names and ids to created task ids
	NameIndex *NameIndex
}

// Builder creates tasks for a batch of workstreams
type Builder struct {
	store        TaskStore
	projectStart time.Time
	resolvers    []ParentResolver
	log          logrus.FieldLogger
}

// Option configures a Builder
type Option func(*Builder)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(b *Builder) { b.log = log }
}

// WithResolvers replaces the parent resolution chain
func WithResolvers(resolvers ...ParentResolver) Option {
	return func(b *Builder) { b.resolvers = resolvers }
}

// New creates a Builder scheduling from projectStart
func New(store TaskStore, projectStart time.Time, opts ...Option) *Builder {
	b := &Builder{
		store:        store,
		projectStart: projectStart,
		resolvers:    DefaultResolvers,
		log:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CreateHierarchy creates one task per workstream, parents first. Each
// workstream's IssueID is set to the id of its created task. Failures of a
// single item are recorded and the remaining items are still processed.
func (b *Builder) CreateHierarchy(ctx context.Context, items []*domain.Workstream, projectID string) *Result {
	res := &Result{NameIndex: NewNameIndex()}
	log := b.log.WithField("project_id", projectID)

	ordered := make([]*domain.Workstream, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].HierarchyLevel < ordered[j].HierarchyLevel
	})

	levels := make(map[string]int)       // task id -> level
	lastChild := make(map[string]string) // parent id -> most recent child id

	for _, ws := range ordered {
		name := ws.Key()
		task := &domain.Task{
			ProjectID:      projectID,
			Title:          name,
			Description:    describe(ws),
			HierarchyLevel: ws.HierarchyLevel,
			IsEpic:         ws.IsEpic,
		}

		if ref := strings.TrimSpace(ws.ParentRef); ref != "" {
			if parentID, ok := Resolve(ref, res.NameIndex, b.resolvers); ok {
				task.ParentTaskID = parentID
				if want := levels[parentID] + 1; task.HierarchyLevel != want {
					res.warn(log, fmt.Sprintf("workstream %q: level %d does not follow its parent, using %d", name, task.HierarchyLevel, want))
					task.HierarchyLevel = want
				}
			} else {
				res.warn(log, fmt.Sprintf("workstream %q: parent %q not found, creating as root", name, ref))
			}
		}

		if task.IsEpic && !domain.IsEpicLevel(task.HierarchyLevel) {
			res.warn(log, fmt.Sprintf("workstream %q: level %d cannot be an epic, cleared epic flag", name, task.HierarchyLevel))
			task.IsEpic = false
		}
		// Top-level work is always grouped as an epic
		if domain.IsEpicLevel(task.HierarchyLevel) {
			task.IsEpic = true
		}

		if task.HasParent() {
			task.DependsOn = append(task.DependsOn, task.ParentTaskID)
			if prev, ok := lastChild[task.ParentTaskID]; ok {
				task.DependsOn = append(task.DependsOn, prev)
			}
		}

		sched := scheduler.ScheduleDates(task, res.Created, b.projectStart)
		task.StartDate = sched.StartDate
		task.DueDate = sched.DueDate

		id, err := b.store.InsertTask(ctx, task)
		if err != nil {
			msg := fmt.Sprintf("create task %q: %v", name, err)
			res.Errors = append(res.Errors, msg)
			log.WithError(err).WithField("workstream", name).Error("Failed to create task")
			continue
		}
		task.ID = id
		ws.IssueID = id

		if !res.NameIndex.Put(name, id) {
			res.warn(log, fmt.Sprintf("workstream %q: duplicate name, references resolve to the first one", name))
		}
		if ws.ID != "" && ws.ID != name {
			res.NameIndex.Put(ws.ID, id)
		}
		levels[id] = task.HierarchyLevel
		if task.HasParent() {
			lastChild[task.ParentTaskID] = id
		}

		res.add(task)
		log.WithFields(logrus.Fields{
			"task_id": id,
			"level":   task.HierarchyLevel,
			"start":   task.StartDate.Format("2006-01-02"),
		}).Debug("Created task")
	}

	return res
}

func (r *Result) add(task *domain.Task) {
	r.Created = append(r.Created, task)
	switch task.Category() {
	case domain.CategoryEpic:
		r.Epics = append(r.Epics, task)
	case domain.CategoryTask:
		r.Tasks = append(r.Tasks, task)
	case domain.CategorySubtask:
		r.Subtasks = append(r.Subtasks, task)
	default:
		r.Standalone = append(r.Standalone, task)
	}
}

func (r *Result) warn(log logrus.FieldLogger, msg string) {
	r.Warnings = append(r.Warnings, msg)
	log.Warn(msg)
}

func describe(ws *domain.Workstream) string {
	if len(ws.KeyRequirements) == 0 {
		return ws.Description
	}
	var sb strings.Builder
	sb.WriteString(ws.Description)
	if ws.Description != "" {
		sb.WriteString("\n\n")
	}
	sb.WriteString("Key requirements:\n")
	for _, req := range ws.KeyRequirements {
		sb.WriteString("- ")
		sb.WriteString(req)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
