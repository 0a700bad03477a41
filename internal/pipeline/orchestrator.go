// Package pipeline runs document imports end to end: it combines the
// documents, detects workstreams, creates the task hierarchy and then runs
// the optional timeline, dependency, resource and checklist stages.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/project-tracker/internal/dependencies"
	"github.com/hochfrequenz/project-tracker/internal/depgraph"
	"github.com/hochfrequenz/project-tracker/internal/documents"
	"github.com/hochfrequenz/project-tracker/internal/domain"
	"github.com/hochfrequenz/project-tracker/internal/hierarchy"
	"github.com/hochfrequenz/project-tracker/internal/notify"
	"github.com/hochfrequenz/project-tracker/internal/resources"
	"github.com/hochfrequenz/project-tracker/internal/taskstore"
)

// Stage names as recorded in run records and metrics
const (
	StageCombine      = "combine"
	StageDetect       = "detect"
	StageTasks        = "tasks"
	StageTimeline     = "timeline"
	StageDependencies = "dependencies"
	StageResources    = "resources"
	StageChecklists   = "checklists"
)

// Options tune a pipeline
type Options struct {
	MinWorkstreams       int
	ChecklistParallelism int
	Capabilities         Capabilities
	Notifier             notify.Notifier
	Logger               logrus.FieldLogger
}

// Request describes one import
type Request struct {
	ProjectID   string
	ProjectName string
	StartDate   time.Time
	Documents   []*domain.Document
}

// Orchestrator runs imports
type Orchestrator struct {
	store    Store
	collab   Collaborators
	opts     Options
	log      logrus.FieldLogger
	validate *validator.Validate
	now      func() time.Time
}

// New creates an Orchestrator
func New(store Store, collab Collaborators, opts Options) *Orchestrator {
	if opts.MinWorkstreams <= 0 {
		opts.MinWorkstreams = 3
	}
	if opts.ChecklistParallelism <= 0 {
		opts.ChecklistParallelism = 4
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{
		store:    store,
		collab:   collab,
		opts:     opts,
		log:      log,
		validate: validator.New(),
		now:      time.Now,
	}
}

// run carries the state of one import between stages
type run struct {
	record  *domain.ImportRun
	req     Request
	project domain.ProjectContext
	corpus  string
	log     logrus.FieldLogger

	workstreams []*domain.Workstream
	created     []*domain.Task

	mu sync.Mutex
}

func (r *run) warn(stage, msg string) {
	r.mu.Lock()
	r.record.Warnings = append(r.record.Warnings, msg)
	r.mu.Unlock()
	r.log.WithField("stage", stage).Warn(msg)
}

func (r *run) fail(stage, msg string) {
	r.mu.Lock()
	r.record.Errors = append(r.record.Errors, msg)
	r.mu.Unlock()
	r.log.WithField("stage", stage).Error(msg)
}

func (r *run) addCost(c decimal.Decimal) {
	r.mu.Lock()
	r.record.Cost = r.record.Cost.Add(c)
	r.mu.Unlock()
}

func (r *run) stage(name string, status domain.StageStatus, detail string) {
	r.record.Stages = append(r.record.Stages, domain.StageResult{Name: name, Status: status, Detail: detail})
	recordStage(name, status)
}

// Run executes every stage and persists the run record. Only a failure
// to combine documents or to detect workstreams is returned as a
// *FatalError; optional stage failures are recorded in the run.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*domain.ImportRun, error) {
	started := o.now()
	record := &domain.ImportRun{
		ProjectID:     req.ProjectID,
		DocumentCount: len(req.Documents),
		Cost:          decimal.Zero,
		StartedAt:     started,
	}
	r := &run{
		record: record,
		req:    req,
		log:    o.log.WithField("project_id", req.ProjectID),
	}

	if err := o.prepare(ctx, r); err != nil {
		return o.abort(ctx, r, StageCombine, err)
	}
	if err := o.detect(ctx, r); err != nil {
		return o.abort(ctx, r, StageDetect, err)
	}

	o.createTasks(ctx, r)
	o.extractTimeline(ctx, r)
	o.createDependencies(ctx, r)
	o.assignResources(ctx, r)
	o.generateChecklists(ctx, r)

	record.Success = len(r.created) > 0
	return record, o.finish(ctx, r)
}

// abort records a fatal stage failure and persists the failed run
func (o *Orchestrator) abort(ctx context.Context, r *run, stage string, err error) (*domain.ImportRun, error) {
	r.stage(stage, domain.StageFailed, err.Error())
	r.fail(stage, err.Error())
	r.record.Success = false

	// A persistence failure is logged by finish; the stage error wins
	_ = o.finish(ctx, r)
	return r.record, &FatalError{Stage: stage, Err: err}
}

// finish stamps timing, persists the record and notifies listeners
func (o *Orchestrator) finish(ctx context.Context, r *run) error {
	rec := r.record
	rec.FinishedAt = o.now()
	rec.Duration = rec.FinishedAt.Sub(rec.StartedAt)
	recordRun(rec.Success, rec.Duration, rec.Cost)

	// The run record is written even if the caller's context is done
	id, err := o.store.InsertImportRun(context.WithoutCancel(ctx), rec)
	if err != nil {
		r.log.WithError(err).Error("Failed to persist import run")
		return errors.Wrap(err, "persist import run")
	}
	rec.ID = id

	r.log.WithFields(logrus.Fields{
		"run_id":   id,
		"success":  rec.Success,
		"tasks":    rec.TaskCount,
		"warnings": len(rec.Warnings),
		"errors":   len(rec.Errors),
		"cost_usd": rec.Cost.StringFixed(4),
		"duration": rec.Duration.String(),
	}).Info("Import finished")

	if o.opts.Notifier != nil {
		if err := o.opts.Notifier.Send(notify.ForRun(rec)); err != nil {
			r.log.WithError(err).Warn("Failed to send import notification")
		}
	}
	return nil
}

// prepare is stage 1: combine documents and build the project context
func (o *Orchestrator) prepare(ctx context.Context, r *run) error {
	r.corpus = documents.Combine(r.req.Documents)
	if r.corpus == "" {
		return ErrNoDocuments
	}

	r.project = domain.ProjectContext{
		ProjectID: r.req.ProjectID,
		Name:      r.req.ProjectName,
		StartDate: r.req.StartDate,
	}
	if r.project.Name == "" {
		r.project.Name = r.req.ProjectID
	}
	if r.project.StartDate.IsZero() {
		y, m, d := o.now().Date()
		r.project.StartDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	existing, err := o.store.ListTasks(ctx, taskstore.ListOptions{ProjectID: r.req.ProjectID})
	if err != nil {
		r.warn(StageCombine, fmt.Sprintf("could not load existing tasks: %v", err))
	}
	for _, t := range existing {
		r.project.ExistingTitles = append(r.project.ExistingTitles, t.Title)
	}

	r.stage(StageCombine, domain.StageOK, fmt.Sprintf("%d documents", len(r.req.Documents)))
	return nil
}

// detect is stage 2. Its cost is not added to the run total.
func (o *Orchestrator) detect(ctx context.Context, r *run) error {
	if o.collab.Detector == nil {
		return ErrNoDetector
	}

	found, err := o.collab.Detector.Detect(ctx, r.corpus, r.project)
	if err != nil {
		return errors.Wrap(err, "detect workstreams")
	}

	for i, ws := range found {
		if ws == nil {
			continue
		}
		if ws.Key() == "" {
			r.warn(StageDetect, fmt.Sprintf("dropped workstream #%d: blank name", i+1))
			continue
		}
		if err := o.validate.Struct(ws); err != nil {
			r.warn(StageDetect, fmt.Sprintf("dropped invalid workstream #%d %q: %v", i+1, ws.Name, err))
			continue
		}
		r.workstreams = append(r.workstreams, ws)
	}
	r.record.WorkstreamCount = len(r.workstreams)

	if len(r.workstreams) < o.opts.MinWorkstreams {
		return errors.Wrapf(ErrNoWorkstreams, "got %d, need at least %d", len(r.workstreams), o.opts.MinWorkstreams)
	}

	r.stage(StageDetect, domain.StageOK, fmt.Sprintf("%d workstreams", len(r.workstreams)))
	return nil
}

// createTasks is stage 3
func (o *Orchestrator) createTasks(ctx context.Context, r *run) {
	b := hierarchy.New(o.store, r.project.StartDate, hierarchy.WithLogger(r.log.WithField("stage", StageTasks)))
	res := b.CreateHierarchy(ctx, r.workstreams, r.req.ProjectID)

	r.created = res.Created
	r.record.TaskCount = len(res.Created)
	r.record.Warnings = append(r.record.Warnings, res.Warnings...)
	r.record.Errors = append(r.record.Errors, res.Errors...)

	status := domain.StageOK
	if len(res.Created) == 0 {
		status = domain.StageFailed
	}
	r.stage(StageTasks, status, fmt.Sprintf("%d epics, %d tasks, %d subtasks, %d standalone, %d failed",
		len(res.Epics), len(res.Tasks), len(res.Subtasks), len(res.Standalone), len(res.Errors)))
}

// extractTimeline is stage 4
func (o *Orchestrator) extractTimeline(ctx context.Context, r *run) {
	if !o.opts.Capabilities.Timeline || o.collab.Timeline == nil {
		r.warn(StageTimeline, "timeline extraction unavailable, continuing without timeline")
		r.stage(StageTimeline, domain.StageSkipped, "unavailable")
		return
	}

	phases, cost, err := o.collab.Timeline.ExtractTimeline(ctx, r.corpus, r.project)
	r.addCost(cost)
	if err != nil {
		r.warn(StageTimeline, fmt.Sprintf("timeline extraction failed: %v", err))
		r.stage(StageTimeline, domain.StageFailed, err.Error())
		return
	}

	n, err := o.store.InsertTimelinePhases(ctx, r.req.ProjectID, phases)
	if err != nil {
		r.warn(StageTimeline, fmt.Sprintf("saving timeline failed: %v", err))
		r.stage(StageTimeline, domain.StageFailed, err.Error())
		return
	}
	r.record.TimelinePhaseCount = n
	r.stage(StageTimeline, domain.StageOK, fmt.Sprintf("%d phases", n))
}

// createDependencies is stage 5
func (o *Orchestrator) createDependencies(ctx context.Context, r *run) {
	if len(r.created) < 2 {
		r.stage(StageDependencies, domain.StageSkipped, "fewer than two tasks")
		return
	}

	var analyzer DependencyAnalyzer
	switch {
	case !o.opts.Capabilities.Dependencies:
	case o.collab.Dependencies != nil:
		analyzer = o.collab.Dependencies
	case o.opts.Capabilities.UseReferenceDependencies:
		analyzer = dependencies.ReferenceAnalyzer{}
	}
	if analyzer == nil {
		r.warn(StageDependencies, "dependency analysis unavailable, keeping derived dependencies only")
		r.stage(StageDependencies, domain.StageSkipped, "unavailable")
		return
	}

	proposals, cost, err := analyzer.Analyze(ctx, r.workstreams, r.created)
	r.addCost(cost)
	if err != nil {
		r.warn(StageDependencies, fmt.Sprintf("dependency analysis failed: %v", err))
		r.stage(StageDependencies, domain.StageFailed, err.Error())
		return
	}

	creator := dependencies.NewCreator(o.store, r.log.WithField("stage", StageDependencies))
	res, err := creator.CreateBatch(ctx, r.req.ProjectID, r.created, proposals)
	r.record.Warnings = append(r.record.Warnings, res.Warnings...)
	if err != nil {
		if errors.Is(err, depgraph.ErrCycle) {
			for _, c := range res.Cycles {
				r.record.Errors = append(r.record.Errors, "circular dependency: "+c)
			}
		} else {
			r.fail(StageDependencies, fmt.Sprintf("creating dependencies failed: %v", err))
		}
		r.stage(StageDependencies, domain.StageFailed, err.Error())
		return
	}

	r.record.DependencyCount = res.Created
	r.stage(StageDependencies, domain.StageOK, fmt.Sprintf("%d of %d proposals created", res.Created, res.Proposed))
}

// assignResources is stage 6
func (o *Orchestrator) assignResources(ctx context.Context, r *run) {
	if !o.opts.Capabilities.Resources || o.collab.Resources == nil {
		r.warn(StageResources, "resource parsing unavailable")
		r.stage(StageResources, domain.StageSkipped, "unavailable")
		return
	}
	docs := documents.FindKind(r.req.Documents, domain.KindEffort)
	if len(docs) == 0 {
		r.warn(StageResources, "no effort document found, skipping resource assignment")
		r.stage(StageResources, domain.StageSkipped, "no effort document")
		return
	}

	var rows []domain.EffortRow
	for _, doc := range docs {
		parsed, err := o.collab.Resources.Parse(ctx, doc)
		if err != nil {
			r.warn(StageResources, fmt.Sprintf("parsing %s failed: %v", doc.Name, err))
			continue
		}
		rows = append(rows, parsed...)
	}

	assignments, warnings := resources.Assign(rows, r.created)
	for _, w := range warnings {
		r.warn(StageResources, w)
	}
	for _, a := range assignments {
		if err := o.store.InsertResourceAssignment(ctx, a); err != nil {
			r.fail(StageResources, fmt.Sprintf("assigning %q failed: %v", a.RowName, err))
			continue
		}
		r.record.ResourceCount++
	}
	r.stage(StageResources, domain.StageOK, fmt.Sprintf("%d of %d rows assigned", r.record.ResourceCount, len(rows)))
}

// generateChecklists is stage 7. Workstreams are processed in parallel;
// results are merged under the run mutex.
func (o *Orchestrator) generateChecklists(ctx context.Context, r *run) {
	if !o.opts.Capabilities.Checklists || o.collab.Checklists == nil {
		r.warn(StageChecklists, "checklist generation unavailable")
		r.stage(StageChecklists, domain.StageSkipped, "unavailable")
		return
	}

	var g errgroup.Group
	g.SetLimit(o.opts.ChecklistParallelism)

	failed := 0
	for _, ws := range r.workstreams {
		if ws.IssueID == "" {
			continue
		}
		g.Go(func() error {
			cl, cost, err := o.collab.Checklists.GenerateChecklist(ctx, ws, r.corpus)
			r.addCost(cost)
			if err == nil && cl == nil {
				err = errors.New("empty checklist")
			}
			if err == nil {
				if cl.TaskID == "" {
					cl.TaskID = ws.IssueID
				}
				if cl.WorkstreamName == "" {
					cl.WorkstreamName = ws.Key()
				}
				_, err = o.store.InsertChecklist(ctx, cl)
			}

			if err != nil {
				r.fail(StageChecklists, fmt.Sprintf("checklist for %q failed: %v", ws.Key(), err))
				r.mu.Lock()
				failed++
				r.mu.Unlock()
				return nil
			}
			r.mu.Lock()
			r.record.ChecklistCount++
			r.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := domain.StageOK
	if failed > 0 && r.record.ChecklistCount == 0 {
		status = domain.StageFailed
	}
	r.stage(StageChecklists, status, fmt.Sprintf("%d generated, %d failed", r.record.ChecklistCount, failed))
}
