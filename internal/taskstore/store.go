package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/project-tracker/internal/domain"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Store provides SQLite-backed persistence for tasks, dependencies and import runs
type Store struct {
	db *sql.DB
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migrations")
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertTask persists a new task together with its DependsOn edges and
// returns the assigned ID.
func (s *Store) InsertTask(ctx context.Context, task *domain.Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, parent_task_id, hierarchy_level, is_epic,
			start_date, due_date, assignee, effort_estimate_hours, estimate_confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.ProjectID,
		task.Title,
		task.Description,
		nullString(task.ParentTaskID),
		task.HierarchyLevel,
		task.IsEpic,
		task.StartDate,
		task.DueDate,
		task.Assignee,
		task.EffortEstimateHours,
		task.EstimateConfidence,
		task.CreatedAt,
	)
	if err != nil {
		return "", errors.Wrapf(err, "insert task %q", task.Title)
	}

	for _, dep := range task.DependsOn {
		if _, err := insertEdge(ctx, tx, dep, task.ID); err != nil {
			return "", errors.Wrapf(err, "insert dependency of %q", task.Title)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return task.ID, nil
}

// GetTask retrieves a task by ID
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	deps, err := s.dependenciesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	task.DependsOn = deps
	return task, nil
}

// ListOptions specifies filters for listing tasks
type ListOptions struct {
	ProjectID string
	ParentID  string
}

// ListTasks returns tasks matching the given options in creation order
func (s *Store) ListTasks(ctx context.Context, opts ListOptions) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any

	if opts.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, opts.ProjectID)
	}
	if opts.ParentID != "" {
		query += " AND parent_task_id = ?"
		args = append(args, opts.ParentID)
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	byID := make(map[string]*domain.Task)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
		byID[task.ID] = task
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := s.ListEdges(ctx, opts.ProjectID)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if t, ok := byID[e.TargetID]; ok {
			t.DependsOn = append(t.DependsOn, e.SourceID)
		}
	}
	return tasks, nil
}

// ListEdges returns every dependency edge whose target belongs to the
// project. An empty project ID returns all edges.
func (s *Store) ListEdges(ctx context.Context, projectID string) ([]domain.DependencyEdge, error) {
	query := `SELECT d.source_task_id, d.target_task_id FROM task_dependencies d`
	var args []any
	if projectID != "" {
		query += ` JOIN tasks t ON t.id = d.target_task_id WHERE t.project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY d.rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.DependencyEdge
	for rows.Next() {
		var e domain.DependencyEdge
		if err := rows.Scan(&e.SourceID, &e.TargetID); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// InsertEdgeIfAbsent writes a single edge. Writing an edge that already
// exists is a no-op and reports created=false.
func (s *Store) InsertEdgeIfAbsent(ctx context.Context, sourceID, targetID string) (bool, error) {
	return insertEdge(ctx, s.db, sourceID, targetID)
}

// InsertEdges writes a batch of edges in one transaction and returns how
// many were new. Either every edge is written or none is.
func (s *Store) InsertEdges(ctx context.Context, edges []domain.DependencyEdge) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	created := 0
	for _, e := range edges {
		ok, err := insertEdge(ctx, tx, e.SourceID, e.TargetID)
		if err != nil {
			return 0, errors.Wrapf(err, "insert edge %s -> %s", e.SourceID, e.TargetID)
		}
		if ok {
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

func insertEdge(ctx context.Context, db execer, sourceID, targetID string) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO task_dependencies (source_task_id, target_task_id, created_at)
		VALUES (?, ?, ?)
	`, sourceID, targetID, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) dependenciesOf(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_task_id FROM task_dependencies WHERE target_task_id = ? ORDER BY rowid`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deps []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deps = append(deps, id)
	}
	return deps, rows.Err()
}

const taskColumns = `id, project_id, title, description, parent_task_id, hierarchy_level, is_epic,
	start_date, due_date, assignee, effort_estimate_hours, estimate_confidence, created_at`

func scanTask(row scanner) (*domain.Task, error) {
	var task domain.Task
	var description, parentID, assignee sql.NullString

	err := row.Scan(&task.ID, &task.ProjectID, &task.Title, &description, &parentID, &task.HierarchyLevel, &task.IsEpic,
		&task.StartDate, &task.DueDate, &assignee, &task.EffortEstimateHours, &task.EstimateConfidence, &task.CreatedAt)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.ParentTaskID = parentID.String
	task.Assignee = assignee.String
	return &task, nil
}

// InsertImportRun appends a run record. Runs are never updated afterward.
func (s *Store) InsertImportRun(ctx context.Context, run *domain.ImportRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return "", err
	}
	warningsJSON, err := json.Marshal(run.Warnings)
	if err != nil {
		return "", err
	}
	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_runs (id, project_id, document_count, workstream_count, task_count, dependency_count,
			resource_count, checklist_count, timeline_phase_count, cost, success, errors, warnings, stages,
			started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.ProjectID,
		run.DocumentCount,
		run.WorkstreamCount,
		run.TaskCount,
		run.DependencyCount,
		run.ResourceCount,
		run.ChecklistCount,
		run.TimelinePhaseCount,
		run.Cost.String(),
		run.Success,
		string(errorsJSON),
		string(warningsJSON),
		string(stagesJSON),
		run.StartedAt,
		run.FinishedAt,
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return "", errors.Wrap(err, "insert import run")
	}
	return run.ID, nil
}

const runColumns = `id, project_id, document_count, workstream_count, task_count, dependency_count,
	resource_count, checklist_count, timeline_phase_count, cost, success, errors, warnings, stages,
	started_at, finished_at, duration_ms`

// GetImportRun retrieves a run by ID
func (s *Store) GetImportRun(ctx context.Context, id string) (*domain.ImportRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM import_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// ListImportRuns returns the most recent runs first. An empty project ID
// lists runs of every project; limit <= 0 means no limit.
func (s *Store) ListImportRuns(ctx context.Context, projectID string, limit int) ([]*domain.ImportRun, error) {
	query := `SELECT ` + runColumns + ` FROM import_runs WHERE 1=1`
	var args []any
	if projectID != "" {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row scanner) (*domain.ImportRun, error) {
	var run domain.ImportRun
	var cost string
	var errorsJSON, warningsJSON, stagesJSON sql.NullString
	var durationMS int64

	err := row.Scan(&run.ID, &run.ProjectID, &run.DocumentCount, &run.WorkstreamCount, &run.TaskCount, &run.DependencyCount,
		&run.ResourceCount, &run.ChecklistCount, &run.TimelinePhaseCount, &cost, &run.Success, &errorsJSON, &warningsJSON, &stagesJSON,
		&run.StartedAt, &run.FinishedAt, &durationMS)
	if err != nil {
		return nil, err
	}

	run.Cost, err = decimal.NewFromString(cost)
	if err != nil {
		return nil, errors.Wrapf(err, "parse cost of run %s", run.ID)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond

	if err := unmarshalNullable(errorsJSON, &run.Errors); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(warningsJSON, &run.Warnings); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(stagesJSON, &run.Stages); err != nil {
		return nil, err
	}
	return &run, nil
}

// InsertChecklist persists a generated checklist
func (s *Store) InsertChecklist(ctx context.Context, cl *domain.Checklist) (string, error) {
	if cl.ID == "" {
		cl.ID = uuid.NewString()
	}
	items, err := json.Marshal(cl.Items)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checklists (id, task_id, workstream_name, title, items, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, cl.ID, nullString(cl.TaskID), cl.WorkstreamName, cl.Title, string(items), time.Now())
	if err != nil {
		return "", errors.Wrapf(err, "insert checklist for %q", cl.WorkstreamName)
	}
	return cl.ID, nil
}

// ListChecklists returns the checklists attached to a task
func (s *Store) ListChecklists(ctx context.Context, taskID string) ([]*domain.Checklist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, workstream_name, title, items FROM checklists WHERE task_id = ? ORDER BY rowid
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Checklist
	for rows.Next() {
		var cl domain.Checklist
		var tid sql.NullString
		var items string
		if err := rows.Scan(&cl.ID, &tid, &cl.WorkstreamName, &cl.Title, &items); err != nil {
			return nil, err
		}
		cl.TaskID = tid.String
		if err := json.Unmarshal([]byte(items), &cl.Items); err != nil {
			return nil, err
		}
		out = append(out, &cl)
	}
	return out, rows.Err()
}

// InsertTimelinePhases persists extracted timeline phases for a project
func (s *Store) InsertTimelinePhases(ctx context.Context, projectID string, phases []domain.TimelinePhase) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for i := range phases {
		p := &phases[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.ProjectID = projectID
		milestones, err := json.Marshal(p.Milestones)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO timeline_phases (id, project_id, name, start_date, end_date, milestones)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.ID, projectID, p.Name, p.StartDate, p.EndDate, string(milestones)); err != nil {
			return 0, errors.Wrapf(err, "insert phase %q", p.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(phases), nil
}

// ListTimelinePhases returns the phases stored for a project
func (s *Store) ListTimelinePhases(ctx context.Context, projectID string) ([]domain.TimelinePhase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, start_date, end_date, milestones FROM timeline_phases WHERE project_id = ? ORDER BY rowid
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TimelinePhase
	for rows.Next() {
		var p domain.TimelinePhase
		var milestones sql.NullString
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Name, &p.StartDate, &p.EndDate, &milestones); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(milestones, &p.Milestones); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertResourceAssignment records that a parsed effort row belongs to a task
func (s *Store) InsertResourceAssignment(ctx context.Context, a domain.ResourceAssignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resource_assignments (task_id, row_name, assignee, hours, confidence)
		VALUES (?, ?, ?, ?, ?)
	`, a.TaskID, a.RowName, a.Assignee, a.Hours, a.Confidence)
	if err != nil {
		return errors.Wrapf(err, "assign %q", a.RowName)
	}

	// The latest assignment is mirrored onto the task
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET assignee = ?, effort_estimate_hours = ?, estimate_confidence = ? WHERE id = ?
	`, a.Assignee, a.Hours, a.Confidence, a.TaskID)
	if err != nil {
		return errors.Wrapf(err, "update task %s", a.TaskID)
	}
	return tx.Commit()
}

// ListResourceAssignments returns assignments recorded for a task
func (s *Store) ListResourceAssignments(ctx context.Context, taskID string) ([]domain.ResourceAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, row_name, assignee, hours, confidence FROM resource_assignments WHERE task_id = ? ORDER BY id
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ResourceAssignment
	for rows.Next() {
		var a domain.ResourceAssignment
		var assignee sql.NullString
		if err := rows.Scan(&a.TaskID, &a.RowName, &assignee, &a.Hours, &a.Confidence); err != nil {
			return nil, err
		}
		a.Assignee = assignee.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func unmarshalNullable(s sql.NullString, dest any) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dest)
}
