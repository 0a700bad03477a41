package taskstore

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    parent_task_id TEXT REFERENCES tasks(id),
    hierarchy_level INTEGER NOT NULL DEFAULT 0,
    is_epic BOOLEAN NOT NULL DEFAULT FALSE,
    start_date TIMESTAMP,
    due_date TIMESTAMP,
    assignee TEXT,
    effort_estimate_hours REAL DEFAULT 0,
    estimate_confidence REAL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    CHECK (is_epic = FALSE OR hierarchy_level = 0)
);

CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);

CREATE TABLE IF NOT EXISTS task_dependencies (
    source_task_id TEXT NOT NULL REFERENCES tasks(id),
    target_task_id TEXT NOT NULL REFERENCES tasks(id),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (source_task_id, target_task_id),
    CHECK (source_task_id <> target_task_id)
);

CREATE INDEX IF NOT EXISTS idx_task_dependencies_target ON task_dependencies(target_task_id);

CREATE TABLE IF NOT EXISTS import_runs (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    document_count INTEGER NOT NULL DEFAULT 0,
    workstream_count INTEGER NOT NULL DEFAULT 0,
    task_count INTEGER NOT NULL DEFAULT 0,
    dependency_count INTEGER NOT NULL DEFAULT 0,
    resource_count INTEGER NOT NULL DEFAULT 0,
    checklist_count INTEGER NOT NULL DEFAULT 0,
    timeline_phase_count INTEGER NOT NULL DEFAULT 0,
    cost TEXT NOT NULL DEFAULT '0',
    success BOOLEAN NOT NULL,
    errors TEXT,
    warnings TEXT,
    stages TEXT,
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_import_runs_project ON import_runs(project_id);

CREATE TABLE IF NOT EXISTS checklists (
    id TEXT PRIMARY KEY,
    task_id TEXT REFERENCES tasks(id),
    workstream_name TEXT NOT NULL,
    title TEXT NOT NULL,
    items TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_checklists_task ON checklists(task_id);

CREATE TABLE IF NOT EXISTS timeline_phases (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,
    start_date TIMESTAMP,
    end_date TIMESTAMP,
    milestones TEXT
);

CREATE INDEX IF NOT EXISTS idx_timeline_phases_project ON timeline_phases(project_id);

CREATE TABLE IF NOT EXISTS resource_assignments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id TEXT NOT NULL REFERENCES tasks(id),
    row_name TEXT NOT NULL,
    assignee TEXT,
    hours REAL DEFAULT 0,
    confidence REAL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_resource_assignments_task ON resource_assignments(task_id);
`
