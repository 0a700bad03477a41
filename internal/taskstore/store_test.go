package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/project-tracker/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_InsertAndGetTask(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	epic := &domain.Task{
		ProjectID:      "proj",
		Title:          "Discovery Phase",
		Description:    "Understand the problem",
		HierarchyLevel: 0,
		IsEpic:         true,
		StartDate:      start,
		DueDate:        start.AddDate(0, 0, 30),
	}
	epicID, err := store.InsertTask(ctx, epic)
	require.NoError(t, err)
	require.NotEmpty(t, epicID)

	child := &domain.Task{
		ProjectID:      "proj",
		Title:          "Stakeholder Interviews",
		ParentTaskID:   epicID,
		HierarchyLevel: 1,
		DependsOn:      []string{epicID},
	}
	childID, err := store.InsertTask(ctx, child)
	require.NoError(t, err)

	got, err := store.GetTask(ctx, epicID)
	require.NoError(t, err)
	assert.Equal(t, "Discovery Phase", got.Title)
	assert.True(t, got.IsEpic)
	assert.True(t, got.StartDate.Equal(start), "start = %v", got.StartDate)
	assert.Empty(t, got.ParentTaskID)

	got, err = store.GetTask(ctx, childID)
	require.NoError(t, err)
	assert.Equal(t, epicID, got.ParentTaskID)
	assert.Equal(t, []string{epicID}, got.DependsOn)
}

func TestStore_GetTask_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetTask(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_EpicOnlyAtLevelZero(t *testing.T) {
	store := newTestStore(t)
	_, err := store.InsertTask(context.Background(), &domain.Task{ProjectID: "proj", Title: "Bad", HierarchyLevel: 1, IsEpic: true})
	require.Error(t, err)
}

func TestStore_FailedInsertKeepsPriorInserts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.InsertTask(ctx, &domain.Task{ID: "a", ProjectID: "proj", Title: "A"})
	require.NoError(t, err)

	_, err = store.InsertTask(ctx, &domain.Task{ID: "a", ProjectID: "proj", Title: "Duplicate"})
	require.Error(t, err)

	tasks, err := store.ListTasks(ctx, ListOptions{ProjectID: "proj"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "A", tasks[0].Title)
}

func TestStore_ListTasks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, task := range []*domain.Task{
		{ID: "a", ProjectID: "p1", Title: "A"},
		{ID: "b", ProjectID: "p1", Title: "B", ParentTaskID: "a", HierarchyLevel: 1, DependsOn: []string{"a"}},
		{ID: "c", ProjectID: "p2", Title: "C"},
	} {
		_, err := store.InsertTask(ctx, task)
		require.NoError(t, err)
	}

	all, err := store.ListTasks(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	p1, err := store.ListTasks(ctx, ListOptions{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, p1, 2)
	assert.Equal(t, "A", p1[0].Title)
	assert.Equal(t, []string{"a"}, p1[1].DependsOn)

	children, err := store.ListTasks(ctx, ListOptions{ParentID: "a"})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "b", children[0].ID)
}

func TestStore_InsertEdgeIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for _, id := range []string{"a", "b"} {
		_, err := store.InsertTask(ctx, &domain.Task{ID: id, ProjectID: "p", Title: id})
		require.NoError(t, err)
	}

	created, err := store.InsertEdgeIfAbsent(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.InsertEdgeIfAbsent(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, created, "existing edge is a no-op")

	edges, err := store.ListEdges(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []domain.DependencyEdge{{SourceID: "a", TargetID: "b"}}, edges)
}

func TestStore_InsertEdges_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		_, err := store.InsertTask(ctx, &domain.Task{ID: id, ProjectID: "p", Title: id})
		require.NoError(t, err)
	}

	// The last edge references a missing task and violates the foreign key.
	_, err := store.InsertEdges(ctx, []domain.DependencyEdge{
		{SourceID: "a", TargetID: "b"},
		{SourceID: "b", TargetID: "missing"},
	})
	require.Error(t, err)

	edges, err := store.ListEdges(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, edges)

	created, err := store.InsertEdges(ctx, []domain.DependencyEdge{
		{SourceID: "a", TargetID: "b"},
		{SourceID: "b", TargetID: "c"},
		{SourceID: "a", TargetID: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
}

func TestStore_ImportRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	run := &domain.ImportRun{
		ProjectID:       "proj",
		DocumentCount:   2,
		WorkstreamCount: 5,
		TaskCount:       5,
		Cost:            decimal.RequireFromString("0.0125"),
		Success:         false,
		Errors:          []string{"no workstreams detected"},
		Warnings:        []string{"timeline extraction unavailable"},
		Stages:          []domain.StageResult{{Name: "combine", Status: domain.StageOK}},
		StartedAt:       started,
		FinishedAt:      started.Add(1500 * time.Millisecond),
		Duration:        1500 * time.Millisecond,
	}
	id, err := store.InsertImportRun(ctx, run)
	require.NoError(t, err)

	got, err := store.GetImportRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DocumentCount)
	assert.True(t, got.Cost.Equal(decimal.RequireFromString("0.0125")))
	assert.False(t, got.Success)
	assert.Equal(t, run.Errors, got.Errors)
	assert.Equal(t, run.Warnings, got.Warnings)
	assert.Equal(t, run.Stages, got.Stages)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)

	_, err = store.InsertImportRun(ctx, &domain.ImportRun{ProjectID: "other", Success: true})
	require.NoError(t, err)

	runs, err := store.ListImportRuns(ctx, "proj", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	runs, err = store.ListImportRuns(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "other", runs[0].ProjectID)

	_, err = store.GetImportRun(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ChecklistsPhasesAndResources(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.InsertTask(ctx, &domain.Task{ID: "t", ProjectID: "p", Title: "T"})
	require.NoError(t, err)

	_, err = store.InsertChecklist(ctx, &domain.Checklist{
		TaskID:         "t",
		WorkstreamName: "T",
		Title:          "T checklist",
		Items:          []domain.ChecklistItem{{Text: "Write tests", Required: true}},
	})
	require.NoError(t, err)
	lists, err := store.ListChecklists(ctx, "t")
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "Write tests", lists[0].Items[0].Text)

	n, err := store.InsertTimelinePhases(ctx, "p", []domain.TimelinePhase{{Name: "Build", Milestones: []string{"MVP"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	phases, err := store.ListTimelinePhases(ctx, "p")
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Equal(t, []string{"MVP"}, phases[0].Milestones)

	require.NoError(t, store.InsertResourceAssignment(ctx, domain.ResourceAssignment{TaskID: "t", RowName: "T", Assignee: "dana", Hours: 12, Confidence: 0.8}))
	assigned, err := store.ListResourceAssignments(ctx, "t")
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "dana", assigned[0].Assignee)

	task, err := store.GetTask(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "dana", task.Assignee)
	assert.Equal(t, 12.0, task.EffortEstimateHours)
	assert.Equal(t, 0.8, task.EstimateConfidence)
}
