package hierarchy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/project-tracker/internal/domain"
	"github.com/hochfrequenz/project-tracker/internal/taskstore"
)

var projectStart = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	tasks []domain.Task
	fail  map[string]bool
}

func (f *fakeStore) InsertTask(_ context.Context, task *domain.Task) (string, error) {
	if f.fail[task.Title] {
		return "", errors.New("constraint violation")
	}
	id := fmt.Sprintf("task-%d", len(f.tasks)+1)
	stored := *task
	stored.ID = id
	f.tasks = append(f.tasks, stored)
	return id, nil
}

func newBuilder(store TaskStore) *Builder {
	log, _ := test.NewNullLogger()
	return New(store, projectStart, WithLogger(log))
}

func sampleWorkstreams() []*domain.Workstream {
	return []*domain.Workstream{
		{ID: "ws-1", Name: "Discovery", HierarchyLevel: 0},
		{ID: "ws-2", Name: "Build", HierarchyLevel: 0},
		{ID: "ws-3", Name: "Interviews", HierarchyLevel: 1, ParentRef: "Discovery"},
		{ID: "ws-4", Name: "Market Scan", HierarchyLevel: 1, ParentRef: "Discovery"},
		{ID: "ws-5", Name: "Backend", HierarchyLevel: 1, ParentRef: "ws-2"},
		{ID: "ws-6", Name: "API Schema", HierarchyLevel: 2, ParentRef: "backend"},
	}
}

// parentTitles maps every created title to the title of its parent
func parentTitles(tasks []*domain.Task) map[string]string {
	byID := make(map[string]string)
	for _, t := range tasks {
		byID[t.ID] = t.Title
	}
	out := make(map[string]string)
	for _, t := range tasks {
		out[t.Title] = byID[t.ParentTaskID]
	}
	return out
}

func TestCreateHierarchy_Structure(t *testing.T) {
	res := newBuilder(&fakeStore{}).CreateHierarchy(context.Background(), sampleWorkstreams(), "proj")

	require.Empty(t, res.Errors)
	require.Empty(t, res.Warnings)
	assert.Len(t, res.Created, 6)
	assert.Len(t, res.Epics, 2)
	assert.Len(t, res.Tasks, 3)
	assert.Len(t, res.Subtasks, 1)
	assert.Empty(t, res.Standalone)

	assert.Equal(t, map[string]string{
		"Discovery":   "",
		"Build":       "",
		"Interviews":  "Discovery",
		"Market Scan": "Discovery",
		"Backend":     "Build",
		"API Schema":  "Backend",
	}, parentTitles(res.Created))
}

func TestCreateHierarchy_OrderIndependent(t *testing.T) {
	sorted := newBuilder(&fakeStore{}).CreateHierarchy(context.Background(), sampleWorkstreams(), "proj")

	ws := sampleWorkstreams()
	shuffled := []*domain.Workstream{ws[5], ws[3], ws[1], ws[4], ws[0], ws[2]}
	got := newBuilder(&fakeStore{}).CreateHierarchy(context.Background(), shuffled, "proj")

	require.Empty(t, got.Warnings)
	assert.Equal(t, parentTitles(sorted.Created), parentTitles(got.Created))
	assert.Equal(t, len(sorted.Epics), len(got.Epics))
	assert.Equal(t, len(sorted.Subtasks), len(got.Subtasks))
}

func TestCreateHierarchy_StableWithinLevel(t *testing.T) {
	items := []*domain.Workstream{
		{Name: "Child B", HierarchyLevel: 1, ParentRef: "Root"},
		{Name: "Root", HierarchyLevel: 0},
		{Name: "Child A", HierarchyLevel: 1, ParentRef: "Root"},
	}
	res := newBuilder(&fakeStore{}).CreateHierarchy(context.Background(), items, "proj")

	require.Len(t, res.Created, 3)
	assert.Equal(t, "Root", res.Created[0].Title)
	assert.Equal(t, "Child B", res.Created[1].Title)
	assert.Equal(t, "Child A", res.Created[2].Title)
}

func TestCreateHierarchy_UnresolvedParent(t *testing.T) {
	items := []*domain.Workstream{
		{Name: "Root", HierarchyLevel: 0},
		{Name: "Orphan", HierarchyLevel: 1, ParentRef: "Nowhere"},
	}
	res := newBuilder(&fakeStore{}).CreateHierarchy(context.Background(), items, "proj")

	require.Empty(t, res.Errors)
	require.Len(t, res.Created, 2)
	require.Len(t, res.Standalone, 1)
	assert.Equal(t, "Orphan", res.Standalone[0].Title)
	assert.False(t, res.Standalone[0].HasParent())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `parent "Nowhere" not found`)
}

func TestCreateHierarchy_EpicGuard(t *testing.T) {
	items := []*domain.Workstream{
		{Name: "Root", HierarchyLevel: 0},
		{Name: "Not An Epic", HierarchyLevel: 1, ParentRef: "Root", IsEpic: true},
	}
	store := &fakeStore{}
	res := newBuilder(store).CreateHierarchy(context.Background(), items, "proj")

	require.Len(t, res.Created, 2)
	assert.True(t, res.Created[0].IsEpic)
	assert.False(t, res.Created[1].IsEpic)
	assert.False(t, store.tasks[1].IsEpic)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "cannot be an epic")
}

func TestCreateHierarchy_LevelFollowsParent(t *testing.T) {
	items := []*domain.Workstream{
		{Name: "Root", HierarchyLevel: 0},
		{Name: "Skipped Level", HierarchyLevel: 2, ParentRef: "Root"},
	}
	res := newBuilder(&fakeStore{}).CreateHierarchy(context.Background(), items, "proj")

	require.Len(t, res.Created, 2)
	assert.Equal(t, 1, res.Created[1].HierarchyLevel)
	assert.Len(t, res.Warnings, 1)
}

func TestCreateHierarchy_StoreFailureContinues(t *testing.T) {
	store := &fakeStore{fail: map[string]bool{"Build": true}}
	res := newBuilder(store).CreateHierarchy(context.Background(), sampleWorkstreams(), "proj")

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], `create task "Build"`)
	assert.Len(t, res.Created, 5)

	// Backend referenced the failed parent and is created as a root
	titles := parentTitles(res.Created)
	assert.Equal(t, "", titles["Backend"])
	assert.Equal(t, "Backend", titles["API Schema"])
	assert.Len(t, res.Warnings, 1)
}

func TestCreateHierarchy_DerivedDependencies(t *testing.T) {
	res := newBuilder(&fakeStore{}).CreateHierarchy(context.Background(), sampleWorkstreams(), "proj")

	byTitle := make(map[string]*domain.Task)
	for _, task := range res.Created {
		byTitle[task.Title] = task
	}

	assert.Empty(t, byTitle["Discovery"].DependsOn)
	assert.Empty(t, byTitle["Build"].DependsOn)
	assert.Equal(t, []string{byTitle["Discovery"].ID}, byTitle["Interviews"].DependsOn)
	assert.Equal(t, []string{byTitle["Discovery"].ID, byTitle["Interviews"].ID}, byTitle["Market Scan"].DependsOn)
	assert.Equal(t, []string{byTitle["Build"].ID}, byTitle["Backend"].DependsOn)
}

func TestCreateHierarchy_Dates(t *testing.T) {
	res := newBuilder(&fakeStore{}).CreateHierarchy(context.Background(), sampleWorkstreams(), "proj")

	byTitle := make(map[string]*domain.Task)
	for _, task := range res.Created {
		byTitle[task.Title] = task
	}
	day := func(n int) time.Time { return projectStart.AddDate(0, 0, n) }

	assert.Equal(t, day(0), byTitle["Discovery"].StartDate)
	assert.Equal(t, day(30), byTitle["Discovery"].DueDate)
	assert.Equal(t, day(5), byTitle["Build"].StartDate)
	assert.Equal(t, day(0), byTitle["Interviews"].StartDate)
	assert.Equal(t, day(2), byTitle["Market Scan"].StartDate)
	assert.Equal(t, day(12), byTitle["Market Scan"].DueDate)
	assert.Equal(t, day(5), byTitle["Backend"].StartDate)
	assert.Equal(t, day(10), byTitle["API Schema"].DueDate)
}

func TestCreateHierarchy_AnnotatesWorkstreams(t *testing.T) {
	items := sampleWorkstreams()
	res := newBuilder(&fakeStore{}).CreateHierarchy(context.Background(), items, "proj")

	for _, ws := range items {
		id, ok := res.NameIndex.Get(ws.Name)
		require.True(t, ok, ws.Name)
		assert.Equal(t, id, ws.IssueID)

		byID, ok := res.NameIndex.Get(ws.ID)
		require.True(t, ok, ws.ID)
		assert.Equal(t, id, byID)
	}
}

func TestCreateHierarchy_DescriptionIncludesRequirements(t *testing.T) {
	items := []*domain.Workstream{{
		Name:            "Reporting",
		Description:     "Monthly reports.",
		KeyRequirements: []string{"PDF export", "Email delivery"},
	}}
	res := newBuilder(&fakeStore{}).CreateHierarchy(context.Background(), items, "proj")

	require.Len(t, res.Created, 1)
	assert.Equal(t, "Monthly reports.\n\nKey requirements:\n- PDF export\n- Email delivery", res.Created[0].Description)
}

func TestCreateHierarchy_LogsWarnings(t *testing.T) {
	log, hook := test.NewNullLogger()
	b := New(&fakeStore{}, projectStart, WithLogger(log))

	b.CreateHierarchy(context.Background(), []*domain.Workstream{{Name: "Lost", HierarchyLevel: 1, ParentRef: "x"}}, "proj")

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "proj", hook.LastEntry().Data["project_id"])
}

func TestCreateHierarchy_SQLiteStore(t *testing.T) {
	store, err := taskstore.New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	res := newBuilder(store).CreateHierarchy(ctx, sampleWorkstreams(), "proj")
	require.Empty(t, res.Errors)

	edges, err := store.ListEdges(ctx, "proj")
	require.NoError(t, err)
	// Interviews, Market Scan (parent + sibling), Backend, API Schema
	assert.Len(t, edges, 5)

	tasks, err := store.ListTasks(ctx, taskstore.ListOptions{ProjectID: "proj"})
	require.NoError(t, err)
	assert.Len(t, tasks, 6)
}
