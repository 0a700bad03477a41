package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hochfrequenz/project-tracker/internal/domain"
)

var projectStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return projectStart.AddDate(0, 0, n)
}

func TestDurationForLevel(t *testing.T) {
	tests := []struct {
		level int
		want  int
	}{
		{-1, 7},
		{0, 30},
		{1, 10},
		{2, 5},
		{3, 3},
		{7, 3},
	}
	for _, tt := range tests {
		if got := DurationForLevel(tt.level); got != tt.want {
			t.Errorf("DurationForLevel(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestScheduleDates_FirstEpic(t *testing.T) {
	epic := &domain.Task{ID: "e1", HierarchyLevel: 0, IsEpic: true}
	got := ScheduleDates(epic, nil, projectStart)

	assert.Equal(t, projectStart, got.StartDate)
	assert.Equal(t, 30, got.DurationDays)
	assert.Equal(t, day(30), got.DueDate)
}

func TestScheduleDates_EpicsSpacedFiveDays(t *testing.T) {
	first := &domain.Task{ID: "e1", IsEpic: true, StartDate: projectStart}
	second := &domain.Task{ID: "e2", IsEpic: true}

	got := ScheduleDates(second, []*domain.Task{first}, projectStart)
	assert.Equal(t, day(5), got.StartDate)

	third := &domain.Task{ID: "e3", IsEpic: true}
	got = ScheduleDates(third, []*domain.Task{first, second}, projectStart)
	assert.Equal(t, day(10), got.StartDate)
}

func TestScheduleDates_SiblingsCascadeTwoDays(t *testing.T) {
	parent := &domain.Task{ID: "p", IsEpic: true, StartDate: day(7)}
	firstChild := &domain.Task{ID: "c1", ParentTaskID: "p", HierarchyLevel: 1, StartDate: day(7)}
	secondChild := &domain.Task{ID: "c2", ParentTaskID: "p", HierarchyLevel: 1}

	got := ScheduleDates(firstChild, []*domain.Task{parent}, projectStart)
	assert.Equal(t, day(7), got.StartDate)

	got = ScheduleDates(secondChild, []*domain.Task{parent, firstChild}, projectStart)
	assert.Equal(t, day(9), got.StartDate)
	assert.Equal(t, 10, got.DurationDays)
	assert.Equal(t, day(19), got.DueDate)
}

func TestScheduleDates_SiblingsOfOtherParentsIgnored(t *testing.T) {
	p1 := &domain.Task{ID: "p1", IsEpic: true, StartDate: day(0)}
	p2 := &domain.Task{ID: "p2", IsEpic: true, StartDate: day(5)}
	c1 := &domain.Task{ID: "c1", ParentTaskID: "p1", HierarchyLevel: 1, StartDate: day(0)}
	c2 := &domain.Task{ID: "c2", ParentTaskID: "p2", HierarchyLevel: 1}

	got := ScheduleDates(c2, []*domain.Task{p1, p2, c1}, projectStart)
	assert.Equal(t, day(5), got.StartDate)
}

func TestScheduleDates_UnscheduledParentFallsBackToRoot(t *testing.T) {
	orphan := &domain.Task{ID: "c", ParentTaskID: "missing", HierarchyLevel: 2}
	epic := &domain.Task{ID: "e1", IsEpic: true, StartDate: projectStart}

	got := ScheduleDates(orphan, []*domain.Task{epic}, projectStart)
	assert.Equal(t, day(5), got.StartDate)
	assert.Equal(t, 5, got.DurationDays)
}

func TestScheduleDates_UnknownLevel(t *testing.T) {
	got := ScheduleDates(&domain.Task{ID: "x", HierarchyLevel: -1}, nil, projectStart)
	assert.Equal(t, 7, got.DurationDays)
	assert.Equal(t, day(7), got.DueDate)
}

func TestScheduleDates_Deterministic(t *testing.T) {
	prior := []*domain.Task{{ID: "e1", IsEpic: true, StartDate: projectStart}}
	task := &domain.Task{ID: "e2", IsEpic: true}

	a := ScheduleDates(task, prior, projectStart)
	b := ScheduleDates(task, prior, projectStart)
	assert.Equal(t, a, b)
	assert.Len(t, prior, 1, "prior tasks must not be modified")
}
