// Package scheduler assigns start and due dates to tasks in a hierarchy.
package scheduler

import (
	"time"

	"github.com/hochfrequenz/project-tracker/internal/domain"
)

const (
	// EpicSpacingDays separates consecutive root tasks
	EpicSpacingDays = 5
	// SiblingSpacingDays separates consecutive children of one parent
	SiblingSpacingDays = 2
	// DefaultDurationDays applies when the level is unknown
	DefaultDurationDays = 7
)

// Schedule is the computed date range for a task
type Schedule struct {
	StartDate    time.Time
	DueDate      time.Time
	DurationDays int
}

// DurationForLevel returns the planned duration in calendar days for a
// hierarchy level. A negative level means the level is unknown.
func DurationForLevel(level int) int {
	switch {
	case level < 0:
		return DefaultDurationDays
	case level == 0:
		return 30
	case level == 1:
		return 10
	case level == 2:
		return 5
	default:
		return 3
	}
}

// ScheduleDates computes the dates for task given the tasks already
// scheduled before it. Callers pass prior tasks in creation order and must
// schedule parents before their children.
//
// Children start at their parent's start, two days apart per earlier
// sibling. Root tasks start at projectStart, five days apart per earlier
// epic. Due dates are start plus duration in calendar days.
func ScheduleDates(task *domain.Task, prior []*domain.Task, projectStart time.Time) Schedule {
	duration := DurationForLevel(task.HierarchyLevel)

	var start time.Time
	if parent := findParent(task, prior); parent != nil {
		siblings := 0
		for _, p := range prior {
			if p.ParentTaskID == task.ParentTaskID && p.ID != task.ID {
				siblings++
			}
		}
		start = parent.StartDate.AddDate(0, 0, SiblingSpacingDays*siblings)
	} else {
		epics := 0
		for _, p := range prior {
			if p.IsEpic && p.ID != task.ID {
				epics++
			}
		}
		start = projectStart.AddDate(0, 0, EpicSpacingDays*epics)
	}

	return Schedule{
		StartDate:    start,
		DueDate:      start.AddDate(0, 0, duration),
		DurationDays: duration,
	}
}

// findParent returns the already scheduled parent of task, or nil when the
// task has no parent or the parent has no start date yet.
func findParent(task *domain.Task, prior []*domain.Task) *domain.Task {
	if !task.HasParent() {
		return nil
	}
	for _, p := range prior {
		if p.ID == task.ParentTaskID {
			if p.StartDate.IsZero() {
				return nil
			}
			return p
		}
	}
	return nil
}
