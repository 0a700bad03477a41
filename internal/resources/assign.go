package resources

import (
	"fmt"

	"github.com/hochfrequenz/project-tracker/internal/domain"
	"github.com/hochfrequenz/project-tracker/internal/matcher"
)

// Assign matches each effort row to a task by name. Rows without a
// matching task produce a warning.
func Assign(rows []domain.EffortRow, tasks []*domain.Task) ([]domain.ResourceAssignment, []string) {
	var out []domain.ResourceAssignment
	var warnings []string
	for _, row := range rows {
		task := matcher.FindMatchingIssue(row.Name, tasks)
		if task == nil {
			warnings = append(warnings, fmt.Sprintf("effort row %q matches no task", row.Name))
			continue
		}
		out = append(out, domain.ResourceAssignment{
			TaskID:     task.ID,
			RowName:    row.Name,
			Assignee:   row.Assignee,
			Hours:      row.Hours,
			Confidence: row.Confidence,
		})
	}
	return out, warnings
}
