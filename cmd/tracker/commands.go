package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/project-tracker/internal/documents"
	"github.com/hochfrequenz/project-tracker/internal/domain"
	"github.com/hochfrequenz/project-tracker/internal/pipeline"
	"github.com/hochfrequenz/project-tracker/internal/taskstore"
)

var (
	importProject string
	importName    string
	importStart   string
	runsProject   string
	runsLimit     int
)

func init() {
	// import command
	importCmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import planning documents into a project",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	importCmd.Flags().StringVar(&importProject, "project", "default", "project ID")
	importCmd.Flags().StringVar(&importName, "name", "", "project name shown to the AI")
	importCmd.Flags().StringVar(&importStart, "start", "", "project start date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(importCmd)

	// runs command
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List import runs",
		RunE:  runRuns,
	}
	runsCmd.Flags().StringVar(&runsProject, "project", "", "filter by project")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)

	// tasks command
	tasksCmd := &cobra.Command{
		Use:   "tasks PROJECT",
		Short: "Show the task hierarchy of a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runTasks,
	}
	rootCmd.AddCommand(tasksCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	req := pipeline.Request{ProjectID: importProject, ProjectName: importName}
	if importStart != "" {
		start, err := time.Parse("2006-01-02", importStart)
		if err != nil {
			return errors.Wrap(err, "invalid --start")
		}
		req.StartDate = start
	}

	for _, path := range args {
		doc, err := documents.LoadFile(path)
		if err != nil {
			return err
		}
		req.Documents = append(req.Documents, doc)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	run, runErr := a.orchestrator().Run(cmd.Context(), req)
	if run != nil {
		printRun(cmd.OutOrStdout(), run)
	}
	if a.ai != nil {
		u := a.ai.Usage()
		fmt.Fprintf(cmd.OutOrStdout(), "AI usage: %d calls, %d prompt / %d completion tokens, $%s\n",
			u.Calls, u.PromptTokens, u.CompletionTokens, u.Cost.StringFixed(4))
	}
	return runErr
}

func printRun(out io.Writer, run *domain.ImportRun) {
	status := "success"
	if !run.Success {
		status = "failed"
	}
	fmt.Fprintf(out, "Run %s for project %s: %s\n", run.ID, run.ProjectID, status)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Documents\tWorkstreams\tTasks\tDependencies\tResources\tChecklists\tPhases\tCost")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t$%s\n",
		run.DocumentCount, run.WorkstreamCount, run.TaskCount, run.DependencyCount,
		run.ResourceCount, run.ChecklistCount, run.TimelinePhaseCount, run.Cost.StringFixed(4))
	w.Flush()

	if len(run.Stages) > 0 {
		fmt.Fprintln(out, "\nStages:")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, st := range run.Stages {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", st.Name, st.Status, st.Detail)
		}
		w.Flush()
	}
	printList(out, "Warnings", run.Warnings)
	printList(out, "Errors", run.Errors)
}

func printList(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(out, "  - %s\n", item)
	}
}

func runRuns(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.store.ListImportRuns(cmd.Context(), runsProject, runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No import runs")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tProject\tStarted\tResult\tTasks\tWarnings\tErrors\tCost")
	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t$%s\n",
			r.ID, r.ProjectID, r.StartedAt.Local().Format("2006-01-02 15:04"), result,
			r.TaskCount, len(r.Warnings), len(r.Errors), r.Cost.StringFixed(4))
	}
	return w.Flush()
}

func runTasks(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.store.ListTasks(cmd.Context(), taskstore.ListOptions{ProjectID: args[0]})
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No tasks in project %s\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Task\tKind\tStart\tDue\tAssignee\tHours\tDepends")
	for _, t := range taskTree(tasks) {
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			strings.Repeat("  ", t.HierarchyLevel), truncate(t.Title, 50), t.Category(),
			formatDate(t.StartDate), formatDate(t.DueDate), dash(t.Assignee),
			formatHours(t.EffortEstimateHours), len(t.DependsOn))
	}
	return w.Flush()
}

// taskTree orders tasks depth first, children after their parent in
// creation order. Tasks whose parent is not listed are treated as roots.
func taskTree(tasks []*domain.Task) []*domain.Task {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}
	children := make(map[string][]*domain.Task)
	var roots []*domain.Task
	for _, t := range tasks {
		if t.HasParent() && known[t.ParentTaskID] {
			children[t.ParentTaskID] = append(children[t.ParentTaskID], t)
			continue
		}
		roots = append(roots, t)
	}

	out := make([]*domain.Task, 0, len(tasks))
	var walk func(ts []*domain.Task)
	walk = func(ts []*domain.Task) {
		for _, t := range ts {
			out = append(out, t)
			walk(children[t.ID])
		}
	}
	walk(roots)
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatHours(h float64) string {
	if h == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", h)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
