package ai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/hochfrequenz/project-tracker/internal/domain"
	"github.com/hochfrequenz/project-tracker/internal/prompts"
)

// DefaultMinWorkstreams is the number of workstreams the detection prompt
// asks for.
const DefaultMinWorkstreams = 3

// Detect asks the model to split the corpus into workstreams. Its cost is
// only visible through Usage.
func (c *Client) Detect(ctx context.Context, corpus string, project domain.ProjectContext) ([]*domain.Workstream, error) {
	var resp struct {
		Workstreams []*domain.Workstream `json:"workstreams"`
	}
	data := prompts.WorkstreamData{Project: project, Corpus: corpus, MinWorkstreams: DefaultMinWorkstreams}
	if _, err := c.complete(ctx, prompts.WorkstreamsTemplate, data, &resp); err != nil {
		return nil, errors.Wrap(err, "detect workstreams")
	}
	return resp.Workstreams, nil
}

type phaseJSON struct {
	Name       string   `json:"name"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Milestones []string `json:"milestones"`
}

// ExtractTimeline asks the model for the phases and milestones the
// documents describe. Dates that do not parse are left empty.
func (c *Client) ExtractTimeline(ctx context.Context, corpus string, project domain.ProjectContext) ([]domain.TimelinePhase, decimal.Decimal, error) {
	var resp struct {
		Phases []phaseJSON `json:"phases"`
	}
	cost, err := c.complete(ctx, prompts.TimelineTemplate, prompts.TimelineData{Project: project, Corpus: corpus}, &resp)
	if err != nil {
		return nil, cost, errors.Wrap(err, "extract timeline")
	}

	phases := make([]domain.TimelinePhase, 0, len(resp.Phases))
	for _, p := range resp.Phases {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		phases = append(phases, domain.TimelinePhase{
			ProjectID:  project.ProjectID,
			Name:       name,
			StartDate:  parseDate(p.StartDate),
			EndDate:    parseDate(p.EndDate),
			Milestones: p.Milestones,
		})
	}
	return phases, cost, nil
}

// Analyze asks the model which workstreams must finish before others
func (c *Client) Analyze(ctx context.Context, workstreams []*domain.Workstream, _ []*domain.Task) ([]domain.DependencyProposal, decimal.Decimal, error) {
	list := make([]domain.Workstream, 0, len(workstreams))
	for _, ws := range workstreams {
		list = append(list, *ws)
	}

	var resp struct {
		Dependencies []domain.DependencyProposal `json:"dependencies"`
	}
	cost, err := c.complete(ctx, prompts.DependenciesTemplate, prompts.DependencyData{Workstreams: list}, &resp)
	if err != nil {
		return nil, cost, errors.Wrap(err, "analyze dependencies")
	}
	return resp.Dependencies, cost, nil
}

// checklistItemJSON accepts both {"text": ..., "required": ...} objects
// and bare strings.
type checklistItemJSON domain.ChecklistItem

func (i *checklistItemJSON) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*i = checklistItemJSON{Text: s, Required: true}
		return nil
	}
	var item domain.ChecklistItem
	if err := json.Unmarshal(b, &item); err != nil {
		return err
	}
	*i = checklistItemJSON(item)
	return nil
}

// GenerateChecklist asks the model for an acceptance checklist for one
// workstream.
func (c *Client) GenerateChecklist(ctx context.Context, ws *domain.Workstream, corpus string) (*domain.Checklist, decimal.Decimal, error) {
	var resp struct {
		Title string              `json:"title"`
		Items []checklistItemJSON `json:"items"`
	}
	cost, err := c.complete(ctx, prompts.ChecklistTemplate, prompts.ChecklistData{Workstream: *ws, Corpus: corpus}, &resp)
	if err != nil {
		return nil, cost, errors.Wrapf(err, "generate checklist for %q", ws.Name)
	}
	if len(resp.Items) == 0 {
		return nil, cost, errors.Errorf("checklist for %q has no items", ws.Name)
	}

	cl := &domain.Checklist{
		TaskID:         ws.IssueID,
		WorkstreamName: ws.Key(),
		Title:          strings.TrimSpace(resp.Title),
	}
	if cl.Title == "" {
		cl.Title = ws.Key() + " checklist"
	}
	for _, item := range resp.Items {
		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		cl.Items = append(cl.Items, domain.ChecklistItem(item))
	}
	return cl, cost, nil
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
