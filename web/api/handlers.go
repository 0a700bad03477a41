package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"

	"github.com/hochfrequenz/project-tracker/internal/documents"
	"github.com/hochfrequenz/project-tracker/internal/domain"
	"github.com/hochfrequenz/project-tracker/internal/pipeline"
	"github.com/hochfrequenz/project-tracker/internal/taskstore"
)

const (
	dateLayout     = "2006-01-02"
	maxImportBytes = 32 << 20
)

// TaskResponse is the API response for a task
type TaskResponse struct {
	ID             string              `json:"id"`
	ProjectID      string              `json:"project_id"`
	Title          string              `json:"title"`
	Description    string              `json:"description,omitempty"`
	ParentTaskID   string              `json:"parent_task_id,omitempty"`
	HierarchyLevel int                 `json:"hierarchy_level"`
	IsEpic         bool                `json:"is_epic"`
	Category       domain.TaskCategory `json:"category"`
	StartDate      string              `json:"start_date,omitempty"`
	DueDate        string              `json:"due_date,omitempty"`
	DependsOn      []string            `json:"depends_on,omitempty"`
	Assignee       string              `json:"assignee,omitempty"`
	EffortHours    float64             `json:"effort_hours,omitempty"`
	Confidence     float64             `json:"confidence,omitempty"`
	Checklists     []ChecklistResponse `json:"checklists,omitempty"`
}

// ChecklistResponse is the API response for a checklist
type ChecklistResponse struct {
	Title string                 `json:"title"`
	Items []domain.ChecklistItem `json:"items"`
}

// RunResponse is the API response for an import run
type RunResponse struct {
	ID             string               `json:"id"`
	ProjectID      string               `json:"project_id"`
	Success        bool                 `json:"success"`
	Documents      int                  `json:"documents"`
	Workstreams    int                  `json:"workstreams"`
	Tasks          int                  `json:"tasks"`
	Dependencies   int                  `json:"dependencies"`
	Resources      int                  `json:"resources"`
	Checklists     int                  `json:"checklists"`
	TimelinePhases int                  `json:"timeline_phases"`
	CostUSD        string               `json:"cost_usd"`
	Errors         []string             `json:"errors,omitempty"`
	Warnings       []string             `json:"warnings,omitempty"`
	Stages         []domain.StageResult `json:"stages,omitempty"`
	StartedAt      string               `json:"started_at"`
	Duration       string               `json:"duration"`
}

// ImportRequest is the body of an import
type ImportRequest struct {
	ProjectName string           `json:"project_name"`
	StartDate   string           `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Documents   []DocumentUpload `json:"documents" validate:"required,min=1,dive"`
}

// DocumentUpload is one uploaded document. Binary files such as
// spreadsheets are sent in ContentBase64.
type DocumentUpload struct {
	Name          string `json:"name" validate:"required"`
	Content       string `json:"content,omitempty"`
	ContentBase64 string `json:"content_base64,omitempty" validate:"omitempty,base64"`
}

// ImportResponse is returned for an import that did not complete
type ImportResponse struct {
	Error string       `json:"error"`
	Run   *RunResponse `json:"run,omitempty"`
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:             t.ID,
		ProjectID:      t.ProjectID,
		Title:          t.Title,
		Description:    t.Description,
		ParentTaskID:   t.ParentTaskID,
		HierarchyLevel: t.HierarchyLevel,
		IsEpic:         t.IsEpic,
		Category:       t.Category(),
		StartDate:      formatDate(t.StartDate),
		DueDate:        formatDate(t.DueDate),
		DependsOn:      t.DependsOn,
		Assignee:       t.Assignee,
		EffortHours:    t.EffortEstimateHours,
		Confidence:     t.EstimateConfidence,
	}
}

func runToResponse(r *domain.ImportRun) RunResponse {
	return RunResponse{
		ID:             r.ID,
		ProjectID:      r.ProjectID,
		Success:        r.Success,
		Documents:      r.DocumentCount,
		Workstreams:    r.WorkstreamCount,
		Tasks:          r.TaskCount,
		Dependencies:   r.DependencyCount,
		Resources:      r.ResourceCount,
		Checklists:     r.ChecklistCount,
		TimelinePhases: r.TimelinePhaseCount,
		CostUSD:        r.Cost.StringFixed(4),
		Errors:         r.Errors,
		Warnings:       r.Warnings,
		Stages:         r.Stages,
		StartedAt:      r.StartedAt.UTC().Format(time.RFC3339),
		Duration:       r.Duration.Round(time.Millisecond).String(),
	}
}

func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.store.ListImportRuns(r.Context(), r.URL.Query().Get("project"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]RunResponse, len(runs))
	for i, run := range runs {
		resp[i] = runToResponse(run)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getRunHandler(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetImportRun(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, taskstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run))
}

func (s *Server) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context(), taskstore.ListOptions{
		ProjectID: mux.Vars(r)["project"],
		ParentID:  r.URL.Query().Get("parent"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		resp[i] = taskToResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getTaskHandler(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, taskstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	checklists, err := s.store.ListChecklists(r.Context(), task.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := taskToResponse(task)
	for _, cl := range checklists {
		resp.Checklists = append(resp.Checklists, ChecklistResponse{Title: cl.Title, Items: cl.Items})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) importHandler(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		writeError(w, http.StatusServiceUnavailable, "imports are not enabled")
		return
	}

	var body ImportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImportBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := pipeline.Request{ProjectID: mux.Vars(r)["project"], ProjectName: body.ProjectName}
	if body.StartDate != "" {
		// validated above
		req.StartDate, _ = time.Parse(dateLayout, body.StartDate)
	}

	for _, up := range body.Documents {
		data := []byte(up.Content)
		if up.ContentBase64 != "" {
			decoded, err := base64.StdEncoding.DecodeString(up.ContentBase64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "document "+up.Name+": invalid base64")
				return
			}
			data = decoded
		}
		doc, err := documents.Load(up.Name, data)
		if errors.Is(err, documents.ErrUnsupported) {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Documents = append(req.Documents, doc)
	}

	run, err := s.importer.Run(r.Context(), req)
	if err != nil {
		resp := ImportResponse{Error: err.Error()}
		if run != nil {
			rr := runToResponse(run)
			resp.Run = &rr
		}
		code := http.StatusInternalServerError
		var fatal *pipeline.FatalError
		if errors.As(err, &fatal) {
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, resp)
		return
	}
	writeJSON(w, http.StatusCreated, runToResponse(run))
}
