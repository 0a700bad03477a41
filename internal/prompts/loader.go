package prompts

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/project-tracker/internal/domain"
)

// Template paths
const (
	WorkstreamsTemplate  = "import/workstreams.md"
	TimelineTemplate     = "import/timeline.md"
	DependenciesTemplate = "import/dependencies.md"
	ChecklistTemplate    = "import/checklist.md"
)

// Loader manages prompt templates with override support.
type Loader struct {
	overrideDirs []string // Directories to check for overrides (in priority order)
	cache        map[string]*template.Template
	metaCache    map[string]*TemplateMeta
	mu           sync.RWMutex
}

// TemplateMeta holds frontmatter metadata for a prompt template.
type TemplateMeta struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	System      string `yaml:"system"`
}

// Prompt is a rendered template ready to send
type Prompt struct {
	System string
	User   string
}

// NewLoader creates a loader with the given override directories.
// Directories are checked in order; first match wins.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
		metaCache:    make(map[string]*TemplateMeta),
	}
}

// DefaultLoader creates a loader with the user config override path
// ~/.config/project-tracker/prompts/ plus any extra directories.
func DefaultLoader(extraDirs ...string) *Loader {
	home, _ := os.UserHomeDir()
	dirs := append([]string{}, extraDirs...)
	dirs = append(dirs, filepath.Join(home, ".config", "project-tracker", "prompts"))
	return NewLoader(dirs...)
}

// loadContent loads raw content from override dirs or embedded FS.
func (l *Loader) loadContent(path string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		if data, err := os.ReadFile(filepath.Join(dir, path)); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, path)
}

// parseFrontmatter splits content into frontmatter and body.
func parseFrontmatter(content []byte) (*TemplateMeta, string, error) {
	str := string(content)
	if !strings.HasPrefix(str, "---\n") {
		return nil, str, nil
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return nil, str, nil // Malformed, treat as no frontmatter
	}

	frontmatter := str[4 : 4+end]
	body := str[4+end+5:]

	var meta TemplateMeta
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return nil, "", errors.Wrap(err, "parse frontmatter")
	}
	return &meta, body, nil
}

// LoadTemplate loads and parses a template by path (e.g., "import/checklist.md").
func (l *Loader) LoadTemplate(path string) (*template.Template, *TemplateMeta, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[path]; ok {
		meta := l.metaCache[path]
		l.mu.RUnlock()
		return tmpl, meta, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "load %s", path)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "parse %s", path)
	}

	tmpl, err := template.New(path).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "compile template %s", path)
	}

	l.mu.Lock()
	l.cache[path] = tmpl
	l.metaCache[path] = meta
	l.mu.Unlock()

	return tmpl, meta, nil
}

// Render loads and executes a template, returning the system text from its
// frontmatter together with the rendered body.
func (l *Loader) Render(path string, data any) (Prompt, error) {
	tmpl, meta, err := l.LoadTemplate(path)
	if err != nil {
		return Prompt{}, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Prompt{}, errors.Wrapf(err, "execute %s", path)
	}

	p := Prompt{User: buf.String()}
	if meta != nil {
		p.System = meta.System
	}
	return p, nil
}

// WorkstreamData holds template variables for workstream detection.
type WorkstreamData struct {
	Project        domain.ProjectContext
	Corpus         string
	MinWorkstreams int
}

// TimelineData holds template variables for timeline extraction.
type TimelineData struct {
	Project domain.ProjectContext
	Corpus  string
}

// DependencyData holds template variables for dependency mapping.
type DependencyData struct {
	Workstreams []domain.Workstream
}

// ChecklistData holds template variables for checklist generation.
type ChecklistData struct {
	Workstream domain.Workstream
	Corpus     string
}

// ClearCache clears the template cache.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*template.Template)
	l.metaCache = make(map[string]*TemplateMeta)
	l.mu.Unlock()
}
