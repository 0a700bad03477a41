package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/project-tracker/internal/documents"
	"github.com/hochfrequenz/project-tracker/internal/domain"
	"github.com/hochfrequenz/project-tracker/internal/pipeline"
)

// Importer runs one import
type Importer interface {
	Run(ctx context.Context, req pipeline.Request) (*domain.ImportRun, error)
}

// Inbox imports the documents of one directory into one project. Each file
// name is imported at most once per process.
type Inbox struct {
	dir       string
	projectID string
	importer  Importer
	log       logrus.FieldLogger

	imported map[string]bool
	seenMu   sync.Mutex

	// runMu keeps watcher batches and sweeps from importing concurrently
	runMu sync.Mutex
}

// New creates an Inbox
func New(dir, projectID string, importer Importer, log logrus.FieldLogger) *Inbox {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Inbox{
		dir:       dir,
		projectID: projectID,
		importer:  importer,
		log:       log.WithFields(logrus.Fields{"inbox": dir, "project_id": projectID}),
		imported:  make(map[string]bool),
	}
}

// ImportFiles loads the given files and imports the ones not imported yet
// as a single run. It returns nil without running when nothing is new.
func (in *Inbox) ImportFiles(ctx context.Context, paths []string) (*domain.ImportRun, error) {
	in.runMu.Lock()
	defer in.runMu.Unlock()

	var docs []*domain.Document
	var names []string
	for _, p := range paths {
		name := filepath.Base(p)
		if in.wasImported(name) {
			continue
		}
		doc, err := documents.LoadFile(p)
		if err != nil {
			if errors.Is(err, documents.ErrUnsupported) {
				in.log.WithField("file", name).Warn("Skipping unsupported document")
				in.markImported(name)
				continue
			}
			in.log.WithError(err).WithField("file", name).Warn("Could not read document")
			continue
		}
		docs = append(docs, doc)
		names = append(names, name)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	in.log.WithField("files", names).Info("Importing documents")
	run, err := in.importer.Run(ctx, pipeline.Request{ProjectID: in.projectID, Documents: docs})

	// Failed runs are recorded too; retrying the same files would fail again
	for _, name := range names {
		in.markImported(name)
	}
	return run, err
}

// Sweep imports every candidate file in the directory not imported yet
func (in *Inbox) Sweep(ctx context.Context) (*domain.ImportRun, error) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read inbox %s", in.dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsCandidate(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(in.dir, e.Name()))
	}
	sort.Strings(paths)
	return in.ImportFiles(ctx, paths)
}

// Imported returns the names imported so far in sorted order
func (in *Inbox) Imported() []string {
	in.seenMu.Lock()
	defer in.seenMu.Unlock()
	names := make([]string, 0, len(in.imported))
	for n := range in.imported {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (in *Inbox) wasImported(name string) bool {
	in.seenMu.Lock()
	defer in.seenMu.Unlock()
	return in.imported[name]
}

func (in *Inbox) markImported(name string) {
	in.seenMu.Lock()
	defer in.seenMu.Unlock()
	in.imported[name] = true
}
