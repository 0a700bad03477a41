package main

import (
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/project-tracker/internal/ai"
	"github.com/hochfrequenz/project-tracker/internal/config"
	"github.com/hochfrequenz/project-tracker/internal/notify"
	"github.com/hochfrequenz/project-tracker/internal/pipeline"
	"github.com/hochfrequenz/project-tracker/internal/resources"
	"github.com/hochfrequenz/project-tracker/internal/taskstore"
)

// app holds what every command needs
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	store    *taskstore.Store
	ai       *ai.Client
	notifier *notify.MultiNotifier
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithLocalFallback(configPath)
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.General.LogLevel, cfg.General.LogFormat)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg.General.DatabasePath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		notifier: newNotifier(cfg.Notifications),
	}
	switch {
	case cfg.AI.Enabled && cfg.AI.APIKey != "":
		a.ai = ai.New(aiConfig(cfg.AI), ai.WithLogger(log.WithField("component", "ai")))
	case cfg.AI.Enabled:
		log.Warn("AI is enabled but no API key is set; imports cannot detect workstreams")
	}
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func openStore(path string) (*taskstore.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}
	store, err := taskstore.New(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}
	return store, nil
}

func newLogger(level, format string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, errors.Wrap(err, "log level")
		}
		log.SetLevel(lvl)
	}

	switch format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
	return log, nil
}

func aiConfig(c config.AIConfig) ai.Config {
	return ai.Config{
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		MaxTokens:   int64(c.MaxTokens),
		Temperature: c.Temperature,
		MaxRetries:  c.MaxRetries,
		InputPrice:  decimal.NewFromFloat(c.InputPrice),
		OutputPrice: decimal.NewFromFloat(c.OutputPrice),
	}
}

func newNotifier(c config.NotificationsConfig) *notify.MultiNotifier {
	multi := notify.NewMultiNotifier()
	if c.Desktop {
		multi.Add(notify.NewDesktopNotifier(true))
	}
	if c.WebhookURL != "" {
		multi.Add(notify.NewWebhookNotifier(c.WebhookURL))
	}
	return multi
}

func capabilities(c config.PipelineConfig) pipeline.Capabilities {
	return pipeline.Capabilities{
		Timeline:                 c.EnableTimeline,
		Dependencies:             c.EnableDependencies,
		Resources:                c.EnableResources,
		Checklists:               c.EnableChecklists,
		UseReferenceDependencies: c.UseReferenceDependencies,
	}
}

// collaborators wires the AI client into every stage it can serve. Without
// a client only the effort parser is available.
func collaborators(client *ai.Client) pipeline.Collaborators {
	collab := pipeline.Collaborators{Resources: resources.Parser{}}
	if client != nil {
		collab.Detector = client
		collab.Timeline = client
		collab.Dependencies = client
		collab.Checklists = client
	}
	return collab
}

func (a *app) orchestrator() *pipeline.Orchestrator {
	return pipeline.New(a.store, collaborators(a.ai), pipeline.Options{
		MinWorkstreams:       a.cfg.Pipeline.MinWorkstreams,
		ChecklistParallelism: a.cfg.Pipeline.ChecklistParallelism,
		Capabilities:         capabilities(a.cfg.Pipeline),
		Notifier:             a.notifier,
		Logger:               a.log,
	})
}
