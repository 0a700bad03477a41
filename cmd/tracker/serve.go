package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/project-tracker/internal/inbox"
	"github.com/hochfrequenz/project-tracker/web/api"
)

var (
	servePort    int
	serveWatch   bool
	watchDir     string
	watchProject string
	watchCron    string
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "also import documents dropped into the inbox")
	rootCmd.AddCommand(serveCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Import documents dropped into the inbox directory",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "inbox directory (default from config)")
	watchCmd.Flags().StringVar(&watchProject, "project", "", "project ID (default from config)")
	watchCmd.Flags().StringVar(&watchCron, "cron", "", "also sweep the inbox on this cron schedule")
	rootCmd.AddCommand(watchCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := a.cfg.Web.Port
	if servePort != 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", a.cfg.Web.Host, port)

	orch := a.orchestrator()
	srv := api.NewServer(a.store, orch, addr, a.log.WithField("component", "api"))
	a.notifier.Add(srv)

	if serveWatch {
		in := inbox.New(a.cfg.Inbox.Dir, a.cfg.Inbox.ProjectID, orch, a.log)
		stopInbox, err := startInbox(ctx, a, in, a.cfg.Inbox.Dir, a.cfg.Inbox.Cron)
		if err != nil {
			return err
		}
		defer stopInbox()
	}

	return srv.Start(ctx)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.cfg.Inbox.Dir
	if watchDir != "" {
		dir = watchDir
	}
	project := a.cfg.Inbox.ProjectID
	if watchProject != "" {
		project = watchProject
	}
	cronExpr := a.cfg.Inbox.Cron
	if watchCron != "" {
		cronExpr = watchCron
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := inbox.New(dir, project, a.orchestrator(), a.log)
	stopInbox, err := startInbox(ctx, a, in, dir, cronExpr)
	if err != nil {
		return err
	}
	defer stopInbox()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for project %s (Ctrl+C to stop)\n", dir, project)
	<-ctx.Done()
	return nil
}

// startInbox sweeps dir once, then imports files as they arrive and, when
// cronExpr is set, on every scheduled sweep. The returned function stops
// everything started here.
func startInbox(ctx context.Context, a *app, in *inbox.Inbox, dir, cronExpr string) (func(), error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create inbox")
	}
	log := a.log.WithField("inbox", dir)

	if _, err := in.Sweep(ctx); err != nil {
		log.WithError(err).Warn("Initial inbox sweep failed")
	}

	watcher, err := inbox.NewWatcher(dir, func(paths []string) {
		if _, err := in.ImportFiles(ctx, paths); err != nil {
			log.WithError(err).Warn("Inbox import failed")
		}
	}, log)
	if err != nil {
		return nil, errors.Wrap(err, "watch inbox")
	}
	watcher.SetDebounce(a.cfg.Inbox.DebounceDuration())
	watcher.Start(ctx)

	var sched *inbox.Schedule
	if cronExpr != "" {
		sched, err = inbox.NewSchedule(cronExpr, func() {
			if _, err := in.Sweep(ctx); err != nil {
				log.WithError(err).Warn("Scheduled inbox sweep failed")
			}
		})
		if err != nil {
			watcher.Stop()
			return nil, err
		}
		sched.Start()
		log.WithField("next", sched.Next()).Info("Inbox sweep scheduled")
	}

	return func() {
		watcher.Stop()
		if sched != nil {
			sched.Stop()
		}
	}, nil
}
