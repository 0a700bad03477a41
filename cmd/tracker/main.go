package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "tracker",
		Short: "Project tracker - turn planning documents into a task structure",
		Long: `Project tracker imports planning documents such as briefs, timelines and
effort estimates, detects the workstreams they describe, and creates a
scheduled task hierarchy with dependencies, resource assignments and
checklists.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: nearest .project-tracker.toml, then ~/.config/project-tracker/config.toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
