package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tsawler/epubkit/config"
	"github.com/tsawler/epubkit/internal/logger"
	"github.com/tsawler/epubkit/internal/output"
	"github.com/tsawler/epubkit/pipeline"
	"github.com/tsawler/epubkit/profile"
	"github.com/tsawler/epubkit/version"
)

var (
	cfgFile      string
	workDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "epubkit",
	Short: "Extract EPUB volumes into an editable workspace and rebuild them",
	Long: `epubkit takes light-novel EPUB containers apart and puts them back together.

extract reads a container into a volume workspace:
  - chapters as markdown with inline ruby markers
  - normalized cover, color plate and illustration images
  - a manifest recording metadata, assets and pipeline state
  - a review report of everything extraction was unsure about

rebuild assembles a valid EPUB from the workspace, using translated
chapter files where they exist.`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./epubkit.yaml or ~/.epubkit/epubkit.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&workDir, "workdir", "", "directory holding volume workspaces (overrides config)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)",
	)

	rootCmd.AddCommand(extractCmd, rebuildCmd, namesCmd, profilesCmd, configCmd, versionCmd)
}

// app is the state shared by commands that touch volumes.
type app struct {
	mgr      *config.Manager
	cfg      *config.Config
	log      *slog.Logger
	profiles *profile.Store
	pipe     *pipeline.Pipeline
	format   output.Format
}

// setup loads configuration and applies the global flags.
func setup(cmd *cobra.Command) (*app, error) {
	format, err := output.Parse(outputFormat)
	if err != nil {
		return nil, err
	}

	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("workdir") {
		if err := mgr.Set("workdir", workDir); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("log-level") {
		if err := mgr.Set("log.level", logLevel); err != nil {
			return nil, err
		}
	}
	cfg := mgr.Get()

	log, err := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if f := mgr.File(); f != "" {
		log.Debug("config loaded", "file", f)
	}

	store, err := profile.Load(cfg.ProfilesDir, log)
	if err != nil {
		return nil, fmt.Errorf("loading profiles: %w", err)
	}
	return &app{mgr: mgr, cfg: cfg, log: log, profiles: store, format: format}, nil
}

// pipeline builds the pipeline on first use.
func (a *app) pipeline() (*pipeline.Pipeline, error) {
	if a.pipe != nil {
		return a.pipe, nil
	}
	pc, err := a.cfg.PipelineConfig(a.profiles, a.log)
	if err != nil {
		return nil, err
	}
	if a.pipe, err = pipeline.New(pc); err != nil {
		return nil, err
	}
	return a.pipe, nil
}

func (a *app) print(cmd *cobra.Command, data any) error {
	return output.Write(cmd.OutOrStdout(), a.format, data)
}

// exitCode maps an error to the process exit status. A run stopped by a
// signal exits 130; every other error is fatal.
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
