// Package app wires configuration, logging and the tracking sink for the
// stage binaries under cmd/.
package app

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/pricepipe/pricepipe/config"
	"github.com/pricepipe/pricepipe/pkg/errors"
	"github.com/pricepipe/pricepipe/pkg/log"
	"github.com/pricepipe/pricepipe/tracking"
)

// App holds the process-wide dependencies of one stage invocation
type App struct {
	Config  *config.Config
	Tracker *tracking.Tracker
	Logger  log.Logger
}

// New loads the configuration, installs the logger and opens the tracking store
func New(configPath string, logOutput io.Writer) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := log.SetupLogger(cfg.Logging.Level, cfg.Logging.Format, logOutput); err != nil {
		return nil, err
	}

	store, err := tracking.Open(cfg.Tracking.URI)
	if err != nil {
		return nil, err
	}
	opts := []tracking.Option{
		tracking.WithArtifactRoot(cfg.Tracking.ArtifactRoot),
		tracking.WithExperiment(cfg.Tracking.Experiment),
	}
	if cfg.Metrics.Textfile != "" {
		opts = append(opts, tracking.WithTextfile(cfg.Metrics.Textfile))
	}

	return &App{
		Config:  cfg,
		Tracker: tracking.New(store, opts...),
		Logger:  log.GetLoggerWithName("app"),
	}, nil
}

// Close releases the tracking store
func (a *App) Close() error {
	return a.Tracker.Close()
}

// StageFunc is the body of a stage, executed inside a tracking run
type StageFunc func(ctx context.Context, a *App, run *tracking.Run) error

// Main runs one stage and returns the process exit code. configPath may be
// empty; fn runs inside a tracking run that is always ended.
func Main(ctx context.Context, stage, configPath string, stderr io.Writer, fn StageFunc) int {
	a, err := New(configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", stage, err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Warn("Failed to close tracking store", "error", err.Error())
		}
	}()

	err = a.Tracker.WithRun(ctx, stage, func(ctx context.Context, run *tracking.Run) error {
		return fn(ctx, a, run)
	})
	if err != nil {
		a.Logger.Error("Stage failed", err, log.StageKey, stage)
		fmt.Fprintf(stderr, "%s: %v\n", stage, err)
		return 1
	}
	return 0
}

// Provided reports which flags were set on the command line
func Provided(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// ParseFlags parses args and maps -h to exit code 0 and other parse errors to 2
func ParseFlags(fs *flag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}
