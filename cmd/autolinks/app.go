package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Veraticus/autolinks/pkg/config"
	"github.com/Veraticus/autolinks/pkg/engine"
	"github.com/Veraticus/autolinks/pkg/logger"
	"github.com/Veraticus/autolinks/pkg/metrics"
	"github.com/Veraticus/autolinks/pkg/monitor"
	"github.com/Veraticus/autolinks/pkg/process"
	"github.com/Veraticus/autolinks/pkg/render"
	"github.com/Veraticus/autolinks/pkg/types"
	"github.com/Veraticus/autolinks/pkg/watch"
	"github.com/prometheus/client_golang/prometheus"
)

// idleFlush is how long a partial output line is held back in run mode.
const idleFlush = 50 * time.Millisecond

// Dependencies holds all the dependencies for the application
type Dependencies struct {
	Config   *config.Config
	Logger   logger.Logger
	Registry *prometheus.Registry
	Recorder *metrics.PrometheusRecorder
	Matcher  *engine.Matcher
	Renderer *render.Renderer
}

// NewDependencies creates all dependencies with the given configuration.
// Logs go to logOut.
func NewDependencies(cfg *config.Config, logOut io.Writer) (*Dependencies, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger.New(logOut, logger.Format(cfg.LogFormat), cfg.Debug),
		Registry: prometheus.NewRegistry(),
	}

	deps.Recorder = metrics.NewPrometheusRecorder(deps.Registry)

	deps.Matcher = engine.New(
		engine.WithTimeout(cfg.MatchTimeout),
		engine.WithLogger(deps.Logger),
		engine.WithRecorder(deps.Recorder),
	)

	deps.Renderer = render.New(deps.Matcher,
		render.WithLinkClass(cfg.Render.LinkClass),
		render.WithSanitize(cfg.Render.Sanitize),
		render.WithRecorder(deps.Recorder),
	)

	return deps, nil
}

// loadRules reads the rule list from the config file at path.
func loadRules(path string) ([]types.Rule, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg.Rules, nil
}

// Application wraps a command and turns its output into terminal hyperlinks
type Application struct {
	deps       *Dependencies
	linker     *monitor.Hyperlinker
	linkWriter *monitor.LinkWriter
	manager    *process.Manager
}

// NewApplication creates a new application writing the wrapped output to out
func NewApplication(deps *Dependencies, out io.Writer) *Application {
	linker := monitor.NewHyperlinker(deps.Matcher, deps.Config.Rules)
	lw := monitor.NewLinkWriter(out, linker.Render, idleFlush)
	return &Application{
		deps:       deps,
		linker:     linker,
		linkWriter: lw,
		manager:    process.NewManager(lw, deps.Logger),
	}
}

// Run starts the command and waits for it to exit. Rule changes in the
// config file apply to output written after the change.
func (a *Application) Run(command string, args []string) error {
	if err := a.manager.Start(command, args); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := a.watchRules(ctx)

	err := a.manager.Wait()
	cancel()
	<-stopped

	if cerr := a.linkWriter.Close(); err == nil {
		err = cerr
	}
	return err
}

// Rules returns the rules currently applied to the command's output.
func (a *Application) Rules() []types.Rule {
	return a.linker.Rules()
}

// watchRules reloads rules from the config file the application was
// configured from. The returned channel is closed once watching has stopped.
func (a *Application) watchRules(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	cfg := a.deps.Config
	if cfg.Path == "" {
		close(done)
		return done
	}

	rw, err := watch.NewRuleWatcher(watch.RuleOptions{
		ConfigPath: cfg.Path,
		LoadRules:  loadRules,
		Apply:      a.linker.SetRules,
		Debounce:   cfg.Watch.Debounce,
		Logger:     a.deps.Logger,
	})
	if err != nil {
		a.deps.Logger.Warn("rule reloading disabled", logger.KeyError, err)
		close(done)
		return done
	}

	go func() {
		defer close(done)
		if err := rw.Run(ctx); err != nil {
			a.deps.Logger.Warn("rule watcher stopped", logger.KeyError, err)
		}
	}()
	return done
}

// Stop gracefully stops the application
func (a *Application) Stop() error {
	return a.manager.Stop()
}

// ExitCode returns the exit code of the wrapped process
func (a *Application) ExitCode() int {
	return a.manager.ExitCode()
}
