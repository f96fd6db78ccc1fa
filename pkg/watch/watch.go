// Package watch re-renders a markdown file whenever it or the rule
// configuration changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/autolinks/pkg/logger"
	"github.com/Veraticus/autolinks/pkg/types"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 300 * time.Millisecond

// Renderer renders text in a format with a rule list.
type Renderer interface {
	Render(format, text string, rules []types.Rule) (string, []types.Match, error)
}

// RuleLoader reads the rule list from a configuration file.
type RuleLoader func(path string) ([]types.Rule, error)

// Result describes one render pass.
type Result struct {
	Matches int
	Err     error
}

// Options configures a Watcher.
type Options struct {
	// Input is the markdown file to render.
	Input string
	// Output receives the rendered text. When empty, Out is used.
	Output string
	Out    io.Writer
	// ConfigPath is watched for rule changes when LoadRules is set.
	ConfigPath string
	LoadRules  RuleLoader

	Format   string
	Rules    []types.Rule
	Debounce time.Duration
	Renderer Renderer
	Logger   logger.Logger
	// OnRender is called after every render pass.
	OnRender func(Result)
}

// Watcher renders Input once and again after every debounced change.
type Watcher struct {
	opts    Options
	input   string
	config  string
	rules   []types.Rule
	logger  logger.Logger
	watcher *fsnotify.Watcher
}

// New creates a Watcher. Call Run to start it.
func New(opts Options) (*Watcher, error) {
	if opts.Input == "" {
		return nil, errors.New("input path is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if opts.Output == "" && opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}

	input, err := filepath.Abs(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve input path: %w", err)
	}

	if opts.Output != "" {
		if out, err := filepath.Abs(opts.Output); err == nil && out == input {
			return nil, errors.New("output must differ from input")
		}
	}

	var cfgPath string
	if opts.ConfigPath != "" && opts.LoadRules != nil {
		if cfgPath, err = filepath.Abs(opts.ConfigPath); err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		opts:    opts,
		input:   input,
		config:  cfgPath,
		rules:   opts.Rules,
		logger:  opts.Logger.With(logger.KeyPath, input),
		watcher: watcher,
	}, nil
}

// Run renders the input and keeps re-rendering until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	// Watch directories rather than files so editors that replace the file
	// on save are still seen.
	dirs := map[string]bool{filepath.Dir(w.input): true}
	if w.config != "" {
		dirs[filepath.Dir(w.config)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}

	w.logger.Info("watching for changes")
	w.render()

	paths := map[string]bool{w.input: true}
	if w.config != "" {
		paths[w.config] = true
	}
	return debounceLoop(ctx, w.watcher, w.opts.Debounce, w.logger, paths, func(changed map[string]bool) {
		if changed[w.config] {
			w.reloadRules()
		}
		w.render()
	})
}

// debounceLoop calls flush with the paths that changed once none of the
// watched paths has changed for delay. It returns when ctx is done or the
// watcher is closed.
func debounceLoop(ctx context.Context, fsw *fsnotify.Watcher, delay time.Duration, log logger.Logger, paths map[string]bool, flush func(changed map[string]bool)) error {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		changed = map[string]bool{}
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !paths[event.Name] {
				continue
			}
			changed[event.Name] = true
			if timer == nil {
				timer = time.NewTimer(delay)
			} else {
				timer.Reset(delay)
			}
			fire = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", logger.KeyError, err)

		case <-fire:
			fire = nil
			flush(changed)
			changed = map[string]bool{}
		}
	}
}

// reloadRules keeps the previous rules when the configuration cannot be read.
func (w *Watcher) reloadRules() {
	rules, err := w.opts.LoadRules(w.config)
	if err != nil {
		w.logger.Error("failed to reload rules", logger.KeyError, err)
		return
	}
	w.rules = rules
	w.logger.Info("rules reloaded", logger.KeyRule, len(rules))
}

func (w *Watcher) render() {
	res := w.renderOnce()
	if res.Err != nil {
		w.logger.Error("render failed", logger.KeyError, res.Err)
	} else {
		w.logger.Debug("rendered", logger.KeyMatches, res.Matches)
	}
	if w.opts.OnRender != nil {
		w.opts.OnRender(res)
	}
}

func (w *Watcher) renderOnce() Result {
	// #nosec G304 - the input path is chosen by the user
	data, err := os.ReadFile(w.input)
	if err != nil {
		return Result{Err: fmt.Errorf("failed to read input: %w", err)}
	}

	out, matches, err := w.opts.Renderer.Render(w.opts.Format, string(data), w.rules)
	if err != nil {
		return Result{Err: err}
	}

	if err := w.write(out); err != nil {
		return Result{Err: err}
	}
	return Result{Matches: len(matches)}
}

// write replaces the output file atomically, or writes to Out.
func (w *Watcher) write(out string) error {
	if w.opts.Output == "" {
		_, err := io.WriteString(w.opts.Out, out)
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.opts.Output), ".autolinks-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(out); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.opts.Output); err != nil {
		return fmt.Errorf("failed to replace output: %w", err)
	}
	return nil
}
