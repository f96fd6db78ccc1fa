package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Veraticus/autolinks/pkg/logger"
	"github.com/Veraticus/autolinks/pkg/types"
	"github.com/fsnotify/fsnotify"
)

// RuleOptions configures a RuleWatcher.
type RuleOptions struct {
	ConfigPath string
	LoadRules  RuleLoader
	// Apply receives every successfully reloaded rule list.
	Apply    func([]types.Rule)
	Debounce time.Duration
	Logger   logger.Logger
}

// RuleWatcher reloads the rule list whenever the configuration file changes.
// A file that fails to load leaves the current rules in place.
type RuleWatcher struct {
	opts    RuleOptions
	config  string
	logger  logger.Logger
	watcher *fsnotify.Watcher
}

// NewRuleWatcher starts watching the configuration file's directory. Changes
// are only delivered once Run is called.
func NewRuleWatcher(opts RuleOptions) (*RuleWatcher, error) {
	if opts.ConfigPath == "" {
		return nil, errors.New("config path is required")
	}
	if opts.LoadRules == nil || opts.Apply == nil {
		return nil, errors.New("rule loader and apply func are required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}

	cfgPath, err := filepath.Abs(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(cfgPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(cfgPath), err)
	}

	return &RuleWatcher{
		opts:    opts,
		config:  cfgPath,
		logger:  opts.Logger.With(logger.KeyPath, cfgPath),
		watcher: watcher,
	}, nil
}

// Run delivers reloaded rules until ctx is cancelled.
func (w *RuleWatcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	paths := map[string]bool{w.config: true}
	return debounceLoop(ctx, w.watcher, w.opts.Debounce, w.logger, paths, func(map[string]bool) {
		rules, err := w.opts.LoadRules(w.config)
		if err != nil {
			w.logger.Error("failed to reload rules", logger.KeyError, err)
			return
		}
		w.opts.Apply(rules)
		w.logger.Info("rules reloaded", logger.KeyRule, len(rules))
	})
}
