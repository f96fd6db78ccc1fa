package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Veraticus/autolinks/pkg/config"
	"github.com/Veraticus/autolinks/pkg/pattern"
	"github.com/Veraticus/autolinks/pkg/server"
	"github.com/Veraticus/autolinks/pkg/skipzone"
	"github.com/Veraticus/autolinks/pkg/types"
	"github.com/Veraticus/autolinks/pkg/watch"
	flag "github.com/spf13/pflag"
)

// command is a single CLI subcommand. run returns the exit code to use when
// it succeeds or when the error does not imply one.
type command struct {
	summary string
	run     func(c *cli, args []string) (int, error)
}

var commands = map[string]command{
	"links":    {"Print the links found in a file as JSON", runLinks},
	"zones":    {"Print the skip zones of a file as JSON", runZones},
	"render":   {"Render a file with links applied", runRender},
	"validate": {"Check rule patterns", runValidate},
	"rules":    {"Import or export rules (rules import|export)", runRules},
	"watch":    {"Re-render a file whenever it or the config changes", runWatch},
	"serve":    {"Run the HTTP API", runServe},
	"run":      {"Run a command and hyperlink its terminal output", runWrapped},
}

// errNoRules is returned when an import file holds no usable rule.
var errNoRules = errors.New("no valid rules found in file")

var commandOrder = []string{"links", "zones", "render", "validate", "rules", "watch", "serve", "run"}

// flagSet creates a subcommand flag set. Parse errors are reported by run.
func (c *cli) flagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: autolinks %s [OPTIONS] %s\n", name, args)
		if usage := fs.FlagUsages(); usage != "" {
			fmt.Fprintln(c.stderr)
			fmt.Fprintln(c.stderr, "Options:")
			fmt.Fprint(c.stderr, usage)
		}
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

// readInput reads the named file, or stdin when the name is "-" or missing.
func (c *cli) readInput(args []string) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("%w: expected at most one input file, got %d", errUsage, len(args))
	}
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runLinks(c *cli, args []string) (int, error) {
	fs := c.flagSet("links", "[FILE]")
	all := fs.Bool("all", false, "Include matches inside skip zones")
	if err := parse(fs, args); err != nil {
		return exitUsage, err
	}

	text, err := c.readInput(fs.Args())
	if err != nil {
		return exitFailure, err
	}
	deps, err := c.dependencies()
	if err != nil {
		return exitFailure, err
	}

	var matches []types.Match
	if *all {
		matches = deps.Matcher.FindAutoLinks(text, deps.Config.Rules)
	} else {
		matches = deps.Renderer.Linkify(text, deps.Config.Rules)
	}
	if matches == nil {
		matches = []types.Match{}
	}
	return exitOK, writeJSON(c.stdout, matches)
}

func runZones(c *cli, args []string) (int, error) {
	fs := c.flagSet("zones", "[FILE]")
	kinds := fs.Bool("kinds", false, "Print every detected construct with its kind instead of merged ranges")
	if err := parse(fs, args); err != nil {
		return exitUsage, err
	}

	text, err := c.readInput(fs.Args())
	if err != nil {
		return exitFailure, err
	}

	if *kinds {
		zones := skipzone.Detect(text)
		if zones == nil {
			zones = []skipzone.Zone{}
		}
		return exitOK, writeJSON(c.stdout, zones)
	}
	zones := skipzone.FindSkipZones(text)
	if zones == nil {
		zones = []types.TextRange{}
	}
	return exitOK, writeJSON(c.stdout, zones)
}

func runRender(c *cli, args []string) (int, error) {
	fs := c.flagSet("render", "[FILE]")
	format := fs.StringP("format", "f", "", "Output format: markdown, html or terminal (default from config)")
	output := fs.StringP("output", "o", "", "Write to this file instead of stdout")
	sanitize := fs.Bool("sanitize", false, "Sanitize HTML output")
	if err := parse(fs, args); err != nil {
		return exitUsage, err
	}

	text, err := c.readInput(fs.Args())
	if err != nil {
		return exitFailure, err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return exitFailure, fmt.Errorf("loading config: %w", err)
	}
	if fs.Changed("sanitize") {
		cfg.Render.Sanitize = *sanitize
	}
	if *format == "" {
		*format = cfg.Render.Format
	}
	deps, err := NewDependencies(cfg, c.stderr)
	if err != nil {
		return exitFailure, err
	}

	out, _, err := deps.Renderer.Render(*format, text, cfg.Rules)
	if err != nil {
		return exitUsage, fmt.Errorf("%w: %v", errUsage, err)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(out), 0o644); err != nil {
			return exitFailure, fmt.Errorf("failed to write output: %w", err)
		}
		return exitOK, nil
	}
	_, err = io.WriteString(c.stdout, out)
	return exitOK, err
}

// validation is one line of validate output.
type validation struct {
	Pattern string `json:"pattern"`
	types.ValidationResult
}

func runValidate(c *cli, args []string) (int, error) {
	fs := c.flagSet("validate", "[PATTERN...]")
	asJSON := fs.Bool("json", false, "Print results as JSON")
	if err := parse(fs, args); err != nil {
		return exitUsage, err
	}

	patterns := fs.Args()
	if len(patterns) == 0 {
		cfg, err := c.loadConfig()
		if err != nil {
			return exitFailure, fmt.Errorf("loading config: %w", err)
		}
		for _, rule := range cfg.Rules {
			patterns = append(patterns, rule.Pattern)
		}
	}

	code := exitOK
	results := make([]validation, 0, len(patterns))
	for _, p := range patterns {
		res := pattern.Validate(p)
		if !res.Valid {
			code = exitFailure
		}
		results = append(results, validation{Pattern: p, ValidationResult: res})
	}

	if *asJSON {
		return code, writeJSON(c.stdout, results)
	}
	for _, r := range results {
		if r.Valid {
			fmt.Fprintf(c.stdout, "ok\t%s\n", r.Pattern)
		} else {
			fmt.Fprintf(c.stdout, "invalid\t%s\t%s\n", r.Pattern, r.Error)
		}
	}
	return code, nil
}

func runRules(c *cli, args []string) (int, error) {
	if len(args) == 0 {
		return exitUsage, fmt.Errorf("%w: rules requires import or export", errUsage)
	}
	switch args[0] {
	case "import":
		return runRulesImport(c, args[1:])
	case "export":
		return runRulesExport(c, args[1:])
	default:
		return exitUsage, fmt.Errorf("%w: unknown rules command %q", errUsage, args[0])
	}
}

func runRulesImport(c *cli, args []string) (int, error) {
	fs := c.flagSet("rules import", "FILE|-")
	replace := fs.Bool("replace", false, "Replace the configured rules instead of appending")
	if err := parse(fs, args); err != nil {
		return exitUsage, err
	}
	if fs.NArg() != 1 {
		return exitUsage, fmt.Errorf("%w: rules import takes one file", errUsage)
	}

	var r io.Reader = c.stdin
	if name := fs.Arg(0); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return exitFailure, fmt.Errorf("failed to open rules: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	imported, err := config.ImportRules(r)
	if err != nil {
		return exitFailure, err
	}
	if len(imported) == 0 {
		return exitFailure, errNoRules
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return exitFailure, fmt.Errorf("loading config: %w", err)
	}
	if *replace {
		cfg.Rules = imported
	} else {
		cfg.Rules = append(cfg.Rules, imported...)
	}

	path := c.savePath(cfg)
	if err := config.SaveToFile(cfg, path); err != nil {
		return exitFailure, err
	}
	fmt.Fprintf(c.stdout, "Imported %d rules into %s\n", len(imported), path)
	return exitOK, nil
}

func runRulesExport(c *cli, args []string) (int, error) {
	fs := c.flagSet("rules export", "")
	output := fs.StringP("output", "o", "", "Write to this file instead of stdout")
	if err := parse(fs, args); err != nil {
		return exitUsage, err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return exitFailure, fmt.Errorf("loading config: %w", err)
	}

	if *output == "" {
		return exitOK, config.ExportRules(c.stdout, cfg.Rules)
	}
	f, err := os.Create(*output)
	if err != nil {
		return exitFailure, fmt.Errorf("failed to create output: %w", err)
	}
	if err := config.ExportRules(f, cfg.Rules); err != nil {
		_ = f.Close()
		return exitFailure, err
	}
	return exitOK, f.Close()
}

func runWatch(c *cli, args []string) (int, error) {
	fs := c.flagSet("watch", "FILE")
	output := fs.StringP("output", "o", "", "Write to this file instead of stdout")
	format := fs.StringP("format", "f", "", "Output format (default from config)")
	debounce := fs.Duration("debounce", 0, "Quiet period before re-rendering (default from config)")
	if err := parse(fs, args); err != nil {
		return exitUsage, err
	}
	if fs.NArg() != 1 {
		return exitUsage, fmt.Errorf("%w: watch takes one file", errUsage)
	}

	deps, err := c.dependencies()
	if err != nil {
		return exitFailure, err
	}
	cfg := deps.Config
	if *format == "" {
		*format = cfg.Render.Format
	}
	if *debounce == 0 {
		*debounce = cfg.Watch.Debounce
	}

	w, err := watch.New(watch.Options{
		Input:      fs.Arg(0),
		Output:     *output,
		Out:        c.stdout,
		ConfigPath: watchedConfig(c, cfg),
		LoadRules:  loadRules,
		Format:     *format,
		Rules:      cfg.Rules,
		Debounce:   *debounce,
		Renderer:   deps.Renderer,
		Logger:     deps.Logger,
	})
	if err != nil {
		return exitFailure, err
	}

	ctx, stop := signalContext()
	defer stop()
	return exitOK, w.Run(ctx)
}

// watchedConfig is the config file whose rule changes trigger a re-render.
func watchedConfig(c *cli, cfg *config.Config) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return c.configPath
}

func runServe(c *cli, args []string) (int, error) {
	fs := c.flagSet("serve", "")
	addr := fs.String("addr", "", "Listen address (default from config)")
	if err := parse(fs, args); err != nil {
		return exitUsage, err
	}

	deps, err := c.dependencies()
	if err != nil {
		return exitFailure, err
	}
	cfg := deps.Config
	if *addr == "" {
		*addr = cfg.Server.Addr
	}

	srv := server.New(deps.Matcher, deps.Renderer, deps.Logger, &server.Config{
		Rules:             cfg.Rules,
		RateLimitRequests: cfg.Server.RateLimit.MaxRequests,
		RateLimitWindow:   cfg.Server.RateLimit.Window,
		Registry:          deps.Registry,
	})

	ctx, stop := signalContext()
	defer stop()
	return exitOK, srv.Run(ctx, *addr)
}

func runWrapped(c *cli, args []string) (int, error) {
	fs := c.flagSet("run", "[--] COMMAND [ARGS...]")
	fs.SetInterspersed(false)
	if err := parse(fs, args); err != nil {
		return exitUsage, err
	}
	if fs.NArg() == 0 {
		return exitUsage, fmt.Errorf("%w: run requires a command", errUsage)
	}

	deps, err := c.dependencies()
	if err != nil {
		return exitFailure, err
	}

	app := NewApplication(deps, c.stdout)

	// Ensure terminal restoration on panic
	defer func() {
		if r := recover(); r != nil {
			_ = app.Stop()
			panic(r)
		}
	}()

	deps.Logger.Debug("starting command", "command", fs.Arg(0), "args", fs.Args()[1:])

	if err := app.Run(fs.Arg(0), fs.Args()[1:]); err != nil {
		return exitFailure, err
	}
	return app.ExitCode(), nil
}
