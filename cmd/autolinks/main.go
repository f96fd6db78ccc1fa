package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/Veraticus/autolinks/pkg/config"
	flag "github.com/spf13/pflag"
)

// Exit codes returned by run.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// errUsage marks errors caused by bad command line input.
var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// cli carries the streams and global flags shared by every subcommand.
type cli struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	debug      bool
}

// run parses global flags, dispatches to a subcommand and returns the
// process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}

	fs := flag.NewFlagSet("autolinks", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.StringVar(&c.configPath, "config", "", "Path to config file")
	fs.BoolVar(&c.debug, "debug", false, "Enable debug logging")
	help := fs.BoolP("help", "h", false, "Show help message")
	fs.Usage = func() { c.printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if *help || fs.NArg() == 0 {
		c.printUsage(fs)
		if *help {
			return exitOK
		}
		return exitUsage
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", name)
		c.printUsage(fs)
		return exitUsage
	}

	code, err := cmd.run(c, rest)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			return exitOK
		case errors.Is(err, errUsage):
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		default:
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				fmt.Fprintf(stderr, "Error: %v\n", err)
			}
			if code == exitOK {
				code = exitFailure
			}
		}
	}
	return code
}

// loadConfig loads the configuration and applies the global flags.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.debug {
		cfg.Debug = true
	}
	return cfg, nil
}

// dependencies loads the configuration and builds the shared components.
func (c *cli) dependencies() (*Dependencies, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	deps, err := NewDependencies(cfg, c.stderr)
	if err != nil {
		return nil, fmt.Errorf("creating dependencies: %w", err)
	}
	return deps, nil
}

// savePath is where rule changes are written back to.
func (c *cli) savePath(cfg *config.Config) string {
	switch {
	case c.configPath != "":
		return c.configPath
	case cfg.Path != "":
		return cfg.Path
	default:
		return config.DefaultPath()
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (c *cli) printUsage(fs *flag.FlagSet) {
	w := c.stderr
	fmt.Fprintln(w, "autolinks - turn text that matches user rules into links")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: autolinks [OPTIONS] COMMAND [ARGS...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment Variables:")
	fmt.Fprintln(w, "  AUTOLINKS_CONFIG          Path to config file")
	fmt.Fprintln(w, "  AUTOLINKS_DEBUG           Enable debug logging (true/false)")
	fmt.Fprintln(w, "  AUTOLINKS_LOG_FORMAT      Log format (text or json)")
	fmt.Fprintln(w, "  AUTOLINKS_MATCH_TIMEOUT   Per-rule regex timeout (default: 1s)")
	fmt.Fprintln(w, "  AUTOLINKS_FORMAT          Default render format")
	fmt.Fprintln(w, "  AUTOLINKS_SANITIZE        Sanitize HTML output (true/false)")
	fmt.Fprintln(w, "  AUTOLINKS_ADDR            Listen address for serve")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Configuration file: %s\n", config.DefaultPath())
}
