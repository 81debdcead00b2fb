// Package config parses and validates grokview's command-line surface:
// a plain struct plus a loader that validates before returning. It
// uses github.com/spf13/pflag instead of the stdlib flag package, since
// the CLI surface calls for POSIX-clustered short flags with GNU-style
// long aliases (-S, --chop-long-lines) that stdlib flag can't express
// directly.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
)

// Config holds the parsed command-line surface for a single invocation.
type Config struct {
	ChopLongLines     bool
	NoAlternateScreen bool
	Color             bool
	Mouse             bool
	WheelLines        int
	Tail              int
	Reverse           bool
	ShowVersion       bool
	ShowHelp          bool

	// Inputs holds the paths given on the command line. An empty slice
	// means "read stdin", same as an explicit "-".
	Inputs []string
}

// Version is set by the build (ldflags) in a full release pipeline; it
// defaults to "dev" so -V still prints something sensible locally.
var Version = "dev"

const defaultWheelLines = 5

// Default returns a Config with the documented CLI defaults.
func Default() Config {
	return Config{
		WheelLines: defaultWheelLines,
	}
}

// Parse parses args (typically os.Args[1:]) into a Config and validates
// it. On a parse error, or a validation failure, it returns a non-nil
// error; the caller should treat that as the exit-1 "unknown arg" case.
func Parse(args []string) (Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("grokview", pflag.ContinueOnError)
	fs.Usage = func() {}
	fs.SetOutput(errWriter{})

	fs.BoolVarP(&cfg.ChopLongLines, "chop-long-lines", "S", false, "chop instead of wrap")
	fs.BoolVarP(&cfg.NoAlternateScreen, "no-alternate-screen", "X", false, "do not use alt screen")
	fs.BoolVarP(&cfg.Color, "color", "C", false, "enable color highlighting")
	fs.BoolVarP(&cfg.Mouse, "mouse", "M", false, "enable mouse")
	fs.IntVarP(&cfg.WheelLines, "wheel-lines", "W", defaultWheelLines, "mouse wheel scroll step")
	fs.BoolVarP(&cfg.ShowVersion, "version", "V", false, "print version and exit")
	fs.BoolVarP(&cfg.ShowHelp, "help", "h", false, "show this help and exit")
	fs.IntVar(&cfg.Tail, "tail", 0, "print only the last N lines")
	fs.BoolVar(&cfg.Reverse, "reverse", false, "iterate from the end of input backward")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	cfg.Inputs = fs.Args()

	if cfg.ShowVersion || cfg.ShowHelp {
		return cfg, nil
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.WheelLines < 0 {
		return errors.New("--wheel-lines must be >= 0")
	}
	if c.Tail < 0 {
		return errors.New("--tail must be >= 0")
	}
	return nil
}

// UsageText renders the CLI's usage block, for -h/--help.
func UsageText() string {
	return `app [OPTIONS] [INPUT ...]
  -S, --chop-long-lines       chop instead of wrap
  -X, --no-alternate-screen   do not use alt screen
  -C, --color                 enable color highlighting
  -M, --mouse                 enable mouse
  -W N, --wheel-lines=N       mouse wheel scroll step (default 5)
  --tail N                    print only the last N lines
  --reverse                   iterate from the end of input backward
  -V, --version | -h, --help
INPUT  zero or more paths; '-' or absent means stdin
`
}

// errWriter discards pflag's own error/usage output; the CLI formats and
// prints parse errors itself so messages stay consistent with the rest
// of the program's logging.
type errWriter struct{}

func (errWriter) Write(p []byte) (int, error) { return len(p), nil }
