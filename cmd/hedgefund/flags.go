package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"hedgefund/internal/infra/config"
)

// options are the command-line overrides for one query run.
type options struct {
	configPath  string
	maxCycles   int
	maxSteps    int
	specialists string
	format      string
	planner     bool
	trace       bool
	noSummary   bool
	noProgress  bool

	set  map[string]bool
	args []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("hedgefund", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { showUsage(stderr) }

	fs.StringVar(&o.configPath, "config", defaultConfigPath(), "config file path")
	fs.IntVar(&o.maxCycles, "max-cycles", 0, "maximum specialist activations")
	fs.IntVar(&o.maxCycles, "recursion-limit", 0, "alias for --max-cycles")
	fs.IntVar(&o.maxSteps, "max-steps", 0, "maximum tool calls per query")
	fs.StringVar(&o.specialists, "specialists", "", "comma-separated enabled specialists")
	fs.StringVar(&o.format, "format", "", "output format: text or json")
	fs.BoolVar(&o.planner, "planner", false, "plan analyses with the supervisor model")
	fs.BoolVar(&o.trace, "trace", false, "print the message trace")
	fs.BoolVar(&o.noSummary, "no-summary", false, "skip the portfolio manager summary")
	fs.BoolVar(&o.noProgress, "no-progress", false, "disable the progress display")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	if o.set["recursion-limit"] {
		o.set["max-cycles"] = true
	}
	if o.set["max-cycles"] && o.maxCycles <= 0 {
		return nil, fmt.Errorf("--max-cycles must be > 0, got %d", o.maxCycles)
	}
	if o.set["max-steps"] && o.maxSteps <= 0 {
		return nil, fmt.Errorf("--max-steps must be > 0, got %d", o.maxSteps)
	}
	o.args = fs.Args()
	return o, nil
}

// apply writes the explicitly set flags over cfg and revalidates it.
func (o *options) apply(cfg *config.Config) error {
	if o.set["max-cycles"] {
		cfg.Workflow.MaxCycles = o.maxCycles
	}
	if o.set["max-steps"] {
		cfg.Workflow.MaxTotalSteps = o.maxSteps
	}
	if o.set["specialists"] {
		cfg.Workflow.Specialists = splitList(o.specialists)
	}
	if o.set["format"] {
		cfg.Output.Format = o.format
	}
	if o.planner {
		cfg.Workflow.Planner = true
	}
	if o.trace {
		cfg.Output.Trace = true
	}
	if o.noSummary {
		cfg.Workflow.Summary = false
	}
	if o.noProgress {
		cfg.Output.Progress = false
	}
	return config.Validate(cfg)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultConfigPath() string {
	if p := os.Getenv("HEDGEFUND_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath
}

// configPath extracts --config from args for subcommands that take no
// other flags.
func configPath(args []string) string {
	for i, arg := range args {
		if (arg == "--config" || arg == "-config") && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	return defaultConfigPath()
}
