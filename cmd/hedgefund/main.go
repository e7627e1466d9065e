package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"hedgefund/internal/adapter/render"
	"hedgefund/internal/domain"
	"hedgefund/internal/infra/config"
	"hedgefund/internal/infra/logger"
	"hedgefund/internal/infra/tracer"
	"hedgefund/internal/usecase/eventbus"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

// maxStdinQuery bounds a query read from a pipe.
const maxStdinQuery = 64 << 10

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "help", "-h", "--help":
			showUsage(stdout)
			return exitOK
		case "doctor":
			if err := runDoctor(configPath(args[1:]), stdout); err != nil {
				fmt.Fprintf(stderr, "doctor: %v\n", err)
				return exitFailure
			}
			return exitOK
		case "encrypt":
			if err := runEncrypt(args[1:], stdout); err != nil {
				fmt.Fprintf(stderr, "encrypt: %v\n", err)
				return exitConfig
			}
			return exitOK
		}
	}

	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "hedgefund: %v\n", err)
		return exitConfig
	}

	query, err := readQuery(opts.args, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "hedgefund: %v\n", err)
		return exitFailure
	}
	if query == "" {
		fmt.Fprintln(stderr, "hedgefund: no question given")
		showUsage(stderr)
		return exitConfig
	}

	if err := runQuery(ctx, opts, query, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "fatal: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps a run failure to the process exit status.
func exitCode(err error) int {
	var ve *config.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, domain.ErrConfigLoad),
		domain.IsConfigurationError(err):
		return exitConfig
	default:
		return exitFailure
	}
}

// runQuery wires every component and answers one question.
func runQuery(ctx context.Context, opts *options, query string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		var ve *config.ValidationError
		if errors.As(err, &ve) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}
	defer closeLog()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("%w: tracer: %w", domain.ErrConfigLoad, err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	llmc, err := initLLM(cfg, log)
	if err != nil {
		return err
	}
	tools, err := initTools(cfg, log)
	if err != nil {
		return err
	}

	bus := eventbus.New(log)
	defer bus.Close()

	orch, err := initWorkflow(cfg, llmc, tools, bus, log)
	if err != nil {
		return err
	}

	if cfg.Workflow.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Workflow.Timeout)
		defer cancel()
	}

	var progress *render.Progress
	if cfg.Output.Progress && isTerminal(stderr) {
		progress = render.NewProgress(stderr)
		progress.Start(bus)
	}
	answer, err := orch.RunQuery(ctx, query)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: query exceeded %s", domain.ErrTimeout, cfg.Workflow.Timeout)
		}
		return err
	}
	return writeAnswer(cfg.Output, answer, stdout)
}

func writeAnswer(out config.OutputConfig, answer *domain.FinalAnswer, w io.Writer) error {
	if out.Format == "json" {
		return render.RenderJSON(w, answer, out.Trace)
	}

	tty := isTerminal(w)
	width := out.Width
	if tty {
		if cols, ok := terminalWidth(w); ok && (width <= 0 || cols < width) {
			width = cols
		}
	}
	terminal, err := render.NewTerminal(render.TerminalOptions{Width: width, Plain: !tty})
	if err != nil {
		return err
	}
	if err := terminal.Render(w, answer); err != nil {
		return err
	}
	if out.Trace {
		fmt.Fprintln(w)
		return render.Trace(w, answer.Messages)
	}
	return nil
}

// readQuery joins positional args, or reads stdin when it is not a terminal.
func readQuery(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	if stdin == nil || isTerminal(stdin) {
		return "", nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, maxStdinQuery))
	if err != nil {
		return "", fmt.Errorf("read question from stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

type fdWriter interface {
	Fd() uintptr
}

func isTerminal(v any) bool {
	f, ok := v.(fdWriter)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth(v any) (int, bool) {
	f, ok := v.(fdWriter)
	if !ok {
		return 0, false
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 {
		return 0, false
	}
	return cols, true
}

// runEncrypt prints an "enc:" value for the config file, keyed by
// HEDGEFUND_CONFIG_KEY.
func runEncrypt(args []string, stdout io.Writer) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: hedgefund encrypt VALUE")
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}
	if creds.ConfigKey == "" {
		return errors.New("HEDGEFUND_CONFIG_KEY is not set")
	}
	enc, err := config.EncryptValue(args[0], creds.ConfigKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, "enc:"+enc)
	return nil
}

func showUsage(w io.Writer) {
	fmt.Fprint(w, `hedgefund - multi-agent equity research for B3 stocks

USAGE:
    hedgefund [FLAGS] QUESTION...
    echo "QUESTION" | hedgefund [FLAGS]
    hedgefund COMMAND

COMMANDS:
    doctor          Run health checks on your setup
    encrypt VALUE   Encrypt a secret for the config file (needs HEDGEFUND_CONFIG_KEY)
    help            Show this help message

FLAGS:
    --config PATH          Config file (default: ./hedgefund.yaml or $HEDGEFUND_CONFIG)
    --max-cycles N         Maximum specialist activations (alias: --recursion-limit)
    --max-steps N          Maximum tool calls across all specialists
    --specialists A,B      Enabled specialists (routing order is fixed)
    --planner              Let the supervisor model pick the analyses
    --no-summary           Skip the portfolio manager summary
    --format text|json     Output format
    --trace                Print the full message trace
    --no-progress          Disable the live progress display

ENVIRONMENT:
    BRAPI_TOKEN, OPENAI_API_KEY, TAVILY_API_KEY are read from the environment or .env.
    HEDGEFUND_* variables override config values.

EXIT CODES:
    0 answer printed, 1 runtime failure, 2 configuration error

EXAMPLES:
    hedgefund "Is PETR4 undervalued?"
    hedgefund --specialists price_analyst --trace "Qual a tendência de preço da VALE3?"
    hedgefund --format json "ITUB4 financial health" > answer.json
`)
}
