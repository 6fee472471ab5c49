package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	flag "github.com/spf13/pflag"

	"github.com/delfador0x42/amaranthine/internal/config"
	"github.com/delfador0x42/amaranthine/internal/engine"
)

// Run is the main CLI entry point. Returns the process exit code.
// sigCh can be nil if signal handling is not needed (e.g. in tests).
func Run(_ io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("amr", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})
	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagDir := globalFlags.String("dir", "", "Override the amaranthine data directory")
	flagPlain := globalFlags.Bool("plain", false, "Machine-readable output, no table borders")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	dir := *flagDir
	if dir == "" {
		var err error
		dir, err = config.ResolveDir()
		if err != nil {
			fprintln(errOut, "error:", err)

			return 1
		}
	}

	cfg, err := config.Load(dir)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	logger := newLogger(cfg.LogLevel, env)
	defer logger.Sync() //nolint:errcheck

	eng, err := engine.Open(dir, logger)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	commands := allCommands(eng, cfg, *flagPlain)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)

		return 0
	}

	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)

		return 1
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return 1
	}

	cmdIO := NewIO(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, cmdIO, commandAndArgs[1:])
	}()

	select {
	case exitCode := <-done:
		return cmdIO.Finish() | exitCode
	case <-sigCh:
		fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")

		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")

		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")

		return 130
	}
}

func newLogger(level string, env map[string]string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}

	if env["AMARANTHINE_LOG_JSON"] == "1" {
		cfg.Encoding = "json"
	}

	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level.SetLevel(zap.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}

	return logger
}

// allCommands returns all commands in display order.
func allCommands(eng *engine.Engine, cfg config.Config, plain bool) []*Command {
	return []*Command{
		StoreCmd(eng),
		SearchCmd(eng, cfg, plain),
		DeleteCmd(eng),
		UpdateCmd(eng),
		RenameTopicCmd(eng),
		ListTopicsCmd(eng, plain),
		StatsCmd(eng),
		CompactCmd(eng),
		ServeCmd(eng),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const globalOptionsHelp = `  -h, --help          Show help
  --dir <dir>         Override the amaranthine data directory
  --plain             Machine-readable output, no table borders`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: amr [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'amr --help' for a list of commands.")
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "amr - persistent knowledge store for coding assistants")
	fprintln(w)
	fprintln(w, "Usage: amr [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
