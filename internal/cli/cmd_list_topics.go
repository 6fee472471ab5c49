package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/delfador0x42/amaranthine/internal/engine"
)

// ListTopicsCmd returns the `list-topics` command.
func ListTopicsCmd(eng *engine.Engine, plain bool) *Command {
	fs := flag.NewFlagSet("list-topics", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "list-topics",
		Short: "List topics and their entry counts",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return renderTopics(o, eng, plain)
		},
	}
}
