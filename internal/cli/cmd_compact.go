package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/delfador0x42/amaranthine/internal/engine"
)

// CompactCmd returns the `compact` command.
func CompactCmd(eng *engine.Engine) *Command {
	fs := flag.NewFlagSet("compact", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "compact",
		Short: "Rewrite the log dropping tombstoned entries",
		Long:  "Rewrite the log to drop tombstoned entries, give the remaining entries new log offsets, and rebuild the index.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			if err := eng.Compact(ctx); err != nil {
				return err
			}

			o.Println("compaction complete")

			return nil
		},
	}
}
