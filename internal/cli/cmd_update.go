package cli

import (
	"context"
	"errors"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/delfador0x42/amaranthine/internal/engine"
	"github.com/delfador0x42/amaranthine/internal/tokenize"
)

// UpdateCmd returns the `update` command.
func UpdateCmd(eng *engine.Engine) *Command {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	tags := fs.StringSlice("tags", nil, "Comma-separated tags")
	source := fs.String("source", "", "Source file path, optionally path:line")
	confidence := fs.Float64("confidence", 0, "Confidence 0-1 (default 1)")

	return &Command{
		Flags: fs,
		Usage: "update <offset> <topic> <text> [flags]",
		Short: "Replace an entry",
		Long:  "Append text as a new entry and tombstone the entry at <offset>.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 3 {
				return errors.New("update requires an offset, a topic, and text")
			}

			offset, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.New("offset must be an integer")
			}

			opts := tokenize.StoreOptions{Tags: *tags, SourcePath: *source, Confidence: *confidence}

			result, err := eng.Update(ctx, offset, args[1], args[2], opts, nowMinutes())
			if err != nil {
				return err
			}

			o.Println("updated, new offset", result.Offset)

			return nil
		},
	}
}
