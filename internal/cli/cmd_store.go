package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/delfador0x42/amaranthine/internal/engine"
	"github.com/delfador0x42/amaranthine/internal/tokenize"
)

// StoreCmd returns the `store` command.
func StoreCmd(eng *engine.Engine) *Command {
	fs := flag.NewFlagSet("store", flag.ContinueOnError)
	tags := fs.StringSlice("tags", nil, "Comma-separated tags")
	source := fs.String("source", "", "Source file path, optionally path:line")
	confidence := fs.Float64("confidence", 0, "Confidence 0-1 (default 1)")

	return &Command{
		Flags: fs,
		Usage: "store <topic> <text> [flags]",
		Short: "Store a new entry",
		Long:  "Append a new entry under <topic>, rebuild the index, and report its offset.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 2 {
				return errors.New("store requires a topic and text")
			}

			opts := tokenize.StoreOptions{Tags: *tags, SourcePath: *source, Confidence: *confidence}

			result, err := eng.Store(ctx, args[0], args[1], opts, nowMinutes())
			if err != nil {
				return err
			}

			if result.Warning != nil {
				o.Note(duplicateWarningText(result.Warning))
			}

			o.Println("stored at offset", result.Offset)

			return nil
		},
	}
}

func duplicateWarningText(w *engine.DuplicateWarning) string {
	return fmt.Sprintf("near-duplicate of entry at offset %d (%.0f%% similar)",
		w.SimilarToOffset, w.Similarity*100)
}

func nowMinutes() int32 { return int32(time.Now().Unix() / 60) }
