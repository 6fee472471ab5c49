package cli

import (
	"context"
	"errors"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/delfador0x42/amaranthine/internal/engine"
)

// DeleteCmd returns the `delete` command.
func DeleteCmd(eng *engine.Engine) *Command {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "delete <offset>",
		Short: "Tombstone an entry",
		Long:  "Tombstone the live entry at the given log offset.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return errors.New("delete requires an offset")
			}

			offset, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.New("offset must be an integer")
			}

			if err := eng.Delete(ctx, offset); err != nil {
				return err
			}

			o.Println("deleted offset", offset)

			return nil
		},
	}
}
