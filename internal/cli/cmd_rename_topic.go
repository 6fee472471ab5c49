package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/delfador0x42/amaranthine/internal/engine"
)

// RenameTopicCmd returns the `rename-topic` command.
func RenameTopicCmd(eng *engine.Engine) *Command {
	fs := flag.NewFlagSet("rename-topic", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "rename-topic <old> <new>",
		Short: "Rename a topic",
		Long:  "Move every live entry under <old> to <new>, tombstoning the originals.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 2 {
				return errors.New("rename-topic requires an old and a new topic name")
			}

			n, err := eng.RenameTopic(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			o.Println("renamed", n, "entries")

			return nil
		},
	}
}
