package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/delfador0x42/amaranthine/internal/engine"
)

// StatsCmd returns the `stats` command.
func StatsCmd(eng *engine.Engine) *Command {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "stats",
		Short: "Print corpus and index summary statistics",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			snap, err := eng.Snapshot()
			if err != nil {
				return err
			}

			o.Println(fmt.Sprintf("entries: %d", len(snap.Entries)))
			o.Println(fmt.Sprintf("topics: %d", snap.TopicCount()))

			if len(snap.Entries) >= engine.MaxEntriesBeforeCompaction {
				o.Note("live entry count is at the store limit; new stores are refused")
			}

			r, err := eng.OpenIndex()
			if err != nil {
				return err
			}
			defer r.Close()

			o.Println(fmt.Sprintf("index entries: %d", r.EntryCount()))
			o.Println(fmt.Sprintf("avg doc len: %.1f", r.AvgDocLen()))

			return nil
		},
	}
}
