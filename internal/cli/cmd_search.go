package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	flag "github.com/spf13/pflag"

	"github.com/delfador0x42/amaranthine/internal/config"
	"github.com/delfador0x42/amaranthine/internal/engine"
	"github.com/delfador0x42/amaranthine/internal/index"
	"github.com/delfador0x42/amaranthine/internal/rank"
	"github.com/delfador0x42/amaranthine/internal/record"
	"github.com/delfador0x42/amaranthine/internal/tokenize"
)

// SearchCmd returns the `search` command.
func SearchCmd(eng *engine.Engine, cfg config.Config, plain bool) *Command {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	detail := fs.String("detail", cfg.DefaultDetail, "full|medium|brief|count|topics")
	limit := fs.Int("limit", cfg.SearchLimit, "Maximum results")
	topicFilter := fs.String("topic", "", "Restrict to one topic")
	tagFilter := fs.String("tag", "", "Restrict to entries with this tag")
	sinceDays := fs.Int("since", 0, "Restrict to entries from the last N days")

	return &Command{
		Flags: fs,
		Usage: "search <query> [flags]",
		Short: "Search stored entries",
		Long:  "Rank stored entries against <query> with BM25 plus topic/tag/confidence boosts.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return errors.New("search requires a query")
			}

			if *detail == "topics" {
				return renderTopics(o, eng, plain)
			}

			r, err := eng.OpenIndex()
			if err != nil {
				return err
			}
			defer r.Close()

			terms := tokenize.TokenizeQuery(args[0])

			// Rank a wider candidate pool than --limit whenever a filter can
			// drop hits, so filtering never starves the result set below
			// what --limit promises while matching entries still remain.
			n := *limit
			if *detail == "count" || *topicFilter != "" || *tagFilter != "" || *sinceDays != 0 {
				n = 1 << 16
			}

			hits := rank.Search(r, terms, rank.ModeAuto, n)
			hits = filterHits(r, hits, *topicFilter, *tagFilter, *sinceDays)

			if *detail == "count" {
				o.Println(len(hits))

				return nil
			}

			if len(hits) > *limit {
				hits = hits[:*limit]
			}

			renderHits(o, r, hits, *detail, plain)

			return nil
		},
	}
}

// filterHits applies the --topic/--tag/--since flags. Tag membership is
// read straight off the tag posting list for the tag term, the same bit
// the ranker boosts on (spec §4.F tag-boost bit packing).
func filterHits(r *index.Reader, hits []rank.Hit, topic, tag string, sinceDays int) []rank.Hit {
	if topic == "" && tag == "" && sinceDays == 0 {
		return hits
	}

	var cutoff int32
	if sinceDays > 0 {
		cutoff = int32(time.Now().AddDate(0, 0, -sinceDays).Unix() / 60)
	}

	var tagged map[uint16]bool
	if tag != "" {
		tagged = make(map[uint16]bool)

		if postings, ok := r.TermPostings(record.HashTerm(tag)); ok {
			for _, p := range postings {
				if p.IsTag {
					tagged[p.EntryID] = true
				}
			}
		}
	}

	out := hits[:0]

	for _, h := range hits {
		meta := r.EntryMeta(h.EntryID)

		if topic != "" && r.TopicName(meta.TopicID) != topic {
			continue
		}

		if sinceDays > 0 && meta.TSMin < cutoff {
			continue
		}

		if tag != "" && !tagged[h.EntryID] {
			continue
		}

		out = append(out, h)
	}

	return out
}

func renderHits(o *IO, r *index.Reader, hits []rank.Hit, detail string, plain bool) {
	if len(hits) == 0 {
		o.Println("no results")

		return
	}

	if plain {
		for _, h := range hits {
			meta := r.EntryMeta(h.EntryID)
			topic := r.TopicName(meta.TopicID)
			o.Printf("%d\t%s\t%.4f\n", h.EntryID, topic, h.Score)
		}

		return
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"entry", "topic", "score", "snippet"})

	for _, h := range hits {
		meta := r.EntryMeta(h.EntryID)
		topic := r.TopicName(meta.TopicID)

		snippet := ""
		if detail != "brief" {
			snippet = r.Snippet(meta)
		}

		t.AppendRow(table.Row{h.EntryID, topic, fmt.Sprintf("%.4f", h.Score), snippet})
	}

	o.Println(t.Render())
}

func renderTopics(o *IO, eng *engine.Engine, plain bool) error {
	snap, err := eng.Snapshot()
	if err != nil {
		return err
	}

	if plain {
		for _, name := range snap.TopicNames() {
			o.Printf("%s\t%d\n", name, len(snap.ByTopic[name]))
		}

		return nil
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"topic", "entries"})

	for _, name := range snap.TopicNames() {
		t.AppendRow(table.Row{name, len(snap.ByTopic[name])})
	}

	o.Println(t.Render())

	return nil
}
