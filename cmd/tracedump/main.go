// tracedump decodes a player update trace written by the sync server.
//
// Usage:
//
//	go run ./cmd/tracedump -file trace/player-sync.jsonl.zst
//	go run ./cmd/tracedump -file trace/player-sync.jsonl.zst -observer 3 -v
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nshusa/battlerune-server/internal/gameserver/playersync"
	"github.com/nshusa/battlerune-server/internal/trace"
)

func main() {
	file := flag.String("file", "trace/player-sync.jsonl.zst", "trace file")
	observer := flag.Int("observer", 0, "only records of this observer slot (0 = all)")
	verbose := flag.Bool("v", false, "print every slot update")
	flag.Parse()

	stats, err := dump(os.Stdout, *file, dumpOptions{observer: *observer, verbose: *verbose})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("records:   %d\n", stats.records)
	fmt.Printf("undecoded: %d\n", stats.failed)
	fmt.Printf("updates:   %d\n", stats.updates)
	fmt.Printf("additions: %d\n", stats.additions)
	fmt.Printf("bytes:     %d\n", stats.bytes)
}

type dumpOptions struct {
	observer int
	verbose  bool
}

type dumpStats struct {
	records   int
	failed    int
	updates   int
	additions int
	bytes     int
}

func dump(out io.Writer, path string, opts dumpOptions) (dumpStats, error) {
	var stats dumpStats

	r, err := trace.Open(path)
	if err != nil {
		return stats, err
	}
	defer r.Close()

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		if opts.observer != 0 && rec.Observer != opts.observer {
			continue
		}
		stats.records++
		stats.bytes += len(rec.Payload)

		frame, err := r.Decode(rec)
		if err != nil {
			stats.failed++
			fmt.Fprintf(out, "tick %d observer %d: %d bytes, decode failed: %v\n",
				rec.Tick, rec.Observer, len(rec.Payload), err)
			continue
		}

		added := 0
		for _, u := range frame.Updates {
			if u.Added {
				added++
			}
		}
		stats.updates += len(frame.Updates)
		stats.additions += added

		fmt.Fprintf(out, "tick %d observer %d: %d bytes, %d updates, %d added, %d skipped\n",
			rec.Tick, rec.Observer, len(rec.Payload), len(frame.Updates), added, frame.Skipped)
		if !opts.verbose {
			continue
		}
		for _, u := range frame.Updates {
			switch {
			case u.Added:
				fmt.Fprintf(out, "  slot %4d added at (%d,%d) mask %#x%s\n", u.Slot, u.X, u.Y, u.Mask, appearanceNote(u))
			default:
				fmt.Fprintf(out, "  slot %4d known=%t mask %#x%s\n", u.Slot, u.Known, u.Mask, appearanceNote(u))
			}
		}
	}
}

func appearanceNote(u playersync.SlotUpdate) string {
	if u.Appearance == nil {
		return ""
	}
	return fmt.Sprintf(" appearance %q cb %d", u.Appearance.Name, u.Appearance.CombatLevel)
}
