package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-eval/internal/logging"
	"github.com/danielpatrickdp/adaptive-eval/internal/replay"
	"github.com/danielpatrickdp/adaptive-eval/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to adaptive_eval.db")
	last := flag.Int("last", 20, "number of most recent audit rows to export")
	threshold := flag.Float64("threshold", 7.0, "pass threshold the recorded decisions were made with")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --out path/to/fixture.json [--last N] [--threshold T]")
		os.Exit(2)
	}

	if err := run(*dbPath, *last, *threshold, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath string, last int, threshold float64, outPath string) error {
	st, err := store.NewStore(dbPath, logging.Discard())
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	entries, err := logging.ListEvaluations(st.DB(), last)
	if err != nil {
		return err
	}

	fixture := replay.FromAudit(
		fmt.Sprintf("Audit export: last %d evaluations from %s", last, dbPath),
		replay.FixtureConfig{PassThreshold: threshold},
		entries,
	)
	if len(fixture.Cases) == 0 {
		return fmt.Errorf("no replayable rows in the last %d audit entries", last)
	}

	if err := replay.WriteFixture(outPath, fixture); err != nil {
		return err
	}
	fmt.Printf("Wrote fixture to %s (%d cases)\n", outPath, len(fixture.Cases))
	return nil
}

// #endregion export
