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
	dbPath := flag.String("db", "", "path to the attempt database (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	last := flag.Int("last", 500, "DB mode: number of most recent audit rows to replay")
	threshold := flag.Float64("threshold", 0, "override the pass threshold (0 = fixture or default)")
	verbose := flag.Bool("v", false, "print every case, not only mismatches")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/adaptive_eval.db [--last N] [--threshold T]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json [--threshold T]")
		os.Exit(2)
	}

	var (
		fixture *replay.Fixture
		err     error
	)
	if *fixturePath != "" {
		fixture, err = replay.LoadFixture(*fixturePath)
	} else {
		fixture, err = loadFromDB(*dbPath, *last)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if *threshold > 0 {
		fixture.Config.PassThreshold = *threshold
	}
	os.Exit(run(fixture, *verbose))
}

// #endregion main

// #region db-extract

func loadFromDB(dbPath string, last int) (*replay.Fixture, error) {
	st, err := store.NewStore(dbPath, logging.Discard())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	entries, err := logging.ListEvaluations(st.DB(), last)
	if err != nil {
		return nil, err
	}
	f := replay.FromAudit(fmt.Sprintf("audit log %s", dbPath), replay.FixtureConfig{}, entries)
	if len(f.Cases) == 0 {
		return nil, fmt.Errorf("no replayable entries in evaluation_audit")
	}
	return f, nil
}

// #endregion db-extract

// #region run

// run replays the fixture and returns the exit code: 0 when every recorded
// decision is reproduced, 1 otherwise.
func run(f *replay.Fixture, verbose bool) int {
	cfg := f.Config.ToParseConfig()
	results := replay.Replay(f.Cases, cfg)
	mismatches := replay.Compare(results, f.ExpectedResults)
	summary := replay.Summarize(results)

	fmt.Printf("Replay: %s\n", f.Description)
	fmt.Printf("  threshold=%.2f cases=%d\n\n", cfg.PassThreshold, summary.TotalCases)

	if verbose {
		fmt.Printf("%-38s  %-12s  %6s  %s\n", "Case", "Action", "Score", "Reason")
		for _, r := range results {
			score := "-"
			if r.Decision != nil {
				score = fmt.Sprintf("%.1f", r.Decision.Score)
			}
			fmt.Printf("%-38s  %-12s  %6s  %s\n", r.CaseID, r.Action, score, r.Reason)
		}
		fmt.Println()
	}

	fmt.Printf("accept=%d reject=%d inconsistent=%d incomplete=%d\n",
		summary.Accepts, summary.Rejects, summary.Inconsistent, summary.Incomplete)

	if len(mismatches) == 0 {
		fmt.Println("all recorded decisions reproduced")
		return 0
	}
	fmt.Printf("%d mismatches:\n", len(mismatches))
	for _, m := range mismatches {
		fmt.Printf("  %s: expected %s, got %s\n", m.CaseID, m.Expected, m.Got)
	}
	return 1
}

// #endregion run
