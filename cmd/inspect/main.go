package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-eval/internal/config"
	"github.com/danielpatrickdp/adaptive-eval/internal/logging"
	"github.com/danielpatrickdp/adaptive-eval/internal/store"
)

// #region flags
var (
	dbPath  string
	jsonOut bool
	minUses int
	seedIn  string
	force   bool

	violationLimit int
	attemptLimit   int
)
// #endregion flags

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "inspect",
		Short:        "Inspect learned defaults, attempts and pattern effectiveness",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the attempt database (default $ADAPTIVE_DB)")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON instead of a table")

	stats := &cobra.Command{
		Use:   "stats [category]",
		Short: "Success rate, averages and common issues per category",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withStore(runStats),
	}
	threshold := &cobra.Command{
		Use:   "threshold <category> <context>",
		Short: "Suggested realism pass threshold from passing history",
		Args:  cobra.ExactArgs(2),
		RunE:  withStore(runThreshold),
	}
	guidance := &cobra.Command{
		Use:   "guidance <category>",
		Short: "Mean guidance scale of passing attempts",
		Args:  cobra.ExactArgs(1),
		RunE:  withStore(runGuidance),
	}
	patterns := &cobra.Command{
		Use:   "patterns <category> <context>",
		Short: "Prompt patterns ranked by success rate",
		Args:  cobra.ExactArgs(2),
		RunE:  withStore(runPatterns),
	}
	patterns.Flags().IntVar(&minUses, "min-uses", 3, "hide patterns used fewer times")

	violations := &cobra.Command{
		Use:   "violations [category]",
		Short: "Most frequently reported issues",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withStore(runViolations),
	}
	violations.Flags().IntVar(&violationLimit, "limit", 10, "number of issues to show (0 = all)")

	feedback := &cobra.Command{
		Use:   "feedback [category]",
		Short: "Compare attempts with and without learned feedback applied",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withStore(runComparison("feedback", (*store.Store).FeedbackComparison)),
	}
	truncation := &cobra.Command{
		Use:   "truncation [category]",
		Short: "Compare attempts with and without prompt truncation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withStore(runComparison("truncation", (*store.Store).TruncationImpact)),
	}
	defaults := &cobra.Command{
		Use:   "defaults",
		Short: "List learned defaults per category and context",
		Args:  cobra.NoArgs,
		RunE:  withStore(runDefaults),
	}
	templates := &cobra.Command{
		Use:   "templates",
		Short: "Prompt template versions ranked by success rate",
		Args:  cobra.NoArgs,
		RunE:  withStore(runTemplates),
	}
	attempts := &cobra.Command{
		Use:   "attempts [category]",
		Short: "Most recent generation attempts",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withStore(runAttempts),
	}
	attempts.Flags().IntVar(&attemptLimit, "limit", 20, "number of attempts to show")

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Seed learned defaults from the static table or a YAML file",
		Args:  cobra.NoArgs,
		RunE:  withStore(runSeed),
	}
	seed.Flags().StringVar(&seedIn, "file", "", "YAML seed table (default $SEED_FILE or the built-in table)")
	seed.Flags().BoolVar(&force, "force", false, "overwrite tunables of existing rows; counters are kept")

	root.AddCommand(stats, threshold, guidance, patterns, violations, feedback, truncation, defaults, templates, attempts, seed)
	return root
}
// #endregion main

// #region store
type storeRunner func(ctx context.Context, st *store.Store, args []string) error

// withStore opens the store named by --db, $ADAPTIVE_DB or the default path.
func withStore(run storeRunner) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path := dbPath
		if path == "" {
			path = cfg.DBPath
		}
		if seedIn == "" {
			seedIn = cfg.SeedFile
		}
		logger, err := logging.NewLogger(cfg.LogLevel, logging.Format(cfg.LogFormat), os.Stderr)
		if err != nil {
			return err
		}
		st, err := store.NewStore(path, logger)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer st.Close()
		return run(cmd.Context(), st, args)
	}
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
// #endregion store

// #region commands
func runStats(ctx context.Context, st *store.Store, args []string) error {
	categories := args
	if len(categories) == 0 {
		var err error
		if categories, err = st.Categories(ctx); err != nil {
			return err
		}
	}
	all := make([]store.CategoryStats, 0, len(categories))
	for _, c := range categories {
		cs, err := st.CategoryStats(ctx, c)
		if err != nil {
			return err
		}
		all = append(all, cs)
	}
	if jsonOut {
		return printJSON(all)
	}
	if len(all) == 0 {
		fmt.Fprintln(os.Stderr, "no attempts found")
		return nil
	}
	w := newTable()
	fmt.Fprintln(w, "Category\tTotal\tPassed\tSuccess %\tAvg Realism\tAvg Guidance\tAvg Retries\tTop Issue")
	for _, cs := range all {
		top := "-"
		if len(cs.CommonIssues) > 0 {
			top = fmt.Sprintf("%s (%d)", cs.CommonIssues[0].Issue, cs.CommonIssues[0].Count)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t%.1f\t%.2f\t%.2f\t%s\n",
			cs.Category, cs.Total, cs.Passed, cs.SuccessRate, cs.AvgRealism, cs.AvgGuidance, cs.AvgRetries, top)
	}
	return w.Flush()
}

func runThreshold(ctx context.Context, st *store.Store, args []string) error {
	v, err := st.SuggestedThreshold(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]any{"category": args[0], "context": args[1], "threshold": v})
	}
	fmt.Printf("suggested threshold for %s/%s: %.1f\n", args[0], args[1], v)
	return nil
}

func runGuidance(ctx context.Context, st *store.Store, args []string) error {
	v, ok, err := st.OptimalGuidanceScale(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		out := map[string]any{"category": args[0], "guidance_scale": nil}
		if ok {
			out["guidance_scale"] = v
		}
		return printJSON(out)
	}
	if !ok {
		fmt.Printf("not enough passing attempts for %s (need %d)\n", args[0], store.MinGuidanceSamples)
		return nil
	}
	fmt.Printf("optimal guidance scale for %s: %.2f\n", args[0], v)
	return nil
}

func runPatterns(ctx context.Context, st *store.Store, args []string) error {
	ranked, err := st.PatternRanking(ctx, args[0], args[1], minUses)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(ranked)
	}
	w := newTable()
	fmt.Fprintln(w, "Pattern\tUses\tSuccesses\tSuccess Rate\tAvg Score")
	for _, p := range ranked {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.1f\n", p.PatternID, p.TotalUses, p.SuccessCount, p.SuccessRate, p.AvgScore)
	}
	return w.Flush()
}

func runViolations(ctx context.Context, st *store.Store, args []string) error {
	issues, err := st.ViolationFrequency(ctx, optionalArg(args), violationLimit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(issues)
	}
	w := newTable()
	fmt.Fprintln(w, "Count\tIssue")
	for _, ic := range issues {
		fmt.Fprintf(w, "%d\t%s\n", ic.Count, ic.Issue)
	}
	return w.Flush()
}

func runComparison(label string, fn func(*store.Store, context.Context, string) (store.Comparison, error)) storeRunner {
	return func(ctx context.Context, st *store.Store, args []string) error {
		cmp, err := fn(st, ctx, optionalArg(args))
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]any{
				"without":     cmp.Without,
				"with":        cmp.With,
				"improvement": cmp.Improvement(),
			})
		}
		w := newTable()
		fmt.Fprintln(w, "Group\tAttempts\tPassed\tSuccess %\tAvg Realism")
		fmt.Fprintf(w, "without %s\t%d\t%d\t%.1f\t%.1f\n", label, cmp.Without.Attempts, cmp.Without.Passed, cmp.Without.SuccessRate, cmp.Without.AvgRealism)
		fmt.Fprintf(w, "with %s\t%d\t%d\t%.1f\t%.1f\n", label, cmp.With.Attempts, cmp.With.Passed, cmp.With.SuccessRate, cmp.With.AvgRealism)
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("improvement: %+.1f points\n", cmp.Improvement())
		return nil
	}
}

func runDefaults(ctx context.Context, st *store.Store, _ []string) error {
	all, err := st.AllLearnedDefaults(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(all)
	}
	w := newTable()
	fmt.Fprintln(w, "Category\tContext\tGuidance\tUniformity\tView\tThreshold\tSamples\tSuccesses\tAvg Score\tUpdated")
	for _, d := range all {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%s\t%.0f\t%d\t%d\t%.1f\t%s\n",
			d.Category, d.Context, d.GuidanceScale, d.Uniformity, d.ViewMode, d.PassThreshold,
			d.SampleCount, d.SuccessCount, d.AvgScore, d.LastUpdated.Format("2006-01-02T15:04:05Z"))
	}
	return w.Flush()
}

func runTemplates(ctx context.Context, st *store.Store, _ []string) error {
	all, err := st.TemplateStats(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(all)
	}
	w := newTable()
	fmt.Fprintln(w, "Template\tVersion\tUses\tSuccesses\tSuccess Rate\tAvg Score")
	for _, t := range all {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2f\t%.1f\n", t.Name, t.Version, t.UsageCount, t.SuccessCount, t.SuccessRate, t.AvgScore)
	}
	return w.Flush()
}

func runAttempts(ctx context.Context, st *store.Store, args []string) error {
	all, err := st.RecentAttempts(ctx, optionalArg(args), attemptLimit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(all)
	}
	w := newTable()
	fmt.Fprintln(w, "ID\tTime\tMaterial\tCategory\tContext\tRealism\tPassed\tAttempt\tIssues")
	for _, a := range all {
		realism := "-"
		if a.RealismScore != nil {
			realism = strconv.FormatFloat(*a.RealismScore, 'f', 1, 64)
		}
		fmt.Fprintf(w, "%.8s\t%s\t%s\t%s\t%s\t%s\t%t\t%d\t%d\n",
			a.ID, a.Timestamp.Format("2006-01-02T15:04:05Z"), a.Material, a.Category, a.Context,
			realism, a.Passed, a.AttemptNumber, len(a.Issues))
	}
	return w.Flush()
}

func runSeed(ctx context.Context, st *store.Store, _ []string) error {
	table := store.DefaultSeedTable()
	if seedIn != "" {
		var err error
		if table, err = store.LoadSeedTable(seedIn); err != nil {
			return err
		}
	}
	n, err := st.SeedDefaults(ctx, table, force)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]int{"rows": n})
	}
	fmt.Printf("seeded %d rows\n", n)
	return nil
}
// #endregion commands

// #region output
func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
// #endregion output
