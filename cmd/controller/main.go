package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielpatrickdp/adaptive-eval/internal/codec"
	"github.com/danielpatrickdp/adaptive-eval/internal/config"
	"github.com/danielpatrickdp/adaptive-eval/internal/eval"
	"github.com/danielpatrickdp/adaptive-eval/internal/logging"
	"github.com/danielpatrickdp/adaptive-eval/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-eval/internal/patterns"
	"github.com/danielpatrickdp/adaptive-eval/internal/store"
)

// #region main
func main() {
	item := flag.String("item", "", "item (material) the content describes")
	category := flag.String("category", "", "item category, e.g. metal")
	contextName := flag.String("context", "", "usage context, e.g. outdoor")
	component := flag.String("component", "caption", "component type being evaluated")
	file := flag.String("file", "", "evaluate this file once instead of reading stdin lines")
	guidance := flag.Float64("guidance", 0, "guidance scale used to generate the content (0 = planned)")
	template := flag.String("template", "", "prompt template name used to generate the content")
	flag.Parse()

	if *item == "" || *category == "" {
		fmt.Fprintln(os.Stderr, "usage: controller --item NAME --category CAT [--context CTX] [--component TYPE] [--file PATH]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.NewLogger(cfg.LogLevel, logging.Format(cfg.LogFormat), os.Stderr)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	slog.SetDefault(logger)

	st, err := store.NewStore(cfg.DBPath, logger)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	// Seed the static defaults table so unseen keys resolve without a fallback.
	table := store.DefaultSeedTable()
	if cfg.SeedFile != "" {
		if table, err = store.LoadSeedTable(cfg.SeedFile); err != nil {
			log.Fatalf("seed file: %v", err)
		}
	}
	st.SetFallback(table)
	if n, err := st.SeedDefaults(context.Background(), table, false); err != nil {
		log.Fatalf("seed defaults: %v", err)
	} else if n > 0 {
		logger.Info("seeded learned defaults", "rows", n)
	}

	judge, err := codec.NewCodecClient(cfg.CodecAddr, cfg.JudgeTimeout)
	if err != nil {
		log.Fatalf("failed to connect to judge service at %s: %v", cfg.CodecAddr, err)
	}
	defer judge.Close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	learner := patterns.NewLearner(patterns.DefaultLearnerConfig(cfg.PatternKBPath), logger)
	oc := orchestrator.DefaultConfig()
	oc.PassThreshold = cfg.PassThreshold
	oc.MinPatternUses = cfg.MinPatternUses
	oc.LearningEnabled = cfg.LearningEnabled
	orch := orchestrator.NewOrchestrator(judge, learner, st, oc, logger)

	ctx := context.Background()
	plan, err := orch.Plan(ctx, *category, *contextName)
	if err != nil {
		log.Fatalf("plan: %v", err)
	}
	fmt.Println("Adaptive Evaluation Controller ready.")
	fmt.Printf("  DB: %s | Judge: %s | Learning: %t\n", cfg.DBPath, cfg.CodecAddr, orch.Enabled())
	fmt.Printf("  Plan: guidance=%.2f threshold=%.1f learned=%t patterns=%v\n",
		plan.GuidanceScale, plan.SuggestedThreshold, plan.Learned, plan.Patterns)

	base := store.GenerationAttempt{
		Material:      *item,
		Category:      *category,
		Context:       *contextName,
		ComponentType: *component,
		GuidanceScale: plan.GuidanceScale,
		Uniformity:    plan.Tunables.Uniformity,
		ViewMode:      plan.Tunables.ViewMode,
		PatternsUsed:  plan.Patterns,
		TemplateName:  *template,
	}
	if *guidance > 0 {
		base.GuidanceScale = *guidance
	}

	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("read %s: %v", *file, err)
		}
		base.ArtifactPath = *file
		if !evaluate(ctx, orch, base, string(data), 1) {
			os.Exit(1)
		}
		return
	}

	fmt.Println("Type content to evaluate (or 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	attempt := 0
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		content := strings.TrimSpace(scanner.Text())
		if content == "" {
			continue
		}
		if content == "quit" || content == "exit" {
			break
		}
		attempt++
		evaluate(ctx, orch, base, content, attempt)
	}
}
// #endregion main

// #region evaluate
// evaluate runs one evaluate-decide-record cycle and prints the decision.
// It reports whether the content was accepted.
func evaluate(ctx context.Context, orch *orchestrator.Orchestrator, base store.GenerationAttempt, content string, attempt int) bool {
	res, err := orch.Evaluate(ctx, eval.Request{
		Content:       content,
		ItemName:      base.Material,
		ComponentType: base.ComponentType,
		Context:       base.Context,
	})
	if err != nil {
		log.Printf("evaluation error: %v", err)
		return false
	}
	d := orch.Decide(res)

	a := base
	a.AttemptNumber = attempt
	a.RetryCount = attempt - 1
	a.PromptLength = len(content)
	a.FinalSuccess = d.Passed
	rec, err := orch.RecordOutcome(ctx, orchestrator.Outcome{
		Evaluation: res,
		Content:    content,
		Accepted:   d.Passed,
		Attempt:    a,
	})
	if err != nil {
		log.Printf("record error: %v", err)
	}

	fmt.Printf("\n[%s] decision=%s score=%.1f threshold=%.1f\n", rec.AttemptID, d.Action, d.Score, d.Threshold)
	if d.Reason != "" {
		fmt.Printf("  reason: %s\n", d.Reason)
	}
	for _, issue := range orchestrator.Issues(res) {
		fmt.Printf("  - %s\n", issue)
	}
	return d.Passed
}
// #endregion evaluate

// #region metrics
func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "error", err)
	}
}
// #endregion metrics
