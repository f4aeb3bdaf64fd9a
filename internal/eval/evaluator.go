package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielpatrickdp/adaptive-eval/internal/gate"
)

var (
	judgeCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adaptive_judge_calls_total",
		Help: "Judge model calls by outcome",
	}, []string{"outcome"})

	parseMissingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adaptive_judge_missing_labels_total",
		Help: "Judge responses missing an expected label",
	}, []string{"label"})
)

var errEmptyJudgeResponse = errors.New("empty judge response")

// #region evaluator
// Evaluator sends content to a judge model and parses the verdict.
type Evaluator struct {
	judge  Judge
	config ParseConfig
	logger *slog.Logger
}

// NewEvaluator creates an evaluator. A nil logger uses slog.Default().
func NewEvaluator(judge Judge, config ParseConfig, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{judge: judge, config: config, logger: logger}
}

// Evaluate builds the evaluation prompt, calls the judge, parses the answer
// and validates the scores before returning them. A judge failure is a hard
// error; no score is invented in its place.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (EvaluationResult, error) {
	prompt := BuildPrompt(req)
	return gate.Guard("evaluate", func() (EvaluationResult, error) {
		raw, err := e.judge.Judge(ctx, JudgeRequest{
			Prompt:        prompt,
			ItemName:      req.ItemName,
			ComponentType: req.ComponentType,
		})
		if err == nil && strings.TrimSpace(raw) == "" {
			err = errEmptyJudgeResponse
		}
		if err != nil {
			judgeCallsTotal.WithLabelValues("error").Inc()
			e.logger.Error("judge call failed", "item", req.ItemName, "component", req.ComponentType, "error", err)
			return EvaluationResult{}, &JudgeCallError{Item: req.ItemName, Err: err}
		}
		judgeCallsTotal.WithLabelValues("ok").Inc()

		result, report := Parse(raw, e.config)
		for _, label := range report.Missing {
			parseMissingTotal.WithLabelValues(label).Inc()
		}
		if len(report.Missing) > 0 || len(report.Unparsed) > 0 {
			e.logger.Warn("judge output incomplete",
				"item", req.ItemName,
				"missing", report.Missing,
				"unparsed", report.Unparsed,
			)
		}
		overall, _ := result.Score(OverallRealism)
		e.logger.Debug("evaluation parsed",
			"item", req.ItemName,
			"overall_realism", overall,
			"passed", result.Passed(),
			"pass_source", report.PassSource,
		)
		return result, nil
	})
}

// Decide turns a parsed result into a gate decision. An explicit judge
// verdict wins over the threshold.
func Decide(g *gate.Gate, res EvaluationResult) gate.GateDecision {
	overall, ok := res.Score(OverallRealism)
	d := g.Decide(overall, ok)
	if d.Passed == res.Passed() {
		return d
	}
	d.Passed = res.Passed()
	if d.Passed {
		d.Action = "accept"
		d.Reason = "judge verdict PASS overrides threshold"
	} else {
		d.Action = "reject"
		d.Reason = "judge verdict FAIL overrides threshold"
	}
	return d
}

// #endregion evaluator

// #region prompt
// BuildPrompt renders the evaluation prompt: rubric, learned hints and the
// content under review.
func BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate the following %s for %q", nonEmpty(req.ComponentType, "content"), req.ItemName)
	if req.Context != "" {
		fmt.Fprintf(&b, " (context: %s)", req.Context)
	}
	b.WriteString(".\n\nScore each dimension from 0 to 10:\n")
	for _, d := range Dimensions {
		fmt.Fprintf(&b, "**%s (0-10)**: <number>\n", labelFor(string(d)))
	}
	b.WriteString("\n**Reasoning**: <one paragraph>\n\n")
	b.WriteString("List detected problems, comma separated, or \"none\":\n")
	for _, k := range DetectionKinds {
		fmt.Fprintf(&b, "%s: <items>\n", labelFor(string(k)))
	}
	b.WriteString("\n**Pass/Fail**: PASS or FAIL\n")

	h := req.Hints
	if len(h.AvoidPhrases) > 0 {
		fmt.Fprintf(&b, "\nPhrases that previously failed review: %s\n", strings.Join(h.AvoidPhrases, ", "))
	}
	if len(h.AvoidTendencies) > 0 {
		fmt.Fprintf(&b, "Recurring AI tendencies to flag: %s\n", strings.Join(h.AvoidTendencies, ", "))
	}
	if len(h.CharacteristicVerbs) > 0 {
		fmt.Fprintf(&b, "Verbs typical of accepted content: %s\n", strings.Join(h.CharacteristicVerbs, ", "))
	}
	if h.TargetRealism > 0 {
		fmt.Fprintf(&b, "Accepted content averages %.1f/100 realism.\n", h.TargetRealism)
	}

	b.WriteString("\n---\n")
	b.WriteString(req.Content)
	b.WriteString("\n---\n")
	return b.String()
}

func labelFor(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "ai" {
			words[i] = "AI"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// #endregion prompt
