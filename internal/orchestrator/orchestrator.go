package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/danielpatrickdp/adaptive-eval/internal/eval"
	"github.com/danielpatrickdp/adaptive-eval/internal/gate"
	"github.com/danielpatrickdp/adaptive-eval/internal/logging"
	"github.com/danielpatrickdp/adaptive-eval/internal/patterns"
	"github.com/danielpatrickdp/adaptive-eval/internal/store"
)

// #endregion

// #region orchestrator-struct

// Orchestrator runs the feedback loop: evaluate content with learned hints,
// then feed the caller's decision back into the pattern learner and the
// attempt store.
type Orchestrator struct {
	evaluator *eval.Evaluator
	learner   *patterns.Learner
	store     *store.Store
	gate      *gate.Gate
	config    Config
	logger    *slog.Logger
}

// #endregion

// #region constructor

// NewOrchestrator creates a fully wired orchestrator.
// Kill switch: Config.LearningEnabled=false (LEARNING_ENABLED=false) still
// evaluates and logs attempts but stops every learning write.
func NewOrchestrator(judge eval.Judge, learner *patterns.Learner, st *store.Store, config Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	parse := eval.DefaultParseConfig()
	parse.PassThreshold = config.PassThreshold
	return &Orchestrator{
		evaluator: eval.NewEvaluator(judge, parse, logger),
		learner:   learner,
		store:     st,
		gate:      gate.NewGate(gate.GateConfig{PassThreshold: config.PassThreshold}),
		config:    config,
		logger:    logger,
	}
}

// #endregion

// #region enabled

// Enabled returns whether learning writes are active.
func (o *Orchestrator) Enabled() bool {
	return o.config.LearningEnabled
}

// #endregion

// #region plan

// Plan resolves the generation parameters and prompt hints for a key.
func (o *Orchestrator) Plan(ctx context.Context, category, contextName string) (Plan, error) {
	tun, learned, err := o.store.ResolveDefaults(ctx, category, contextName)
	if err != nil {
		return Plan{}, err
	}
	threshold, err := o.store.SuggestedThreshold(ctx, category, contextName)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{
		Category:           category,
		Context:            contextName,
		Tunables:           tun,
		Learned:            learned,
		SuggestedThreshold: threshold,
		GuidanceScale:      tun.GuidanceScale,
		Hints:              o.learner.Hints(),
	}

	// Learned defaults already track the key; the category mean only fills
	// in for unseen keys.
	if !learned {
		if g, ok, err := o.store.OptimalGuidanceScale(ctx, category); err != nil {
			return Plan{}, err
		} else if ok {
			plan.GuidanceScale = g
		}
	}

	ranked, err := o.store.PatternRanking(ctx, category, contextName, o.config.MinPatternUses)
	if err != nil {
		return Plan{}, err
	}
	for i, p := range ranked {
		if i >= o.config.TopPatterns {
			break
		}
		plan.Patterns = append(plan.Patterns, p.PatternID)
	}

	o.logger.Debug("generation plan",
		"category", category,
		"context", contextName,
		"learned", learned,
		"guidance_scale", plan.GuidanceScale,
		"threshold", threshold,
		"patterns", plan.Patterns,
	)
	return plan, nil
}

// #endregion

// #region evaluate

// Evaluate scores content through the judge. Avoidance and success hints
// from the pattern learner are added unless learning is disabled.
func (o *Orchestrator) Evaluate(ctx context.Context, req eval.Request) (eval.EvaluationResult, error) {
	if o.config.LearningEnabled {
		req.Hints = o.learner.Hints()
	}
	res, err := o.evaluator.Evaluate(ctx, req)
	if err != nil {
		if auditErr := logging.LogEvaluation(o.store.DB(), logging.AuditEntry{
			ItemName:      req.ItemName,
			ComponentType: req.ComponentType,
			Decision:      "error",
			Reason:        err.Error(),
		}); auditErr != nil {
			o.logger.Error("audit write failed", "item", req.ItemName, "error", auditErr)
		}
		return eval.EvaluationResult{}, err
	}
	return res, nil
}

// Decide turns an evaluation into an accept/reject decision. An explicit
// verdict from the judge wins over the threshold.
func (o *Orchestrator) Decide(res eval.EvaluationResult) gate.GateDecision {
	return eval.Decide(o.gate, res)
}

// #endregion

// #region record-outcome

// RecordOutcome feeds an evaluated attempt back into the engine: pattern
// learner, attempt log, learned defaults on success, pattern and template
// effectiveness, and the audit log. The attempt is logged even when a
// learning write fails; every failure is returned.
func (o *Orchestrator) RecordOutcome(ctx context.Context, out Outcome) (RecordResult, error) {
	a := o.attemptFrom(out)
	var errs []error

	if o.config.LearningEnabled {
		if err := o.learner.Update(out.Evaluation, out.Content, out.Accepted, a.ComponentType, a.Material); err != nil {
			o.logger.Error("pattern learner update failed", "item", a.Material, "error", err)
			errs = append(errs, fmt.Errorf("pattern learner: %w", err))
		}
	}

	id, err := o.store.LogAttempt(ctx, a)
	if err != nil {
		return RecordResult{}, errors.Join(append(errs, err)...)
	}
	result := RecordResult{AttemptID: id, Learned: o.config.LearningEnabled}

	if o.config.LearningEnabled {
		score := 0.0
		if a.RealismScore != nil {
			score = *a.RealismScore
		}
		if out.Accepted && a.RealismScore != nil {
			aging, contamination := a.AgingWeight, a.ContaminationWeight
			rec, err := o.store.UpdateLearnedDefaultsFromSuccess(ctx, store.SuccessObservation{
				Category:            a.Category,
				Context:             a.Context,
				GuidanceScale:       a.GuidanceScale,
				Score:               score,
				AgingWeight:         &aging,
				ContaminationWeight: &contamination,
			})
			if err != nil {
				errs = append(errs, err)
			} else {
				result.Defaults = &rec
			}
		}
		if err := o.store.UpdatePatternEffectiveness(ctx, a.PatternsUsed, a.Category, a.Context, out.Accepted, score); err != nil {
			errs = append(errs, err)
		}
		if err := o.store.RecordTemplateUsage(ctx, store.TemplateUsage{
			Name:    a.TemplateName,
			Version: out.TemplateVersion,
			Passed:  out.Accepted,
			Score:   score,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	decision := "reject"
	if out.Accepted {
		decision = "accept"
	}
	if err := logging.LogEvaluation(o.store.DB(), logging.AuditEntry{
		AttemptID:     id,
		ItemName:      a.Material,
		ComponentType: a.ComponentType,
		RawText:       out.Evaluation.Raw(),
		OverallScore:  overallScore(out.Evaluation),
		Passed:        out.Evaluation.Passed(),
		Decision:      decision,
		Reason:        out.Evaluation.Narrative(),
	}); err != nil {
		errs = append(errs, err)
	}

	o.logger.Info("outcome recorded",
		"attempt_id", id,
		"material", a.Material,
		"category", a.Category,
		"context", a.Context,
		"accepted", out.Accepted,
		"learning", o.config.LearningEnabled,
	)
	return result, errors.Join(errs...)
}

// attemptFrom fills the attempt's validation fields from the evaluation.
func (o *Orchestrator) attemptFrom(out Outcome) store.GenerationAttempt {
	a := out.Attempt
	if realism, ok := out.Evaluation.RealismScore(); ok {
		a.RealismScore = &realism
	}
	if a.PassThreshold == 0 {
		a.PassThreshold = o.config.PassThreshold * 10
	}
	a.Passed = out.Accepted
	if a.AttemptNumber == 0 {
		a.AttemptNumber = a.RetryCount + 1
	}
	a.Issues = append(a.Issues, Issues(out.Evaluation)...)
	return a
}

// Issues flattens the evaluation's detection lists into attempt issues.
func Issues(res eval.EvaluationResult) []string {
	var out []string
	for _, kind := range eval.DetectionKinds {
		for _, item := range res.Detections(kind) {
			out = append(out, issueLabels[kind]+": "+item)
		}
	}
	return out
}

var issueLabels = map[eval.DetectionKind]string{
	eval.TechnicalJargonIssues: "technical jargon",
	eval.AITendencies:          "ai tendency",
	eval.TheatricalPhrases:     "theatrical phrase",
	eval.FormulaicStructures:   "formulaic structure",
}

func overallScore(res eval.EvaluationResult) *float64 {
	if v, ok := res.Score(eval.OverallRealism); ok {
		return &v
	}
	return nil
}

// #endregion
