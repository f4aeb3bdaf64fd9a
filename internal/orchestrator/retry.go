package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-eval/internal/eval"
	"github.com/danielpatrickdp/adaptive-eval/internal/gate"
	"github.com/danielpatrickdp/adaptive-eval/internal/store"
)

// #endregion

// #region constants

const maxRetries = 2 // max 2 retries = 3 total attempts

// #endregion

// #region should-retry

// ShouldRetry reports whether another attempt is worth making. attempts is
// the number already made, including the one that produced err/decision.
// Judge failures and score inconsistencies are never retried: a retry would
// hide them.
func ShouldRetry(attempts int, decision gate.GateDecision, err error) bool {
	if err != nil {
		return false
	}
	if attempts > maxRetries {
		return false
	}
	return !decision.Passed
}

// #endregion

// #region generator

// Generator produces content for one attempt. feedback is nil on the first
// attempt and carries the previous rejection afterwards.
type Generator interface {
	Generate(ctx context.Context, plan Plan, feedback *Feedback) (Draft, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, plan Plan, feedback *Feedback) (Draft, error)

func (f GeneratorFunc) Generate(ctx context.Context, plan Plan, feedback *Feedback) (Draft, error) {
	return f(ctx, plan, feedback)
}

// Draft is one generated piece of content and the parameters used for it.
type Draft struct {
	Content         string
	Attempt         store.GenerationAttempt
	TemplateVersion string
}

// Feedback is what the previous rejected attempt taught.
type Feedback struct {
	Attempt  int
	Decision gate.GateDecision
	Issues   []string
}

// #endregion

// #region run

// RunResult is the outcome of a full generate-evaluate loop.
type RunResult struct {
	Content    string
	Evaluation eval.EvaluationResult
	Decision   gate.GateDecision
	Attempts   int
	AttemptIDs []string
}

// Run plans, generates, evaluates, decides and records until content is
// accepted or retries run out. A rejected final attempt is not an error.
func (o *Orchestrator) Run(ctx context.Context, gen Generator, req eval.Request, category, contextName string) (RunResult, error) {
	plan, err := o.Plan(ctx, category, contextName)
	if err != nil {
		return RunResult{}, err
	}

	var (
		result     RunResult
		feedback   *Feedback
		recordErrs []error
	)
	for attempt := 1; ; attempt++ {
		draft, err := gen.Generate(ctx, plan, feedback)
		if err != nil {
			return result, fmt.Errorf("generate attempt %d: %w", attempt, err)
		}
		req.Content = draft.Content
		res, err := o.Evaluate(ctx, req)
		if err != nil {
			return result, err
		}
		decision := o.Decide(res)

		a := draft.Attempt
		a.Material = nonEmpty(a.Material, req.ItemName)
		a.ComponentType = nonEmpty(a.ComponentType, req.ComponentType)
		a.Category = nonEmpty(a.Category, category)
		a.Context = nonEmpty(a.Context, contextName)
		if a.GuidanceScale == 0 {
			a.GuidanceScale = plan.GuidanceScale
		}
		if len(a.PatternsUsed) == 0 {
			a.PatternsUsed = plan.Patterns
		}
		a.AttemptNumber = attempt
		a.RetryCount = attempt - 1
		a.FeedbackApplied = a.FeedbackApplied || feedback != nil
		a.FinalSuccess = decision.Passed

		rec, recErr := o.RecordOutcome(ctx, Outcome{
			Evaluation:      res,
			Content:         draft.Content,
			Accepted:        decision.Passed,
			Attempt:         a,
			TemplateVersion: draft.TemplateVersion,
		})
		if rec.AttemptID != "" {
			result.AttemptIDs = append(result.AttemptIDs, rec.AttemptID)
		}
		result.Content = draft.Content
		result.Evaluation = res
		result.Decision = decision
		result.Attempts = attempt
		if errors.Is(recErr, gate.ErrScoreInconsistency) {
			return result, recErr
		}
		if recErr != nil {
			// learning failures do not stop the loop; they are returned at the end
			o.logger.Warn("record outcome failed", "attempt", attempt, "error", recErr)
			recordErrs = append(recordErrs, recErr)
		}

		if !ShouldRetry(attempt, decision, nil) {
			o.logger.Info("run finished",
				"item", req.ItemName,
				"attempts", attempt,
				"accepted", decision.Passed,
			)
			return result, errors.Join(recordErrs...)
		}
		feedback = &Feedback{Attempt: attempt, Decision: decision, Issues: Issues(res)}
		o.logger.Info("retrying", "item", req.ItemName, "attempt", attempt, "reason", decision.Reason)
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// #endregion
