package evaluator

import (
	"context"
	"errors"
	"fmt"

	"creative-backend/internal/core"
	"creative-backend/pkg/api"
)

var (
	ErrEvaluatorUnavailable     = errors.New("evaluator unavailable")
	ErrEvaluatorTimeout         = errors.New("evaluator timeout")
	ErrEvaluatorMalformedOutput = errors.New("evaluator malformed output")
)

// Request is the isolated view of a run handed to one role. It never carries
// other roles' results.
type Request struct {
	Input    api.EvaluationInput
	Baseline api.ContextualBaseline
}

type Evaluator interface {
	Evaluate(ctx context.Context, role core.RoleDefinition, req Request) (api.RoleResult, error)
}

// Classify maps an arbitrary evaluator error onto one of the three failure
// kinds. Unrecognised errors count as the service being unavailable.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEvaluatorUnavailable), errors.Is(err, ErrEvaluatorTimeout), errors.Is(err, ErrEvaluatorMalformedOutput):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrEvaluatorTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrEvaluatorUnavailable, err)
	}
}

// Retryable reports whether a second attempt could succeed. Malformed output
// is deterministic for a given prompt, so it is not retried.
func Retryable(err error) bool {
	return errors.Is(err, ErrEvaluatorUnavailable) || errors.Is(err, ErrEvaluatorTimeout)
}

// FailureKind names the failure for the synthetic result's justification.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrEvaluatorTimeout):
		return "EvaluatorTimeout"
	case errors.Is(err, ErrEvaluatorMalformedOutput):
		return "EvaluatorMalformedOutput"
	default:
		return "EvaluatorUnavailable"
	}
}

// FailedResult is recorded for a role whose evaluator could not produce a
// usable result.
func FailedResult(role core.RoleDefinition, err error) api.RoleResult {
	return api.RoleResult{
		RoleId:        role.Id,
		RoleName:      role.Name,
		IsHardGate:    role.IsHardGate,
		Verdict:       api.VerdictFail,
		Confidence:    0,
		Justification: fmt.Sprintf("%s: %v", FailureKind(err), err),
	}
}
