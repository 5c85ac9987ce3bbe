package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"creative-backend/internal/core"
	"creative-backend/internal/core/utils"
	"creative-backend/internal/evaluator"
	"creative-backend/pkg/api"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxAttempts = 2

var (
	ErrInputNotReady       = errors.New("input not ready to evaluate")
	ErrInvalidRegistry     = errors.New("role registry not configured")
	ErrEvaluationTimeout   = errors.New("evaluation timed out")
	ErrEvaluationCancelled = errors.New("evaluation cancelled")
)

type Config struct {
	RunTimeout     time.Duration
	RoleTimeout    time.Duration
	RetryBackoff   time.Duration
	MaxConcurrency int
}

func DefaultConfig() Config {
	return Config{
		RunTimeout:   120 * time.Second,
		RoleTimeout:  60 * time.Second,
		RetryBackoff: 2 * time.Second,
	}
}

// Orchestrator runs every role in the registry against one brief and streams
// progress as it goes.
type Orchestrator struct {
	registry  *core.Registry
	evaluator evaluator.Evaluator
	config    Config
	tracer    trace.Tracer
}

func New(registry *core.Registry, eval evaluator.Evaluator, config Config) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		evaluator: eval,
		config:    config,
		tracer:    otel.Tracer("creative-backend/orchestrator"),
	}
}

func (o *Orchestrator) Registry() *core.Registry {
	return o.registry
}

// Run evaluates input and reports progress through emit. emit is only ever
// called from the calling goroutine, and nothing is emitted after a terminal
// event. A short-circuited run returns its partial result with a nil error.
func (o *Orchestrator) Run(ctx context.Context, evaluationId uuid.UUID, input api.EvaluationInput, emit func(api.Event)) (*api.EvaluationResult, error) {
	ctx, span := o.tracer.Start(ctx, "evaluation.run", trace.WithAttributes(
		attribute.String("evaluation.id", evaluationId.String()),
		attribute.String("evaluation.brand", input.BrandName),
	))
	defer span.End()

	fail := func(err error) (*api.EvaluationResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		emit(api.NewErrorEvent(err.Error()))
		return nil, err
	}

	if o.registry == nil || o.registry.Len() == 0 || o.evaluator == nil {
		return fail(ErrInvalidRegistry)
	}

	input = core.NormalizeInput(input)
	if validation := core.Validate(input); !validation.ReadyToEvaluate {
		return fail(fmt.Errorf("%w: %s", ErrInputNotReady, core.ValidationSummary(validation)))
	}

	runCtx, cancel := withOptionalTimeout(ctx, o.config.RunTimeout)
	defer cancel()

	createdAt := time.Now().UTC()
	baseline := core.BuildContextualBaseline(input)
	req := evaluator.Request{Input: input, Baseline: baseline}
	roles := o.registry.Roles()
	state := newRunState(o.registry)

	slog.Info("starting evaluation", "evaluation_id", evaluationId, "brand", input.BrandName, "roles", state.total)
	emit(api.NewStartEvent(state.total))

	queue := make(chan core.RoleDefinition, len(roles))
	for _, role := range roles {
		queue <- role
	}
	close(queue)

	// Room for every started notice and result means role tasks never block,
	// even after the loop below has stopped reading.
	messages := make(chan utils.CompletedTask[roleMessage], maxAttempts*len(roles)+len(roles))
	worker := func(ctx context.Context, role core.RoleDefinition) (roleMessage, error) {
		return o.runRole(ctx, role, req, messages), nil
	}
	utils.RunInPool(runCtx, worker, queue, messages, o.config.MaxConcurrency)

	interrupted := func() (*api.EvaluationResult, error) {
		if ctx.Err() != nil {
			return fail(fmt.Errorf("%w: %w", ErrEvaluationCancelled, ctx.Err()))
		}
		return fail(fmt.Errorf("%w after %s", ErrEvaluationTimeout, o.config.RunTimeout))
	}

	for {
		select {
		case <-runCtx.Done():
			return interrupted()

		case msg, ok := <-messages:
			// Results produced by tasks that were cut short by the run
			// deadline must not complete the run.
			if runCtx.Err() != nil {
				return interrupted()
			}
			if !ok {
				result := core.BuildResult(o.registry, core.ReportInput{
					EvaluationId: evaluationId,
					CreatedAt:    createdAt,
					Input:        input,
					Baseline:     baseline,
					Results:      state.results,
				})
				span.SetAttributes(
					attribute.String("evaluation.verdict", result.FinalReport.Verdict),
					attribute.Float64("evaluation.index", result.FinalEffectivenessIndex),
				)
				slog.Info("evaluation complete", "evaluation_id", evaluationId, "verdict", result.FinalReport.Verdict, "index", result.FinalEffectivenessIndex)
				emit(api.NewCompleteEvent(result))
				return &result, nil
			}

			batch := drain(messages, msg.Result)
			if !state.fold(batch, emit) {
				continue
			}

			cancel()
			result := core.BuildShortCircuitResult(o.registry, core.ReportInput{
				EvaluationId: evaluationId,
				CreatedAt:    createdAt,
				Input:        input,
				Baseline:     baseline,
				Results:      state.results,
			}, state.failedHardGateRole)
			span.SetAttributes(attribute.String("evaluation.failed_hard_gate", state.failedHardGateRole))
			slog.Info("hard gate failed, terminating evaluation", "evaluation_id", evaluationId, "role", state.failedHardGateRole, "completed", state.completed)
			emit(api.NewHardGateFailedEvent(state.failedHardGateRole))
			emit(api.NewTerminatedEvent(result))
			return &result, nil
		}
	}
}

// drain collects first plus every message already buffered, without
// blocking.
func drain(messages <-chan utils.CompletedTask[roleMessage], first roleMessage) []roleMessage {
	batch := []roleMessage{first}
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return batch
			}
			batch = append(batch, msg.Result)
		default:
			return batch
		}
	}
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// Stream runs an evaluation in the background and returns its events. The
// channel is closed after the terminal event.
func (o *Orchestrator) Stream(ctx context.Context, evaluationId uuid.UUID, input api.EvaluationInput) <-chan api.Event {
	events := make(chan api.Event, 2*maxAttempts*o.registryLen()+4)
	go func() {
		defer close(events)
		_, err := o.Run(ctx, evaluationId, input, func(e api.Event) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		})
		if err != nil {
			slog.Error("streamed evaluation failed", "evaluation_id", evaluationId, "error", err)
		}
	}()
	return events
}

func (o *Orchestrator) registryLen() int {
	if o.registry == nil {
		return 0
	}
	return o.registry.Len()
}

func (o *Orchestrator) runRole(ctx context.Context, role core.RoleDefinition, req evaluator.Request, notices chan<- utils.CompletedTask[roleMessage]) roleMessage {
	ctx, span := o.tracer.Start(ctx, "evaluation.role", trace.WithAttributes(
		attribute.Int("role.id", role.Id),
		attribute.String("role.name", role.Name),
	))
	defer span.End()

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(o.config.RetryBackoff):
			case <-ctx.Done():
				return o.failed(span, role, err)
			}
		}

		notices <- utils.CompletedTask[roleMessage]{Result: roleMessage{role: role, started: true, attempt: attempt}}

		var result api.RoleResult
		result, err = o.attempt(ctx, role, req)
		if err == nil {
			span.SetAttributes(attribute.String("role.verdict", result.Verdict))
			return roleMessage{role: role, attempt: attempt, result: result}
		}

		slog.Warn("role evaluation attempt failed", "role", role.Name, "attempt", attempt, "error", err)
		if !evaluator.Retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return o.failed(span, role, err)
}

func (o *Orchestrator) failed(span trace.Span, role core.RoleDefinition, err error) roleMessage {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return roleMessage{role: role, result: evaluator.FailedResult(role, err), err: err}
}

type attemptResult struct {
	result api.RoleResult
	err    error
}

// attempt bounds a single evaluator call by the role timeout, even if the
// evaluator does not watch its context.
func (o *Orchestrator) attempt(ctx context.Context, role core.RoleDefinition, req evaluator.Request) (api.RoleResult, error) {
	attemptCtx, cancel := withOptionalTimeout(ctx, o.config.RoleTimeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		result, err := o.evaluator.Evaluate(attemptCtx, role, req)
		done <- attemptResult{result: result, err: err}
	}()

	var out attemptResult
	select {
	case out = <-done:
	case <-attemptCtx.Done():
		out = attemptResult{err: attemptCtx.Err()}
	}

	if out.err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return api.RoleResult{}, fmt.Errorf("%w: no response within %s", evaluator.ErrEvaluatorTimeout, o.config.RoleTimeout)
		}
		return api.RoleResult{}, evaluator.Classify(out.err)
	}
	return checkResult(role, out.result)
}

// checkResult enforces the result invariants regardless of which evaluator
// produced it.
func checkResult(role core.RoleDefinition, result api.RoleResult) (api.RoleResult, error) {
	result.RoleId = role.Id
	result.RoleName = role.Name
	result.IsHardGate = role.IsHardGate

	switch result.Verdict {
	case api.VerdictPass:
		if result.Score == nil || *result.Score < 0 || *result.Score > core.MaxScore {
			return api.RoleResult{}, fmt.Errorf("%w: PASS requires a score in [0, %v]", evaluator.ErrEvaluatorMalformedOutput, core.MaxScore)
		}
	case api.VerdictFail:
		result.Score = nil
	default:
		return api.RoleResult{}, fmt.Errorf("%w: unknown verdict '%s'", evaluator.ErrEvaluatorMalformedOutput, result.Verdict)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return api.RoleResult{}, fmt.Errorf("%w: confidence %v outside [0, 1]", evaluator.ErrEvaluatorMalformedOutput, result.Confidence)
	}
	return result, nil
}
