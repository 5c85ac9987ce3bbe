package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"creative-backend/internal/core"
	"creative-backend/internal/evaluator"
	"creative-backend/pkg/api"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	brandMemoryRole = "Brand Memory & Distinctiveness Specialist"
	commercialRole  = "Commercial Impact Analyst"
)

type behaviour func(ctx context.Context, role core.RoleDefinition, call int) (api.RoleResult, error)

type fakeEvaluator struct {
	mu    sync.Mutex
	calls map[int]int
	fn    behaviour
}

func newFakeEvaluator(fn behaviour) *fakeEvaluator {
	return &fakeEvaluator{calls: map[int]int{}, fn: fn}
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, role core.RoleDefinition, req evaluator.Request) (api.RoleResult, error) {
	f.mu.Lock()
	f.calls[role.Id]++
	call := f.calls[role.Id]
	f.mu.Unlock()
	return f.fn(ctx, role, call)
}

func (f *fakeEvaluator) callCount(roleId int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[roleId]
}

func passResult(role core.RoleDefinition, score, confidence float64) api.RoleResult {
	var layers []api.LayerScore
	for _, id := range role.FrameworkLayers {
		ls := api.LayerScore{LayerId: id, LayerName: core.LayerName(id), Verdict: api.LayerPass, FailConditions: []string{}}
		if id == core.LayerRisk {
			ls.SubScores = map[string]string{core.CriterionWearOut: "Low", core.CriterionRepRisk: "Low"}
		}
		layers = append(layers, ls)
	}
	return api.RoleResult{
		Verdict:       api.VerdictPass,
		Score:         &score,
		Confidence:    confidence,
		Justification: fmt.Sprintf("%s finds the work effective.", role.ShortName),
		LayerScores:   layers,
	}
}

func failResult(confidence float64) api.RoleResult {
	return api.RoleResult{Verdict: api.VerdictFail, Confidence: confidence, Justification: "The brand is not recognisable."}
}

func blockUntilDone(ctx context.Context) (api.RoleResult, error) {
	<-ctx.Done()
	return api.RoleResult{}, ctx.Err()
}

func validInput() api.EvaluationInput {
	return api.EvaluationInput{
		BrandName:         "Acme",
		Category:          "Snacks",
		CampaignObjective: "long-term brand growth",
		PrimaryChannels:   []string{"TV", "Online Video"},
		TargetAudience:    "Busy parents aged 30-45 who shop weekly for the family and value convenience",
		BrandStatus:       api.BrandStatusStrongChallenger,
		MarketContext: &api.MarketContext{
			MarketMaturity:      api.MaturityMature,
			CategoryClutter:     api.LevelHigh,
			PurchaseFrequency:   api.LevelHigh,
			DecisionInvolvement: api.LevelLow,
		},
		Creative: &api.CreativeAsset{
			Description: strings.Repeat("A family road trip goes wrong until the snack brings everyone back together. ", 3),
		},
	}
}

func testConfig() Config {
	return Config{
		RunTimeout:   5 * time.Second,
		RoleTimeout:  time.Second,
		RetryBackoff: time.Millisecond,
	}
}

type recorder struct {
	events []api.Event
}

func (r *recorder) emit(e api.Event) {
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t string) []api.Event {
	var out []api.Event
	for _, e := range r.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) roleUpdates(roleName string) int {
	count := 0
	for _, e := range r.ofType(api.EventRoleUpdate) {
		if e.(api.RoleUpdateEvent).Role.RoleName == roleName {
			count++
		}
	}
	return count
}

func checkTerminalLast(t *testing.T, r *recorder) {
	require.NotEmpty(t, r.events)
	for i, e := range r.events {
		if api.IsTerminal(e) {
			assert.Equal(t, len(r.events)-1, i, "terminal event must be last")
		}
	}
}

func TestAllRolesPassRecommend(t *testing.T) {
	registry := core.DefaultRegistry()
	eval := newFakeEvaluator(func(ctx context.Context, role core.RoleDefinition, call int) (api.RoleResult, error) {
		return passResult(role, 8, 0.9), nil
	})

	rec := &recorder{}
	result, err := New(registry, eval, testConfig()).Run(context.Background(), uuid.New(), validInput(), rec.emit)
	require.NoError(t, err)
	require.NotNil(t, result)

	require.IsType(t, api.StartEvent{}, rec.events[0])
	assert.Equal(t, 8, rec.events[0].(api.StartEvent).TotalRoles)
	checkTerminalLast(t, rec)

	completes := rec.ofType(api.EventRoleComplete)
	require.Len(t, completes, 8)
	for i, e := range completes {
		assert.Equal(t, i+1, e.(api.RoleCompleteEvent).Progress)
	}
	assert.Len(t, rec.ofType(api.EventRoleUpdate), 8)
	require.Len(t, rec.ofType(api.EventComplete), 1)
	assert.Empty(t, rec.ofType(api.EventHardGateFailed))

	// 8 * 0.9 * 7.6 for the scored roles, less (10 - 8) * 0.9 * 0.8 for the adversarial role.
	assert.InDelta(t, 53.28, result.FinalEffectivenessIndex, 1e-6)
	assert.InDelta(t, 1.44, result.AdversarialPenalty, 1e-6)
	assert.Equal(t, api.RecommendVerdict, result.FinalReport.Verdict)
	assert.Equal(t, api.LevelHigh, result.FinalReport.ConfidenceLevel)
	assert.Equal(t, result.FinalReport.Verdict, result.Appendix.Verdict)
	assert.False(t, result.HardGateFailed)
	assert.Equal(t, api.ObjectiveLongTerm, result.InputSummary.Objective)
	require.Len(t, result.RoleResults, 8)
	for i, r := range result.RoleResults {
		assert.Equal(t, registry.Roles()[i].Id, r.RoleId)
	}

	final := rec.events[len(rec.events)-1].(api.CompleteEvent)
	assert.Equal(t, *result, final.Result)
}

func TestBrandMemoryHardGateShortCircuits(t *testing.T) {
	eval := newFakeEvaluator(func(ctx context.Context, role core.RoleDefinition, call int) (api.RoleResult, error) {
		switch role.Id {
		case 1, 2:
			return passResult(role, 7.5, 0.8), nil
		case 3:
			time.Sleep(100 * time.Millisecond)
			return failResult(0.9), nil
		default:
			return blockUntilDone(ctx)
		}
	})

	rec := &recorder{}
	result, err := New(core.DefaultRegistry(), eval, testConfig()).Run(context.Background(), uuid.New(), validInput(), rec.emit)
	require.NoError(t, err)
	require.NotNil(t, result)

	checkTerminalLast(t, rec)
	assert.Len(t, rec.ofType(api.EventRoleComplete), 3)
	failed := rec.ofType(api.EventHardGateFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, brandMemoryRole, failed[0].(api.HardGateFailedEvent).Role)
	assert.Empty(t, rec.ofType(api.EventComplete))
	require.Len(t, rec.ofType(api.EventTerminated), 1)

	assert.True(t, result.HardGateFailed)
	assert.Equal(t, brandMemoryRole, result.FailedHardGateRole)
	assert.Len(t, result.RoleResults, 3)
	assert.Equal(t, api.DoNotRecommendVerdict, result.FinalReport.Verdict)
	assert.Equal(t, "HARD GATE FAILED: "+brandMemoryRole, result.FinalReport.TopRisks[0])
	assert.Zero(t, result.FinalEffectivenessIndex)
}

func TestDoubleTimeoutBecomesSyntheticFail(t *testing.T) {
	registry := core.DefaultRegistry()
	audience, _ := registry.Role(4)

	eval := newFakeEvaluator(func(ctx context.Context, role core.RoleDefinition, call int) (api.RoleResult, error) {
		if role.Id == audience.Id {
			return blockUntilDone(ctx)
		}
		return passResult(role, 8, 0.9), nil
	})

	config := testConfig()
	config.RoleTimeout = 30 * time.Millisecond

	rec := &recorder{}
	result, err := New(registry, eval, config).Run(context.Background(), uuid.New(), validInput(), rec.emit)
	require.NoError(t, err)

	assert.Equal(t, 2, eval.callCount(audience.Id))
	assert.Equal(t, 2, rec.roleUpdates(audience.Name))
	require.Len(t, rec.ofType(api.EventComplete), 1)

	var synthetic api.RoleResult
	for _, r := range result.RoleResults {
		if r.RoleId == audience.Id {
			synthetic = r
		}
	}
	assert.Equal(t, api.VerdictFail, synthetic.Verdict)
	assert.Nil(t, synthetic.Score)
	assert.Zero(t, synthetic.Confidence)
	assert.True(t, strings.HasPrefix(synthetic.Justification, "EvaluatorTimeout: "), synthetic.Justification)

	assert.Equal(t, api.ReviseVerdict, result.FinalReport.Verdict)
	assert.Equal(t, api.LevelLow, result.FinalReport.ConfidenceLevel)
}

func TestRetryPolicy(t *testing.T) {
	eval := newFakeEvaluator(func(ctx context.Context, role core.RoleDefinition, call int) (api.RoleResult, error) {
		switch {
		case role.Id == 5:
			return api.RoleResult{}, fmt.Errorf("%w: not json", evaluator.ErrEvaluatorMalformedOutput)
		case role.Id == 7 && call == 1:
			return api.RoleResult{}, fmt.Errorf("%w: 503", evaluator.ErrEvaluatorUnavailable)
		}
		return passResult(role, 8, 0.9), nil
	})

	result, err := New(core.DefaultRegistry(), eval, testConfig()).Run(context.Background(), uuid.New(), validInput(), func(api.Event) {})
	require.NoError(t, err)

	assert.Equal(t, 1, eval.callCount(5))
	assert.Equal(t, 2, eval.callCount(7))

	byId := map[int]api.RoleResult{}
	for _, r := range result.RoleResults {
		byId[r.RoleId] = r
	}
	assert.Equal(t, api.VerdictFail, byId[5].Verdict)
	assert.True(t, strings.HasPrefix(byId[5].Justification, "EvaluatorMalformedOutput: "))
	assert.Equal(t, api.VerdictPass, byId[7].Verdict)
}

func TestSyntheticHardGateFailureShortCircuits(t *testing.T) {
	eval := newFakeEvaluator(func(ctx context.Context, role core.RoleDefinition, call int) (api.RoleResult, error) {
		if role.Id == 2 {
			return api.RoleResult{}, errors.New("connection reset")
		}
		return passResult(role, 8, 0.9), nil
	})

	rec := &recorder{}
	result, err := New(core.DefaultRegistry(), eval, testConfig()).Run(context.Background(), uuid.New(), validInput(), rec.emit)
	require.NoError(t, err)

	assert.True(t, result.HardGateFailed)
	assert.Equal(t, commercialRole, result.FailedHardGateRole)
	assert.Equal(t, 2, eval.callCount(2))
	assert.Equal(t, api.EventTerminated, rec.events[len(rec.events)-1].EventType())
}

func TestAggregationIndependentOfArrivalOrder(t *testing.T) {
	run := func(delay func(id int) time.Duration) *api.EvaluationResult {
		eval := newFakeEvaluator(func(ctx context.Context, role core.RoleDefinition, call int) (api.RoleResult, error) {
			time.Sleep(delay(role.Id))
			return passResult(role, float64(role.Id)+1.5, 0.6+float64(role.Id)/40), nil
		})
		result, err := New(core.DefaultRegistry(), eval, testConfig()).Run(context.Background(), uuid.New(), validInput(), func(api.Event) {})
		require.NoError(t, err)
		return result
	}

	forward := run(func(id int) time.Duration { return time.Duration(id) * 5 * time.Millisecond })
	reverse := run(func(id int) time.Duration { return time.Duration(9-id) * 5 * time.Millisecond })

	assert.Equal(t, forward.FinalEffectivenessIndex, reverse.FinalEffectivenessIndex)
	assert.Equal(t, forward.AdversarialPenalty, reverse.AdversarialPenalty)
	assert.Equal(t, forward.FinalReport, reverse.FinalReport)
	assert.Equal(t, forward.RoleResults, reverse.RoleResults)
}

func TestInputNotReady(t *testing.T) {
	eval := newFakeEvaluator(func(ctx context.Context, role core.RoleDefinition, call int) (api.RoleResult, error) {
		return passResult(role, 8, 0.9), nil
	})

	input := validInput()
	input.TargetAudience = "parents"

	rec := &recorder{}
	result, err := New(core.DefaultRegistry(), eval, testConfig()).Run(context.Background(), uuid.New(), input, rec.emit)
	assert.ErrorIs(t, err, ErrInputNotReady)
	assert.Nil(t, result)

	require.Len(t, rec.events, 1)
	msg := rec.events[0].(api.ErrorEvent).Message
	assert.Contains(t, msg, "Target Audience")
	assert.Zero(t, eval.callCount(1))
}

func TestRunTimeout(t *testing.T) {
	eval := newFakeEvaluator(func(ctx context.Context, role core.RoleDefinition, call int) (api.RoleResult, error) {
		return blockUntilDone(ctx)
	})

	config := testConfig()
	config.RunTimeout = 50 * time.Millisecond

	rec := &recorder{}
	_, err := New(core.DefaultRegistry(), eval, config).Run(context.Background(), uuid.New(), validInput(), rec.emit)
	assert.ErrorIs(t, err, ErrEvaluationTimeout)
	checkTerminalLast(t, rec)
	assert.Equal(t, api.EventError, rec.events[len(rec.events)-1].EventType())
	assert.Len(t, rec.ofType(api.EventError), 1)
}

func TestCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eval := newFakeEvaluator(func(ctx context.Context, role core.RoleDefinition, call int) (api.RoleResult, error) {
		if role.Id == 1 {
			cancel()
		}
		return blockUntilDone(ctx)
	})

	rec := &recorder{}
	_, err := New(core.DefaultRegistry(), eval, testConfig()).Run(ctx, uuid.New(), validInput(), rec.emit)
	assert.ErrorIs(t, err, ErrEvaluationCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, api.EventError, rec.events[len(rec.events)-1].EventType())
}

func TestStream(t *testing.T) {
	eval := newFakeEvaluator(func(ctx context.Context, role core.RoleDefinition, call int) (api.RoleResult, error) {
		return passResult(role, 8, 0.9), nil
	})

	var types []string
	for e := range New(core.DefaultRegistry(), eval, testConfig()).Stream(context.Background(), uuid.New(), validInput()) {
		types = append(types, e.EventType())
	}
	require.NotEmpty(t, types)
	assert.Equal(t, api.EventStart, types[0])
	assert.Equal(t, api.EventComplete, types[len(types)-1])
}

func TestFoldBreaksTiesInRegistryOrder(t *testing.T) {
	registry := core.DefaultRegistry()
	commercial, _ := registry.Role(2)
	brandMemory, _ := registry.Role(3)

	state := newRunState(registry)
	rec := &recorder{}

	// Brand Memory arrived first, but Commercial precedes it in the registry.
	hardGateFailed := state.fold([]roleMessage{
		{role: brandMemory, started: true, attempt: 1},
		{role: commercial, started: true, attempt: 1},
		{role: brandMemory, result: api.RoleResult{RoleId: brandMemory.Id, RoleName: brandMemory.Name, Verdict: api.VerdictFail}},
		{role: commercial, result: api.RoleResult{RoleId: commercial.Id, RoleName: commercial.Name, Verdict: api.VerdictFail}},
	}, rec.emit)

	assert.True(t, hardGateFailed)
	assert.Equal(t, commercial.Name, state.failedHardGateRole)
	completes := rec.ofType(api.EventRoleComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, commercial.Name, completes[0].(api.RoleCompleteEvent).Role.RoleName)
	assert.Equal(t, taskCancelled, state.tasks[brandMemory.Id])
	assert.Len(t, rec.ofType(api.EventRoleUpdate), 2)
}

func TestFoldKeepsResultsArrivingWithFailedHardGate(t *testing.T) {
	registry := core.DefaultRegistry()
	brandMemory, _ := registry.Role(3)
	localContext, _ := registry.Role(8)
	audience, _ := registry.Role(4)

	state := newRunState(registry)
	rec := &recorder{}

	score := 7.0
	hardGateFailed := state.fold([]roleMessage{
		{role: localContext, result: api.RoleResult{RoleId: localContext.Id, RoleName: localContext.Name, Verdict: api.VerdictPass, Score: &score, Confidence: 0.8}},
		{role: brandMemory, result: api.RoleResult{RoleId: brandMemory.Id, RoleName: brandMemory.Name, Verdict: api.VerdictFail}},
	}, rec.emit)

	assert.True(t, hardGateFailed)
	assert.Equal(t, brandMemory.Name, state.failedHardGateRole)
	require.Len(t, state.results, 2)
	assert.Equal(t, localContext.Id, state.results[0].RoleId)
	assert.Equal(t, brandMemory.Id, state.results[1].RoleId)

	completes := rec.ofType(api.EventRoleComplete)
	require.Len(t, completes, 2)
	assert.Equal(t, localContext.Name, completes[0].(api.RoleCompleteEvent).Role.RoleName)
	assert.Equal(t, 1, completes[0].(api.RoleCompleteEvent).Progress)
	assert.Equal(t, brandMemory.Name, completes[1].(api.RoleCompleteEvent).Role.RoleName)
	assert.Equal(t, 2, completes[1].(api.RoleCompleteEvent).Progress)

	assert.Equal(t, taskComplete, state.tasks[localContext.Id])
	assert.Equal(t, taskComplete, state.tasks[brandMemory.Id])
	assert.Equal(t, taskCancelled, state.tasks[audience.Id])
}

func TestFoldIgnoresNoticesForSettledRoles(t *testing.T) {
	registry := core.DefaultRegistry()
	strategist, _ := registry.Role(1)
	state := newRunState(registry)
	rec := &recorder{}

	score := 8.0
	state.fold([]roleMessage{{role: strategist, result: api.RoleResult{RoleId: 1, Verdict: api.VerdictPass, Score: &score, Confidence: 1}}}, rec.emit)
	state.fold([]roleMessage{{role: strategist, started: true, attempt: 2}}, rec.emit)

	assert.Len(t, rec.ofType(api.EventRoleUpdate), 0)
	assert.Equal(t, 1, state.completed)
	assert.Equal(t, taskComplete, state.tasks[strategist.Id])
}
