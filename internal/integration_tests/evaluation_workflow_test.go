//go:build integration

package integrationtests

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	backend "creative-backend/internal/api"
	"creative-backend/internal/core"
	"creative-backend/internal/database"
	"creative-backend/internal/evaluator"
	"creative-backend/internal/messaging"
	"creative-backend/internal/orchestrator"
	"creative-backend/internal/storage"
	"creative-backend/internal/worker"
	"creative-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workflowEnv struct {
	router *chi.Mux
	store  *storage.S3ObjectStore
}

func setupWorkflow(t *testing.T, ctx context.Context, eval evaluator.Evaluator) workflowEnv {
	store := setupTestObjectStore(t, ctx)
	db := createDB(t)
	amqpURL := setupRabbitMQContainer(t, ctx)

	publisher, err := messaging.NewRabbitMQPublisher(amqpURL)
	require.NoError(t, err)
	t.Cleanup(publisher.Close)

	reciever, err := messaging.NewRabbitMQReceiver(amqpURL)
	require.NoError(t, err)

	config := orchestrator.Config{RunTimeout: 30 * time.Second, RoleTimeout: 5 * time.Second, RetryBackoff: 10 * time.Millisecond}
	orch := orchestrator.New(core.DefaultRegistry(), eval, config)

	processor := worker.NewTaskProcessor(db, store, reciever, orch, 2)
	go processor.Start()
	t.Cleanup(processor.Stop)

	service := backend.NewBackendService(db, orch, publisher, store, nil, backend.Options{Provider: "openai", Model: "test"})
	r := chi.NewRouter()
	service.AddRoutes(r)

	return workflowEnv{router: r, store: store}
}

func submit(t *testing.T, env workflowEnv, input api.EvaluationInput) uuid.UUID {
	var res api.SubmitEvaluationResponse
	require.NoError(t, httpRequest(env.router, "POST", "/api/creative/evaluations", input, &res))
	return res.EvaluationId
}

func waitForEvaluation(t *testing.T, env workflowEnv, id uuid.UUID) api.Evaluation {
	var evaluation api.Evaluation
	require.Eventually(t, func() bool {
		evaluation = api.Evaluation{}
		if err := httpRequest(env.router, "GET", fmt.Sprintf("/api/creative/evaluations/%s", id), nil, &evaluation); err != nil {
			return false
		}
		return evaluation.Status != database.JobQueued && evaluation.Status != database.JobRunning
	}, time.Minute, 500*time.Millisecond)
	return evaluation
}

func TestEvaluationWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	env := setupWorkflow(t, ctx, &scriptedEvaluator{score: 8, fail: map[string]bool{}})

	id := submit(t, env, validInput("Fizz"))
	evaluation := waitForEvaluation(t, env, id)

	assert.Equal(t, database.JobCompleted, evaluation.Status)
	assert.Equal(t, api.RecommendVerdict, evaluation.Verdict)
	require.NotNil(t, evaluation.Index)
	require.NotNil(t, evaluation.Result)
	assert.Len(t, evaluation.Result.RoleResults, 8)
	assert.Equal(t, id, evaluation.Result.EvaluationId)

	archived, err := storage.LoadArchivedResult(ctx, env.store, id)
	require.NoError(t, err)
	assert.Equal(t, evaluation.Result.FinalReport, archived.FinalReport)

	var matches []api.Evaluation
	query := url.Values{"query": {`SCORE commercial > 7 AND brand CONTAINS "fizz"`}}
	require.NoError(t, httpRequest(env.router, "GET", "/api/creative/evaluations?"+query.Encode(), nil, &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, id, matches[0].Id)
}

func TestEvaluationWorkflowHardGate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	env := setupWorkflow(t, ctx, &scriptedEvaluator{score: 8, fail: map[string]bool{"Brand Memory": true}})

	// Every evaluation fails the gate, so both runs short circuit.
	first := submit(t, env, validInput("Fizz"))
	_ = waitForEvaluation(t, env, first)

	gated := submit(t, env, validInput("Pop"))
	evaluation := waitForEvaluation(t, env, gated)

	assert.Equal(t, database.JobShortCircuited, evaluation.Status)
	assert.Equal(t, api.DoNotRecommendVerdict, evaluation.Verdict)
	assert.True(t, evaluation.HardGateFailed)
	assert.Equal(t, "Brand Memory & Distinctiveness Specialist", evaluation.FailedHardGateRole)

	var matches []api.Evaluation
	query := url.Values{"query": {`hard_gate = "true"`}}
	require.NoError(t, httpRequest(env.router, "GET", "/api/creative/evaluations?"+query.Encode(), nil, &matches))
	assert.Len(t, matches, 2)
}
