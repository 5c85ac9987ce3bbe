package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	backend "creative-backend/internal/api"
	"creative-backend/internal/core"
	"creative-backend/internal/database"
	"creative-backend/internal/evaluator"
	"creative-backend/internal/messaging"
	"creative-backend/internal/orchestrator"
	"creative-backend/internal/storage"
	"creative-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

// scriptedEvaluator passes every role with a score of 8, except the roles
// named in fail.
type scriptedEvaluator struct {
	fail map[string]bool
}

func (e *scriptedEvaluator) Evaluate(ctx context.Context, role core.RoleDefinition, req evaluator.Request) (api.RoleResult, error) {
	if e.fail[role.ShortName] {
		return api.RoleResult{Verdict: api.VerdictFail, Confidence: 0.9, Justification: "fails the gate"}, nil
	}
	score := 8.0
	return api.RoleResult{Verdict: api.VerdictPass, Score: &score, Confidence: 0.9, Justification: "solid work"}, nil
}

type fixedLLM struct {
	response string
}

func (l *fixedLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return l.response, nil
}

type testEnv struct {
	db     *gorm.DB
	queue  *messaging.InMemoryQueue
	router chi.Router
}

func newTestEnv(t *testing.T, db *gorm.DB, eval evaluator.Evaluator, extractor evaluator.LLM) testEnv {
	config := orchestrator.Config{RunTimeout: 5 * time.Second, RoleTimeout: time.Second, RetryBackoff: time.Millisecond}
	orch := orchestrator.New(core.DefaultRegistry(), eval, config)

	queue := messaging.NewInMemoryQueue()
	t.Cleanup(queue.Close)

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	service := backend.NewBackendService(db, orch, queue, store, extractor, backend.Options{Provider: "openai", Model: "gpt-4o"})
	router := chi.NewRouter()
	service.AddRoutes(router)

	return testEnv{db: db, queue: queue, router: router}
}

func validInput(brand string) api.EvaluationInput {
	return api.EvaluationInput{
		BrandName:         brand,
		Category:          "Snacks",
		CampaignObjective: api.ObjectiveLongTerm,
		PrimaryChannels:   []string{"TV"},
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

func (env testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var data T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data), rec.Body.String())
	return data
}

func TestHealthAndConfig(t *testing.T) {
	env := newTestEnv(t, createDB(t), &scriptedEvaluator{}, nil)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/creative/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	config := decode[api.ConfigResponse](t, rec)
	assert.Len(t, config.Roles, 8)
	assert.Equal(t, "Strategist", config.Roles[0].ShortName)
	assert.NotEmpty(t, config.Framework)
	assert.Equal(t, "openai", config.Provider)
	assert.Equal(t, "gpt-4o", config.Model)
}

func TestValidate(t *testing.T) {
	env := newTestEnv(t, createDB(t), &scriptedEvaluator{}, nil)

	rec := env.do(t, http.MethodPost, "/api/creative/validate", validInput("Acme"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[api.ValidationResult](t, rec).ReadyToEvaluate)

	rec = env.do(t, http.MethodPost, "/api/creative/validate", api.EvaluationInput{BrandName: "Acme"})
	require.Equal(t, http.StatusOK, rec.Code)
	validation := decode[api.ValidationResult](t, rec)
	assert.False(t, validation.ReadyToEvaluate)
	assert.NotEmpty(t, validation.MissingFields)

	req := httptest.NewRequest(http.MethodPost, "/api/creative/validate", strings.NewReader("{not json"))
	bad := httptest.NewRecorder()
	env.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestEvaluate(t *testing.T) {
	db := createDB(t)
	env := newTestEnv(t, db, &scriptedEvaluator{}, nil)

	rec := env.do(t, http.MethodPost, "/api/creative/evaluate", validInput("Acme"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[api.EvaluationResult](t, rec)
	assert.False(t, result.HardGateFailed)
	assert.Len(t, result.RoleResults, 8)
	assert.NotEmpty(t, result.FinalReport.Verdict)

	stored, err := database.GetEvaluation(context.Background(), db, result.EvaluationId)
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, stored.Status)
	assert.Equal(t, result.FinalReport.Verdict, stored.Verdict.String)
	assert.Len(t, stored.Roles, 8)
	assert.True(t, stored.ArchiveKey.Valid)
}

func TestEvaluateHardGate(t *testing.T) {
	db := createDB(t)
	env := newTestEnv(t, db, &scriptedEvaluator{fail: map[string]bool{"Commercial": true}}, nil)

	rec := env.do(t, http.MethodPost, "/api/creative/evaluate", validInput("Acme"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[api.EvaluationResult](t, rec)
	assert.True(t, result.HardGateFailed)
	assert.Equal(t, api.DoNotRecommendVerdict, result.FinalReport.Verdict)

	stored, err := database.GetEvaluation(context.Background(), db, result.EvaluationId)
	require.NoError(t, err)
	assert.Equal(t, database.JobShortCircuited, stored.Status)
}

func TestEvaluateRejectsIncompleteBrief(t *testing.T) {
	db := createDB(t)
	env := newTestEnv(t, db, &scriptedEvaluator{}, nil)

	rec := env.do(t, http.MethodPost, "/api/creative/evaluate", api.EvaluationInput{BrandName: "Acme"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/creative/evaluate/stream", api.EvaluationInput{BrandName: "Acme"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	evaluations, err := database.ListEvaluations(context.Background(), db, database.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, evaluations)
}

type sseEvent struct {
	name string
	data map[string]any
}

func parseSSE(t *testing.T, body string) []sseEvent {
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		require.True(t, strings.HasPrefix(block, "data: "), block)
		require.NotContains(t, block, "\n", block)

		var data map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &data))
		name, ok := data["type"].(string)
		require.True(t, ok, block)
		events = append(events, sseEvent{name: name, data: data})
	}
	return events
}

func TestSSEHandlerWritesDataOnlyFrames(t *testing.T) {
	handler := backend.SSEHandler(0, func(r *http.Request) (backend.EventStream, error) {
		events := make(chan api.Event, 1)
		events <- api.NewStartEvent(8)
		close(events)
		return events, nil
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.Equal(t, "data: {\"type\":\"start\",\"total_roles\":8}\n\n", rec.Body.String())
}

func TestEvaluateStream(t *testing.T) {
	db := createDB(t)
	env := newTestEnv(t, db, &scriptedEvaluator{}, nil)

	rec := env.do(t, http.MethodPost, "/api/creative/evaluate/stream", validInput("Acme"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, api.EventStart, events[0].name)
	assert.EqualValues(t, 8, events[0].data["total_roles"])
	assert.Equal(t, api.EventComplete, events[len(events)-1].name)

	completed := 0
	lastProgress := 0.0
	for _, e := range events {
		assert.Equal(t, e.name, e.data["type"])
		if e.name == api.EventRoleComplete {
			completed++
			progress := e.data["progress"].(float64)
			assert.GreaterOrEqual(t, progress, lastProgress)
			lastProgress = progress
		}
	}
	assert.Equal(t, 8, completed)

	evaluations, err := database.ListEvaluations(context.Background(), db, database.ListOptions{})
	require.NoError(t, err)
	require.Len(t, evaluations, 1)
	assert.Equal(t, database.JobCompleted, evaluations[0].Status)
}

func TestEvaluateStreamHardGate(t *testing.T) {
	env := newTestEnv(t, createDB(t), &scriptedEvaluator{fail: map[string]bool{"Brand Memory": true}}, nil)

	rec := env.do(t, http.MethodPost, "/api/creative/evaluate/stream", validInput("Acme"))
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseSSE(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 3)

	last, failed := events[len(events)-1], events[len(events)-2]
	assert.Equal(t, api.EventHardGateFailed, failed.name)
	assert.Equal(t, "Brand Memory & Distinctiveness Specialist", failed.data["role"])
	assert.Equal(t, api.EventTerminated, last.name)

	for _, e := range events {
		assert.NotEqual(t, api.EventComplete, e.name)
	}
}

func TestSubmitAndGetEvaluation(t *testing.T) {
	env := newTestEnv(t, createDB(t), &scriptedEvaluator{}, nil)

	rec := env.do(t, http.MethodPost, "/api/creative/evaluations", validInput("Acme"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	submitted := decode[api.SubmitEvaluationResponse](t, rec)
	require.NotEqual(t, uuid.Nil, submitted.EvaluationId)

	select {
	case task := <-env.queue.Tasks():
		assert.Equal(t, messaging.EvaluationQueue, task.Type())
		var payload messaging.EvaluationTaskPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		assert.Equal(t, submitted.EvaluationId, payload.EvaluationId)
	case <-time.After(time.Second):
		t.Fatal("no task was published")
	}

	rec = env.do(t, http.MethodGet, "/api/creative/evaluations/"+submitted.EvaluationId.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	evaluation := decode[api.Evaluation](t, rec)
	assert.Equal(t, database.JobQueued, evaluation.Status)
	assert.Equal(t, "Acme", evaluation.Brand)
	assert.Nil(t, evaluation.Result)

	rec = env.do(t, http.MethodGet, "/api/creative/evaluations/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/creative/evaluations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/creative/evaluations", api.EvaluationInput{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListEvaluations(t *testing.T) {
	db := createDB(t)
	passing := newTestEnv(t, db, &scriptedEvaluator{}, nil)
	gated := newTestEnv(t, db, &scriptedEvaluator{fail: map[string]bool{"Commercial": true}}, nil)

	for _, brand := range []string{"Acme Foods", "Acme Drinks"} {
		rec := passing.do(t, http.MethodPost, "/api/creative/evaluate", validInput(brand))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := gated.do(t, http.MethodPost, "/api/creative/evaluate", validInput("Globex"))
	require.Equal(t, http.StatusOK, rec.Code)

	list := func(params url.Values) []api.Evaluation {
		rec := passing.do(t, http.MethodGet, "/api/creative/evaluations?"+params.Encode(), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[[]api.Evaluation](t, rec)
	}
	brands := func(evaluations []api.Evaluation) []string {
		var names []string
		for _, e := range evaluations {
			names = append(names, e.Brand)
		}
		return names
	}

	assert.ElementsMatch(t, []string{"Acme Foods", "Acme Drinks", "Globex"}, brands(list(url.Values{})))
	assert.Len(t, list(url.Values{"limit": {"2"}}), 2)
	assert.Len(t, list(url.Values{"limit": {"2"}, "offset": {"2"}}), 1)

	assert.Equal(t, []string{"Globex"}, brands(list(url.Values{"verdict": {api.DoNotRecommendVerdict}})))
	assert.Equal(t, []string{"Globex"}, brands(list(url.Values{"query": {`hard_gate = "true"`}})))
	assert.ElementsMatch(t, []string{"Acme Foods", "Acme Drinks"}, brands(list(url.Values{"query": {`brand CONTAINS "acme"`}})))
	assert.ElementsMatch(t, []string{"Acme Foods", "Acme Drinks"}, brands(list(url.Values{"query": {`SCORE commercial > 7`}})))
	assert.Len(t, list(url.Values{"query": {`brand CONTAINS "acme"`}, "limit": {"1"}}), 1)
	assert.Empty(t, list(url.Values{"query": {`brand CONTAINS "acme"`}, "offset": {"5"}}))

	rec = passing.do(t, http.MethodGet, "/api/creative/evaluations?query="+url.QueryEscape(`brand ~ "x"`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = passing.do(t, http.MethodGet, "/api/creative/evaluations?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEvaluationWithResult(t *testing.T) {
	env := newTestEnv(t, createDB(t), &scriptedEvaluator{}, nil)

	rec := env.do(t, http.MethodPost, "/api/creative/evaluate", validInput("Acme"))
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[api.EvaluationResult](t, rec)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/creative/evaluations/%s", result.EvaluationId), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	evaluation := decode[api.Evaluation](t, rec)
	assert.Equal(t, database.JobCompleted, evaluation.Status)
	require.NotNil(t, evaluation.Index)
	assert.InDelta(t, result.FinalEffectivenessIndex, *evaluation.Index, 1e-9)
	require.NotNil(t, evaluation.CompletionTime)
	require.NotNil(t, evaluation.Result)
	assert.Equal(t, result.FinalReport, evaluation.Result.FinalReport)
}

func TestExtract(t *testing.T) {
	llm := &fixedLLM{response: `{"brand_name": "Acme", "category": "Snacks", "campaign_objective": "mixed", "primary_channels": ["TV"]}`}
	env := newTestEnv(t, createDB(t), &scriptedEvaluator{}, llm)

	body := api.ExtractRequest{
		FileName:    "brief.txt",
		FileContent: base64.StdEncoding.EncodeToString([]byte("Brand: Acme\nCategory: Snacks")),
	}
	rec := env.do(t, http.MethodPost, "/api/creative/extract", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	extracted := decode[api.ExtractResponse](t, rec)
	assert.Equal(t, "Acme", extracted.Input.BrandName)
	assert.Equal(t, api.ObjectiveMixed, extracted.Input.CampaignObjective)
	assert.Contains(t, extracted.ExtractedText, "Category: Snacks")
	assert.False(t, extracted.Validation.ReadyToEvaluate)

	rec = env.do(t, http.MethodPost, "/api/creative/extract", api.ExtractRequest{FileName: "brief.docx", FileContent: body.FileContent})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/creative/extract", api.ExtractRequest{FileName: "brief.txt", FileContent: "%%%"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	unconfigured := newTestEnv(t, createDB(t), &scriptedEvaluator{}, nil)
	rec = unconfigured.do(t, http.MethodPost, "/api/creative/extract", body)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestPresignedUpload(t *testing.T) {
	env := newTestEnv(t, createDB(t), &scriptedEvaluator{}, nil)

	rec := env.do(t, http.MethodGet, "/api/creative/upload/presigned", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The local object store cannot hand out upload urls.
	rec = env.do(t, http.MethodGet, "/api/creative/upload/presigned?filename=ad.png&content_type=image%2Fpng", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
