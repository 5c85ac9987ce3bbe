package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"creative-backend/internal/core"
	"creative-backend/internal/core/utils"
	"creative-backend/internal/database"
	"creative-backend/internal/document_parsing"
	"creative-backend/internal/evaluator"
	"creative-backend/internal/messaging"
	"creative-backend/internal/orchestrator"
	"creative-backend/internal/storage"
	"creative-backend/internal/worker"
	"creative-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	// maxScanned caps how many records a query filter is evaluated against.
	maxScanned = 5000

	DefaultHeartbeat     = 15 * time.Second
	DefaultPresignExpiry = 15 * time.Minute
)

type Options struct {
	Provider      string
	Model         string
	Heartbeat     time.Duration
	PresignExpiry time.Duration
}

type BackendService struct {
	db           *gorm.DB
	orchestrator *orchestrator.Orchestrator
	publisher    messaging.Publisher
	storage      storage.ObjectStore
	extractor    evaluator.LLM
	opts         Options
}

// NewBackendService creates the http service. store and extractor may be nil,
// which disables presigned uploads and brief extraction respectively.
func NewBackendService(db *gorm.DB, orch *orchestrator.Orchestrator, pub messaging.Publisher, store storage.ObjectStore, extractor evaluator.LLM, opts Options) *BackendService {
	if opts.Heartbeat == 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.PresignExpiry == 0 {
		opts.PresignExpiry = DefaultPresignExpiry
	}
	return &BackendService{
		db:           db,
		orchestrator: orch,
		publisher:    pub,
		storage:      store,
		extractor:    extractor,
		opts:         opts,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/api/creative", func(r chi.Router) {
		r.Get("/config", RestHandler(s.GetConfig))
		r.Post("/validate", RestHandler(s.Validate))
		r.Post("/evaluate", RestHandler(s.Evaluate))
		r.Post("/evaluate/stream", SSEHandler(s.opts.Heartbeat, s.EvaluateStream))
		r.Route("/evaluations", func(r chi.Router) {
			r.Post("/", RestHandler(s.SubmitEvaluation))
			r.Get("/", RestHandler(s.ListEvaluations))
			r.Get("/{evaluation_id}", RestHandler(s.GetEvaluation))
		})
		r.Post("/extract", RestHandler(s.Extract))
		r.Get("/upload/presigned", RestHandler(s.PresignedUpload))
	})
}

func (s *BackendService) GetConfig(r *http.Request) (any, error) {
	return api.ConfigResponse{
		Roles:     s.orchestrator.Registry().Info(),
		Framework: core.FrameworkInfo(),
		Provider:  s.opts.Provider,
		Model:     s.opts.Model,
	}, nil
}

func (s *BackendService) Validate(r *http.Request) (any, error) {
	input, err := ParseRequest[api.EvaluationInput](r)
	if err != nil {
		return nil, err
	}
	return core.Validate(core.NormalizeInput(input)), nil
}

// parseReadyInput decodes the request brief and rejects it unless it is ready
// to evaluate.
func parseReadyInput(r *http.Request) (api.EvaluationInput, error) {
	input, err := ParseRequest[api.EvaluationInput](r)
	if err != nil {
		return input, err
	}
	input = core.NormalizeInput(input)
	if validation := core.Validate(input); !validation.ReadyToEvaluate {
		return input, CodedErrorf(http.StatusUnprocessableEntity, "brief is not ready to evaluate: %s", core.ValidationSummary(validation))
	}
	return input, nil
}

// startRun stores a record for an evaluation that runs inside this request.
func (s *BackendService) startRun(ctx context.Context, input api.EvaluationInput) (uuid.UUID, error) {
	record, err := database.CreateEvaluation(ctx, s.db, input)
	if err != nil {
		slog.Error("error creating evaluation", "error", err)
		return uuid.Nil, CodedErrorf(http.StatusInternalServerError, "failed to create evaluation record")
	}
	if err := database.UpdateEvaluationStatus(ctx, s.db, record.Id, database.JobRunning); err != nil {
		return uuid.Nil, CodedErrorf(http.StatusInternalServerError, "failed to update evaluation record")
	}
	return record.Id, nil
}

// finishRun records the outcome of a run. It runs detached from the request
// so that a disconnected client still leaves a finished record behind.
func (s *BackendService) finishRun(ctx context.Context, id uuid.UUID, result *api.EvaluationResult, runErr error) {
	ctx = context.WithoutCancel(ctx)
	if runErr != nil {
		if err := database.SaveEvaluationError(ctx, s.db, id, runErr.Error()); err != nil {
			slog.Error("error recording evaluation failure", "evaluation_id", id, "error", err)
		}
		return
	}
	if err := worker.SaveResult(ctx, s.db, s.storage, s.orchestrator.Registry(), result); err != nil {
		slog.Error("error saving evaluation result", "evaluation_id", id, "error", err)
	}
}

func runError(err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrInputNotReady):
		return CodedError(http.StatusUnprocessableEntity, err)
	case errors.Is(err, orchestrator.ErrEvaluationTimeout):
		return CodedError(http.StatusGatewayTimeout, err)
	case errors.Is(err, orchestrator.ErrEvaluationCancelled):
		return CodedError(http.StatusServiceUnavailable, err)
	default:
		return CodedError(http.StatusInternalServerError, err)
	}
}

func (s *BackendService) Evaluate(r *http.Request) (any, error) {
	input, err := parseReadyInput(r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	id, err := s.startRun(ctx, input)
	if err != nil {
		return nil, err
	}

	result, err := s.orchestrator.Run(ctx, id, input, func(api.Event) {})
	s.finishRun(ctx, id, result, err)
	if err != nil {
		return nil, runError(err)
	}
	return result, nil
}

func (s *BackendService) EvaluateStream(r *http.Request) (EventStream, error) {
	input, err := parseReadyInput(r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	id, err := s.startRun(ctx, input)
	if err != nil {
		return nil, err
	}

	events := make(chan api.Event)
	go func() {
		defer close(events)
		result, err := s.orchestrator.Run(ctx, id, input, func(e api.Event) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		})
		s.finishRun(ctx, id, result, err)
	}()
	return events, nil
}

func (s *BackendService) SubmitEvaluation(r *http.Request) (any, error) {
	input, err := parseReadyInput(r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	record, err := database.CreateEvaluation(ctx, s.db, input)
	if err != nil {
		slog.Error("error creating evaluation", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create evaluation record")
	}

	if err := s.publisher.PublishEvaluationTask(ctx, messaging.EvaluationTaskPayload{EvaluationId: record.Id}); err != nil {
		slog.Error("error publishing evaluation task", "evaluation_id", record.Id, "error", err)
		if err := database.SaveEvaluationError(ctx, s.db, record.Id, "failed to queue evaluation"); err != nil {
			slog.Error("error marking unqueued evaluation as failed", "evaluation_id", record.Id, "error", err)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue evaluation")
	}

	slog.Info("submitted evaluation", "evaluation_id", record.Id, "brand", input.BrandName)
	return api.SubmitEvaluationResponse{EvaluationId: record.Id}, nil
}

func (s *BackendService) ListEvaluations(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListEvaluationsParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit < 0 || params.Offset < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "limit and offset must not be negative")
	}
	limit := params.Limit
	if limit == 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	ctx := r.Context()

	if params.Query == "" {
		evaluations, err := database.ListEvaluations(ctx, s.db, database.ListOptions{
			Limit: limit, Offset: params.Offset, Verdict: params.Verdict,
		})
		if err != nil {
			slog.Error("error listing evaluations", "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error listing evaluations")
		}
		return convertEvaluations(evaluations, false), nil
	}

	filter, err := core.ParseQuery(params.Query)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid query: %v", err)
	}

	// Queries are matched in memory, so pagination applies to the matches.
	candidates, err := database.ListEvaluations(ctx, s.db, database.ListOptions{
		Limit: maxScanned, Verdict: params.Verdict,
	})
	if err != nil {
		slog.Error("error listing evaluations", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing evaluations")
	}

	matches := make([]database.Evaluation, 0)
	for _, evaluation := range candidates {
		if filter.Matches(evaluationRecord(evaluation)) {
			matches = append(matches, evaluation)
		}
	}
	if params.Offset >= len(matches) {
		return []api.Evaluation{}, nil
	}
	matches = matches[params.Offset:]
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return convertEvaluations(matches, false), nil
}

func (s *BackendService) GetEvaluation(r *http.Request) (any, error) {
	evaluationId, err := URLParamUUID(r, "evaluation_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	evaluation, err := database.GetEvaluation(ctx, s.db, evaluationId)
	if err != nil {
		if errors.Is(err, database.ErrEvaluationNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "evaluation not found")
		}
		slog.Error("error getting evaluation", "evaluation_id", evaluationId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving evaluation record")
	}

	result := convertEvaluation(*evaluation, true)
	if result.Result == nil && evaluation.ArchiveKey.Valid && s.storage != nil {
		archived, err := storage.LoadArchivedResult(ctx, s.storage, evaluationId)
		if err != nil {
			slog.Warn("error loading archived result", "evaluation_id", evaluationId, "error", err)
		} else {
			result.Result = archived
		}
	}
	return result, nil
}

func (s *BackendService) Extract(r *http.Request) (any, error) {
	if s.extractor == nil {
		return nil, CodedErrorf(http.StatusNotImplemented, "brief extraction is not configured")
	}

	req, err := ParseRequest[api.ExtractRequest](r)
	if err != nil {
		return nil, err
	}
	if req.FileName == "" || req.FileContent == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "file_name and file_content are required")
	}

	contents, err := base64.StdEncoding.DecodeString(req.FileContent)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "file_content must be base64 encoded: %v", err)
	}

	text, err := document_parsing.ExtractText(req.FileName, contents)
	if err != nil {
		slog.Warn("error extracting document text", "file", req.FileName, "error", err)
		return nil, CodedError(http.StatusUnprocessableEntity, err)
	}

	input, err := evaluator.ExtractBrief(r.Context(), s.extractor, text)
	if err != nil {
		switch {
		case errors.Is(err, evaluator.ErrEvaluatorMalformedOutput):
			return nil, CodedError(http.StatusBadGateway, err)
		case errors.Is(err, evaluator.ErrEvaluatorTimeout):
			return nil, CodedError(http.StatusGatewayTimeout, err)
		case errors.Is(err, evaluator.ErrEvaluatorUnavailable):
			return nil, CodedError(http.StatusServiceUnavailable, err)
		default:
			return nil, CodedError(http.StatusUnprocessableEntity, err)
		}
	}

	return api.ExtractResponse{
		Input:         input,
		Validation:    core.Validate(input),
		ExtractedText: utils.TruncateText(text, evaluator.MaxExtractChars),
	}, nil
}

func (s *BackendService) PresignedUpload(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.PresignedUploadParams](r)
	if err != nil {
		return nil, err
	}
	if params.Filename == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "filename is required")
	}
	if s.storage == nil {
		return nil, CodedErrorf(http.StatusNotImplemented, "uploads are not configured")
	}

	key := storage.UploadKey(params.Filename)
	upload, err := s.storage.PresignUpload(r.Context(), key, params.ContentType, s.opts.PresignExpiry)
	if err != nil {
		if errors.Is(err, storage.ErrPresignUnsupported) {
			return nil, CodedError(http.StatusNotImplemented, err)
		}
		slog.Error("error presigning upload", "key", key, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error creating upload url")
	}

	return api.PresignedUploadResponse{
		Url:       upload.Url,
		Method:    upload.Method,
		Key:       key,
		ExpiresAt: upload.ExpiresAt,
	}, nil
}
