package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"creative-backend/internal/core"
	"creative-backend/internal/core/utils"
	"creative-backend/internal/database"
	"creative-backend/internal/messaging"
	"creative-backend/internal/orchestrator"
	"creative-backend/internal/storage"
	"creative-backend/pkg/api"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxInFlight bounds how many distinct evaluations may hold a lock at once.
const maxInFlight = 1024

// TaskProcessor runs queued evaluations and records their outcome.
type TaskProcessor struct {
	db           *gorm.DB
	storage      storage.ObjectStore
	reciever     messaging.Reciever
	orchestrator *orchestrator.Orchestrator

	concurrency int
	locks       *utils.MutexMap[uuid.UUID]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskProcessor creates a processor. store may be nil, in which case
// results are only kept in the database.
func NewTaskProcessor(db *gorm.DB, store storage.ObjectStore, reciever messaging.Reciever, orch *orchestrator.Orchestrator, concurrency int) *TaskProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskProcessor{
		db:           db,
		storage:      store,
		reciever:     reciever,
		orchestrator: orch,
		concurrency:  max(concurrency, 1),
		locks:        utils.NewMutexMap[uuid.UUID](maxInFlight),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start consumes tasks until Stop is called or the reciever is closed. It
// blocks.
func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor", "concurrency", proc.concurrency)

	for range proc.concurrency {
		proc.wg.Add(1)
		go func() {
			defer proc.wg.Done()
			for {
				select {
				case <-proc.ctx.Done():
					return
				case task, ok := <-proc.reciever.Tasks():
					if !ok {
						return
					}
					proc.ProcessTask(task)
				}
			}
		}()
	}
	proc.wg.Wait()
}

// Stop cancels running evaluations and closes the reciever.
func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.cancel()
	proc.reciever.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	var err error
	switch task.Type() {
	case messaging.EvaluationQueue:
		var payload messaging.EvaluationTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil || payload.EvaluationId == uuid.Nil {
			slog.Error("error unmarshalling evaluation task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processEvaluationTask(proc.ctx, payload)
		if errors.Is(err, database.ErrEvaluationNotFound) {
			slog.Error("evaluation task refers to unknown evaluation", "evaluation_id", payload.EvaluationId)
			if err := task.Reject(); err != nil {
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil { // reject unknown message type
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func isFinished(status string) bool {
	return status == database.JobCompleted || status == database.JobShortCircuited || status == database.JobFailed
}

func (proc *TaskProcessor) processEvaluationTask(ctx context.Context, payload messaging.EvaluationTaskPayload) error {
	id := payload.EvaluationId

	// A redelivered task must not run alongside the original.
	if err := proc.locks.Lock(id); err != nil {
		return fmt.Errorf("error locking evaluation %s: %w", id, err)
	}
	defer func() {
		if err := proc.locks.Unlock(id); err != nil {
			slog.Error("error unlocking evaluation", "evaluation_id", id, "error", err)
		}
	}()

	record, err := database.GetEvaluation(ctx, proc.db, id)
	if err != nil {
		return err
	}
	if isFinished(record.Status) {
		slog.Info("evaluation already finished, skipping task", "evaluation_id", id, "status", record.Status)
		return nil
	}

	input, err := record.DecodeInput()
	if err != nil {
		return proc.fail(ctx, id, err)
	}

	if err := database.UpdateEvaluationStatus(ctx, proc.db, id, database.JobRunning); err != nil {
		return fmt.Errorf("error marking evaluation %s as running: %w", id, err)
	}

	result, err := proc.orchestrator.Run(ctx, id, input, func(e api.Event) {
		slog.Debug("evaluation event", "evaluation_id", id, "event", e.EventType())
	})
	if err != nil {
		return proc.fail(ctx, id, err)
	}

	if err := SaveResult(ctx, proc.db, proc.storage, proc.orchestrator.Registry(), result); err != nil {
		return err
	}

	slog.Info("evaluation finished", "evaluation_id", id, "verdict", result.FinalReport.Verdict, "hard_gate_failed", result.HardGateFailed)
	return nil
}

// fail records err on the evaluation and returns it.
func (proc *TaskProcessor) fail(ctx context.Context, id uuid.UUID, err error) error {
	// The task context may already be cancelled, the failure should still be
	// recorded.
	if dbErr := database.SaveEvaluationError(context.WithoutCancel(ctx), proc.db, id, err.Error()); dbErr != nil {
		slog.Error("error recording evaluation failure", "evaluation_id", id, "error", dbErr)
	}
	return fmt.Errorf("evaluation %s failed: %w", id, err)
}

// SaveResult stores a finished run and archives the result document to
// store. store may be nil. Archiving is best effort, the database copy is
// authoritative.
func SaveResult(ctx context.Context, db *gorm.DB, store storage.ObjectStore, registry *core.Registry, result *api.EvaluationResult) error {
	id := result.EvaluationId
	if err := database.SaveEvaluationResult(ctx, db, id, registry.ShortNames(), result); err != nil {
		return fmt.Errorf("error saving result for evaluation %s: %w", id, err)
	}

	if store == nil {
		return nil
	}
	key, err := storage.ArchiveResult(ctx, store, result)
	if err != nil {
		slog.Warn("error archiving evaluation result", "evaluation_id", id, "error", err)
		return nil
	}
	if err := database.SetArchiveKey(ctx, db, id, key); err != nil {
		slog.Warn("error saving archive key", "evaluation_id", id, "error", err)
	}
	return nil
}

// RequeuePending publishes a task for every evaluation still marked QUEUED,
// for queues that do not survive a restart.
func RequeuePending(ctx context.Context, db *gorm.DB, publisher messaging.Publisher) (int, error) {
	pending, err := database.QueuedEvaluations(ctx, db)
	if err != nil {
		return 0, err
	}
	for i, evaluation := range pending {
		if err := publisher.PublishEvaluationTask(ctx, messaging.EvaluationTaskPayload{EvaluationId: evaluation.Id}); err != nil {
			return i, fmt.Errorf("error requeueing evaluation %s: %w", evaluation.Id, err)
		}
	}
	if len(pending) > 0 {
		slog.Info("requeued pending evaluations", "count", len(pending))
	}
	return len(pending), nil
}
