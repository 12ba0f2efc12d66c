package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	repos "github.com/yungbote/reelforge/internal/data/repos/pipeline"
	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/pkg/dbctx"
	"github.com/yungbote/reelforge/internal/pkg/logger"
	"github.com/yungbote/reelforge/internal/pipeline/arena"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/utils"
)

const (
	hardTimeout  = time.Hour
	softTimeout  = 50 * time.Minute
	maxAttempts  = 1
	retryDelay   = 30 * time.Second
	staleRunning = 30 * time.Minute
	pollInterval = time.Second
)

/*
Worker polls the stage_tasks broker and dispatches claimed rows to the
registered Handler for their job_type. Concurrency is read from
WORKER_CONCURRENCY at Start (default 2), and a
stage task is never retried after a deterministic failure (only a stale
heartbeat - a dead worker - reclaims a "running" row).
*/
type Worker struct {
	db          *gorm.DB
	log         *logger.Logger
	taskRepo    repos.StageTaskRepo
	projectRepo repos.ProjectRepo
	registry    *runtime.Registry
	arenaRoot   string
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, taskRepo repos.StageTaskRepo, projectRepo repos.ProjectRepo, registry *runtime.Registry, arenaRoot string) *Worker {
	return &Worker{
		db:          db,
		log:         baseLog.With("component", "pipeline.worker"),
		taskRepo:    taskRepo,
		projectRepo: projectRepo,
		registry:    registry,
		arenaRoot:   arenaRoot,
	}
}

// Start spawns the fixed-size pool of polling loops and blocks until ctx
// is canceled.
func (w *Worker) Start(ctx context.Context) {
	concurrency := utils.GetEnvAsInt("WORKER_CONCURRENCY", 2, w.log)
	if concurrency < 1 {
		concurrency = 2
	}
	w.log.Info("starting pipeline worker pool", "concurrency", concurrency)
	done := make(chan struct{})
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			w.runLoop(ctx, workerID)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < concurrency; i++ {
		<-done
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx, workerID)
		}
	}
}

func (w *Worker) tick(ctx context.Context, workerID int) {
	task, err := w.taskRepo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, maxAttempts, retryDelay, staleRunning)
	if err != nil {
		w.log.Error("claim failed", "worker_id", workerID, "error", err)
		return
	}
	if task == nil {
		return
	}
	w.execute(ctx, workerID, task)
}

func (w *Worker) execute(parent context.Context, workerID int, task *domain.StageTask) {
	log := w.log.With("worker_id", workerID, "task_id", task.ID.String(), "job_type", task.JobType, "chain_id", task.ChainID.String())
	log.Info("claimed stage task")

	project, err := w.projectRepo.GetByID(dbctx.Context{Ctx: parent}, task.ProjectID)
	if err != nil || project == nil {
		w.safetyFail(parent, task, fmt.Errorf("load project %s: %w", task.ProjectID, err))
		return
	}

	handler, ok := w.registry.Get(task.JobType)
	if !ok {
		w.safetyFail(parent, task, missingHandlerError{jobType: task.JobType})
		return
	}

	ar, err := arena.New(filepath.Join(w.arenaRoot, project.FolderName))
	if err != nil {
		w.safetyFail(parent, task, fmt.Errorf("open arena: %w", err))
		return
	}

	hardCtx, cancel := context.WithTimeout(parent, hardTimeout)
	defer cancel()

	hardCtx, span := otel.Tracer("reelforge/pipeline.worker").Start(hardCtx, task.JobType)
	span.SetAttributes(
		attribute.String("pipeline.project_id", task.ProjectID.String()),
		attribute.String("pipeline.chain_id", task.ChainID.String()),
		attribute.Int("pipeline.chain_position", task.ChainPosition),
	)
	defer span.End()

	rtCtx := runtime.NewContext(hardCtx, w.db, task, project, ar, w.taskRepo, w.projectRepo)

	stopHeartbeat := w.startHeartbeat(hardCtx, task.ID)
	defer stopHeartbeat()

	softTimer := time.AfterFunc(softTimeout, func() { rtCtx.SoftDeadlineExceeded.Store(true) })
	defer softTimer.Stop()

	runErr := w.runHandlerSafely(rtCtx, handler)
	if runErr != nil {
		log.Error("stage task failed", "error", runErr)
		span.RecordError(runErr)
		span.SetStatus(otelcodes.Error, "stage failed")
		rtCtx.Fail(runErr)
		return
	}
	log.Info("stage task completed handler body")
}

// runHandlerSafely converts a panicking stage body into an error instead
// of crashing the worker process.
func (w *Worker) runHandlerSafely(rtCtx *runtime.Context, handler runtime.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r, stack: string(debug.Stack())}
		}
	}()
	return handler.Run(rtCtx)
}

func (w *Worker) startHeartbeat(ctx context.Context, taskID uuid.UUID) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.taskRepo.Heartbeat(dbctx.Context{Ctx: ctx}, taskID); err != nil {
					w.log.Warn("heartbeat failed", "task_id", taskID.String(), "error", err)
				}
			}
		}
	}()
	return func() { close(stop) }
}

func (w *Worker) safetyFail(ctx context.Context, task *domain.StageTask, cause error) {
	w.log.Error("stage task aborted before execution", "task_id", task.ID.String(), "error", cause)
	rtCtx := &runtime.Context{Ctx: ctx, Task: task, TaskRepo: w.taskRepo, ProjectRepo: w.projectRepo}
	rtCtx.Fail(cause)
}

type missingHandlerError struct{ jobType string }

func (e missingHandlerError) Error() string {
	return fmt.Sprintf("no handler registered for job type %q", e.jobType)
}

type panicError struct {
	value interface{}
	stack string
}

func (e panicError) Error() string {
	return fmt.Sprintf("stage panicked: %v\n%s", e.value, e.stack)
}
