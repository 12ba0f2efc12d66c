package pipeline

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/pkg/dbctx"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

/*
StageTaskRepo is the broker: the durable queue of per-stage invocations,
one row per pipeline stage, so that a chain of N stages claims, runs, and
fails at stage granularity.
*/
type StageTaskRepo interface {
	CreateChain(dbc dbctx.Context, tasks []*domain.StageTask) ([]*domain.StageTask, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.StageTask, error)
	GetByChainID(dbc dbctx.Context, chainID uuid.UUID) ([]*domain.StageTask, error)
	ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*domain.StageTask, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	CancelChain(dbc dbctx.Context, chainID uuid.UUID) (int64, error)
	NextInChain(dbc dbctx.Context, chainID uuid.UUID, afterPosition int) (*domain.StageTask, error)
}

type stageTaskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStageTaskRepo(db *gorm.DB, baseLog *logger.Logger) StageTaskRepo {
	return &stageTaskRepo{db: db, log: baseLog.With("repo", "StageTaskRepo")}
}

func (r *stageTaskRepo) CreateChain(dbc dbctx.Context, tasks []*domain.StageTask) ([]*domain.StageTask, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(tasks) == 0 {
		return []*domain.StageTask{}, nil
	}
	if err := tx.WithContext(dbc.Ctx).Create(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *stageTaskRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.StageTask, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var t domain.StageTask
	err := tx.WithContext(dbc.Ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *stageTaskRepo) GetByChainID(dbc dbctx.Context, chainID uuid.UUID) ([]*domain.StageTask, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var out []*domain.StageTask
	err := tx.WithContext(dbc.Ctx).
		Where("chain_id = ?", chainID).
		Order("chain_position ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

/*
ClaimNextRunnable is the broker's claim query: SELECT ... FOR UPDATE SKIP
LOCKED under a three-way WHERE (queued, OR retryable-failed-past-backoff,
OR stale-running-past-heartbeat-cutoff), ordered oldest first, atomically
transitioned to running with attempts+1/locked_at/heartbeat_at set.

max_attempts for stage tasks is fixed at 1 for deterministic business-
logic failures; the retry branch of this query exists only to recover a
task whose worker died mid-execution (stale heartbeat), not to retry a
stage that failed on its own.

The orchestrator creates every row of a chain queued up front (see
submitRange), so an extra NOT EXISTS guard enforces strict chain order at
claim time: a row is only claimable once every lower chain_position
sibling in its chain has reached "succeeded". Without this a worker could
pick up stage 3 before stage 2 has produced segments.json.
*/
func (r *stageTaskRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*domain.StageTask, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)

	var claimed *domain.StageTask
	err := tx.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var task domain.StageTask
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          status = ?
          OR (
            status = ?
            AND attempts < ?
            AND (last_error_at IS NULL OR last_error_at < ?)
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
        AND NOT EXISTS (
          SELECT 1 FROM stage_tasks prior
          WHERE prior.chain_id = stage_tasks.chain_id
            AND prior.chain_position < stage_tasks.chain_position
            AND prior.status <> ?
            AND prior.deleted_at IS NULL
        )
      `, string(domain.StageTaskQueued), string(domain.StageTaskFailed), maxAttempts, retryCutoff, string(domain.StageTaskRunning), staleCutoff, string(domain.StageTaskSucceeded)).
			Order("created_at ASC")
		qErr := q.First(&task).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&domain.StageTask{}).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"status":       string(domain.StageTaskRunning),
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *stageTaskRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return tx.WithContext(dbc.Ctx).
		Model(&domain.StageTask{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *stageTaskRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	q := tx.WithContext(dbc.Ctx).Model(&domain.StageTask{}).Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *stageTaskRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return tx.WithContext(dbc.Ctx).
		Model(&domain.StageTask{}).
		Where("id = ? AND status = ?", id, string(domain.StageTaskRunning)).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

// CancelChain marks every not-yet-terminal row of a chain canceled. Used by
// revoke(project): the in-flight task detects this on its next registry
// read (task_handle mismatch or its own row now canceled) and exits
// without mutating the artifact directory.
func (r *stageTaskRepo) CancelChain(dbc dbctx.Context, chainID uuid.UUID) (int64, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if chainID == uuid.Nil {
		return 0, nil
	}
	res := tx.WithContext(dbc.Ctx).
		Model(&domain.StageTask{}).
		Where("chain_id = ? AND status IN ?", chainID, []string{string(domain.StageTaskQueued), string(domain.StageTaskRunning)}).
		Updates(map[string]interface{}{
			"status":     string(domain.StageTaskCanceled),
			"locked_at":  nil,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// NextInChain returns the task immediately following afterPosition in
// chainID, or nil if the chain has ended.
func (r *stageTaskRepo) NextInChain(dbc dbctx.Context, chainID uuid.UUID, afterPosition int) (*domain.StageTask, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var t domain.StageTask
	err := tx.WithContext(dbc.Ctx).
		Where("chain_id = ? AND chain_position = ?", chainID, afterPosition+1).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
