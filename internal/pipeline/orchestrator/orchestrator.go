package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	repos "github.com/yungbote/reelforge/internal/data/repos/pipeline"
	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/reelforge/internal/pkg/errors"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

// fullChain is every stage in order; a partial run is a contiguous slice
// of it.
var fullChain = []domain.StageIndex{
	domain.StageNormalize, domain.StageCompose, domain.StageSilenceTrim, domain.StageSourceTrim,
	domain.StageTranscribe, domain.StageShorts, domain.StageBrollDiscovery, domain.StageBrollIntegration,
	domain.StageMetadata, domain.StageThumbnail, domain.StageSchedule, domain.StagePublish,
}

/*
Orchestrator implements the pipeline-level operations: submit_full,
submit_partial, submit_publication, revoke, reboot. Each "submit"
operation is a fresh chain of StageTask rows; task_handle on the
project is the chain_id of whichever chain is currently live, so
superseding a chain is just CancelChain(old) followed by SetTaskHandle(new).
*/
type Orchestrator struct {
	log         *logger.Logger
	projectRepo repos.ProjectRepo
	taskRepo    repos.StageTaskRepo
}

func New(baseLog *logger.Logger, projectRepo repos.ProjectRepo, taskRepo repos.StageTaskRepo) *Orchestrator {
	return &Orchestrator{
		log:         baseLog.With("component", "pipeline.orchestrator"),
		projectRepo: projectRepo,
		taskRepo:    taskRepo,
	}
}

// SubmitFull queues the automatic pipeline as a new chain, superseding
// any chain currently in flight for this project: stages 0 through 10
// for a project with raw recordings, or 1 through 10 when the arena
// already holds a canvas-composited input and stage 0 has nothing to
// normalize. Automatic execution stops at stage 10 (schedule);
// publication (stage 11) is always a separate, explicitly gated
// submission via SubmitPublication.
func (o *Orchestrator) SubmitFull(dbc dbctx.Context, project *domain.Project, canvas bool) (uuid.UUID, error) {
	start := domain.StageNormalize
	if canvas {
		start = domain.StageCompose
	}
	return o.submitRange(dbc, project, start, domain.StageSchedule, domain.ProjectStatusProcessing)
}

// SubmitPartial re-queues stages [start, end] inclusive, e.g. to resume
// from a failed stage without redoing earlier, still-valid artifacts.
func (o *Orchestrator) SubmitPartial(dbc dbctx.Context, project *domain.Project, start, end domain.StageIndex) (uuid.UUID, error) {
	if start > end {
		return uuid.Nil, fmt.Errorf("submit_partial: start stage %d after end stage %d: %w", start, end, pkgerrors.ErrInvalidArgument)
	}
	return o.submitRange(dbc, project, start, end, domain.ProjectStatusProcessing)
}

// SubmitPublication queues a single-stage chain containing only the
// publish stage. Publication is irreversible, so it is user-gated:
// permitted only once the automatic pipeline has terminated, i.e. the
// project is ready_to_upload, completed (re-publish), or failed
// (publish whatever did succeed).
func (o *Orchestrator) SubmitPublication(dbc dbctx.Context, project *domain.Project) (uuid.UUID, error) {
	if project == nil {
		return uuid.Nil, fmt.Errorf("submit_publication: project required")
	}
	switch project.Status {
	case domain.ProjectStatusReadyToUpload, domain.ProjectStatusCompleted, domain.ProjectStatusFailed:
	default:
		return uuid.Nil, fmt.Errorf("submit_publication: project status %q does not permit publication: %w", project.Status, pkgerrors.ErrConflict)
	}
	return o.submitRange(dbc, project, domain.StagePublish, domain.StagePublish, domain.ProjectStatusProcessing)
}

func (o *Orchestrator) submitRange(dbc dbctx.Context, project *domain.Project, start, end domain.StageIndex, newStatus domain.ProjectStatus) (uuid.UUID, error) {
	if project == nil || project.ID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("submitRange: project required")
	}
	if start < domain.StageNormalize || end > domain.StagePublish || start > end {
		return uuid.Nil, fmt.Errorf("submitRange: stage range [%d,%d] out of bounds: %w", start, end, pkgerrors.ErrInvalidArgument)
	}
	stages := fullChain[start : end+1]
	if len(stages) == 0 {
		return uuid.Nil, fmt.Errorf("submitRange: empty stage range [%d,%d]: %w", start, end, pkgerrors.ErrInvalidArgument)
	}

	if project.TaskHandle != uuid.Nil {
		if _, err := o.taskRepo.CancelChain(dbc, project.TaskHandle); err != nil {
			return uuid.Nil, fmt.Errorf("cancel superseded chain: %w", err)
		}
	}

	chainID := uuid.New()
	now := time.Now()
	tasks := make([]*domain.StageTask, 0, len(stages))
	for i, stage := range stages {
		tasks = append(tasks, &domain.StageTask{
			ID:            uuid.New(),
			ChainID:       chainID,
			ProjectID:     project.ID,
			OwnerUserID:   project.OwnerUserID,
			JobType:       stage.JobType(),
			ChainPosition: i,
			ChainLength:   len(stages),
			Status:        domain.StageTaskQueued,
			Payload:       datatypes.JSON(emptyPayload()),
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	if _, err := o.taskRepo.CreateChain(dbc, tasks); err != nil {
		return uuid.Nil, fmt.Errorf("create chain: %w", err)
	}
	if err := o.projectRepo.SetTaskHandle(dbc, project.ID, chainID, newStatus); err != nil {
		return uuid.Nil, fmt.Errorf("set task handle: %w", err)
	}
	o.log.Info("submitted stage chain", "project_id", project.ID.String(), "chain_id", chainID.String(), "start", start, "end", end)
	return chainID, nil
}

// Revoke cancels whatever chain is currently live for the project without
// starting a new one, and marks the project stopped. In-flight workers
// detect this on their next Context.Revoked() check.
func (o *Orchestrator) Revoke(dbc dbctx.Context, project *domain.Project) error {
	if project == nil || project.ID == uuid.Nil {
		return fmt.Errorf("revoke: project required")
	}
	if project.TaskHandle == uuid.Nil {
		return nil
	}
	if _, err := o.taskRepo.CancelChain(dbc, project.TaskHandle); err != nil {
		return fmt.Errorf("revoke: cancel chain: %w", err)
	}
	if err := o.projectRepo.SetTaskHandle(dbc, project.ID, uuid.Nil, domain.ProjectStatusStopped); err != nil {
		return fmt.Errorf("revoke: clear task handle: %w", err)
	}
	o.log.Info("revoked chain", "project_id", project.ID.String())
	return nil
}

// Reboot revokes any in-flight chain and returns the project to its
// pre-processing state so the caller can submit_full again. It does not
// touch the arena: resetting it to its seed set is the caller's job (it
// owns the Arena handle); Reboot only does the registry-side bookkeeping.
func (o *Orchestrator) Reboot(dbc dbctx.Context, project *domain.Project) error {
	if err := o.Revoke(dbc, project); err != nil {
		return err
	}
	_, err := o.projectRepo.UpdateFields(dbc, project.ID, map[string]interface{}{
		"status":           string(domain.ProjectStatusCreated),
		"current_step":     0,
		"step_name":        "",
		"progress":         0,
		"steps":            datatypes.JSON(emptyPayload()),
		"outputs":          datatypes.JSON(emptyPayload()),
		"last_failed_step": -1,
		"last_error":       "",
	})
	if err != nil {
		return fmt.Errorf("reboot: reset project fields: %w", err)
	}
	o.log.Info("rebooted project", "project_id", project.ID.String())
	return nil
}

func emptyPayload() []byte {
	b, _ := json.Marshal(map[string]any{})
	return b
}
