package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	repos "github.com/yungbote/reelforge/internal/data/repos/pipeline"
	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/pipeline/arena"
	"github.com/yungbote/reelforge/internal/pkg/dbctx"
	"github.com/yungbote/reelforge/internal/pkg/pointers"
)

/*
Context is the execution contract between the worker and every stage body.
It wraps:
  - the database transaction boundary,
  - the mutable stage_tasks row for this stage,
  - the project row and an arena handle scoped to its artifact directory,
  - the only sanctioned ways to report progress, fail, or succeed.

Stage bodies never touch stage_tasks or projects directly; they go
through this object.
*/
type Context struct {
	Ctx context.Context
	DB  *gorm.DB

	Task        *domain.StageTask
	TaskRepo    repos.StageTaskRepo
	Project     *domain.Project
	ProjectRepo repos.ProjectRepo
	Arena       arena.Arena

	// SoftDeadlineExceeded flips true 50 minutes into a stage's hard
	// 1-hour budget; stages may poll it between subprocess calls to
	// wind down early. It never aborts a stage on its own.
	SoftDeadlineExceeded *atomic.Bool

	payload map[string]any
}

// NewContext constructs a runtime.Context for a claimed stage task.
func NewContext(ctx context.Context, db *gorm.DB, task *domain.StageTask, project *domain.Project, ar arena.Arena, taskRepo repos.StageTaskRepo, projectRepo repos.ProjectRepo) *Context {
	c := &Context{
		Ctx:                  ctx,
		DB:                   db,
		Task:                 task,
		TaskRepo:             taskRepo,
		Project:              project,
		ProjectRepo:          projectRepo,
		Arena:                ar,
		SoftDeadlineExceeded: &atomic.Bool{},
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Task == nil {
		return nil
	}
	if len(c.Task.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Task.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload returns the decoded stage payload. Never nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// Revoked reports whether this chain has been superseded or explicitly
// revoked since the task was claimed. Stage bodies must check this at
// entry and, on true, exit with no writes and no status update.
//
// project.task_handle holds the chain_id of the project's live chain (set
// by the orchestrator at submit time), so a superseded chain is detected
// by simple inequality against this task's own ChainID.
func (c *Context) Revoked() bool {
	if c == nil || c.Task == nil {
		return false
	}
	if c.Task.Status == domain.StageTaskCanceled {
		return true
	}
	if c.Project == nil {
		return false
	}
	return c.Project.TaskHandle != uuid.Nil && c.Project.TaskHandle != c.Task.ChainID
}

/*
Progress publishes a non-terminal status update for this stage task and
updates the owning project's current_step/progress/step_name.
*/
func (c *Context) Progress(pct int, msg string) {
	if c == nil || c.Task == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()

	if c.TaskRepo != nil && c.Task.ID != uuid.Nil {
		ok, _ := c.TaskRepo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Task.ID, []string{string(domain.StageTaskCanceled)}, map[string]interface{}{
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}
	c.Task.Progress = pct
	c.Task.Message = msg

	if c.ProjectRepo != nil && c.Project != nil && c.Project.ID != uuid.Nil {
		overall := 0
		if c.Task.ChainLength > 0 {
			overall = ((c.Task.ChainPosition) * 100) / c.Task.ChainLength
		}
		updates := map[string]interface{}{
			"current_step": stageIndexFromJobType(c.Task.JobType),
			"step_name":    c.Task.JobType,
			"progress":     overall,
		}
		if b, ok := c.stepStateJSON("processing", ""); ok {
			updates["steps"] = b
		}
		_, _ = c.ProjectRepo.UpdateFields(dbctx.Context{Ctx: ctx}, c.Project.ID, updates)
	}
}

/*
Fail marks this stage task and the owning project as terminally failed.
The broker does not retry a deterministic stage failure; the user resumes
via submit_partial(start=failed_stage).
*/
func (c *Context) Fail(err error) {
	if c == nil || c.Task == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if c.TaskRepo != nil && c.Task.ID != uuid.Nil {
		ok, _ := c.TaskRepo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Task.ID, []string{string(domain.StageTaskCanceled)}, map[string]interface{}{
			"status":        string(domain.StageTaskFailed),
			"message":       "",
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}
	c.Task.Status = domain.StageTaskFailed
	c.Task.Error = msg

	if c.ProjectRepo != nil && c.Project != nil && c.Project.ID != uuid.Nil {
		updates := map[string]interface{}{
			"status":           string(domain.ProjectStatusFailed),
			"last_error":       msg,
			"last_failed_step": stageIndexFromJobType(c.Task.JobType),
		}
		if b, ok := c.stepStateJSON("failed", msg); ok {
			updates["steps"] = b
		}
		_, _ = c.ProjectRepo.UpdateFields(dbctx.Context{Ctx: ctx}, c.Project.ID, updates)
	}
}

// Succeed marks this stage task as terminally succeeded and persists a
// result payload, then advances current_step on the project.
func (c *Context) Succeed(result any) {
	if c == nil || c.Task == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.TaskRepo != nil && c.Task.ID != uuid.Nil {
		ok, _ := c.TaskRepo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Task.ID, []string{string(domain.StageTaskCanceled)}, map[string]interface{}{
			"status":       string(domain.StageTaskSucceeded),
			"progress":     100,
			"message":      "",
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}
	c.Task.Status = domain.StageTaskSucceeded
	c.Task.Progress = 100
	c.Task.Result = res

	if c.ProjectRepo != nil && c.Project != nil && c.Project.ID != uuid.Nil {
		if b, ok := c.stepStateJSON("completed", ""); ok {
			_, _ = c.ProjectRepo.UpdateFields(dbctx.Context{Ctx: ctx}, c.Project.ID, map[string]interface{}{
				"steps": b,
			})
		}
	}
}

// stepStateJSON merges this task's per-stage entry into the project's
// steps map and returns the re-marshaled column value. started_at is
// stamped on the first "processing" transition only; completed_at on
// entering a terminal status.
func (c *Context) stepStateJSON(status, errMsg string) (datatypes.JSON, bool) {
	if c.Project == nil || c.Task == nil {
		return nil, false
	}
	steps := c.Project.StepsMap()
	st := steps[c.Task.JobType]
	switch status {
	case "processing":
		if st.StartedAt == nil {
			st.StartedAt = pointers.Ptr(time.Now())
		}
		st.CompletedAt = nil
	case "completed", "failed":
		st.CompletedAt = pointers.Ptr(time.Now())
	}
	st.Status = status
	st.Error = errMsg
	steps[c.Task.JobType] = st
	b, err := json.Marshal(steps)
	if err != nil {
		return nil, false
	}
	c.Project.Steps = datatypes.JSON(b)
	return datatypes.JSON(b), true
}

// WriteOutput records that an arena-relative path now exists in the
// project's output manifest, merging into whatever outputs already exist.
func (c *Context) WriteOutput(name, relPath string) error {
	if c == nil || c.Project == nil || c.ProjectRepo == nil {
		return fmt.Errorf("context not wired to a project")
	}
	outputs := c.Project.OutputsMap()
	outputs[name] = relPath
	b, err := json.Marshal(outputs)
	if err != nil {
		return err
	}
	_, err = c.ProjectRepo.UpdateFields(dbctx.Context{Ctx: c.Ctx}, c.Project.ID, map[string]interface{}{
		"outputs": datatypes.JSON(b),
	})
	return err
}

func stageIndexFromJobType(jobType string) int {
	for i := domain.StageNormalize; i <= domain.StagePublish; i++ {
		if i.JobType() == jobType {
			return int(i)
		}
	}
	return -1
}
