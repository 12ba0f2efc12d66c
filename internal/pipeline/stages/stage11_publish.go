package stages

import (
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/clients/videohost"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/pkg/dbctx"
)

// PublishHandler is stage 11: upload every scheduled item to the video
// host, re-anchoring any past-due schedule to one hour from now, and
// write the per-item outcomes back into schedule.json. The stage
// succeeds if at least one item uploaded.
type PublishHandler struct {
	VideoHost videohost.Client
}

func (h *PublishHandler) Type() string { return "stage_publish" }

func (h *PublishHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "publishing schedule")

	if !ctx.Arena.Exists("schedule.json") {
		ctx.Fail(fmt.Errorf("stage_publish: schedule.json missing"))
		return nil
	}
	raw, err := ctx.Arena.Read("schedule.json")
	if err != nil {
		ctx.Fail(fmt.Errorf("read schedule.json: %w", err))
		return nil
	}
	var sched ScheduleFile
	if err := json.Unmarshal(raw, &sched); err != nil {
		ctx.Fail(fmt.Errorf("parse schedule.json: %w", err))
		return nil
	}
	if h.VideoHost == nil {
		ctx.Fail(fmt.Errorf("stage_publish: no video host capability configured"))
		return nil
	}

	now := time.Now().UTC()
	results := &UploadResults{}

	for i, item := range sched.Uploads {
		if !ctx.Arena.Exists(item.File) {
			results.Errors = append(results.Errors, UploadResult{Index: i, Error: fmt.Sprintf("missing file %q", item.File)})
			continue
		}

		scheduledAt, err := time.Parse("2006-01-02 15:04", item.ScheduledDate+" "+item.ScheduledTime)
		if err != nil {
			scheduledAt = now
		}
		scheduledAt = scheduledAt.UTC()
		if scheduledAt.Before(now) {
			scheduledAt = now.Add(time.Hour)
		}

		meta := videohost.UploadMetadata{
			Title:       item.Title,
			Description: item.Description,
			Tags:        item.Tags,
			Privacy:     item.Privacy,
		}
		if item.Privacy == "public" {
			t := scheduledAt
			meta.PublishAt = &t
		}
		// Unlisted items publish immediately; the schedule is ignored for them.

		res, err := h.VideoHost.Upload(ctx.Ctx, ctx.Arena.Path(item.File), meta)
		if err != nil {
			results.Errors = append(results.Errors, UploadResult{Index: i, Error: err.Error()})
			continue
		}
		if item.Thumbnail != "" && ctx.Arena.Exists(item.Thumbnail) {
			_ = h.VideoHost.SetThumbnail(ctx.Ctx, res.VideoID, ctx.Arena.Path(item.Thumbnail))
		}
		results.OK = append(results.OK, UploadResult{Index: i, VideoID: res.VideoID, URL: res.URL})
	}

	sched.UploadResults = results
	sched.UploadedAt = now.Format(time.RFC3339)

	b, err := json.MarshalIndent(sched, "", "  ")
	if err != nil {
		ctx.Fail(fmt.Errorf("marshal schedule.json: %w", err))
		return nil
	}
	if err := ctx.Arena.Write("schedule.json", b); err != nil {
		ctx.Fail(fmt.Errorf("write schedule.json: %w", err))
		return nil
	}

	if len(results.OK) == 0 {
		ctx.Fail(fmt.Errorf("stage_publish: all %d uploads failed", len(sched.Uploads)))
		return nil
	}

	if ctx.ProjectRepo != nil {
		if _, err := ctx.ProjectRepo.UpdateFields(dbctx.Context{Ctx: ctx.Ctx}, ctx.Project.ID, map[string]interface{}{
			"status":       string(domain.ProjectStatusCompleted),
			"completed_at": now,
		}); err != nil {
			ctx.Fail(fmt.Errorf("transition to completed: %w", err))
			return nil
		}
	}

	ctx.Succeed(map[string]any{"ok": len(results.OK), "errors": len(results.Errors)})
	return nil
}
