package stages

import (
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/clients/blobstore"
	"github.com/yungbote/reelforge/internal/pkg/dbctx"
)

// defaultSchedulePreferences is the package-level fallback used when a
// project does not set config.schedule_preferences: Tuesday, Thursday
// and Saturday at 14:00.
var defaultSchedulePreferences = []domain.SchedulePreference{
	{Weekday: int(time.Tuesday), Hour: 14},
	{Weekday: int(time.Thursday), Hour: 14},
	{Weekday: int(time.Saturday), Hour: 14},
}

const classroomOffHour = 6

// ScheduleHandler is stage 10: build the publication plan, mirror the
// artifact directory into durable blob storage, and transition the
// project to ready_to_upload — the automatic pipeline's terminus.
type ScheduleHandler struct {
	Mirror       blobstore.Mirror            // optional
	DefaultPrefs []domain.SchedulePreference // optional, from SCHEDULE_PREFS_PATH
}

func (h *ScheduleHandler) Type() string { return "stage_schedule" }

func (h *ScheduleHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "building schedule")

	if !ctx.Arena.Exists("seo.json") {
		ctx.Fail(fmt.Errorf("stage_schedule: seo.json missing"))
		return nil
	}
	raw, err := ctx.Arena.Read("seo.json")
	if err != nil {
		ctx.Fail(fmt.Errorf("read seo.json: %w", err))
		return nil
	}
	var seo SEOFile
	if err := json.Unmarshal(raw, &seo); err != nil {
		ctx.Fail(fmt.Errorf("parse seo.json: %w", err))
		return nil
	}

	prefs := defaultSchedulePreferences
	if len(h.DefaultPrefs) > 0 {
		prefs = h.DefaultPrefs
	}
	if cfg, err := readConfig(ctx.Arena); err == nil && len(cfg.SchedulePreferences) > 0 {
		prefs = nil
		for _, p := range cfg.SchedulePreferences {
			prefs = append(prefs, domain.SchedulePreference{Weekday: p.Weekday, Hour: p.Hour})
		}
	}

	now := time.Now().UTC()
	mainSlot := nextSlot(now, prefs[0])

	var items []ScheduleItem
	items = append(items, ScheduleItem{
		Type:          "illustrated",
		File:          "illustrated.mp4",
		Title:         seo.MainVideo.Title,
		Description:   seo.MainVideo.Description,
		Tags:          seo.MainVideo.Tags,
		Privacy:       "public",
		ScheduledDate: mainSlot.Format("2006-01-02"),
		ScheduledTime: mainSlot.Format("15:04"),
		Thumbnail:     "thumbnail.png",
	})

	if ctx.Arena.Exists("nosilence.mp4") {
		classroomSlot := time.Date(mainSlot.Year(), mainSlot.Month(), mainSlot.Day(), classroomOffHour, 0, 0, 0, time.UTC)
		items = append(items, ScheduleItem{
			Type:          "classroom",
			File:          "nosilence.mp4",
			Title:         seo.MainVideo.Title + " (Classroom)",
			Description:   seo.MainVideo.Description,
			Tags:          seo.MainVideo.Tags,
			Privacy:       "unlisted",
			ScheduledDate: classroomSlot.Format("2006-01-02"),
			ScheduledTime: classroomSlot.Format("15:04"),
		})
	}

	cursor := mainSlot.AddDate(0, 0, 1)
	for i, s := range seo.Shorts {
		pref := prefs[i%len(prefs)]
		slot := nextSlot(cursor, pref)
		items = append(items, ScheduleItem{
			Type:          "short",
			File:          s.File,
			Title:         s.Title,
			Description:   s.Description,
			Tags:          s.Hashtags,
			Privacy:       "public",
			ScheduledDate: slot.Format("2006-01-02"),
			ScheduledTime: slot.Format("15:04"),
		})
		cursor = slot.AddDate(0, 0, 1)
	}

	out := ScheduleFile{Uploads: items}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		ctx.Fail(fmt.Errorf("marshal schedule.json: %w", err))
		return nil
	}
	if err := ctx.Arena.Write("schedule.json", b); err != nil {
		ctx.Fail(fmt.Errorf("write schedule.json: %w", err))
		return nil
	}

	if h.Mirror != nil {
		if err := h.Mirror.MirrorUp(ctx.Ctx, ctx.Project.FolderName, ctx.Arena.Root()); err != nil {
			ctx.Fail(fmt.Errorf("mirror artifact directory: %w", err))
			return nil
		}
	}

	if ctx.ProjectRepo != nil {
		if _, err := ctx.ProjectRepo.UpdateFields(dbctx.Context{Ctx: ctx.Ctx}, ctx.Project.ID, map[string]interface{}{
			"status": string(domain.ProjectStatusReadyToUpload),
		}); err != nil {
			ctx.Fail(fmt.Errorf("transition to ready_to_upload: %w", err))
			return nil
		}
	}

	ctx.Succeed(map[string]any{"uploads": len(items)})
	return nil
}

// nextSlot finds the next date at or after from whose weekday/hour match
// pref, stepping forward day-by-day (at most 7 iterations).
func nextSlot(from time.Time, pref domain.SchedulePreference) time.Time {
	d := time.Date(from.Year(), from.Month(), from.Day(), pref.Hour, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		if int(d.Weekday()) == pref.Weekday && !d.Before(from) {
			return d
		}
		d = d.AddDate(0, 0, 1)
	}
	return d
}
