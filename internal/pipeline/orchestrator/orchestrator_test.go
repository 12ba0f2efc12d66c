package orchestrator

import (
	"testing"
	"time"

	"github.com/google/uuid"

	repos "github.com/yungbote/reelforge/internal/data/repos/pipeline"
	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/pkg/dbctx"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

// fakeProjectRepo and fakeStageTaskRepo are minimal in-memory stand-ins
// for the gorm-backed repos, letting orchestrator logic be exercised
// against small hand-written fakes rather than a live database.
type fakeProjectRepo struct {
	byID map[uuid.UUID]*domain.Project
}

func newFakeProjectRepo(p *domain.Project) *fakeProjectRepo {
	return &fakeProjectRepo{byID: map[uuid.UUID]*domain.Project{p.ID: p}}
}

func (f *fakeProjectRepo) Create(dbc dbctx.Context, p *domain.Project) (*domain.Project, error) {
	f.byID[p.ID] = p
	return p, nil
}
func (f *fakeProjectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Project, error) {
	return f.byID[id], nil
}
func (f *fakeProjectRepo) GetByFolderName(dbc dbctx.Context, folderName string) (*domain.Project, error) {
	for _, p := range f.byID {
		if p.FolderName == folderName {
			return p, nil
		}
	}
	return nil, nil
}
func (f *fakeProjectRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*domain.Project, error) {
	return nil, nil
}
func (f *fakeProjectRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	p, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	if v, ok := updates["status"]; ok {
		p.Status = domain.ProjectStatus(v.(string))
	}
	if v, ok := updates["current_step"]; ok {
		p.CurrentStep = v.(int)
	}
	if v, ok := updates["progress"]; ok {
		p.Progress = v.(int)
	}
	return true, nil
}
func (f *fakeProjectRepo) SetTaskHandle(dbc dbctx.Context, id uuid.UUID, handle uuid.UUID, status domain.ProjectStatus) error {
	p, ok := f.byID[id]
	if !ok {
		return nil
	}
	p.TaskHandle = handle
	p.Status = status
	return nil
}

type fakeStageTaskRepo struct {
	tasks    map[uuid.UUID]*domain.StageTask
	canceled map[uuid.UUID]bool
}

func newFakeStageTaskRepo() *fakeStageTaskRepo {
	return &fakeStageTaskRepo{tasks: map[uuid.UUID]*domain.StageTask{}, canceled: map[uuid.UUID]bool{}}
}

func (f *fakeStageTaskRepo) CreateChain(dbc dbctx.Context, tasks []*domain.StageTask) ([]*domain.StageTask, error) {
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return tasks, nil
}
func (f *fakeStageTaskRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.StageTask, error) {
	return f.tasks[id], nil
}
func (f *fakeStageTaskRepo) GetByChainID(dbc dbctx.Context, chainID uuid.UUID) ([]*domain.StageTask, error) {
	var out []*domain.StageTask
	for _, t := range f.tasks {
		if t.ChainID == chainID {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeStageTaskRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*domain.StageTask, error) {
	return nil, nil
}
func (f *fakeStageTaskRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}
func (f *fakeStageTaskRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	return true, nil
}
func (f *fakeStageTaskRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error { return nil }
func (f *fakeStageTaskRepo) CancelChain(dbc dbctx.Context, chainID uuid.UUID) (int64, error) {
	var n int64
	for _, t := range f.tasks {
		if t.ChainID == chainID && t.Status != domain.StageTaskSucceeded && t.Status != domain.StageTaskFailed {
			t.Status = domain.StageTaskCanceled
			n++
		}
	}
	f.canceled[chainID] = true
	return n, nil
}
func (f *fakeStageTaskRepo) NextInChain(dbc dbctx.Context, chainID uuid.UUID, afterPosition int) (*domain.StageTask, error) {
	return nil, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeProjectRepo, *fakeStageTaskRepo, *domain.Project) {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	project := &domain.Project{ID: uuid.New(), FolderName: "proj", Status: domain.ProjectStatusCreated}
	projRepo := newFakeProjectRepo(project)
	taskRepo := newFakeStageTaskRepo()
	return New(log, projRepo, taskRepo), projRepo, taskRepo, project
}

var (
	_ repos.ProjectRepo   = (*fakeProjectRepo)(nil)
	_ repos.StageTaskRepo = (*fakeStageTaskRepo)(nil)
)

func TestSubmitFull_QueuesStagesZeroThroughSchedule(t *testing.T) {
	orch, _, taskRepo, project := newTestOrchestrator(t)
	chainID, err := orch.SubmitFull(dbctx.Context{}, project, false)
	if err != nil {
		t.Fatalf("SubmitFull: %v", err)
	}
	rows, _ := taskRepo.GetByChainID(dbctx.Context{}, chainID)
	if len(rows) != 11 {
		t.Fatalf("got %d stage tasks, want 11", len(rows))
	}
	for _, row := range rows {
		if row.JobType == domain.StagePublish.JobType() {
			t.Fatalf("submit_full must never queue stage_publish; publication is a separate gated submission")
		}
	}
	if project.TaskHandle != chainID {
		t.Fatalf("expected project.TaskHandle to be set to the new chain")
	}
	if project.Status != domain.ProjectStatusProcessing {
		t.Fatalf("got status %q, want processing", project.Status)
	}
}

func TestSubmitFull_CanvasSkipsNormalize(t *testing.T) {
	orch, _, taskRepo, project := newTestOrchestrator(t)
	chainID, err := orch.SubmitFull(dbctx.Context{}, project, true)
	if err != nil {
		t.Fatalf("SubmitFull: %v", err)
	}
	rows, _ := taskRepo.GetByChainID(dbctx.Context{}, chainID)
	if len(rows) != 10 {
		t.Fatalf("got %d stage tasks, want 10 (canvas input has nothing to normalize)", len(rows))
	}
	for _, row := range rows {
		if row.JobType == domain.StageNormalize.JobType() {
			t.Fatalf("canvas submission must not queue stage_normalize")
		}
		if row.ChainPosition == 0 && row.JobType != domain.StageCompose.JobType() {
			t.Fatalf("got first stage %q, want %q", row.JobType, domain.StageCompose.JobType())
		}
	}
}

func TestSubmitPartial_RejectsInvertedRange(t *testing.T) {
	orch, _, _, project := newTestOrchestrator(t)
	_, err := orch.SubmitPartial(dbctx.Context{}, project, domain.StageShorts, domain.StageCompose)
	if err == nil {
		t.Fatalf("expected an error when start stage is after end stage")
	}
}

func TestSubmitPartial_RejectsOutOfBoundsStage(t *testing.T) {
	orch, _, _, project := newTestOrchestrator(t)
	if _, err := orch.SubmitPartial(dbctx.Context{}, project, domain.StageNormalize, domain.StageIndex(12)); err == nil {
		t.Fatalf("expected an error for an out-of-range end stage")
	}
}

func TestSubmitPartial_QueuesOnlyTheRequestedRange(t *testing.T) {
	orch, _, taskRepo, project := newTestOrchestrator(t)
	chainID, err := orch.SubmitPartial(dbctx.Context{}, project, domain.StageSilenceTrim, domain.StageTranscribe)
	if err != nil {
		t.Fatalf("SubmitPartial: %v", err)
	}
	rows, _ := taskRepo.GetByChainID(dbctx.Context{}, chainID)
	if len(rows) != 3 {
		t.Fatalf("got %d stage tasks, want 3 (silence_trim, source_trim, transcribe)", len(rows))
	}
}

func TestSubmitPublication_QueuesOnlyPublish(t *testing.T) {
	orch, _, taskRepo, project := newTestOrchestrator(t)
	project.Status = domain.ProjectStatusReadyToUpload
	chainID, err := orch.SubmitPublication(dbctx.Context{}, project)
	if err != nil {
		t.Fatalf("SubmitPublication: %v", err)
	}
	rows, _ := taskRepo.GetByChainID(dbctx.Context{}, chainID)
	if len(rows) != 1 || rows[0].JobType != domain.StagePublish.JobType() {
		t.Fatalf("got %+v, want a single stage_publish task", rows)
	}
}

// Publication is irreversible, so it is refused until the automatic
// pipeline has terminated.
func TestSubmitPublication_RejectsMidPipelineStatus(t *testing.T) {
	orch, _, _, project := newTestOrchestrator(t)
	project.Status = domain.ProjectStatusProcessing
	if _, err := orch.SubmitPublication(dbctx.Context{}, project); err == nil {
		t.Fatalf("expected publication to be refused while processing")
	}
}

// SubmitPartial submitted while a chain is already in flight must cancel
// the superseded chain before the new handle is recorded.
func TestSubmitSupersedesPriorChain(t *testing.T) {
	orch, _, taskRepo, project := newTestOrchestrator(t)
	firstChain, err := orch.SubmitFull(dbctx.Context{}, project, false)
	if err != nil {
		t.Fatalf("first SubmitFull: %v", err)
	}
	secondChain, err := orch.SubmitPartial(dbctx.Context{}, project, domain.StageShorts, domain.StageShorts)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !taskRepo.canceled[firstChain] {
		t.Fatalf("expected the first chain to be canceled when superseded")
	}
	if project.TaskHandle != secondChain {
		t.Fatalf("expected project.TaskHandle to point at the newest chain")
	}
}

func TestRevoke_ClearsHandleAndStopsProject(t *testing.T) {
	orch, _, taskRepo, project := newTestOrchestrator(t)
	chainID, _ := orch.SubmitFull(dbctx.Context{}, project, false)
	if err := orch.Revoke(dbctx.Context{}, project); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if project.Status != domain.ProjectStatusStopped {
		t.Fatalf("got status %q, want stopped", project.Status)
	}
	if project.TaskHandle != uuid.Nil {
		t.Fatalf("expected task handle cleared, got %v", project.TaskHandle)
	}
	if !taskRepo.canceled[chainID] {
		t.Fatalf("expected the chain to be canceled")
	}
}

func TestReboot_ResetsProjectToCreated(t *testing.T) {
	orch, _, _, project := newTestOrchestrator(t)
	if _, err := orch.SubmitFull(dbctx.Context{}, project, false); err != nil {
		t.Fatalf("SubmitFull: %v", err)
	}
	project.Status = domain.ProjectStatusFailed
	project.CurrentStep = 7

	if err := orch.Reboot(dbctx.Context{}, project); err != nil {
		t.Fatalf("Reboot: %v", err)
	}
	if project.CurrentStep != 0 {
		t.Fatalf("got current_step %d, want 0", project.CurrentStep)
	}
	if project.Status != domain.ProjectStatusCreated {
		t.Fatalf("got status %q, want created", project.Status)
	}
}
