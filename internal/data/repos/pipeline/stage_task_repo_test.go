package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/pkg/dbctx"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

// openTestDB opens an in-memory sqlite database and creates the two
// pipeline tables by hand: the gorm models carry Postgres column
// defaults (uuid_generate_v4, now()) that sqlite cannot migrate, so
// tests assign ids explicitly and let gorm track timestamps.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	ddl := []string{
		`CREATE TABLE projects (
			id text PRIMARY KEY,
			owner_user_id text NOT NULL,
			name text NOT NULL,
			folder_name text NOT NULL UNIQUE,
			status text NOT NULL,
			current_step integer NOT NULL DEFAULT 0,
			step_name text,
			progress integer NOT NULL DEFAULT 0,
			config text,
			steps text,
			outputs text,
			task_handle text,
			last_failed_step integer DEFAULT -1,
			last_error text,
			created_at datetime,
			updated_at datetime,
			completed_at datetime,
			deleted_at datetime
		)`,
		`CREATE TABLE stage_tasks (
			id text PRIMARY KEY,
			chain_id text NOT NULL,
			project_id text NOT NULL,
			owner_user_id text NOT NULL,
			job_type text NOT NULL,
			chain_position integer NOT NULL,
			chain_length integer NOT NULL,
			status text NOT NULL,
			progress integer NOT NULL DEFAULT 0,
			message text,
			error text,
			attempts integer NOT NULL DEFAULT 0,
			locked_at datetime,
			heartbeat_at datetime,
			last_error_at datetime,
			payload text,
			result text,
			created_at datetime,
			updated_at datetime,
			deleted_at datetime
		)`,
	}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	t.Cleanup(func() {
		_ = db.Exec(`DROP TABLE stage_tasks`).Error
		_ = db.Exec(`DROP TABLE projects`).Error
	})
	return db
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	return log
}

func makeChain(projectID, owner uuid.UUID, length int) []*domain.StageTask {
	chainID := uuid.New()
	tasks := make([]*domain.StageTask, 0, length)
	for i := 0; i < length; i++ {
		tasks = append(tasks, &domain.StageTask{
			ID:            uuid.New(),
			ChainID:       chainID,
			ProjectID:     projectID,
			OwnerUserID:   owner,
			JobType:       domain.StageIndex(i).JobType(),
			ChainPosition: i,
			ChainLength:   length,
			Status:        domain.StageTaskQueued,
		})
	}
	return tasks
}

func TestProjectRepo_CreateGetUpdate(t *testing.T) {
	db := openTestDB(t)
	repo := NewProjectRepo(db, testLogger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	p := &domain.Project{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		Name:        "demo",
		FolderName:  "demo-1234",
		Status:      domain.ProjectStatusUploading,
	}
	_, err := repo.Create(dbc, p)
	require.NoError(t, err)

	got, err := repo.GetByID(dbc, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "demo-1234", got.FolderName)

	missing, err := repo.GetByID(dbc, uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)

	ok, err := repo.UpdateFields(dbc, p.ID, map[string]interface{}{
		"status":       string(domain.ProjectStatusProcessing),
		"current_step": 3,
		"progress":     27,
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err = repo.GetByID(dbc, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProjectStatusProcessing, got.Status)
	require.Equal(t, 3, got.CurrentStep)
	require.Equal(t, 27, got.Progress)

	byFolder, err := repo.GetByFolderName(dbc, "demo-1234")
	require.NoError(t, err)
	require.NotNil(t, byFolder)
	require.Equal(t, p.ID, byFolder.ID)

	handle := uuid.New()
	require.NoError(t, repo.SetTaskHandle(dbc, p.ID, handle, domain.ProjectStatusProcessing))
	got, err = repo.GetByID(dbc, p.ID)
	require.NoError(t, err)
	require.Equal(t, handle, got.TaskHandle)
}

func TestStageTaskRepo_ChainLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewStageTaskRepo(db, testLogger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	projectID := uuid.New()
	owner := uuid.New()
	tasks := makeChain(projectID, owner, 3)
	_, err := repo.CreateChain(dbc, tasks)
	require.NoError(t, err)

	chain, err := repo.GetByChainID(dbc, tasks[0].ChainID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	for i, row := range chain {
		require.Equal(t, i, row.ChainPosition, "rows must come back ordered by chain_position")
	}

	next, err := repo.NextInChain(dbc, tasks[0].ChainID, 0)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, 1, next.ChainPosition)

	end, err := repo.NextInChain(dbc, tasks[0].ChainID, 2)
	require.NoError(t, err)
	require.Nil(t, end, "past the chain end there is no next task")

	require.NoError(t, repo.UpdateFields(dbc, tasks[0].ID, map[string]interface{}{
		"status": string(domain.StageTaskRunning),
	}))

	n, err := repo.CancelChain(dbc, tasks[0].ChainID)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	// A canceled row must not be resurrected by a late worker write.
	ok, err := repo.UpdateFieldsUnlessStatus(dbc, tasks[0].ID,
		[]string{string(domain.StageTaskCanceled)},
		map[string]interface{}{"status": string(domain.StageTaskSucceeded)})
	require.NoError(t, err)
	require.False(t, ok, "late write overwrote a canceled task")

	// Heartbeat only touches running rows; on a canceled row it is a no-op.
	require.NoError(t, repo.Heartbeat(dbc, tasks[0].ID))
	row, err := repo.GetByID(dbc, tasks[0].ID)
	require.NoError(t, err)
	require.Equal(t, domain.StageTaskCanceled, row.Status)
	require.Nil(t, row.HeartbeatAt, "heartbeat stamped a non-running row")
}
