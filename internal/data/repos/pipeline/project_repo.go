package pipeline

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
	"github.com/yungbote/reelforge/internal/pkg/dbctx"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

// ProjectRepo is the durable mapping from project identifier to project
// record: the only shared mutable store participating in cross-stage
// coordination.
type ProjectRepo interface {
	Create(dbc dbctx.Context, p *domain.Project) (*domain.Project, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Project, error)
	GetByFolderName(dbc dbctx.Context, folderName string) (*domain.Project, error)
	ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*domain.Project, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
	SetTaskHandle(dbc dbctx.Context, id uuid.UUID, handle uuid.UUID, status domain.ProjectStatus) error
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{db: db, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *projectRepo) Create(dbc dbctx.Context, p *domain.Project) (*domain.Project, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(dbc.Ctx).Create(p).Error; err != nil {
		return nil, mapWriteError(err)
	}
	return p, nil
}

func (r *projectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Project, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var p domain.Project
	err := tx.WithContext(dbc.Ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectRepo) GetByFolderName(dbc dbctx.Context, folderName string) (*domain.Project, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if folderName == "" {
		return nil, nil
	}
	var p domain.Project
	err := tx.WithContext(dbc.Ctx).Where("folder_name = ?", folderName).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*domain.Project, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var out []*domain.Project
	err := tx.WithContext(dbc.Ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
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
	res := tx.WithContext(dbc.Ctx).Model(&domain.Project{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetTaskHandle overwrites the project's live chain pointer. The
// orchestrator must revoke the prior handle before calling this, not
// after: a worker mid-stage detects supersession by comparing its chain
// id against this field.
func (r *projectRepo) SetTaskHandle(dbc dbctx.Context, id uuid.UUID, handle uuid.UUID, status domain.ProjectStatus) error {
	_, err := r.UpdateFields(dbc, id, map[string]interface{}{
		"task_handle": handle,
		"status":      string(status),
	})
	return err
}
