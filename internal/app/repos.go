package app

import (
	"gorm.io/gorm"

	repos "github.com/yungbote/reelforge/internal/data/repos/pipeline"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

type Repos struct {
	Project   repos.ProjectRepo
	StageTask repos.StageTaskRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Project:   repos.NewProjectRepo(db, log),
		StageTask: repos.NewStageTaskRepo(db, log),
	}
}
