package app

import (
	"github.com/yungbote/reelforge/internal/pkg/logger"
	"github.com/yungbote/reelforge/internal/utils"
)

// Config holds process-wide settings that don't belong to any single
// capability: where the pipeline's artifact arenas live on disk and how
// many stage workers to run per process.
type Config struct {
	ArenaRoot         string
	WorkerConcurrency int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		ArenaRoot:         utils.GetEnv("ARENA_ROOT", "./data/arenas", log),
		WorkerConcurrency: utils.GetEnvAsInt("WORKER_CONCURRENCY", 2, log),
	}
}
