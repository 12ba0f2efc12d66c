package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StageIndex identifies one of the twelve ordered stages by position.
type StageIndex int

const (
	StageNormalize StageIndex = iota // 0
	StageCompose                     // 1
	StageSilenceTrim                 // 2
	StageSourceTrim                  // 3
	StageTranscribe                  // 4
	StageShorts                      // 5
	StageBrollDiscovery              // 6
	StageBrollIntegration            // 7
	StageMetadata                    // 8
	StageThumbnail                   // 9
	StageSchedule                    // 10
	StagePublish                     // 11
)

// JobType returns the stage_tasks.job_type string this stage index is
// dispatched under. The registry maps exactly one Handler per job type.
func (s StageIndex) JobType() string {
	names := [...]string{
		"stage_normalize",
		"stage_compose",
		"stage_silence_trim",
		"stage_source_trim",
		"stage_transcribe",
		"stage_shorts",
		"stage_broll_discovery",
		"stage_broll_integration",
		"stage_metadata",
		"stage_thumbnail",
		"stage_schedule",
		"stage_publish",
	}
	if int(s) < 0 || int(s) >= len(names) {
		return "unknown"
	}
	return names[s]
}

// StageTaskStatus mirrors job_run's status column. "queued" and "running"
// are the only claimable/claimed states; "succeeded"/"failed" are terminal
// per-row (the chain as a whole may still be resumed via submit_partial).
type StageTaskStatus string

const (
	StageTaskQueued    StageTaskStatus = "queued"
	StageTaskRunning   StageTaskStatus = "running"
	StageTaskSucceeded StageTaskStatus = "succeeded"
	StageTaskFailed    StageTaskStatus = "failed"
	StageTaskCanceled  StageTaskStatus = "canceled"
)

// StageTask is one broker-queued row per stage invocation. All rows in a
// chain share ChainID; the project's task_handle holds the live chain's
// ChainID. One row per stage (rather than one row per chain with an
// internal step counter) keeps revoke and resume literal at stage
// granularity.
type StageTask struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChainID     uuid.UUID `gorm:"type:uuid;column:chain_id;not null;index" json:"chain_id"`
	ProjectID   uuid.UUID `gorm:"type:uuid;column:project_id;not null;index" json:"project_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;column:owner_user_id;not null;index" json:"owner_user_id"`

	JobType       string `gorm:"column:job_type;not null;index" json:"job_type"`
	ChainPosition int    `gorm:"column:chain_position;not null" json:"chain_position"`
	ChainLength   int    `gorm:"column:chain_length;not null" json:"chain_length"`

	Status   StageTaskStatus `gorm:"column:status;not null;index" json:"status"`
	Progress int             `gorm:"column:progress;not null;default:0" json:"progress"`
	Message  string          `gorm:"column:message" json:"message,omitempty"`
	Error    string          `gorm:"column:error" json:"error,omitempty"`
	Attempts int             `gorm:"column:attempts;not null;default:0" json:"attempts"`

	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time `gorm:"column:last_error_at;index" json:"last_error_at,omitempty"`

	Payload datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Result  datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (StageTask) TableName() string { return "stage_tasks" }

// IsChainRoot reports whether this row is the first stage of its chain.
func (t *StageTask) IsChainRoot() bool { return t.ChainPosition == 0 }
