package pipeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProjectStatus is the project-level state machine described by the
// orchestrator. None of these states are terminal: every one is
// re-enterable via reboot or a partial resubmission.
type ProjectStatus string

const (
	ProjectStatusUploading     ProjectStatus = "uploading"
	ProjectStatusConverting    ProjectStatus = "converting"
	ProjectStatusProcessing    ProjectStatus = "processing"
	ProjectStatusReadyToUpload ProjectStatus = "ready_to_upload"
	ProjectStatusCompleted     ProjectStatus = "completed"
	ProjectStatusFailed        ProjectStatus = "failed"
	ProjectStatusStopped       ProjectStatus = "stopped"
	ProjectStatusCreated       ProjectStatus = "created"
)

// StepState is the per-stage entry stored in Project.Steps.
type StepState struct {
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Project is the durable record behind one processing run: a pair of raw
// recordings through to a published set of artifacts. Workers mutate it
// exclusively through the registry's partial-update API; the controller
// mutates it only via the explicit actions (reboot, revoke, submit_*).
type Project struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	FolderName  string         `gorm:"column:folder_name;not null;uniqueIndex" json:"folder_name"`

	Status      ProjectStatus `gorm:"column:status;not null;index" json:"status"`
	CurrentStep int           `gorm:"column:current_step;not null;default:0" json:"current_step"`
	StepName    string        `gorm:"column:step_name" json:"step_name,omitempty"`
	Progress    int           `gorm:"column:progress;not null;default:0" json:"progress"`

	Config  datatypes.JSON `gorm:"column:config;type:jsonb" json:"config"`
	Steps   datatypes.JSON `gorm:"column:steps;type:jsonb" json:"steps"`
	Outputs datatypes.JSON `gorm:"column:outputs;type:jsonb" json:"outputs"`

	TaskHandle uuid.UUID `gorm:"type:uuid;column:task_handle;index" json:"task_handle,omitempty"`

	LastFailedStep int    `gorm:"column:last_failed_step;default:-1" json:"last_failed_step,omitempty"`
	LastError      string `gorm:"column:last_error" json:"last_error,omitempty"`

	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Project) TableName() string { return "projects" }

// StepsMap decodes Steps into a name -> StepState map. Returns an empty,
// non-nil map if Steps is unset or malformed.
func (p *Project) StepsMap() map[string]StepState {
	out := map[string]StepState{}
	if len(p.Steps) == 0 {
		return out
	}
	_ = jsonUnmarshal(p.Steps, &out)
	return out
}

// OutputsMap decodes Outputs into a name -> relative-path map.
func (p *Project) OutputsMap() map[string]string {
	out := map[string]string{}
	if len(p.Outputs) == 0 {
		return out
	}
	_ = jsonUnmarshal(p.Outputs, &out)
	return out
}

// ConfigValue decodes the compositing/scheduling config set at creation.
func (p *Project) ConfigValue() Config {
	var c Config
	if len(p.Config) > 0 {
		_ = jsonUnmarshal(p.Config, &c)
	}
	return c
}

// LayoutSwitch is a timestamped layout change within stage 1's composition.
type LayoutSwitch struct {
	Timestamp float64 `json:"timestamp"`
	Layout    string  `json:"layout"`
}

// SchedulePreference is one configurable weekday/hour slot consumed by
// stage 10 when config.schedule_preferences is present.
type SchedulePreference struct {
	Weekday int `json:"weekday"`
	Hour    int `json:"hour"`
}

// Config is the controller-authored compositing/scheduling configuration
// persisted as config.json in the artifact directory and mirrored onto
// the project row for quick access.
type Config struct {
	Layout              string               `json:"layout"`
	WebcamX             int                  `json:"webcam_x"`
	WebcamY             int                  `json:"webcam_y"`
	WebcamSize          int                  `json:"webcam_size"`
	WebcamShape         string               `json:"webcam_shape"`
	BorderColor         string               `json:"border_color"`
	BorderWidth         int                  `json:"border_width"`
	LayoutSwitches      []LayoutSwitch       `json:"layout_switches,omitempty"`
	SchedulePreferences []SchedulePreference `json:"schedule_preferences,omitempty"`
	MaxShorts           int                  `json:"max_shorts,omitempty"`
	MaxBrollClips       int                  `json:"max_broll_clips,omitempty"`
}

func jsonUnmarshal(raw datatypes.JSON, out any) error {
	return json.Unmarshal([]byte(raw), out)
}
