package stages

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	domain "github.com/yungbote/reelforge/internal/domain/pipeline"
)

// schedulePrefsFile is the on-disk shape of SCHEDULE_PREFS_PATH:
//
//	preferences:
//	  - weekday: 2   # time.Weekday numbering, Sunday = 0
//	    hour: 14
//	  - weekday: 4
//	    hour: 14
type schedulePrefsFile struct {
	Preferences []struct {
		Weekday int `yaml:"weekday"`
		Hour    int `yaml:"hour"`
	} `yaml:"preferences"`
}

// LoadSchedulePreferences reads the deployment-wide default publication
// slots used by the schedule stage when a project does not set
// config.schedule_preferences. An empty path returns (nil, nil) so
// callers can treat the file as optional.
func LoadSchedulePreferences(path string) ([]domain.SchedulePreference, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule preferences: %w", err)
	}
	var f schedulePrefsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse schedule preferences: %w", err)
	}
	var out []domain.SchedulePreference
	for i, p := range f.Preferences {
		if p.Weekday < 0 || p.Weekday > 6 {
			return nil, fmt.Errorf("schedule preference %d: weekday %d out of range", i, p.Weekday)
		}
		if p.Hour < 0 || p.Hour > 23 {
			return nil, fmt.Errorf("schedule preference %d: hour %d out of range", i, p.Hour)
		}
		out = append(out, domain.SchedulePreference{Weekday: p.Weekday, Hour: p.Hour})
	}
	return out, nil
}
