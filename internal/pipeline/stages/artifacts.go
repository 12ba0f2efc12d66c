// Package stages implements the twelve stage bodies of the processing
// pipeline. Every Handler consumes and produces artifacts through an
// arena.Arena rather than touching the filesystem directly, and every
// side-file's shape is declared here so stages agree on a single Go type
// for each JSON contract crossing the artifact directory.
package stages

// Segment is one timestamped span, used by segments.json for both kept
// intervals and silences; transcript spans use TranscriptSegment.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SegmentsFile is stage 2's output: the single source of truth for where
// the talking happened in original.mp4.
type SegmentsFile struct {
	Segments         []Segment `json:"segments"`
	Silences         []Segment `json:"silences"`
	OriginalDuration float64   `json:"original_duration"`
	ThresholdDB      int       `json:"threshold_db"`
	MinSilence       float64   `json:"min_silence"`
	Padding          float64   `json:"padding"`
}

// TranscriptSegment is one transcript span with its own text, as opposed
// to a bare Segment's timing-only shape.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionFile is stage 4's canonical, un-reordered transcript.
type TranscriptionFile struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments"`
	Language string              `json:"language"`
	Duration float64             `json:"duration"`
}

// ShortSuggestion is one accepted short window plus the metadata stage 5
// asked the language model for.
type ShortSuggestion struct {
	File        string  `json:"file"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
}

// ShortsSuggestionsFile is stage 5's manifest of accepted shorts.
type ShortsSuggestionsFile struct {
	Shorts []ShortSuggestion `json:"shorts"`
}

// BrollSuggestion is one candidate insertion point the language model
// proposed for stage 6, before a clip has been downloaded for it.
type BrollSuggestion struct {
	Keyword   string  `json:"keyword"`
	Timestamp float64 `json:"timestamp"`
	Duration  float64 `json:"duration"`
	Rationale string  `json:"rationale"`
}

// BrollSuggestionsFile is stage 6's raw language-model proposal list.
type BrollSuggestionsFile struct {
	Clips []BrollSuggestion `json:"clips"`
}

// BrollClip is one downloaded, accepted B-roll clip ready for stage 7 to
// overlay; it augments BrollSuggestion with the local file it resolved to.
type BrollClip struct {
	Keyword   string  `json:"keyword"`
	Timestamp float64 `json:"timestamp"`
	Duration  float64 `json:"duration"`
	File      string  `json:"file"`
}

// BrollClipsFile is stage 6's final output consumed by stage 7.
type BrollClipsFile struct {
	Clips []BrollClip `json:"clips"`
}

// SEOMainVideo is the metadata document for the illustrated/classroom
// videos.
type SEOMainVideo struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Category      string   `json:"category"`
	PinnedComment string   `json:"pinned_comment"`
}

// SEOShort is the metadata document for one short.
type SEOShort struct {
	File          string   `json:"file"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Hashtags      []string `json:"hashtags"`
	PinnedComment string   `json:"pinned_comment"`
	Start         float64  `json:"start"`
	End           float64  `json:"end"`
}

// SEOFile is stage 8's output, seo.json.
type SEOFile struct {
	MainVideo SEOMainVideo `json:"main_video"`
	Shorts    []SEOShort   `json:"shorts"`
}

// ScheduleItem is one entry of stage 10's publication plan.
type ScheduleItem struct {
	Type          string   `json:"type"` // illustrated, classroom, short
	File          string   `json:"file"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Privacy       string   `json:"privacy"`
	ScheduledDate string   `json:"scheduled_date"` // YYYY-MM-DD
	ScheduledTime string   `json:"scheduled_time"` // HH:MM
	Thumbnail     string   `json:"thumbnail,omitempty"`
	VideoID       string   `json:"video_id,omitempty"`
	URL           string   `json:"url,omitempty"`
}

// UploadResult records stage 11's outcome for one ScheduleItem, keyed by
// slice index into ScheduleFile.Uploads.
type UploadResult struct {
	Index   int    `json:"index"`
	VideoID string `json:"video_id,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// UploadResults is stage 11's write-back into schedule.json.
type UploadResults struct {
	Errors []UploadResult `json:"errors,omitempty"`
	OK     []UploadResult `json:"ok,omitempty"`
}

// ScheduleFile is stage 10's output, schedule.json; stage 11 appends
// UploadResults and UploadedAt in place.
type ScheduleFile struct {
	Uploads       []ScheduleItem `json:"uploads"`
	UploadResults *UploadResults `json:"upload_results,omitempty"`
	UploadedAt    string         `json:"uploaded_at,omitempty"`
}
