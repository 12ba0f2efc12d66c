package localmedia

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/reelforge/internal/pkg/ctxutil"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

/*
Tools is the "hard way" glue around the ffmpeg/ffprobe binaries every
stage body shells out to. Each method is a single deterministic
subprocess invocation with a bounded timeout and CombinedOutput error
formatting.

REQUIRED BINARIES in worker runtime: ffmpeg, ffprobe.
*/
type Tools interface {
	AssertReady(ctx context.Context) error

	// Probe returns the duration in seconds of a media file.
	Probe(ctx context.Context, path string) (float64, error)

	// Normalize re-encodes a source recording to the canonical pipeline
	// format: 60fps CFR, h264/aac, faststart. Stage 0.
	Normalize(ctx context.Context, inPath, outPath string, opts NormalizeOptions) error

	// Compose overlays a webcam recording onto a screen recording as a
	// picture-in-picture for the whole timeline. Layout, LayoutSwitches,
	// BorderColor and BorderWidth are not applied. Stage 1.
	Compose(ctx context.Context, screenPath, webcamPath, outPath string, opts ComposeOptions) error

	// DetectSilence runs the silencedetect filter and parses its stderr
	// log into silence intervals. Stage 2.
	DetectSilence(ctx context.Context, inPath string, opts SilenceOptions) ([]SilenceInterval, error)

	// TrimSegments keeps only the given [start,end] segments (in source
	// order) and concatenates them into outPath, dropping everything
	// else. Used by stage 2 (silence removal) and stage 3 (source trim).
	TrimSegments(ctx context.Context, inPath, outPath string, keep []Segment) error

	// RenderVertical stacks a zoomed-and-panned screen source above a
	// zoomed, center-cropped webcam source into a 9:16 short and burns in
	// the supplied caption file (SRT or ASS). webcamPath may be empty, in
	// which case the screen source alone is cropped to fill the frame.
	// Stage 5.
	RenderVertical(ctx context.Context, screenPath, webcamPath, captionsPath, outPath string, opts VerticalOptions) error

	// OverlayClip time-gates a B-roll clip over the base video between
	// startSec and endSec. Stage 7.
	OverlayClip(ctx context.Context, basePath, overlayPath, outPath string, startSec, endSec float64) error

	// ExtractFrame grabs a single frame at atSec as a still image. Stage 9.
	ExtractFrame(ctx context.Context, inPath, outPath string, atSec float64) error

	// ExtractAudio pulls a mono 16kHz PCM WAV track out of inPath for
	// submission to the speech-to-text capability. Stage 4.
	ExtractAudio(ctx context.Context, inPath, outPath string) error

	// Concat appends one or more clips after a base clip, re-encoding to
	// the canonical format so differing source codecs never break the
	// concat filter graph. Stage 5's outro append.
	Concat(ctx context.Context, outPath string, inputs []string) error
}

type NormalizeOptions struct {
	FPS   int
	Mute  bool // true for the webcam pass (-an), false for screen
}

type ComposeOptions struct {
	Layout         string // "pip" (default) or "side_by_side"; Compose does not apply it
	WebcamX        int
	WebcamY        int
	WebcamSize     int // webcam square edge length in px
	WebcamShape    string // "circle" or "rounded"
	BorderColor    string
	BorderWidth    int
	LayoutSwitches []LayoutSwitch
}

type LayoutSwitch struct {
	TimestampSec float64
	Layout       string
}

type SilenceOptions struct {
	NoiseDB        float64 // e.g. -30 (dB)
	MinDurationSec float64 // e.g. 0.5
}

type SilenceInterval struct {
	StartSec float64
	EndSec   float64
}

type Segment struct {
	StartSec float64
	EndSec   float64
}

type VerticalOptions struct {
	Width      int
	Height     int
	FontSize   int
	FontColor  string
	HighlightColor string
}

type tools struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string

	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	slog := log.With("service", "MediaTools")
	return &tools{
		log:            slog,
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		defaultTimeout: 45 * time.Minute,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	_ = ctx
	return nil
}

func (m *tools) Probe(ctx context.Context, path string) (float64, error) {
	ctx = ctxutil.Default(ctx)
	if path == "" {
		return 0, fmt.Errorf("path required")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w; out=%s", err, string(out))
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration parse failed: %w; out=%s", err, string(out))
	}
	return d, nil
}

// Normalize implements the pipeline's exact stage 0 command: CFR 60fps,
// libx264 fast/crf18, aac 192k, faststart. The webcam pass adds -an.
func (m *tools) Normalize(ctx context.Context, inPath, outPath string, opts NormalizeOptions) error {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return err
	}
	if inPath == "" || outPath == "" {
		return fmt.Errorf("inPath and outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir outPath dir: %w", err)
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = 60
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{
		"-y", "-i", inPath,
		"-r", strconv.Itoa(fps),
		"-vsync", "cfr",
		"-c:v", "libx264", "-preset", "fast", "-crf", "18",
	}
	if opts.Mute {
		args = append(args, "-an")
	} else {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}
	args = append(args, "-movflags", "+faststart", outPath)

	return m.run(ctx, args)
}

// Compose overlays the webcam onto the screen recording as a
// picture-in-picture. Shape "circle" applies a geq-based alpha mask so
// the webcam renders as a circular inset; every other shape, "rounded"
// included, renders as a plain square inset. No border is drawn, the
// screen keeps its own resolution, and layout switches are not applied:
// the webcam stays overlaid at (WebcamX, WebcamY) for the whole timeline.
func (m *tools) Compose(ctx context.Context, screenPath, webcamPath, outPath string, opts ComposeOptions) error {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return err
	}
	if screenPath == "" || webcamPath == "" || outPath == "" {
		return fmt.Errorf("screenPath, webcamPath and outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir outPath dir: %w", err)
	}
	size := opts.WebcamSize
	if size <= 0 {
		size = 320
	}
	x := opts.WebcamX
	y := opts.WebcamY

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	webcamFilter := fmt.Sprintf("[1:v]scale=%d:%d", size, size)
	if strings.EqualFold(opts.WebcamShape, "circle") {
		webcamFilter += fmt.Sprintf(",format=yuva420p,geq=lum='p(X,Y)':a='if(lte((X-%d)*(X-%d)+(Y-%d)*(Y-%d),%d),255,0)'", size/2, size/2, size/2, size/2, (size/2)*(size/2))
	}
	webcamFilter += "[pip]"

	filterComplex := webcamFilter + fmt.Sprintf(";[0:v][pip]overlay=%d:%d:shortest=1[outv]", x, y)

	args := []string{
		"-y",
		"-i", screenPath,
		"-i", webcamPath,
		"-filter_complex", filterComplex,
		"-map", "[outv]",
		"-map", "0:a?",
		"-c:v", "libx264", "-preset", "fast", "-crf", "18",
		"-c:a", "aac", "-b:a", "192k",
		"-movflags", "+faststart",
		outPath,
	}
	return m.run(ctx, args)
}

// DetectSilence runs a null-output pass with the silencedetect filter
// and parses the silence_start/silence_end pairs out of ffmpeg's stderr.
func (m *tools) DetectSilence(ctx context.Context, inPath string, opts SilenceOptions) ([]SilenceInterval, error) {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return nil, err
	}
	if inPath == "" {
		return nil, fmt.Errorf("inPath required")
	}
	noiseDB := opts.NoiseDB
	if noiseDB == 0 {
		noiseDB = -30
	}
	minDur := opts.MinDurationSec
	if minDur <= 0 {
		minDur = 0.5
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{
		"-y", "-i", inPath,
		"-af", fmt.Sprintf("silencedetect=noise=%gdB:d=%g", noiseDB, minDur),
		"-f", "null", "-",
	}
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg silencedetect failed: %w; out=%s", err, tailString(string(out), diagTailChars))
	}
	return parseSilenceLog(string(out)), nil
}

var silenceStartRe = regexp.MustCompile(`silence_start:\s*([0-9.]+)`)
var silenceEndRe = regexp.MustCompile(`silence_end:\s*([0-9.]+)`)

func parseSilenceLog(log string) []SilenceInterval {
	var out []SilenceInterval
	var pendingStart *float64
	for _, line := range strings.Split(log, "\n") {
		if m := silenceStartRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				pendingStart = &v
			}
			continue
		}
		if m := silenceEndRe.FindStringSubmatch(line); m != nil && pendingStart != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				out = append(out, SilenceInterval{StartSec: *pendingStart, EndSec: v})
			}
			pendingStart = nil
		}
	}
	return out
}

// TrimSegments keeps the given segments (already sorted, non-overlapping,
// in chronological order) and concatenates them, dropping the gaps
// between them. Stage 2 uses it to cut the silences out of original.mp4
// and stage 3 to apply that same segment list to the separate sources:
// the caller computes which ranges to keep, this just executes the cut.
func (m *tools) TrimSegments(ctx context.Context, inPath, outPath string, keep []Segment) error {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return err
	}
	if inPath == "" || outPath == "" {
		return fmt.Errorf("inPath and outPath required")
	}
	if len(keep) == 0 {
		return fmt.Errorf("no segments to keep")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir outPath dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	var filterParts []string
	var vLabels, aLabels []string
	for i, seg := range keep {
		vLabel := fmt.Sprintf("v%d", i)
		aLabel := fmt.Sprintf("a%d", i)
		filterParts = append(filterParts, fmt.Sprintf(
			"[0:v]trim=start=%g:end=%g,setpts=PTS-STARTPTS[%s]", seg.StartSec, seg.EndSec, vLabel))
		filterParts = append(filterParts, fmt.Sprintf(
			"[0:a]atrim=start=%g:end=%g,asetpts=PTS-STARTPTS[%s]", seg.StartSec, seg.EndSec, aLabel))
		vLabels = append(vLabels, fmt.Sprintf("[%s]", vLabel))
		aLabels = append(aLabels, fmt.Sprintf("[%s]", aLabel))
	}
	var concatInputs []string
	for i := range keep {
		concatInputs = append(concatInputs, vLabels[i], aLabels[i])
	}
	filterComplex := strings.Join(filterParts, ";") + ";" +
		strings.Join(concatInputs, "") + fmt.Sprintf("concat=n=%d:v=1:a=1[outv][outa]", len(keep))

	args := []string{
		"-y", "-i", inPath,
		"-filter_complex", filterComplex,
		"-map", "[outv]", "-map", "[outa]",
		"-c:v", "libx264", "-preset", "fast", "-crf", "18",
		"-c:a", "aac", "-b:a", "192k",
		"-movflags", "+faststart",
		outPath,
	}
	return m.run(ctx, args)
}

// RenderVertical composites the short's vertical layout: the screen
// source scaled 3.0x with a slow sinusoidal pan stacked above the webcam
// source scaled 1.3x with a center crop, each filling half of a 1080x1920
// canvas, with the caption file burned in over the result via the
// subtitles filter (which dispatches on extension, so both .srt and .ass
// are accepted). With no webcam source, the screen alone is cropped to
// fill the whole frame.
func (m *tools) RenderVertical(ctx context.Context, screenPath, webcamPath, captionsPath, outPath string, opts VerticalOptions) error {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return err
	}
	if screenPath == "" || outPath == "" {
		return fmt.Errorf("screenPath and outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir outPath dir: %w", err)
	}
	w, h := opts.Width, opts.Height
	if w <= 0 {
		w = 1080
	}
	if h <= 0 {
		h = 1920
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	var args []string
	var filterComplex string
	if webcamPath != "" {
		half := h / 2
		topPan := fmt.Sprintf(
			"[0:v]scale=%d*3:-1,crop=%d:%d:'(iw-%d)/2+20*sin(t/3)':'(ih-%d)/2+20*sin(t/4)'[top]",
			w, w, half, w, half)
		bottomCrop := fmt.Sprintf("[1:v]scale=%d*1.3:-1,crop=%d:%d[bottom]", w, w, half)
		filterComplex = topPan + ";" + bottomCrop + ";[top][bottom]vstack=inputs=2[stacked]"
		args = []string{"-y", "-i", screenPath, "-i", webcamPath}
	} else {
		filterComplex = fmt.Sprintf(
			"[0:v]crop='min(iw,ih*%d/%d)':'min(ih,iw*%d/%d)',scale=%d:%d[stacked]", w, h, h, w, w, h)
		args = []string{"-y", "-i", screenPath}
	}

	outLabel := "[stacked]"
	if captionsPath != "" {
		filterComplex += fmt.Sprintf(";[stacked]subtitles=%s[captioned]", escapeFilterPath(captionsPath))
		outLabel = "[captioned]"
	}

	args = append(args,
		"-filter_complex", filterComplex,
		"-map", outLabel, "-map", "0:a?",
		"-c:v", "libx264", "-preset", "fast", "-crf", "18",
		"-c:a", "aac", "-b:a", "192k",
		"-movflags", "+faststart",
		outPath,
	)
	return m.run(ctx, args)
}

// OverlayClip composites overlayPath onto basePath, visible only between
// startSec and endSec, muted (B-roll never replaces the narration track).
func (m *tools) OverlayClip(ctx context.Context, basePath, overlayPath, outPath string, startSec, endSec float64) error {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return err
	}
	if basePath == "" || overlayPath == "" || outPath == "" {
		return fmt.Errorf("basePath, overlayPath and outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir outPath dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	filterComplex := fmt.Sprintf(
		"[1:v]setpts=PTS-STARTPTS+%g/TB[ov];[0:v][ov]overlay=enable='between(t,%g,%g)'[outv]",
		startSec, startSec, endSec)

	args := []string{
		"-y",
		"-i", basePath,
		"-i", overlayPath,
		"-filter_complex", filterComplex,
		"-map", "[outv]", "-map", "0:a?",
		"-c:v", "libx264", "-preset", "fast", "-crf", "18",
		"-c:a", "aac", "-b:a", "192k",
		"-movflags", "+faststart",
		outPath,
	}
	return m.run(ctx, args)
}

func (m *tools) ExtractFrame(ctx context.Context, inPath, outPath string, atSec float64) error {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return err
	}
	if inPath == "" || outPath == "" {
		return fmt.Errorf("inPath and outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir outPath dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%g", atSec),
		"-i", inPath,
		"-frames:v", "1",
		outPath,
	}
	return m.run(ctx, args)
}

// ExtractAudio converts inPath's audio track to the mono 16kHz PCM WAV
// format the speech-to-text capability expects.
func (m *tools) ExtractAudio(ctx context.Context, inPath, outPath string) error {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return err
	}
	if inPath == "" || outPath == "" {
		return fmt.Errorf("inPath and outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir outPath dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{
		"-y", "-i", inPath,
		"-vn", "-ac", "1", "-ar", "16000", "-acodec", "pcm_s16le",
		outPath,
	}
	return m.run(ctx, args)
}

// Concat re-encodes and concatenates inputs in order via filter_complex,
// tolerating mismatched input codecs/resolutions (unlike the stream-copy
// concat demuxer, which requires identical codecs across inputs).
func (m *tools) Concat(ctx context.Context, outPath string, inputs []string) error {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return err
	}
	if outPath == "" {
		return fmt.Errorf("outPath required")
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs to concat")
	}
	if len(inputs) == 1 {
		return m.Normalize(ctx, inputs[0], outPath, NormalizeOptions{FPS: 60})
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir outPath dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{"-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	var concatInputs []string
	for i := range inputs {
		concatInputs = append(concatInputs, fmt.Sprintf("[%d:v][%d:a]", i, i))
	}
	filterComplex := strings.Join(concatInputs, "") + fmt.Sprintf("concat=n=%d:v=1:a=1[outv][outa]", len(inputs))
	args = append(args,
		"-filter_complex", filterComplex,
		"-map", "[outv]", "-map", "[outa]",
		"-c:v", "libx264", "-preset", "fast", "-crf", "18",
		"-c:a", "aac", "-b:a", "192k",
		"-movflags", "+faststart",
		outPath,
	)
	return m.run(ctx, args)
}

// diagTailChars bounds how much encoder output rides along on an error:
// ffmpeg logs megabytes on a long encode, and only the tail names the
// actual failure.
const diagTailChars = 500

func (m *tools) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w; out=%s", err, tailString(string(out), diagTailChars))
	}
	return nil
}

func tailString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}
