package stages

import (
	"fmt"
	"strings"
)

// wordTiming is one word's estimated span within a short's window,
// interpolated proportionally to character count since transcription.json
// only carries segment-level (not per-word) timestamps.
type wordTiming struct {
	Text  string
	Start float64
	End   float64
}

const wordsPerLine = 2
const linesPerScreen = 2
const wordsPerChunk = wordsPerLine * linesPerScreen

// wordsInWindow extracts the words spoken within [start, end), with
// estimated per-word timing distributed across each overlapping
// transcript segment in proportion to word length.
func wordsInWindow(segments []TranscriptSegment, start, end float64) []wordTiming {
	var out []wordTiming
	for _, seg := range segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		words := strings.Fields(seg.Text)
		if len(words) == 0 {
			continue
		}
		segStart := maxFloat(seg.Start, start)
		segEnd := minFloat(seg.End, end)
		if segEnd <= segStart {
			continue
		}
		totalChars := 0
		for _, w := range words {
			totalChars += len(w)
		}
		if totalChars == 0 {
			continue
		}
		cursor := segStart
		dur := segEnd - segStart
		for _, w := range words {
			frac := float64(len(w)) / float64(totalChars)
			wDur := dur * frac
			out = append(out, wordTiming{Text: w, Start: cursor, End: cursor + wDur})
			cursor += wDur
		}
	}
	return out
}

// BuildKaraokeASS renders words (already offset so 0 is the short's own
// start) into an ASS subtitle track: wordsPerLine words per line,
// linesPerScreen lines per screen, the currently-spoken word in
// highlightColor and the rest in textColor, one Dialogue event per word
// so the highlight advances across the chunk.
func BuildKaraokeASS(words []wordTiming, highlightColor, textColor string, fontSize int) string {
	if fontSize <= 0 {
		fontSize = 64
	}
	var b strings.Builder
	b.WriteString("[Script Info]\nScriptType: v4.00+\nPlayResX: 1080\nPlayResY: 1920\n\n")
	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Default,DejaVu Sans,%d,%s,%s,&H00000000,&H00000000,1,0,0,0,100,100,0,0,1,6,0,2,80,80,420,1\n\n", fontSize, assColor(textColor), assColor(textColor))
	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for chunkStart := 0; chunkStart < len(words); chunkStart += wordsPerChunk {
		chunkEnd := chunkStart + wordsPerChunk
		if chunkEnd > len(words) {
			chunkEnd = len(words)
		}
		chunk := words[chunkStart:chunkEnd]
		for i, w := range chunk {
			text := renderChunkLine(chunk, i, highlightColor, textColor)
			fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n", assTime(w.Start), assTime(w.End), text)
		}
	}
	return b.String()
}

// renderChunkLine builds one ASS Text field for a 2x2 word chunk with
// word at index highlightIdx colored highlightColor and the rest
// textColor, broken into wordsPerLine-word lines via \N.
func renderChunkLine(chunk []wordTiming, highlightIdx int, highlightColor, textColor string) string {
	var parts []string
	for i, w := range chunk {
		color := textColor
		if i == highlightIdx {
			color = highlightColor
		}
		parts = append(parts, fmt.Sprintf("{\\c%s}%s{\\c%s}", assColor(color), w.Text, assColor(textColor)))
	}
	var lines []string
	for i := 0; i < len(parts); i += wordsPerLine {
		end := i + wordsPerLine
		if end > len(parts) {
			end = len(parts)
		}
		lines = append(lines, strings.Join(parts[i:end], " "))
	}
	return strings.Join(lines, "\\N")
}

// assColor converts a "#RRGGBB" hex string into ASS's &HAABBGGRR& form
// (alpha 00, blue/green/red byte-reversed). Defaults to white.
func assColor(hex string) string {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return "&H00FFFFFF&"
	}
	r, g, bl := hex[0:2], hex[2:4], hex[4:6]
	return fmt.Sprintf("&H00%s%s%s&", bl, g, r)
}

// assTime formats seconds as ASS's H:MM:SS.CC timestamp.
func assTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	totalCentis := int(sec*100 + 0.5)
	h := totalCentis / 360000
	m := (totalCentis / 6000) % 60
	s := (totalCentis / 100) % 60
	cs := totalCentis % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
