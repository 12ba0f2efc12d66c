package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/reelforge/internal/clients/llm"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
)

const signOffBlock = "\n\n---\nSubscribe for more and drop a comment with what you'd like to see next."

var seoSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"main_video": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":          map[string]any{"type": "string"},
				"description":    map[string]any{"type": "string"},
				"tags":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"category":       map[string]any{"type": "string"},
				"pinned_comment": map[string]any{"type": "string"},
			},
			"required": []string{"title", "description", "tags", "category", "pinned_comment"},
		},
		"shorts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file":           map[string]any{"type": "string"},
					"title":          map[string]any{"type": "string"},
					"description":    map[string]any{"type": "string"},
					"hashtags":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"pinned_comment": map[string]any{"type": "string"},
				},
				"required": []string{"file", "title", "description", "hashtags", "pinned_comment"},
			},
		},
	},
	"required": []string{"main_video", "shorts"},
}

// MetadataHandler is stage 8: ask the language model for SEO metadata
// covering the illustrated video and every rendered short, validating
// shape and falling back to a hard-coded skeleton on parse failure.
type MetadataHandler struct {
	LLM llm.Client
}

func (h *MetadataHandler) Type() string { return "stage_metadata" }

func (h *MetadataHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "generating metadata")

	transcript, err := readTranscription(ctx.Arena)
	if err != nil {
		ctx.Fail(err)
		return nil
	}

	var shortsFile ShortsSuggestionsFile
	if ctx.Arena.Exists("shorts_suggestions.json") {
		raw, err := ctx.Arena.Read("shorts_suggestions.json")
		if err != nil {
			ctx.Fail(fmt.Errorf("read shorts_suggestions.json: %w", err))
			return nil
		}
		if err := json.Unmarshal(raw, &shortsFile); err != nil {
			ctx.Fail(fmt.Errorf("parse shorts_suggestions.json: %w", err))
			return nil
		}
	}

	seo := h.generate(ctx.Ctx, transcript, shortsFile)

	b, err := json.MarshalIndent(seo, "", "  ")
	if err != nil {
		ctx.Fail(fmt.Errorf("marshal seo.json: %w", err))
		return nil
	}
	if err := ctx.Arena.Write("seo.json", b); err != nil {
		ctx.Fail(fmt.Errorf("write seo.json: %w", err))
		return nil
	}

	ctx.Succeed(map[string]any{"shorts": len(seo.Shorts)})
	return nil
}

func (h *MetadataHandler) generate(ctx context.Context, transcript TranscriptionFile, shortsFile ShortsSuggestionsFile) SEOFile {
	skeleton := skeletonSEO(transcript, shortsFile)
	if h.LLM == nil {
		return skeleton
	}

	var shortDescs strings.Builder
	for _, s := range shortsFile.Shorts {
		fmt.Fprintf(&shortDescs, "- %s: %s\n", s.File, s.Title)
	}
	system := "You write YouTube metadata: titles, descriptions, tags, category, pinned comments and hashtags. Every short's title must contain the literal text #shorts."
	user := fmt.Sprintf("Main video transcript:\n%s\n\nShort clips:\n%s", transcript.Text, shortDescs.String())

	obj, err := h.LLM.GenerateJSON(ctx, system, user, "seo_metadata", seoSchema)
	if err != nil {
		return skeleton
	}

	seo, ok := parseSEO(obj, shortsFile)
	if !ok {
		return skeleton
	}
	seo.MainVideo.Description += signOffBlock
	for i := range seo.Shorts {
		seo.Shorts[i].Description += signOffBlock
		if !strings.Contains(seo.Shorts[i].Title, "#shorts") {
			seo.Shorts[i].Title += " #shorts"
		}
	}
	return seo
}

func parseSEO(obj map[string]any, shortsFile ShortsSuggestionsFile) (SEOFile, bool) {
	var out SEOFile
	mv, ok := obj["main_video"].(map[string]any)
	if !ok {
		return out, false
	}
	out.MainVideo.Title, _ = mv["title"].(string)
	out.MainVideo.Description, _ = mv["description"].(string)
	out.MainVideo.Category, _ = mv["category"].(string)
	out.MainVideo.PinnedComment, _ = mv["pinned_comment"].(string)
	out.MainVideo.Tags = toStringSlice(mv["tags"])
	if out.MainVideo.Title == "" || out.MainVideo.Description == "" {
		return out, false
	}

	rawShorts, _ := obj["shorts"].([]any)
	byFile := map[string]ShortSuggestion{}
	for _, s := range shortsFile.Shorts {
		byFile[s.File] = s
	}
	for _, r := range rawShorts {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		file, _ := m["file"].(string)
		title, _ := m["title"].(string)
		desc, _ := m["description"].(string)
		pinned, _ := m["pinned_comment"].(string)
		if file == "" || title == "" {
			continue
		}
		base, known := byFile[file]
		entry := SEOShort{File: file, Title: title, Description: desc, PinnedComment: pinned, Hashtags: toStringSlice(m["hashtags"])}
		if known {
			entry.Start = base.Start
			entry.End = base.End
		}
		out.Shorts = append(out.Shorts, entry)
	}
	return out, true
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// skeletonSEO is the deterministic fallback when the language model is
// unavailable or its response fails validation.
func skeletonSEO(transcript TranscriptionFile, shortsFile ShortsSuggestionsFile) SEOFile {
	title := "New Video"
	if len(transcript.Text) > 0 {
		words := strings.Fields(transcript.Text)
		if len(words) > 8 {
			words = words[:8]
		}
		title = strings.Join(words, " ")
	}
	out := SEOFile{
		MainVideo: SEOMainVideo{
			Title:         title,
			Description:   transcript.Text + signOffBlock,
			Tags:          []string{"video"},
			Category:      "People & Blogs",
			PinnedComment: "Thanks for watching!",
		},
	}
	for _, s := range shortsFile.Shorts {
		shortTitle := s.Title
		if shortTitle == "" {
			shortTitle = "Highlight"
		}
		if !strings.Contains(shortTitle, "#shorts") {
			shortTitle += " #shorts"
		}
		out.Shorts = append(out.Shorts, SEOShort{
			File:          s.File,
			Title:         shortTitle,
			Description:   s.Description + signOffBlock,
			Hashtags:      []string{"#shorts"},
			PinnedComment: "Thanks for watching!",
			Start:         s.Start,
			End:           s.End,
		})
	}
	return out
}
