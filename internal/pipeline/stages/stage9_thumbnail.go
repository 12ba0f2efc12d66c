package stages

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/yungbote/reelforge/internal/clients/llm"
	"github.com/yungbote/reelforge/internal/pipeline/arena"
	"github.com/yungbote/reelforge/internal/pipeline/runtime"
	"github.com/yungbote/reelforge/internal/platform/localmedia"
)

var (
	thumbColorSchemes      = []string{"vibrant red/yellow contrast", "cool blue/teal", "high-energy orange", "monochrome with a single accent", "neon purple/pink"}
	thumbPersonPositions   = []string{"left third, facing right", "right third, facing left", "centered, direct gaze"}
	thumbBackgroundStyles  = []string{"blurred studio bokeh", "abstract gradient", "minimal flat color", "soft motion-blur streaks"}
	thumbSituationContexts = []string{"mid-explanation with a raised hand", "pointing at an off-screen graphic", "surprised expression", "confident arms-crossed pose"}
	thumbClothingOptions   = []string{"casual branded t-shirt", "business-casual button-down", "hoodie"}
)

// ThumbnailHandler is stage 9: extract a reference frame, draft a prompt
// from the generated metadata plus a random palette draw, and composite
// the image-generation capability's result with an optional brand logo
// and a safe-area text treatment.
type ThumbnailHandler struct {
	Tools localmedia.Tools
	LLM   llm.Client
}

func (h *ThumbnailHandler) Type() string { return "stage_thumbnail" }

func (h *ThumbnailHandler) Run(ctx *runtime.Context) error {
	if ctx.Revoked() {
		return nil
	}
	ctx.Progress(0, "building thumbnail")

	// Canvas recordings carry no separate webcam source; the composited
	// cut stands in for the reference frame.
	frameSource := "webcam.mp4"
	if !ctx.Arena.Exists(frameSource) {
		frameSource = "original.mp4"
	}
	if !ctx.Arena.Exists(frameSource) {
		ctx.Fail(fmt.Errorf("stage_thumbnail: no frame source (webcam.mp4 or original.mp4)"))
		return nil
	}
	if !ctx.Arena.Exists("seo.json") {
		ctx.Fail(fmt.Errorf("stage_thumbnail: seo.json missing"))
		return nil
	}
	raw, err := ctx.Arena.Read("seo.json")
	if err != nil {
		ctx.Fail(fmt.Errorf("read seo.json: %w", err))
		return nil
	}
	var seo SEOFile
	if err := json.Unmarshal(raw, &seo); err != nil {
		ctx.Fail(fmt.Errorf("parse seo.json: %w", err))
		return nil
	}

	dur, err := h.Tools.Probe(ctx.Ctx, ctx.Arena.Path(frameSource))
	if err != nil {
		ctx.Fail(fmt.Errorf("probe %s: %w", frameSource, err))
		return nil
	}
	framePath := "thumbnail_frame.png"
	if err := h.Tools.ExtractFrame(ctx.Ctx, ctx.Arena.Path(frameSource), ctx.Arena.Path(framePath), dur/2); err != nil {
		ctx.Fail(fmt.Errorf("extract reference frame: %w", err))
		return nil
	}
	defer func() { _ = ctx.Arena.Remove(framePath) }()

	title := seo.MainVideo.Title
	if len(seo.Shorts) > 0 {
		title = seo.Shorts[0].Title
	}

	prompt := buildThumbnailPrompt(title)
	if corrections, ok := ctx.Payload()["corrections"].(string); ok && corrections != "" {
		prompt += "\n\nAdditional corrections: " + corrections
	}

	var imgBytes []byte
	debug := map[string]any{"prompt": prompt}
	if h.LLM != nil {
		refs, refErr := thumbnailRefs(ctx.Arena, framePath)
		if refErr != nil {
			ctx.Fail(refErr)
			return nil
		}
		gen, err := h.LLM.GenerateImage(ctx.Ctx, prompt, refs)
		if err != nil {
			debug["error"] = err.Error()
		} else {
			imgBytes = gen.Bytes
			debug["revised_prompt"] = gen.RevisedPrompt
		}
	}
	if db, err := json.MarshalIndent(debug, "", "  "); err == nil {
		_ = ctx.Arena.Write("gemini_debug.json", db)
	}

	var base image.Image
	if len(imgBytes) > 0 {
		decoded, _, err := image.Decode(bytes.NewReader(imgBytes))
		if err != nil {
			ctx.Fail(fmt.Errorf("decode generated image: %w", err))
			return nil
		}
		base = decoded
	} else {
		frameBytes, err := ctx.Arena.Read(framePath)
		if err != nil {
			ctx.Fail(fmt.Errorf("read reference frame: %w", err))
			return nil
		}
		decoded, _, err := image.Decode(bytes.NewReader(frameBytes))
		if err != nil {
			ctx.Fail(fmt.Errorf("decode reference frame: %w", err))
			return nil
		}
		base = decoded
	}

	out, err := compositeThumbnail(base, title, ctx.Arena.Exists("logo.png"), func() ([]byte, error) {
		return ctx.Arena.Read("logo.png")
	})
	if err != nil {
		ctx.Fail(fmt.Errorf("composite thumbnail: %w", err))
		return nil
	}

	if err := ctx.Arena.Write("thumbnail.png", out); err != nil {
		ctx.Fail(fmt.Errorf("write thumbnail.png: %w", err))
		return nil
	}
	if err := ctx.WriteOutput("thumbnail", "thumbnail.png"); err != nil {
		ctx.Fail(err)
		return nil
	}
	ctx.Succeed(map[string]any{"generated": len(imgBytes) > 0})
	return nil
}

// thumbnailRefs packages the extracted webcam frame (and the brand logo
// when present) as data-URL reference images so the generation stays
// anchored on the actual presenter.
func thumbnailRefs(ar arena.Arena, framePath string) ([]llm.ImageInput, error) {
	frameBytes, err := ar.Read(framePath)
	if err != nil {
		return nil, fmt.Errorf("read reference frame: %w", err)
	}
	refs := []llm.ImageInput{{ImageURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(frameBytes)}}
	if ar.Exists("logo.png") {
		if logoBytes, err := ar.Read("logo.png"); err == nil {
			refs = append(refs, llm.ImageInput{ImageURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(logoBytes)})
		}
	}
	return refs, nil
}

func buildThumbnailPrompt(title string) string {
	return fmt.Sprintf(
		"Create a YouTube thumbnail for a video titled %q. Color scheme: %s. Person position: %s. Background style: %s. Situation: %s. Clothing: %s. Bold, high-contrast, legible at small sizes.",
		title,
		thumbColorSchemes[rand.Intn(len(thumbColorSchemes))],
		thumbPersonPositions[rand.Intn(len(thumbPersonPositions))],
		thumbBackgroundStyles[rand.Intn(len(thumbBackgroundStyles))],
		thumbSituationContexts[rand.Intn(len(thumbSituationContexts))],
		thumbClothingOptions[rand.Intn(len(thumbClothingOptions))],
	)
}

// compositeThumbnail draws the title into the image's lower safe area
// with a heavy-outline bold font and, if present, overlays the brand
// logo in the top-right corner.
func compositeThumbnail(base image.Image, title string, hasLogo bool, readLogo func() ([]byte, error)) ([]byte, error) {
	b := base.Bounds()
	dc := gg.NewContextForImage(base)

	face, err := thumbnailFontFace(float64(b.Dy()) * 0.07)
	if err != nil {
		return nil, err
	}
	dc.SetFontFace(face)

	marginX := float64(b.Dx()) * 0.04
	baseline := float64(b.Dy()) * 0.92
	outline := float64(b.Dy()) * 0.006
	dc.SetColor(color.Black)
	for _, off := range outlineOffsets(outline) {
		dc.DrawString(title, marginX+off.dx, baseline+off.dy)
	}
	dc.SetColor(color.White)
	dc.DrawString(title, marginX, baseline)

	if hasLogo {
		logoBytes, err := readLogo()
		if err == nil {
			logoImg, _, decErr := image.Decode(bytes.NewReader(logoBytes))
			if decErr == nil {
				logoSize := float64(b.Dy()) * 0.16
				scale := logoSize / float64(logoImg.Bounds().Dy())
				dc.Push()
				dc.Translate(float64(b.Dx())-logoSize-float64(b.Dx())*0.03, float64(b.Dy())*0.03)
				dc.Scale(scale, scale)
				dc.DrawImage(logoImg, 0, 0)
				dc.Pop()
			}
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// outlineOffsets returns the 8 surrounding-pixel offsets used to fake a
// stroked outline by redrawing the same string shifted in each direction.
func outlineOffsets(r float64) []struct{ dx, dy float64 } {
	return []struct{ dx, dy float64 }{
		{-r, -r}, {0, -r}, {r, -r},
		{-r, 0}, {r, 0},
		{-r, r}, {0, r}, {r, r},
	}
}

func thumbnailFontFace(size float64) (font.Face, error) {
	f, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse embedded bold font: %w", err)
	}
	return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull}), nil
}
