package llm

import (
	"context"

	"github.com/yungbote/reelforge/internal/clients/openai"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

// ImageInput is re-exported so callers never need to import the
// provider package directly.
type ImageInput = openai.ImageInput

// ImageGeneration is re-exported so callers never need to import the
// provider package directly.
type ImageGeneration = openai.ImageGeneration

/*
Client is the text/JSON/image generation capability shared by stages 4
(transcript correction), 5 (shorts selection), 6 (B-roll keyword
extraction), 8 (SEO metadata) and 9 (thumbnail generation): a narrow
port naming only the calls stage bodies actually make, independent of
whatever wider surface the provider's own SDK client exposes.
*/
type Client interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
	GenerateText(ctx context.Context, system string, user string) (string, error)
	GenerateImage(ctx context.Context, prompt string, refs []ImageInput) (ImageGeneration, error)
}

// New constructs the capability, currently delegating entirely to the
// openai package's constructor.
func New(log *logger.Logger) (Client, error) {
	return openai.NewClient(log)
}
