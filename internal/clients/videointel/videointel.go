package videointel

import (
	"context"
	"fmt"
	"os"
	"strings"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	videointelligencepb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"

	"github.com/yungbote/reelforge/internal/clients/gcp"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

/*
LabelDetector is an optional relevance filter for the B-roll discovery
stage: before committing to a downloaded stock clip, ask whether its
detected labels plausibly match the keyword that was searched for.
Stock search APIs routinely return clips whose tags match the query but
whose visual content doesn't; shot-label detection catches the worst of
those before they get overlaid onto the main video.
*/
type LabelDetector interface {
	// MatchesKeyword reports whether any detected shot/segment label in
	// clipPath is a plausible match for keyword (case-insensitive
	// substring either direction). A clip with no detected labels counts
	// as a match.
	MatchesKeyword(ctx context.Context, clipPath string, keyword string) (bool, []string, error)
	Close() error
}

type labelDetector struct {
	log    *logger.Logger
	client *videointelligence.Client
}

func New(log *logger.Logger) (LabelDetector, error) {
	ctx := context.Background()
	opts := gcp.ClientOptionsFromEnv()
	c, err := videointelligence.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}
	return &labelDetector{log: log.With("service", "videointel.LabelDetector"), client: c}, nil
}

func (d *labelDetector) MatchesKeyword(ctx context.Context, clipPath string, keyword string) (bool, []string, error) {
	if clipPath == "" {
		return false, nil, fmt.Errorf("clipPath required")
	}
	data, err := os.ReadFile(clipPath)
	if err != nil {
		return false, nil, fmt.Errorf("read clip: %w", err)
	}

	op, err := d.client.AnnotateVideo(ctx, &videointelligencepb.AnnotateVideoRequest{
		InputContent: data,
		Features: []videointelligencepb.Feature{
			videointelligencepb.Feature_LABEL_DETECTION,
		},
	})
	if err != nil {
		return false, nil, fmt.Errorf("annotate video: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("annotate video wait: %w", err)
	}

	var labels []string
	for _, result := range resp.GetAnnotationResults() {
		for _, seg := range result.GetSegmentLabelAnnotations() {
			if seg.GetEntity() != nil {
				labels = append(labels, seg.GetEntity().GetDescription())
			}
		}
		for _, shot := range result.GetShotLabelAnnotations() {
			if shot.GetEntity() != nil {
				labels = append(labels, shot.GetEntity().GetDescription())
			}
		}
	}

	kw := strings.ToLower(strings.TrimSpace(keyword))
	for _, l := range labels {
		ll := strings.ToLower(l)
		if strings.Contains(ll, kw) || strings.Contains(kw, ll) {
			return true, labels, nil
		}
	}
	return len(labels) == 0, labels, nil
}

func (d *labelDetector) Close() error {
	return d.client.Close()
}
