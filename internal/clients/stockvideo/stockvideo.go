package stockvideo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yungbote/reelforge/internal/pkg/httpx"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

/*
Client is the B-roll discovery capability stage 6 depends on: keyword in,
a downloadable clip out. Search requests retry through the shared httpx
retry helpers (IsRetryableError/RetryAfterDuration/JitterSleep); the clip
download itself is attempted once.
*/
type Client interface {
	SearchAndDownload(ctx context.Context, query string, outPath string, opts SearchOptions) (*Clip, error)
}

type SearchOptions struct {
	Orientation string // landscape, portrait, square
	PerPage     int
}

type Clip struct {
	ID          int64  `json:"id"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	DurationSec int    `json:"duration_sec"`
	SourceURL   string `json:"source_url"`
	Attribution string `json:"attribution"`
	LocalPath   string `json:"local_path"`
}

type client struct {
	log        *logger.Logger
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func New(log *logger.Logger) Client {
	return &client{
		log:        log.With("service", "stockvideo.Client"),
		apiKey:     strings.TrimSpace(os.Getenv("PEXELS_API_KEY")),
		baseURL:    "https://api.pexels.com",
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: 4,
	}
}

func (c *client) IsConfigured() bool { return c.apiKey != "" }

type searchResponse struct {
	Videos []videoEntry `json:"videos"`
}

type videoEntry struct {
	ID         int64       `json:"id"`
	Duration   int         `json:"duration"`
	Image      string      `json:"image"`
	User       videoUser   `json:"user"`
	VideoFiles []videoFile `json:"video_files"`
}

type videoUser struct {
	Name string `json:"name"`
}

type videoFile struct {
	Quality string `json:"quality"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Link    string `json:"link"`
}

func (c *client) SearchAndDownload(ctx context.Context, query string, outPath string, opts SearchOptions) (*Clip, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("stockvideo: PEXELS_API_KEY not configured")
	}
	if query == "" {
		return nil, fmt.Errorf("query required")
	}
	orientation := opts.Orientation
	if orientation == "" {
		orientation = "landscape"
	}
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 3
	}

	videos, err := c.search(ctx, query, perPage, orientation)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		generic := strings.Fields(query)
		if len(generic) > 1 {
			videos, err = c.search(ctx, generic[0], perPage, orientation)
			if err != nil {
				return nil, err
			}
		}
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("no videos found for query %q", query)
	}

	best := pickBest(videos[0])
	if best == nil {
		return nil, fmt.Errorf("no usable video file for query %q", query)
	}

	if err := c.download(ctx, best.Link, outPath); err != nil {
		return nil, fmt.Errorf("download clip: %w", err)
	}

	return &Clip{
		ID:          videos[0].ID,
		Width:       best.Width,
		Height:      best.Height,
		DurationSec: videos[0].Duration,
		SourceURL:   best.Link,
		Attribution: videos[0].User.Name,
		LocalPath:   outPath,
	}, nil
}

func pickBest(v videoEntry) *videoFile {
	var best *videoFile
	for i := range v.VideoFiles {
		vf := &v.VideoFiles[i]
		if vf.Quality == "hd" && vf.Width >= 1280 {
			if best == nil || vf.Width > best.Width {
				best = vf
			}
		}
	}
	if best == nil {
		for i := range v.VideoFiles {
			if v.VideoFiles[i].Quality == "hd" {
				best = &v.VideoFiles[i]
				break
			}
		}
	}
	if best == nil && len(v.VideoFiles) > 0 {
		best = &v.VideoFiles[0]
	}
	return best
}

func (c *client) search(ctx context.Context, query string, perPage int, orientation string) ([]videoEntry, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", fmt.Sprintf("%d", perPage))
	q.Set("orientation", orientation)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/search?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if httpx.IsRetryableError(err) && attempt < c.maxRetries {
				time.Sleep(httpx.JitterSleep(time.Second * time.Duration(1<<attempt)))
				continue
			}
			return nil, err
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		if httpx.IsRetryableHTTPStatus(resp.StatusCode) && attempt < c.maxRetries {
			time.Sleep(httpx.RetryAfterDuration(resp, time.Second*time.Duration(1<<attempt), 30*time.Second))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("pexels search failed: status %d body=%s", resp.StatusCode, string(body))
		}
		var out searchResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode pexels response: %w", err)
		}
		return out.Videos, nil
	}
	return nil, fmt.Errorf("pexels search exhausted retries: %w", lastErr)
}

func (c *client) download(ctx context.Context, videoURL, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir out dir: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: status %d", resp.StatusCode)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write clip: %w", err)
	}
	return nil
}
