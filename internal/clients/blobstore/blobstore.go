package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/reelforge/internal/clients/gcp"
	"github.com/yungbote/reelforge/internal/pkg/logger"
)

/*
Mirror is the arena-to-cloud durability capability: a whole project
artifact directory mirrored to durable storage under a single key
prefix, so a crashed worker's arena can be rehydrated from the last
mirror.
*/
type Mirror interface {
	// MirrorUp uploads every file in localDir (recursively) to the
	// bucket under folderName/, skipping anything already present with
	// a matching size (cheap idempotency for resumed stages).
	MirrorUp(ctx context.Context, folderName string, localDir string) error
	// MirrorDown downloads every object under folderName/ into localDir.
	MirrorDown(ctx context.Context, folderName string, localDir string) error
	DeleteAll(ctx context.Context, folderName string) error
	GetPublicURL(folderName, relPath string) string
}

type mirror struct {
	log           *logger.Logger
	storageClient *storage.Client
	bucketName    string
	cdnDomain     string
}

func New(log *logger.Logger) (Mirror, error) {
	serviceLog := log.With("service", "blobstore.Mirror")

	bucketName := os.Getenv("PROJECT_GCS_BUCKET_NAME")
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var PROJECT_GCS_BUCKET_NAME")
	}
	cdnDomain := os.Getenv("PROJECT_CDN_DOMAIN")

	ctx := context.Background()
	opts := gcp.ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &mirror{
		log:           serviceLog,
		storageClient: stClient,
		bucketName:    bucketName,
		cdnDomain:     cdnDomain,
	}, nil
}

func (m *mirror) MirrorUp(ctx context.Context, folderName string, localDir string) error {
	if folderName == "" || localDir == "" {
		return fmt.Errorf("folderName and localDir required")
	}
	return filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		key := folderName + "/" + filepath.ToSlash(rel)

		uploadCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		obj := m.storageClient.Bucket(m.bucketName).Object(key)
		if attrs, statErr := obj.Attrs(uploadCtx); statErr == nil && attrs.Size == info.Size() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %q: %w", path, err)
		}
		defer f.Close()

		w := obj.NewWriter(uploadCtx)
		if ct := contentTypeForKey(key); ct != "" {
			w.ContentType = ct
		}
		if _, err := io.Copy(w, f); err != nil {
			_ = w.Close()
			return fmt.Errorf("upload %q: %w", key, err)
		}
		return w.Close()
	})
}

func (m *mirror) MirrorDown(ctx context.Context, folderName string, localDir string) error {
	if folderName == "" || localDir == "" {
		return fmt.Errorf("folderName and localDir required")
	}
	prefix := folderName + "/"
	it := m.storageClient.Bucket(m.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(attrs.Name, prefix)
		if rel == "" {
			continue
		}
		dst := filepath.Join(localDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("mkdir for %q: %w", dst, err)
		}

		readCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		r, err := m.storageClient.Bucket(m.bucketName).Object(attrs.Name).NewReader(readCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("open reader for %q: %w", attrs.Name, err)
		}
		f, err := os.Create(dst)
		if err != nil {
			r.Close()
			cancel()
			return fmt.Errorf("create %q: %w", dst, err)
		}
		_, copyErr := io.Copy(f, r)
		f.Close()
		r.Close()
		cancel()
		if copyErr != nil {
			return fmt.Errorf("download %q: %w", attrs.Name, copyErr)
		}
	}
	return nil
}

func (m *mirror) DeleteAll(ctx context.Context, folderName string) error {
	if folderName == "" {
		return fmt.Errorf("folderName required")
	}
	prefix := folderName + "/"
	it := m.storageClient.Bucket(m.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return err
		}
		if err := m.storageClient.Bucket(m.bucketName).Object(attrs.Name).Delete(ctx); err != nil {
			return fmt.Errorf("delete %q: %w", attrs.Name, err)
		}
	}
	return nil
}

func (m *mirror) GetPublicURL(folderName, relPath string) string {
	key := folderName + "/" + relPath
	if m.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", m.cdnDomain, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", m.bucketName, key)
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".mp4"), strings.HasSuffix(s, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".srt"):
		return "text/plain"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}
