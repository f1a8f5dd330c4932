package objectstore

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/waffle/pantry/storage"
)

// S3Config configures the S3 backend.
type S3Config struct {
	Region    string
	Bucket    string
	Prefix    string // optional key prefix, e.g. "groupsnap/"
	Endpoint  string // optional S3-compatible endpoint (MinIO, R2); enables path-style
	PublicURL string // optional base URL for object links (CDN)
}

// NewS3 opens an S3 bucket through the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config) (*storage.S3, error) {
	base := strings.TrimRight(cfg.PublicURL, "/")
	if base == "" && cfg.Endpoint != "" {
		base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return storage.NewS3(ctx, storage.S3Config{
		Bucket:       cfg.Bucket,
		Region:       cfg.Region,
		Prefix:       cfg.Prefix,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.Endpoint != "",
		BaseURL:      base,
	})
}

// NewLocal stores blobs under dir and links them below urlPrefix
// (for example "/files").
func NewLocal(dir, urlPrefix string) (*storage.Local, error) {
	return storage.NewLocal(storage.LocalConfig{BasePath: dir, BaseURL: urlPrefix})
}

// FileHandler serves objects from a local backend. Mount it at urlPrefix.
func FileHandler(local *storage.Local, urlPrefix string) http.Handler {
	prefix := strings.TrimRight(urlPrefix, "/") + "/"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutPrefix(r.URL.Path, prefix)
		if !ok || key == "" {
			http.NotFound(w, r)
			return
		}
		full, err := local.GetFullPath(key)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidPath) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if ok, _ := local.Exists(r.Context(), key); !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, full)
	})
}
