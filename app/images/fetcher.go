package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// maxImageBytes caps downloaded image size. TMDb posters and backdrops
// stay far below this.
const maxImageBytes = 20 << 20

// Fetcher downloads remote images, runs them through the optimizer and
// writes them to the store.
type Fetcher struct {
	client    *http.Client
	optimizer Optimizer
	store     *Store
	userAgent string
}

func NewFetcher(optimizer Optimizer, store *Store, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		optimizer: optimizer,
		store:     store,
		userAgent: userAgent,
	}
}

// Fetch downloads the image at url, optimizes it and stores it under a
// name derived from title and kind. Returns the stored relative path.
// Optimization failures fall back to the original blob; a movie with an
// uncompressed poster beats a movie with none.
func (f *Fetcher) Fetch(ctx context.Context, url, title, kind string) (string, error) {
	data, err := f.download(ctx, url)
	if err != nil {
		return "", err
	}

	optimized, err := f.optimizer.Optimize(ctx, data)
	if err != nil {
		slog.Warn("Image optimization failed, storing original", "url", url, "error", err)
		optimized = data
	}

	name := FileName(title, kind, url)

	stored, err := f.store.Write(name, optimized)
	if err != nil {
		return "", err
	}

	return stored, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected image status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}

	return data, nil
}

// FileName builds a stable relative file name from a title, an asset
// kind and the source URL's extension, e.g. "the-matrix-poster.jpg".
func FileName(title, kind, sourceURL string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "untitled"
	}

	ext := path.Ext(sourceURL)
	if ext == "" {
		ext = ".jpg"
	}

	return slug + "-" + kind + ext
}
