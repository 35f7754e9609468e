package images

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTinifyURL = "https://api.tinify.com/shrink"

// Optimizer compresses an image blob before it is stored.
type Optimizer interface {
	Optimize(ctx context.Context, data []byte) ([]byte, error)
}

// NoopOptimizer passes blobs through unchanged. Used when no compression
// service is configured.
type NoopOptimizer struct{}

func (NoopOptimizer) Optimize(_ context.Context, data []byte) ([]byte, error) {
	return data, nil
}

// TinifyOptimizer compresses images through the Tinify API.
type TinifyOptimizer struct {
	apiURL string
	apiKey string
	client *http.Client
}

func NewTinifyOptimizer(apiKey string, timeout time.Duration) *TinifyOptimizer {
	return &TinifyOptimizer{
		apiURL: defaultTinifyURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// SetAPIURL overrides the Tinify endpoint. Used in tests.
func (o *TinifyOptimizer) SetAPIURL(url string) {
	o.apiURL = url
}

// Optimize uploads the blob to Tinify and downloads the compressed
// result from the Location header of the shrink response.
func (o *TinifyOptimizer) Optimize(ctx context.Context, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create shrink request: %w", err)
	}
	req.SetBasicAuth("api", o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected shrink status code %d", resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("shrink response missing Location header")
	}

	optimized, err := o.download(ctx, location)
	if err != nil {
		return nil, err
	}

	slog.Debug("Image optimized", "original_bytes", len(data), "optimized_bytes", len(optimized))

	return optimized, nil
}

func (o *TinifyOptimizer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.SetBasicAuth("api", o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download optimized image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected download status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read optimized image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("optimized image larger than %d bytes", maxImageBytes)
	}

	return data, nil
}
