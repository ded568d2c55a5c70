package speaker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxArtworkSize = 8 << 20

// ArtworkFetcher downloads album art that cannot be handed to the hub as a
// public URL.
type ArtworkFetcher interface {
	Fetch(ctx context.Context, ref string) (Artwork, error)
}

// HTTPArtworkFetcher fetches artwork over plain HTTP, typically from the
// speaker itself.
type HTTPArtworkFetcher struct {
	client *http.Client
}

// NewHTTPArtworkFetcher creates a fetcher. A nil client gets a 10 second
// timeout default.
func NewHTTPArtworkFetcher(client *http.Client) *HTTPArtworkFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPArtworkFetcher{client: client}
}

// Fetch downloads ref into a buffer. Non-2xx responses are errors.
func (f *HTTPArtworkFetcher) Fetch(ctx context.Context, ref string) (Artwork, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return Artwork{}, fmt.Errorf("build artwork request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Artwork{}, fmt.Errorf("fetch artwork: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Artwork{}, fmt.Errorf("fetch artwork: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtworkSize))
	if err != nil {
		return Artwork{}, fmt.Errorf("read artwork: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return Artwork{Data: data, ContentType: contentType}, nil
}

// isDirectArtwork reports whether ref can be given to the hub as is.
func isDirectArtwork(ref string) bool {
	return strings.HasPrefix(ref, "https://")
}
