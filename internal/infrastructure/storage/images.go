package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crosslist/backend/internal/domain/marketplace"
)

// ObjectReader is the subset of object storage used to serve item images
type ObjectReader interface {
	GetObject(ctx context.Context, storageKey string) (io.ReadCloser, error)
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
}

// DefaultMaxImageBytes caps a downloaded external image
const DefaultMaxImageBytes = 20 << 20

// ErrImageUnavailable means an image has neither a storage key nor a URL,
// or its URL could not be fetched
var ErrImageUnavailable = errors.New("storage: image unavailable")

// ImageResolver implements marketplace.ImageSource. Stored images are
// served from object storage; external images pass through as URLs and
// are downloaded over HTTP when bytes are needed.
type ImageResolver struct {
	objects    ObjectReader
	httpClient *http.Client
	urlTTL     time.Duration
	maxBytes   int64
	logger     *zap.Logger
}

var _ marketplace.ImageSource = (*ImageResolver)(nil)

// ImageResolverOption configures ImageResolver
type ImageResolverOption func(*ImageResolver)

// WithImageHTTPClient sets the client used for external images
func WithImageHTTPClient(c *http.Client) ImageResolverOption {
	return func(r *ImageResolver) { r.httpClient = c }
}

// WithImageURLTTL sets how long presigned image URLs stay valid
func WithImageURLTTL(d time.Duration) ImageResolverOption {
	return func(r *ImageResolver) { r.urlTTL = d }
}

// WithImageLogger sets the logger
func WithImageLogger(l *zap.Logger) ImageResolverOption {
	return func(r *ImageResolver) { r.logger = l }
}

// NewImageResolver creates an ImageResolver. objects may be nil when only
// external images are used.
func NewImageResolver(objects ObjectReader, opts ...ImageResolverOption) *ImageResolver {
	r := &ImageResolver{
		objects:    objects,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		urlTTL:     24 * time.Hour,
		maxBytes:   DefaultMaxImageBytes,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ImageURL returns a URL a marketplace can fetch the image from
func (r *ImageResolver) ImageURL(ctx context.Context, img marketplace.ItemImage) (string, error) {
	if img.StorageKey != "" && r.objects != nil {
		u, _, err := r.objects.GenerateDownloadURL(ctx, img.StorageKey, r.urlTTL)
		if err != nil {
			return "", fmt.Errorf("failed to presign image %s: %w", img.ID, err)
		}
		return u, nil
	}
	if img.URL != "" {
		return img.URL, nil
	}
	return "", fmt.Errorf("%w: %s", ErrImageUnavailable, img.ID)
}

// OpenImage returns the image bytes. The caller closes the reader.
func (r *ImageResolver) OpenImage(ctx context.Context, img marketplace.ItemImage) (io.ReadCloser, error) {
	if img.StorageKey != "" && r.objects != nil {
		return r.objects.GetObject(ctx, img.StorageKey)
	}
	if img.URL == "" {
		return nil, fmt.Errorf("%w: %s", ErrImageUnavailable, img.ID)
	}
	if !strings.HasPrefix(img.URL, "http://") && !strings.HasPrefix(img.URL, "https://") {
		return nil, fmt.Errorf("%w: unsupported image url %q", ErrImageUnavailable, img.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %d", ErrImageUnavailable, img.URL, resp.StatusCode)
	}
	r.logger.Debug("Downloading external image", zap.String("url", img.URL))
	return limitedBody{Reader: io.LimitReader(resp.Body, r.maxBytes), Closer: resp.Body}, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}
