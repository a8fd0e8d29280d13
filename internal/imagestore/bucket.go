package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sumangalagouda/DEV-HACK/internal/config"
)

// BucketStore uploads through the storage REST API
// (POST {url}/storage/v1/object/{bucket}/{name})
type BucketStore struct {
	baseURL    string
	bucket     string
	key        string
	timeout    time.Duration
	httpClient *http.Client
}

// NewBucketStore creates a bucket store; a nil client gets a default one
func NewBucketStore(cfg config.StorageConfig, httpClient *http.Client) *BucketStore {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &BucketStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		bucket:     cfg.Bucket,
		key:        cfg.Key,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
	}
}

func (b *BucketStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.baseURL, url.PathEscape(b.bucket), url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")
	if b.key != "" {
		req.Header.Set("Authorization", "Bearer "+b.key)
		req.Header.Set("apikey", b.key)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return b.URL(name), nil
}

// URL is the public URL of an object
func (b *BucketStore) URL(name string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.baseURL, url.PathEscape(b.bucket), url.PathEscape(name))
}
