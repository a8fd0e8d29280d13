// Package ingestclient talks to the detection API from camera-side tools.
package ingestclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sumangalagouda/DEV-HACK/internal/detect"
	"github.com/sumangalagouda/DEV-HACK/internal/livestatus"
	"github.com/sumangalagouda/DEV-HACK/internal/models"
)

// Client calls the detection API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client; a nil httpClient gets a default with timeout
func New(baseURL, apiKey string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// RemoteError is a non-2xx answer from the API
type RemoteError struct {
	Status    int
	Message   string
	ErrorKind string
	Details   string
	Hint      string
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("server returned %d", e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Retryable reports whether sending the same request again could succeed
func Retryable(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status >= http.StatusInternalServerError || re.Status == http.StatusTooManyRequests
	}
	return err != nil
}

// Detect submits one frame
func (c *Client) Detect(ctx context.Context, req detect.Request) (*detect.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/detect-ppe", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var res detect.Result
	if err := c.do(httpReq, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Latest returns the newest detection, or nil when there is none
func (c *Client) Latest(ctx context.Context, cameraID string) (*models.Detection, error) {
	path := "/api/detections/latest"
	if cameraID != "" {
		path += "?cameraId=" + url.QueryEscape(cameraID)
	}

	httpReq, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var det models.Detection
	err = c.do(httpReq, &det)
	var re *RemoteError
	if errors.As(err, &re) && re.Status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &det, nil
}

// Fetcher adapts Latest for a live status projector
func (c *Client) Fetcher() livestatus.Fetcher {
	return livestatus.FetcherFunc(func(ctx context.Context, cameraID string) (*livestatus.Row, error) {
		det, err := c.Latest(ctx, cameraID)
		if err != nil || det == nil {
			return nil, err
		}
		row := livestatus.RowFromDetection(det)
		return &row, nil
	})
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		re := &RemoteError{Status: resp.StatusCode}
		var envelope struct {
			Error     string `json:"error"`
			ErrorKind string `json:"errorKind"`
			Details   string `json:"details"`
			Hint      string `json:"hint"`
		}
		if json.Unmarshal(respBody, &envelope) == nil {
			re.Message = envelope.Error
			re.ErrorKind = envelope.ErrorKind
			re.Details = envelope.Details
			re.Hint = envelope.Hint
		} else {
			re.Message = strings.TrimSpace(string(respBody))
		}
		return re
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
