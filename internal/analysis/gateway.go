package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/config"
	"github.com/sumangalagouda/DEV-HACK/internal/models"
)

const systemPrompt = `You are a construction safety AI inspector. Analyze images for PPE violations. Respond with JSON: {violations: [array], confidence: 0-1, severity: "low/medium/high", recommendations: [array]}`

const userPrompt = "Analyze this image for PPE violations."

// Gateway calls an OpenAI compatible chat completions endpoint
type Gateway struct {
	endpoint    string
	apiKey      string
	model       string
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewGateway creates the gateway strategy. Without an API key it is skipped.
func NewGateway(cfg config.AIConfig, httpClient *http.Client, logger *zap.Logger) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Gateway{
		endpoint:    cfg.GatewayURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		maxAttempts: attempts,
		backoff:     cfg.RetryBackoff,
		httpClient:  httpClient,
		logger:      logger,
	}
}

func (g *Gateway) Name() string { return TierGateway }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// judgement is the model's reply; fields are loose on purpose
type judgement struct {
	Violations      stringList `json:"violations"`
	Confidence      *float64   `json:"confidence"`
	Severity        string     `json:"severity"`
	Recommendations stringList `json:"recommendations"`
}

// stringList accepts a string, an array of strings, or null
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one != "" {
			*s = []string{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// retryable marks failures worth another attempt
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// Analyze asks the gateway for a judgement
func (g *Gateway) Analyze(ctx context.Context, in Input) (*Result, error) {
	if g.apiKey == "" {
		return nil, ErrSkipped
	}

	body, err := json.Marshal(g.buildRequest(in.ImageBase64))
	if err != nil {
		return nil, fmt.Errorf("failed to encode gateway request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.backoff * time.Duration(attempt-1)):
			}
		}

		res, err := g.call(ctx, body)
		if err == nil {
			return res, nil
		}
		lastErr = err

		var r retryable
		if !errors.As(err, &r) {
			return nil, err
		}
		g.logger.Debug("Gateway attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", g.maxAttempts),
			zap.Error(err))
	}
	return nil, lastErr
}

func (g *Gateway) buildRequest(image string) chatRequest {
	return chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: userPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: asDataURL(image)}},
			}},
		},
	}
}

func (g *Gateway) call(ctx context.Context, body []byte) (*Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, retryable{fmt.Errorf("gateway request failed: %w", err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, retryable{fmt.Errorf("failed to read gateway response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, truncate(string(payload), 200))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retryable{err}
		}
		return nil, err
	}

	var chat chatResponse
	if err := json.Unmarshal(payload, &chat); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, errors.New("gateway response has no choices")
	}

	raw, ok := ExtractJSON(chat.Choices[0].Message.Content)
	if !ok {
		return nil, errors.New("gateway reply contains no JSON object")
	}

	var j judgement
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, fmt.Errorf("gateway reply is not a judgement: %w", err)
	}

	return &Result{
		Violations:      j.Violations,
		Confidence:      NormalizeConfidence(j.Confidence),
		Severity:        NormalizeSeverity(j.Severity),
		Recommendations: j.Recommendations,
	}, nil
}

// NormalizeConfidence maps a reported confidence to 0..1.
// Values above 1 and up to 100 are read as percentages; missing gives 0.
func NormalizeConfidence(c *float64) float64 {
	if c == nil {
		return 0
	}
	v := *c
	if v > 1 && v <= 100 {
		v /= 100
	}
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// NormalizeSeverity maps free form severities onto low/medium/high, or ""
func NormalizeSeverity(s string) string {
	if sev, ok := models.ParseSeverity(s); ok {
		return string(sev)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "severe":
		return string(models.SeverityHigh)
	case "moderate":
		return string(models.SeverityMedium)
	case "minor", "none":
		return string(models.SeverityLow)
	}
	return ""
}

func asDataURL(image string) string {
	if strings.HasPrefix(image, "data:") {
		return image
	}
	return "data:image/jpeg;base64," + image
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
