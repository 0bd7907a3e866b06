package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/saarthi/internal/reliability"
)

const (
	maxErrorSnippet = 4 << 10
	maxAudioBytes   = 32 << 20
)

// Client calls the SaarthiAI HTTP API.
type Client struct {
	baseURL      string
	client       *http.Client
	healthClient *http.Client
	maxRetries   int
	backoffBase  time.Duration
	backoffCap   time.Duration
	logger       *zap.Logger
}

func NewClient(baseURL string, requestTimeout, healthTimeout time.Duration, maxRetries int, logger *zap.Logger) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:       &http.Client{Timeout: requestTimeout},
		healthClient: &http.Client{Timeout: healthTimeout},
		maxRetries:   maxRetries,
		backoffBase:  250 * time.Millisecond,
		backoffCap:   4 * time.Second,
		logger:       logger,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

type healthResponse struct {
	Status string `json:"status"`
}

// Health succeeds only for a 2xx response whose body reports status "healthy".
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	res, err := c.healthClient.Do(req)
	if err != nil {
		return fmt.Errorf("saarthi health: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return statusError("health", res)
	}
	var body healthResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxErrorSnippet)).Decode(&body); err != nil {
		return fmt.Errorf("saarthi health: decode response: %w", err)
	}
	if body.Status != "healthy" {
		return fmt.Errorf("saarthi health: status %q", body.Status)
	}
	return nil
}

type transcribeResponse struct {
	Success *bool  `json:"success"`
	Text    string `json:"text"`
	Error   string `json:"error"`
}

func (c *Client) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	if err := validateLanguage(language); err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "recording.wav")
	if err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.WriteField("language", language); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	payload := body.Bytes()
	contentType := mw.FormDataContentType()

	res, err := c.do(ctx, "transcribe", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var out transcribeResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("saarthi transcribe: decode response: %w", err)
	}
	if out.Success != nil && !*out.Success {
		return "", fmt.Errorf("saarthi transcribe: %s", strings.TrimSpace(out.Error))
	}
	return out.Text, nil
}

type guidanceResponse struct {
	Guidance string `json:"guidance"`
	Intent   string `json:"intent"`
}

func (c *Client) Guidance(ctx context.Context, text, language string) (Guidance, error) {
	if err := validateLanguage(language); err != nil {
		return Guidance{}, err
	}
	res, err := c.postForm(ctx, "guidance", "/get-guidance", text, language)
	if err != nil {
		return Guidance{}, err
	}
	defer res.Body.Close()

	var out guidanceResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Guidance{}, fmt.Errorf("saarthi guidance: decode response: %w", err)
	}
	if strings.TrimSpace(out.Guidance) == "" {
		return Guidance{}, errors.New("saarthi guidance: empty guidance")
	}
	return Guidance{Text: out.Guidance, Intent: out.Intent}, nil
}

func (c *Client) Synthesize(ctx context.Context, text, language string) (Audio, error) {
	if err := validateLanguage(language); err != nil {
		return Audio{}, err
	}
	res, err := c.postForm(ctx, "respond", "/respond", text, language)
	if err != nil {
		return Audio{}, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxAudioBytes))
	if err != nil {
		return Audio{}, fmt.Errorf("saarthi respond: read audio: %w", err)
	}
	if len(data) == 0 {
		return Audio{}, errors.New("saarthi respond: empty audio")
	}
	ct := res.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	return Audio{Data: data, ContentType: ct}, nil
}

func (c *Client) postForm(ctx context.Context, op, path, text, language string) (*http.Response, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("language", language)
	encoded := form.Encode()

	return c.do(ctx, op, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

// do sends the request built by build, retrying transient failures up to
// maxRetries times. The caller owns the returned 2xx response body.
func (c *Client) do(ctx context.Context, op string, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, c.backoffBase, c.backoffCap)
			c.logger.Debug("retrying remote call", zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(lastErr))
			if err := reliability.Wait(ctx, wait); err != nil {
				return nil, fmt.Errorf("saarthi %s: %w", op, err)
			}
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		res, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("saarthi %s: %w", op, err)
			if reliability.IsRetryableError(err) {
				continue
			}
			return nil, lastErr
		}
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return res, nil
		}

		statusErr := statusError(op, res)
		res.Body.Close()
		lastErr = statusErr
		if !reliability.IsRetryableHTTPStatus(statusErr.StatusCode) {
			return nil, statusErr
		}
	}
	return nil, lastErr
}

func statusError(op string, res *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorSnippet))
	detail := strings.TrimSpace(string(body))
	var fastapi struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &fastapi) == nil && fastapi.Detail != "" {
		detail = fastapi.Detail
	}
	return &StatusError{Op: op, StatusCode: res.StatusCode, Detail: detail}
}
