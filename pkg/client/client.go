package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/internal/tracing"
	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	defaultTimeout = 30 * time.Second
)

// Operation names used in errors, matching what the user sees.
const (
	OpUpload  = "Upload"
	OpResults = "Results"
	OpChat    = "Chat"
	OpHealth  = "Health"
)

// Client talks to the analysis backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Upload submits a video as multipart field "file".
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*domain.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", OpUpload, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("%s failed: read file: %w", OpUpload, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s failed: %w", OpUpload, err)
	}

	var out domain.UploadResponse
	if err := c.do(ctx, OpUpload, http.MethodPost, "/upload", mw.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.JobID) == "" {
		return nil, fmt.Errorf("%s failed: response missing job_id", OpUpload)
	}
	return &out, nil
}

// FetchResult returns the current snapshot of a job.
func (c *Client) FetchResult(ctx context.Context, jobID string) (*domain.ScoreResult, error) {
	var out domain.ScoreResult
	if err := c.do(ctx, OpResults, http.MethodGet, "/results/"+url.PathEscape(jobID), "", nil, &out); err != nil {
		return nil, err
	}
	if out.Metrics == nil {
		out.Metrics = []domain.MetricScore{}
	}
	if out.Tips == nil {
		out.Tips = []string{}
	}
	return &out, nil
}

// Chat sends one message; runContext is sent as null when nil.
func (c *Client) Chat(ctx context.Context, message string, runContext map[string]any) (*domain.ChatResponse, error) {
	b, err := json.Marshal(domain.ChatRequest{Message: message, RunContext: runContext})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", OpChat, err)
	}
	var out domain.ChatResponse
	if err := c.do(ctx, OpChat, http.MethodPost, "/chat", "application/json", bytes.NewReader(b), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*domain.HealthResponse, error) {
	var out domain.HealthResponse
	if err := c.do(ctx, OpHealth, http.MethodGet, "/health", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s failed: invalid JSON response: %w", op, err)
	}
	return nil
}
