// Package client provides an HTTP client for the perfsight server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/raphaelgruber/perfsight/internal/report"
)

// ErrJobNotFound is returned when the server does not know a job ID.
var ErrJobNotFound = errors.New("job not found")

// Client talks to the perfsight server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses PERFSIGHT_SERVER_URL env var or defaults to localhost:8484.
// Timeout can be configured via PERFSIGHT_CLIENT_TIMEOUT env var (default 30m for synchronous analysis).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("PERFSIGHT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8484"
	}

	timeout := 30 * time.Minute
	if t := os.Getenv("PERFSIGHT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// StartResponse is the reply to an asynchronous submission.
type StartResponse struct {
	JobID           string       `json:"job_id"`
	InitialProgress progress.Job `json:"initial_progress"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: %s", resp.Status)
	}
	return nil
}

// Analyze uploads files and waits for the full analysis result.
func (c *Client) Analyze(ctx context.Context, paths []string, testContext report.TestContext) (*report.Result, error) {
	var result report.Result
	if err := c.upload(ctx, "/analyze", paths, testContext, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Submit uploads files for asynchronous analysis and returns the job handle.
func (c *Client) Submit(ctx context.Context, paths []string, testContext report.TestContext) (*StartResponse, error) {
	var start StartResponse
	if err := c.upload(ctx, "/analyze/progress", paths, testContext, &start); err != nil {
		return nil, err
	}
	return &start, nil
}

// GetJob fetches the current state of a job.
func (c *Client) GetJob(ctx context.Context, id string) (*progress.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/analyze/progress/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var job progress.Job
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Watch streams job snapshots until the job is terminal, the server closes
// the stream or onUpdate returns an error.
func (c *Client) Watch(ctx context.Context, id string, onUpdate func(progress.Job) error) error {
	wsEndpoint := strings.Replace(c.baseURL, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)
	wsEndpoint += "/analyze/progress/" + url.PathEscape(id) + "/watch"

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsEndpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ErrJobNotFound
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	// Track connection state for proper cleanup
	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var job progress.Job
		if err := conn.ReadJSON(&job); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := onUpdate(job); err != nil {
			return err
		}
	}
}

// ResultOf decodes the result payload of a completed job.
func ResultOf(job *progress.Job) (*report.Result, error) {
	if job.Result == nil {
		return nil, fmt.Errorf("job %s has no result", job.ID)
	}
	data, err := json.Marshal(job.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	var result report.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &result, nil
}

// upload streams a multipart request with one "files" part per path.
func (c *Client) upload(ctx context.Context, path string, paths []string, testContext report.TestContext, out any) error {
	if len(paths) == 0 {
		return errors.New("no files to upload")
	}
	if testContext == nil {
		testContext = report.TestContext{}
	}
	contextJSON, err := json.Marshal(testContext)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, paths, contextJSON))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func writeForm(mw *multipart.Writer, paths []string, contextJSON []byte) error {
	if err := mw.WriteField("context", string(contextJSON)); err != nil {
		return err
	}
	for _, p := range paths {
		if err := writeFilePart(mw, p); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFilePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrJobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Detail != "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, e.Detail)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
