package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sskim91/bookbrain/internal/errs"
)

// Job states reported by the parse service.
const stateCompleted = "COMPLETED"

var terminalFailureStates = map[string]bool{
	"FAILED": true,
	"ERROR":  true,
}

const (
	submitMaxRetries = 1
	submitRetryDelay = 1 * time.Second
)

// Client submits PDFs to the external parse service and polls the job until
// a terminal state.
type Client struct {
	baseURL         string
	apiKey          string
	pollInterval    time.Duration
	maxPollAttempts int
	httpClient      *http.Client
	logger          *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout, pollInterval time.Duration, maxPollAttempts int, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if pollInterval == 0 {
		pollInterval = 2 * time.Second
	}
	if maxPollAttempts == 0 {
		maxPollAttempts = 150
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:         baseURL,
		apiKey:          apiKey,
		pollInterval:    pollInterval,
		maxPollAttempts: maxPollAttempts,
		httpClient:      &http.Client{Timeout: timeout},
		logger:          logger,
	}
}

// Parse uploads the file and blocks until the job completes, fails, or the
// polling budget is exhausted.
func (c *Client) Parse(ctx context.Context, filePath, language string) (*Result, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, &errs.ReadError{Path: filePath, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &errs.ReadError{Path: filePath}
	}

	jobID, err := c.submit(ctx, filePath, language)
	if err != nil {
		return nil, err
	}
	c.logger.Info("parse request submitted", zap.String("job_id", jobID))

	return c.poll(ctx, jobID)
}

func (c *Client) submit(ctx context.Context, filePath, language string) (string, error) {
	for attempt := 0; ; attempt++ {
		jobID, retryable, err := c.submitOnce(ctx, filePath, language)
		if err == nil {
			return jobID, nil
		}
		if !retryable || attempt >= submitMaxRetries {
			return "", err
		}
		delay := submitRetryDelay * (1 << attempt)
		c.logger.Warn("parse submit failed, retrying",
			zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
}

// submitOnce streams the file as multipart form data. The second return value
// reports whether the failure is retryable (5xx or network timeout).
func (c *Client) submitOnce(ctx context.Context, filePath, language string) (string, bool, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", false, &errs.ReadError{Path: filePath, Err: err}
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := mw.WriteField("language", language); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := mw.WriteField("deleteOriginFile", "true"); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/parse/by-file", pr)
	if err != nil {
		return "", false, &errs.APIError{Message: "failed to create parse request: " + err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, &errs.APIError{Message: "parse API request failed: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, &errs.APIError{Message: "failed to read parse API response: " + err.Error(), Err: err}
	}

	if resp.StatusCode >= 500 {
		return "", true, &errs.APIError{
			Message:    fmt.Sprintf("parse API error: %d - %s", resp.StatusCode, body),
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", false, &errs.APIError{
			Message:    fmt.Sprintf("parse API error: %d - %s", resp.StatusCode, body),
			StatusCode: resp.StatusCode,
		}
	}

	var parsed struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.JobID == "" {
		return "", false, &errs.APIError{Message: "parse API did not return jobId"}
	}
	return parsed.JobID, false, nil
}

func (c *Client) poll(ctx context.Context, jobID string) (*Result, error) {
	url := fmt.Sprintf("%s/parse/job/%s", c.baseURL, jobID)

	for attempt := 0; attempt < c.maxPollAttempts; attempt++ {
		body, err := c.fetchStatus(ctx, url)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Transient poll timeout, stay in the loop.
				c.logger.Warn("poll timeout, retrying", zap.String("job_id", jobID))
				if err := c.sleep(ctx); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		var status struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(body, &status); err != nil {
			return nil, &errs.APIError{Message: "invalid parse API response format: " + err.Error(), Err: err}
		}

		c.logger.Debug("parse job state", zap.String("job_id", jobID), zap.String("state", status.State))

		if status.State == stateCompleted {
			return mapJobResponse(body)
		}
		if terminalFailureStates[status.State] {
			return nil, &errs.APIError{
				Message: "parse job failed with state: " + status.State,
				State:   status.State,
			}
		}

		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
	}

	maxWait := time.Duration(c.maxPollAttempts) * c.pollInterval
	return nil, &errs.APIError{
		Message: fmt.Sprintf("parse job %s did not complete within %s", jobID, maxWait),
	}
}

func (c *Client) fetchStatus(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &errs.APIError{Message: "failed to create poll request: " + err.Error(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.APIError{
			Message:    fmt.Sprintf("parse API poll error: %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
	return body, nil
}

func (c *Client) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.pollInterval):
		return nil
	}
}

// mapJobResponse converts a completed job payload into a Result. Pages are
// sorted ascending regardless of API ordering; a missing page number defaults
// to the positional index + 1.
func mapJobResponse(raw []byte) (*Result, error) {
	var payload struct {
		JobID string `json:"jobId"`
		Pages []struct {
			PageNumber int                      `json:"pageNumber"`
			Content    string                   `json:"content"`
			Tables     []map[string]interface{} `json:"tables"`
			Figures    []map[string]interface{} `json:"figures"`
		} `json:"pages"`
		RequestedAt string `json:"requestedAt"`
		CompletedAt string `json:"completedAt"`
		Title       string `json:"title"`
		Author      string `json:"author"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &errs.APIError{Message: "invalid parse API response format: " + err.Error(), Err: err}
	}

	pages := make([]ParsedPage, 0, len(payload.Pages))
	for idx, p := range payload.Pages {
		number := p.PageNumber
		if number == 0 {
			number = idx + 1
		}
		pages = append(pages, ParsedPage{
			PageNumber: number,
			Content:    p.Content,
			Tables:     p.Tables,
			Figures:    p.Figures,
		})
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})

	metadata := map[string]interface{}{}
	for key, val := range map[string]string{
		"jobId":       payload.JobID,
		"requestedAt": payload.RequestedAt,
		"completedAt": payload.CompletedAt,
		"title":       payload.Title,
		"author":      payload.Author,
	} {
		if val != "" {
			metadata[key] = val
		}
	}

	return &Result{
		Document: ParsedDocument{
			Pages:      pages,
			TotalPages: len(pages),
			Metadata:   metadata,
		},
		Raw: raw,
	}, nil
}
