// Package smoke checks a running serving endpoint: GET /health, then
// POST /predict, with retries for servers that are still starting.
package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultFeatures is the predict payload used when Opts.Features is empty.
var DefaultFeatures = []float64{0.1, 0.2, -0.3, 1.0, 0.5, 0.0, -0.2, 0.9}

// Opts configures Run.
type Opts struct {
	BaseURL     string
	Timeout     time.Duration
	Retries     int
	RetryDelay  time.Duration
	HealthPath  string
	PredictPath string
	Features    []float64

	SkipPredict         bool
	AllowPredictFailure bool
	FailOnPredict404    bool

	// Out receives progress lines, Err warnings and failures.
	Out io.Writer
	Err io.Writer

	Client *http.Client
}

func (o *Opts) applyDefaults() {
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.HealthPath == "" {
		o.HealthPath = "/health"
	}
	if o.PredictPath == "" {
		o.PredictPath = "/predict"
	}
	if !strings.HasPrefix(o.HealthPath, "/") {
		o.HealthPath = "/" + o.HealthPath
	}
	if !strings.HasPrefix(o.PredictPath, "/") {
		o.PredictPath = "/" + o.PredictPath
	}
	if len(o.Features) == 0 {
		o.Features = DefaultFeatures
	}
	if o.Out == nil {
		o.Out = io.Discard
	}
	if o.Err == nil {
		o.Err = io.Discard
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
}

// result is one HTTP exchange. status is 0 when no response arrived.
type result struct {
	status int
	body   string
	err    error
}

func (r result) ok() bool { return r.err == nil && r.status >= 200 && r.status < 300 }

func (r result) describe() string {
	code := "no-status"
	if r.status != 0 {
		code = fmt.Sprintf("HTTP %d", r.status)
	}
	msg := "request failed"
	if r.err != nil {
		msg = r.err.Error()
	} else if r.body != "" {
		msg = r.body
	}
	return fmt.Sprintf("(%s): %s", code, msg)
}

// Run performs the checks and returns a process exit code: 0 on success,
// 1 on failure.
func Run(ctx context.Context, opts Opts) int {
	opts.applyDefaults()
	fmt.Fprintf(opts.Out, "[smoke] base_url: %s\n", opts.BaseURL)
	fmt.Fprintf(opts.Out, "[smoke] timeout: %s, retries: %d, retry_delay: %s\n", opts.Timeout, opts.Retries, opts.RetryDelay)

	health := withRetry(ctx, opts, "GET "+opts.HealthPath, func() result {
		return request(ctx, opts.Client, http.MethodGet, opts.BaseURL+opts.HealthPath, nil)
	})
	if !health.ok() {
		fmt.Fprintf(opts.Err, "[smoke] %s FAILED %s\n", opts.HealthPath, health.describe())
		return 1
	}
	fmt.Fprintf(opts.Out, "[smoke] %s OK (HTTP %d): %s\n", opts.HealthPath, health.status, health.body)

	if opts.SkipPredict {
		fmt.Fprintln(opts.Out, "[smoke] skip predict.")
		fmt.Fprintln(opts.Out, "[smoke] done.")
		return 0
	}

	payload := map[string]any{"features": opts.Features}
	pred := withRetry(ctx, opts, "POST "+opts.PredictPath, func() result {
		return request(ctx, opts.Client, http.MethodPost, opts.BaseURL+opts.PredictPath, payload)
	})

	switch {
	case pred.ok():
		fmt.Fprintf(opts.Out, "[smoke] %s OK (HTTP %d): %s\n", opts.PredictPath, pred.status, pred.body)
		fmt.Fprintln(opts.Out, "[smoke] done.")
		return 0
	case pred.status == http.StatusNotFound:
		msg := fmt.Sprintf("%s returned 404 (current model missing?)", opts.PredictPath)
		if opts.FailOnPredict404 {
			fmt.Fprintf(opts.Err, "[smoke] %s\n", msg)
			return 1
		}
		fmt.Fprintf(opts.Err, "[smoke] WARN %s\n", msg)
		return 0
	case opts.AllowPredictFailure:
		fmt.Fprintf(opts.Err, "[smoke] WARN %s FAILED %s\n", opts.PredictPath, pred.describe())
		return 0
	default:
		fmt.Fprintf(opts.Err, "[smoke] %s FAILED %s\n", opts.PredictPath, pred.describe())
		return 1
	}
}

// withRetry calls action up to Retries+1 times. 404 is never retried.
func withRetry(ctx context.Context, opts Opts, name string, action func() result) result {
	attempts := max(1, opts.Retries+1)
	var last result
	for attempt := 1; attempt <= attempts; attempt++ {
		last = action()
		if last.ok() || last.status == http.StatusNotFound || attempt == attempts {
			return last
		}
		fmt.Fprintf(opts.Err, "[smoke] WARN %s attempt %d/%d failed %s; retry in %s\n",
			name, attempt, attempts, last.describe(), opts.RetryDelay)

		select {
		case <-ctx.Done():
			return result{err: ctx.Err()}
		case <-time.After(max(0, opts.RetryDelay)):
		}
	}
	return last
}

func request(ctx context.Context, client *http.Client, method, url string, body any) result {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return result{err: err}
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return result{err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return result{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return result{status: resp.StatusCode, err: fmt.Errorf("read response: %w", err)}
	}
	return result{status: resp.StatusCode, body: compact(data)}
}

// compact re-encodes JSON bodies on one line and trims everything else.
func compact(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err == nil {
		return buf.String()
	}
	return strings.TrimSpace(string(data))
}
