// Package callback delivers the async job-completion webhook named in a
// job's callback_url, retrying transient failures with exponential
// backoff. Grounded on the corpus's own alert-webhook POST-with-retry
// idiom, extended to bounded exponential backoff and context
// cancellation for a long-lived dispatcher process.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/standardbeagle/docparse/internal/metrics"
	"github.com/standardbeagle/docparse/internal/types"
)

const requestTimeout = 10 * time.Second

var httpClient = &http.Client{Timeout: requestTimeout}

// Config controls attempt budget and backoff shape.
type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Deliverer posts job completion notifications to callback URLs.
type Deliverer struct {
	cfg Config
}

// New builds a Deliverer.
func New(cfg Config) *Deliverer {
	return &Deliverer{cfg: cfg}
}

// payload is the body posted to a job's callback_url on completion.
type payload struct {
	JobID  string       `json:"job_id"`
	State  types.State  `json:"state"`
	Result *types.Result `json:"result,omitempty"`
	Error  *types.JobError `json:"error,omitempty"`
}

// Deliver posts job's outcome to url, retrying 5xx and network errors up
// to cfg.MaxAttempts times with backoff doubling from cfg.BackoffBase. A
// 4xx response is not retried: the endpoint rejected the payload outright.
func (d *Deliverer) Deliver(ctx context.Context, url string, job *types.Job) error {
	body, err := json.Marshal(payload{JobID: job.ID.String(), State: job.State, Result: job.Result, Error: job.Error})
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	backoff := d.cfg.BackoffBase
	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		metrics.Get().CallbackAttempts.Inc()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create callback request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			metrics.Get().CallbackFailures.Inc()
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		metrics.Get().CallbackFailures.Inc()
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("callback endpoint rejected payload: HTTP %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("callback endpoint server error: HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("callback failed after %d attempts: %w", d.cfg.MaxAttempts, lastErr)
}
