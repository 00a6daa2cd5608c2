package celestrak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/star/orbstate/internal/metrics"
	"github.com/star/orbstate/internal/tle"
)

// maxBodyBytes caps a single response.
const maxBodyBytes = 50 << 20

// ErrNoData is returned when CelesTrak answers a query with no element sets.
var ErrNoData = errors.New("no GP data found")

// StatusError is a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Options configures a Client. Zero fields take the defaults noted.
type Options struct {
	BaseURL     string        // DefaultBaseURL
	Format      Format        // FormatTLE
	Timeout     time.Duration // 30s per attempt
	Rate        float64       // requests per second, 1
	Burst       int           // 1
	Retries     int           // extra attempts after the first; 0 means none
	Backoff     time.Duration // 500ms, doubled per retry
	Concurrency int           // parallel queries in FetchAll, 4
	UserAgent   string
}

// Client retrieves raw GP data.
type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Format == "" {
		opts.Format = FormatTLE
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Rate <= 0 {
		opts.Rate = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "orbstate"
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		logger:     logger,
	}
}

// Format returns the configured response format.
func (c *Client) Format() Format { return c.opts.Format }

// Fetch runs one query, retrying transport failures and 429/5xx responses.
func (c *Client) Fetch(ctx context.Context, q Query) ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	u, err := q.URL(c.opts.BaseURL, c.opts.Format)
	if err != nil {
		return nil, err
	}

	kind := strings.ToLower(string(q.Kind))
	backoff := c.opts.Backoff
	for attempt := 0; ; attempt++ {
		body, err := c.get(ctx, u)
		if err == nil {
			if err := checkNoData(body); err != nil {
				metrics.RecordFetch(kind, "empty")
				return nil, fmt.Errorf("%s: %w", q, err)
			}
			metrics.RecordFetch(kind, "ok")
			c.logger.Debug("celestrak fetch complete", "query", q.String(), "bytes", len(body), "attempt", attempt+1)
			return body, nil
		}
		if attempt >= c.opts.Retries || !retryable(err) || ctx.Err() != nil {
			metrics.RecordFetch(kind, "error")
			return nil, err
		}

		c.logger.Warn("celestrak fetch failed, retrying",
			"query", q.String(),
			"attempt", attempt+1,
			"backoff_ms", backoff.Milliseconds(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			metrics.RecordFetch(kind, "error")
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching GP data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	return body, nil
}

var errBodyTooLarge = fmt.Errorf("response exceeds %d byte limit", maxBodyBytes)

func retryable(err error) bool {
	if errors.Is(err, errBodyTooLarge) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// checkNoData recognizes CelesTrak's plain-text "No GP data found" answer
// and empty bodies.
func checkNoData(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.EqualFold(trimmed, []byte("No GP data found")) || bytes.Equal(trimmed, []byte("[]")) {
		return ErrNoData
	}
	return nil
}

// FetchAll runs primary and extra queries in parallel and concatenates the
// responses, primary first. A failed extra query is logged and skipped; a
// failed primary query fails the call. All queries must use the TLE format.
func (c *Client) FetchAll(ctx context.Context, primary Query, extra ...Query) ([]byte, error) {
	if len(extra) > 0 && c.opts.Format != FormatTLE {
		return nil, fmt.Errorf("combining queries requires FORMAT=TLE, have %s", c.opts.Format)
	}

	bodies := make([][]byte, 1+len(extra))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	g.Go(func() error {
		body, err := c.Fetch(gctx, primary)
		if err != nil {
			return fmt.Errorf("primary query %s: %w", primary, err)
		}
		bodies[0] = body
		return nil
	})
	for i, q := range extra {
		g.Go(func() error {
			body, err := c.Fetch(gctx, q)
			if err != nil {
				c.logger.Warn("extra celestrak query failed", "query", q.String(), "error", err)
				return nil
			}
			bodies[i+1] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, b := range bodies {
		if len(b) == 0 {
			continue
		}
		buf.Write(b)
		if b[len(b)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

// FetchBlocks is FetchAll followed by splitting the response into element
// set blocks, whatever the configured format.
func (c *Client) FetchBlocks(ctx context.Context, primary Query, extra ...Query) ([]tle.Block, error) {
	data, err := c.FetchAll(ctx, primary, extra...)
	if err != nil {
		return nil, err
	}
	return tle.ReadAny(bytes.NewReader(data))
}
