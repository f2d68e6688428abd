package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/cleardeal/internal/models"
)

// Client talks to the HTTP settlement service. It adds a per-call timeout and a
// circuit breaker but never retries: a settlement request is issued once and
// its idempotency key is not reused.
type Client struct {
	base   *url.URL
	cfg    Config
	client *http.Client

	// simple circuit breaker state
	failures  int32
	openUntil int64 // unix nano
	closed    int32 // atomic flag for Close()
}

var _ Settler = (*Client)(nil)

type settleRequest struct {
	IdempotencyKey string        `json:"idempotency_key"`
	JobID          int64         `json:"job_id"`
	From           string        `json:"from,omitempty"`
	To             string        `json:"to,omitempty"`
	Amount         models.Amount `json:"amount"`
}

type settleResponse struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	TxHash string `json:"tx_hash"`
	Reason string `json:"reason"`
}

// NewClient creates a settlement client for cfg.BaseURL.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.CircuitFailureThreshold <= 0 {
		cfg.CircuitFailureThreshold = def.CircuitFailureThreshold
	}
	if cfg.CircuitReset <= 0 {
		cfg.CircuitReset = def.CircuitReset
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	u, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	logger.Info("settlement: NewClient created", slog.String("base_url", cfg.BaseURL), slog.Duration("timeout", cfg.Timeout))
	return &Client{base: u, cfg: cfg, client: httpClient}, nil
}

func NewDefaultClient(cfg Config) (*Client, error) {
	defaultClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return NewClient(cfg, defaultClient)
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.failures) < int32(c.cfg.CircuitFailureThreshold) {
		return false
	}

	if time.Now().UnixNano() < atomic.LoadInt64(&c.openUntil) {
		return true
	}

	// attempt half-open: reset failures and allow a request
	atomic.StoreInt32(&c.failures, 0)
	return false
}

func (c *Client) recordFailure() {
	v := atomic.AddInt32(&c.failures, 1)
	if v >= int32(c.cfg.CircuitFailureThreshold) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.cfg.CircuitReset).UnixNano())
	}
}

// Close releases idle connections held by the underlying transport. Close is
// idempotent and safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.client != nil && c.client.Transport != nil {
		if tr, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
			logger.Info("settlement: client Close() called - CloseIdleConnections invoked")
		}
	}
	return nil
}

// PayFee charges the application fee from the applicant.
func (c *Client) PayFee(ctx context.Context, jobID int64, from string, amount models.Amount) (*Receipt, error) {
	req := settleRequest{IdempotencyKey: uuid.NewString(), JobID: jobID, From: from, Amount: amount}
	r, err := c.settle(ctx, "/v1/fees", req)
	if err != nil {
		return nil, err
	}
	r.Kind, r.JobID, r.Party, r.Amount = models.ReceiptFee, jobID, from, amount
	return r, nil
}

// ReleaseBounty pays the job bounty to the freelancer.
func (c *Client) ReleaseBounty(ctx context.Context, jobID int64, to string, amount models.Amount) (*Receipt, error) {
	req := settleRequest{IdempotencyKey: uuid.NewString(), JobID: jobID, To: to, Amount: amount}
	r, err := c.settle(ctx, "/v1/releases", req)
	if err != nil {
		return nil, err
	}
	r.Kind, r.JobID, r.Party, r.Amount = models.ReceiptBounty, jobID, to, amount
	return r, nil
}

func (c *Client) settle(ctx context.Context, path string, body settleRequest) (*Receipt, error) {
	if c.isCircuitOpen() {
		return nil, ErrCircuitOpen
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.do(ctx, http.MethodPost, path, b, body.IdempotencyKey)
	for err == nil && resp.Status == StatusPending {
		select {
		case <-ctx.Done():
			err = contextError(ctx, fmt.Errorf("receipt %s still pending", resp.ID))
		case <-time.After(c.cfg.PollInterval):
			resp, err = c.do(ctx, http.MethodGet, "/v1/receipts/"+url.PathEscape(resp.ID), nil, "")
		}
	}
	if err != nil {
		if !errors.Is(err, ErrRejected) && !errors.Is(err, ErrCanceled) {
			c.recordFailure()
		}
		logger.Warn("settlement: call failed", slog.String("path", path), slog.Int64("job_id", body.JobID), slog.Any("err", err))
		return nil, err
	}

	atomic.StoreInt32(&c.failures, 0)
	if resp.Status == StatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Reason)
	}
	if resp.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: unknown status %q", ErrUnavailable, resp.Status)
	}

	logger.Info("settlement: confirmed", slog.String("path", path), slog.String("receipt", resp.ID), slog.Duration("latency", time.Since(start)))
	return &Receipt{ID: resp.ID, TxHash: resp.TxHash, Status: StatusConfirmed}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotencyKey string) (*settleResponse, error) {
	u := c.base.ResolveReference(&url.URL{Path: path})

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if cerr := contextError(ctx, err); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var out settleResponse
	decErr := json.NewDecoder(resp.Body).Decode(&out)

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		reason := out.Reason
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, reason)
	}
	if decErr != nil {
		if cerr := contextError(ctx, decErr); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, decErr)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: response without receipt id", ErrUnavailable)
	}
	return &out, nil
}
