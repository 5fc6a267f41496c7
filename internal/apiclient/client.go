// Package apiclient is the Go client for the escrow HTTP API, used by the
// CLI and by integrating services.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/chess-wager-escrow/pkg/escrowdto"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider
	player  string

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithPlayer sets the identity sent as X-Player-Id on every request.
func WithPlayer(id string) Option {
	return func(c *Client) { c.player = strings.TrimSpace(id) }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateRoom(ctx context.Context, req escrowdto.CreateRoomRequest) (*escrowdto.RoomView, error) {
	var view escrowdto.RoomView
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/rooms", req, &view, false); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (*escrowdto.RoomView, error) {
	var view escrowdto.RoomView
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/rooms/"+roomID, nil, &view, true); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) Join(ctx context.Context, roomID string) (*escrowdto.RoomView, error) {
	var view escrowdto.RoomView
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/rooms/"+roomID+"/join", nil, &view, false); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) Deposit(ctx context.Context, roomID string) (*escrowdto.RoomView, error) {
	var view escrowdto.RoomView
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/rooms/"+roomID+"/deposit", nil, &view, false); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) Move(ctx context.Context, roomID string, req escrowdto.MoveRequest) (*escrowdto.MoveReceiptView, error) {
	var receipt escrowdto.MoveReceiptView
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/rooms/"+roomID+"/moves", req, &receipt, false); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) DeclareResult(ctx context.Context, roomID string, req escrowdto.DeclareRequest) (*escrowdto.SettleResponse, error) {
	var resp escrowdto.SettleResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/rooms/"+roomID+"/result", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ForceTimeout(ctx context.Context, roomID string) (*escrowdto.SettleResponse, error) {
	var resp escrowdto.SettleResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/rooms/"+roomID+"/timeout", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Cancel(ctx context.Context, roomID string) (*escrowdto.SettleResponse, error) {
	var resp escrowdto.SettleResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/rooms/"+roomID+"/cancel", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Account(ctx context.Context, id string) (*escrowdto.AccountView, error) {
	var acct escrowdto.AccountView
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/accounts/"+id, nil, &acct, true); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) Credit(ctx context.Context, id string, amount int64) (*escrowdto.AccountView, error) {
	var acct escrowdto.AccountView
	req := escrowdto.CreditRequest{Amount: amount}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/accounts/"+id+"/credit", req, &acct, false); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	if c.player != "" {
		req.Header.Set("X-Player-Id", c.player)
	}

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := apiError(status, resp.Body())
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

// apiError surfaces the server's DomainError when the body carries one.
func apiError(status int, body []byte) error {
	var resp escrowdto.ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Code != "" {
		return resp.Error
	}
	return fmt.Errorf("escrow api error: status=%d body=%s", status, truncate(string(body), 512))
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
