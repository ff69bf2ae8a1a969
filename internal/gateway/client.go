// Package gateway talks to the script gateway that fronts blob storage,
// the AI proxy and the PDF renderer. Every call is a POST of
// {action, subAction, payload} answered by {status, data, message}.
package gateway

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

	"golang.org/x/time/rate"

	"github.com/franz/xeenaps-tracer/internal/util"
)

const (
	// UserAgent identifies this application to the gateway
	UserAgent = "xeenaps-tracer/0.4.0 (https://github.com/franz/xeenaps-tracer)"

	// DefaultRate is the sustained request rate allowed against one gateway.
	// Script gateways throttle aggressively past a few calls per second.
	DefaultRate = 4

	// DefaultTimeout bounds a single gateway round-trip; AI calls are slow.
	DefaultTimeout = 90 * time.Second
)

// ErrGatewayStatus is returned when the gateway answers with status "error".
var ErrGatewayStatus = errors.New("gateway returned error status")

// Request is the envelope posted to the gateway.
type Request struct {
	Action    string `json:"action"`
	SubAction string `json:"subAction,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Response is the envelope returned by the gateway. Some actions put their
// result in data, the PDF engine uses base64/filename at the top level.
type Response struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
	Base64   string          `json:"base64,omitempty"`
	Filename string          `json:"filename,omitempty"`
}

// OK reports whether the gateway accepted the request.
func (r *Response) OK() bool {
	return r != nil && r.Status == "success"
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Rate    float64 // requests per second; <= 0 uses DefaultRate
	Retry   *util.RetryConfig
}

// Client posts requests to a gateway with rate limiting and transport retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	retry      *util.RetryConfig
}

// NewClient creates a gateway client
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := opts.Rate
	if r <= 0 {
		r = DefaultRate
	}
	retry := opts.Retry
	if retry == nil {
		retry = util.GatewayRetryConfig()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:   strings.TrimSpace(opts.BaseURL),
		userAgent: UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(r), 1),
		retry:     retry,
	}
}

// BaseURL returns the default gateway endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Configured reports whether a gateway URL is set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Do posts req to the default gateway.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	return c.DoAt(ctx, "", req)
}

// DoAt posts req to endpoint, or to the default gateway when endpoint is
// empty. Storage nodes are separate gateways addressed this way.
func (c *Client) DoAt(ctx context.Context, endpoint string, req Request) (*Response, error) {
	if endpoint == "" {
		endpoint = c.baseURL
	}
	if endpoint == "" {
		return nil, fmt.Errorf("gateway url not configured: %w", util.ErrInvalidConfig)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	name := req.Action
	if req.SubAction != "" {
		name += "/" + req.SubAction
	}

	resp, err := util.RetryWithBackoff(ctx, c.retry, func() (*Response, error) {
		return c.post(ctx, endpoint, body, name)
	}, "gateway "+name)
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		msg := resp.Message
		if msg == "" {
			msg = resp.Status
		}
		return resp, fmt.Errorf("%s: %s: %w", name, msg, ErrGatewayStatus)
	}

	return resp, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte, name string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	util.DebugLog("Gateway: %s -> %s", name, endpoint)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Script gateways reject preflighted content types
	httpReq.Header.Set("Content-Type", "text/plain;charset=utf-8")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		return nil, &util.HTTPStatusError{StatusCode: httpResp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out Response
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	util.DebugLog("Gateway: %s status=%s", name, out.Status)
	return &out, nil
}

// Ping checks that the default gateway answers. Any JSON envelope counts.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, Request{Action: "ping"})
	if err != nil && errors.Is(err, ErrGatewayStatus) {
		return nil
	}
	return err
}
