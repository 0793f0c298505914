// Package ipc is a thin JSON-RPC client for the LCA application's IPC
// server. Every exported call maps onto one remote method; no state is
// kept between calls apart from result handle ids.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/okian/lcarun/pkg/logger"
	"github.com/okian/lcarun/pkg/metrics"
)

// Client defaults.
const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	maxErrorBodyLen     = 256
	nanosPerMillisecond = 1e6
)

// Client talks JSON-RPC over HTTP to a running application instance.
type Client struct {
	endpoint     string
	http         *fasthttp.Client
	timeout      time.Duration
	pollInterval time.Duration
	logger       logger.Logger
	metrics      *metrics.Manager
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		endpoint:     strings.TrimRight(baseURL, "/") + "/",
		timeout:      defaultTimeout,
		pollInterval: defaultPollInterval,
		logger:       logger.Nop(),
		metrics:      metrics.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = &fasthttp.Client{
		Name:         "lcarun",
		ReadTimeout:  c.timeout,
		WriteTimeout: c.timeout,
	}
	return c
}

// ForPort builds a client for an application listening on localhost.
func ForPort(port int, opts ...Option) *Client {
	return New("http://"+net.JoinHostPort("localhost", strconv.Itoa(port)), opts...)
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// call performs one JSON-RPC round trip and decodes the result into out
// (which may be nil when the result is ignored).
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	outcome := metrics.OutcomeFailed
	defer func() {
		latencyMs := float64(time.Since(start).Nanoseconds()) / nanosPerMillisecond
		c.metrics.RecordRPC(method, outcome, latencyMs)
		c.logger.Debug(ctx, "rpc call",
			logger.String("method", method),
			logger.String("outcome", outcome),
			logger.Float64("latencyMs", latencyMs))
	}()

	body, id, err := encodeRequest(method, params)
	if err != nil {
		return err
	}

	status, respBody, err := c.roundTrip(ctx, method, body)
	if err != nil {
		return err
	}
	if status != fasthttp.StatusOK {
		return fmt.Errorf("%w: %s: HTTP %d: %s", ErrTransport, method, status, truncate(respBody))
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("%w: %s: decode response: %w", ErrProtocol, method, err)
	}
	if len(rpcResp.ID) > 0 && string(rpcResp.ID) != string(id) {
		return fmt.Errorf("%w: %s: response id %s does not match request id %s", ErrProtocol, method, rpcResp.ID, id)
	}
	if rpcResp.Error != nil {
		outcome = metrics.OutcomeRPCError
		return &RPCError{Method: method, Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}

	if out != nil {
		if len(rpcResp.Result) == 0 {
			return fmt.Errorf("%w: %s: empty result", ErrProtocol, method)
		}
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%w: %s: decode result: %w", ErrProtocol, method, err)
		}
	}

	outcome = metrics.OutcomeOK
	return nil
}

// roundTrip posts body and returns the status and a copy of the response
// body. fasthttp cannot abort a request in flight, so the request runs on
// its own goroutine and is abandoned when ctx is done; the pooled request
// and response are released once fasthttp lets go of them.
func (c *Client) roundTrip(ctx context.Context, method string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	release := func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBodyRaw(body)

	deadline, fromCtx := c.deadline(ctx)
	done := make(chan error, 1)
	go func() { done <- c.http.DoDeadline(req, resp, deadline) }()

	select {
	case err := <-done:
		defer release()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, nil, ctxErr
			}
			// fasthttp can time out on the context's deadline before the
			// context itself notices.
			if fromCtx && errors.Is(err, fasthttp.ErrTimeout) {
				return 0, nil, context.DeadlineExceeded
			}
			return 0, nil, fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
		}
		return resp.StatusCode(), append([]byte(nil), resp.Body()...), nil
	case <-ctx.Done():
		go func() {
			<-done
			release()
		}()
		return 0, nil, ctx.Err()
	}
}

// deadline picks the earlier of the context deadline and the per-call
// timeout, reporting whether the context's deadline won.
func (c *Client) deadline(ctx context.Context) (time.Time, bool) {
	d := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && !ctxDeadline.After(d) {
		return ctxDeadline, true
	}
	return d, false
}

func encodeRequest(method string, params any) ([]byte, json.RawMessage, error) {
	id, err := json.Marshal(uuid.NewString())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encode id: %w", ErrProtocol, err)
	}

	req := Request{JSONRPC: Version, ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: encode params: %w", ErrProtocol, method, err)
		}
		req.Params = raw
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: encode request: %w", ErrProtocol, method, err)
	}
	return body, id, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBodyLen {
		return string(b[:maxErrorBodyLen]) + "..."
	}
	return string(b)
}
