package fetch

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/maltedev/sneaker-dataset-scraper/internal/logger"
	"github.com/maltedev/sneaker-dataset-scraper/internal/metrics"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
	DefaultTimeout    = 30 * time.Second

	// response bodies are kept or traced up to this size
	maxTraceBody = 64 << 10
)

var ErrUnsupportedMethod = errors.New("unsupported request method")

// ServerError is returned once every attempt got a status >= 400.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned bad response with status code: %d", e.StatusCode)
}

func DefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      {"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36(KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36"},
		"Accept":          {"*/*"},
		"Accept-Encoding": {"gzip, deflate, br"},
	}
}

// Options configure a Client. A negative RetryDelay selects DefaultRetryDelay,
// zero retries without pausing.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
}

// RequestOptions tune a single Do call. Headers replace DefaultHeaders key by key.
type RequestOptions struct {
	Headers http.Header
	Body    []byte
	Delay   time.Duration
}

type Client struct {
	http       *http.Client
	maxRetries int
	delay      time.Duration
	wait       WaitFunc
	logger     *slog.Logger
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		http:       opts.HTTPClient,
		maxRetries: opts.MaxRetries,
		delay:      opts.RetryDelay,
		wait:       sleep,
		logger:     logger.With("component", "fetch_client"),
	}
}

// Do sends the request, retrying failed attempts. The caller closes the body.
func (c *Client) Do(ctx context.Context, method, url string, opts *RequestOptions) (*http.Response, error) {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	if opts == nil {
		opts = &RequestOptions{}
	}
	delay := c.delay
	if opts.Delay > 0 {
		delay = opts.Delay
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		c.logger.Debug("sending request", "attempt", attempt, "method", method, "url", url)

		resp, status, err := c.send(ctx, method, url, opts)
		if err == nil {
			c.logger.Debug("received response", "status", resp.StatusCode, "url", url)
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err

		if attempt == c.maxRetries-1 {
			break
		}

		label := "transport"
		if status > 0 {
			label = strconv.Itoa(status)
		}
		metrics.FetchRetries.WithLabelValues(label).Inc()

		pause := retryDelay(delay, status)
		c.logger.Debug("retrying request", "attempt", attempt, "status", status, "delay", pause, "error", err)
		if err := c.wait(ctx, pause); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// send performs one attempt. status is 0 when no response arrived.
func (c *Client) send(ctx context.Context, method, url string, opts *RequestOptions) (*http.Response, int, error) {
	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header = DefaultHeaders()
	for key, values := range opts.Headers {
		req.Header[http.CanonicalHeaderKey(key)] = values
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		// best effort, the body only feeds diagnostics
		_ = decodeBody(resp)
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxTraceBody))

		logger.Trace(ctx, c.logger, "full response", "method", method, "url", url,
			"status", resp.StatusCode, "body", string(text))

		return nil, resp.StatusCode, &ServerError{StatusCode: resp.StatusCode, Body: string(text)}
	}

	if err := decodeBody(resp); err != nil {
		resp.Body.Close()
		return nil, resp.StatusCode, err
	}

	if c.logger.Enabled(ctx, logger.LevelTrace) {
		if err := c.traceBody(ctx, method, url, resp); err != nil {
			resp.Body.Close()
			return nil, 0, err
		}
	}

	return resp, resp.StatusCode, nil
}

// traceBody logs the head of a successful response and puts it back in front
// of the unread rest, so the caller still sees the whole body.
func (c *Client) traceBody(ctx context.Context, method, url string, resp *http.Response) error {
	head, err := io.ReadAll(io.LimitReader(resp.Body, maxTraceBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	logger.Trace(ctx, c.logger, "full response", "method", method, "url", url,
		"status", resp.StatusCode, "body", string(head))

	resp.Body = &decodedBody{Reader: io.MultiReader(bytes.NewReader(head), resp.Body), raw: resp.Body}
	return nil
}

// decodeBody undoes Content-Encoding. The transport leaves it alone because
// Accept-Encoding is set explicitly.
func decodeBody(resp *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	var decoded io.Reader
	switch encoding {
	case "", "identity":
		return nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to open gzip body: %w", err)
		}
		decoded = zr
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to open deflate body: %w", err)
		}
		decoded = zr
	case "br":
		decoded = brotli.NewReader(resp.Body)
	default:
		return fmt.Errorf("unsupported content encoding: %s", encoding)
	}

	resp.Body = &decodedBody{Reader: decoded, raw: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

type decodedBody struct {
	io.Reader
	raw io.ReadCloser
}

func (b *decodedBody) Close() error {
	if c, ok := b.Reader.(io.Closer); ok {
		c.Close()
	}
	return b.raw.Close()
}
