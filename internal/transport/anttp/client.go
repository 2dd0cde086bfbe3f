// Package anttp is an HTTP client for the AntTP archive and pointer APIs.
package anttp

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/time/rate"
)

const (
	headerStoreType = "x-store-type"
	headerRequestID = "X-Request-Id"
	headerChecksum  = "X-Content-Blake3"

	apiPrefix = "/anttp-0"
)

// Response limits per endpoint type.
const (
	responseLimitDefault = 2 << 20   // 2MB
	responseLimitArchive = 512 << 20 // 512MB
)

// Options configures the client.
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Timeout bounds a single HTTP attempt (default 60s). Ignored when
	// HTTPClient is set.
	Timeout time.Duration
	// MaxAttempts is the number of tries per request (default 3).
	MaxAttempts int
	// Backoff is the delay before the first retry; it doubles per retry
	// (default 1s).
	Backoff time.Duration
	// RequestsPerSecond caps outgoing requests. Zero means unlimited.
	RequestsPerSecond float64
	// Compress sends upload bodies zstd-compressed.
	Compress bool
}

// Client talks to one AntTP server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
	compress    bool
}

// NewClient creates a client for the AntTP server at endpoint, for example
// "http://localhost:18888".
func NewClient(endpoint string, opts Options) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("anttp endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse anttp endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("anttp endpoint must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("anttp endpoint must include a host")
	}
	u.RawQuery = ""
	u.Fragment = ""

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := max(1, int(opts.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:     strings.TrimRight(u.String(), "/"),
		httpClient:  httpClient,
		limiter:     limiter,
		logger:      logger.With("component", "anttp"),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		compress:    opts.Compress,
	}, nil
}

// Endpoint returns the normalized server URL.
func (c *Client) Endpoint() string { return c.baseURL }

// Archives returns the public archive API.
func (c *Client) Archives() *Archives { return &Archives{c: c} }

// Pointers returns the pointer API.
func (c *Client) Pointers() *Pointers { return &Pointers{c: c} }

// request describes one API call.
type request struct {
	body      any
	storeType string
	op        string
	method    string
	path      string
	limit     int64
	// allow404 returns a nil body instead of an error for 404 responses.
	allow404 bool
	// once sends the request a single time. Archive mutations are not
	// idempotent and run while the caller holds the address cell.
	once bool
}

// do sends r and decodes a JSON response into out. It returns found=false
// only for an allowed 404.
func (c *Client) do(ctx context.Context, r request, out any) (found bool, err error) {
	start := time.Now()
	defer func() {
		remoteLatency.WithLabelValues(r.op).Observe(time.Since(start).Seconds())
		remoteRequests.WithLabelValues(r.op, outcome(err)).Inc()
	}()

	var body io.Reader
	var checksum string
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return false, fmt.Errorf("encode %s request: %w", r.op, err)
		}
		sum := blake3.Sum256(payload)
		checksum = hex.EncodeToString(sum[:])
		remoteBytes.WithLabelValues("out").Add(float64(len(payload)))
		if c.compress {
			if payload, err = compressZstd(payload); err != nil {
				return false, fmt.Errorf("compress %s request: %w", r.op, err)
			}
		}
		body = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, r, body)
	if err != nil {
		return false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(headerChecksum, checksum)
		if c.compress {
			req.Header.Set("Content-Encoding", "zstd")
		}
	}
	return c.send(req, r, out)
}

func (c *Client) newRequest(ctx context.Context, r request, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "zstd")
	req.Header.Set(headerRequestID, uuid.NewString())
	if r.storeType != "" {
		req.Header.Set(headerStoreType, r.storeType)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, r request, out any) (bool, error) {
	attempts := c.maxAttempts
	if r.once {
		attempts = 1
	}
	resp, err := c.retryDo(req, attempts)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	limit := r.limit
	if limit <= 0 {
		limit = responseLimitDefault
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return false, fmt.Errorf("read %s response: %w", r.op, err)
	}

	if resp.StatusCode == http.StatusNotFound && r.allow404 {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, remoteError(req.Method, req.URL.Path, resp.StatusCode, body)
	}

	if isZstdEncoded(resp.Header.Get("Content-Encoding")) {
		body, err = decompressZstd(body)
		if err != nil {
			return false, fmt.Errorf("decompress %s response: %w", r.op, err)
		}
	}
	remoteBytes.WithLabelValues("in").Add(float64(len(body)))

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return true, nil
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return false, fmt.Errorf("unexpected content type %q from %s %s (status %d)",
			ct, req.Method, req.URL.Path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decode %s response: %w", r.op, err)
	}
	return true, nil
}

// escapePath escapes each segment of an archive path, dropping empty
// segments. The root path escapes to "".
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		out = append(out, url.PathEscape(part))
	}
	return strings.Join(out, "/")
}
