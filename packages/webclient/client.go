package webclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultUserAgent is sent unless a client or request overrides it
const DefaultUserAgent = "Mozilla/5.0 hitwire/1.0"

// Client owns the connection cache and the defaults applied to every request.
// It is safe for concurrent use; the requests it creates are not.
type Client struct {
	dialer         Dialer
	cache          *ConnectionCache
	logger         *zap.Logger
	timeout        time.Duration
	userAgent      string
	defaultHeaders map[string]string
	throwOnError   bool
	drain          DrainPolicy
	maxIdlePerHost int
	validateSSL    bool
	requestID      bool

	connects    atomic.Int64
	reuses      atomic.Int64
	forceCloses atomic.Int64
}

// Stats counts connection activity of a client
type Stats struct {
	Connects    int64      `json:"connects"`
	Reuses      int64      `json:"reuses"`
	ForceCloses int64      `json:"force_closes"`
	Cache       CacheStats `json:"cache"`
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:        DefaultTimeout,
		userAgent:      DefaultUserAgent,
		defaultHeaders: make(map[string]string),
		throwOnError:   true,
		drain:          DefaultDrainPolicy,
		validateSSL:    true,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.dialer == nil {
		if c.validateSSL {
			c.dialer = DialTCP
		} else {
			c.dialer = NewDialer(&tls.Config{InsecureSkipVerify: true})
		}
	}
	if c.cache == nil {
		c.cache = NewConnectionCache(c.maxIdlePerHost, c.logger)
	}

	return c
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithDialer replaces the function used to open new connections
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithCache shares a connection cache between clients
func WithCache(cache *ConnectionCache) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.defaultHeaders[key] = value
	}
}

// WithDefaultHeaders sets multiple default headers for all requests
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.defaultHeaders[k] = v
		}
	}
}

// WithThrowOnError controls whether a status >= 400 is returned as *StatusError
func WithThrowOnError(throw bool) ClientOption {
	return func(c *Client) {
		c.throwOnError = throw
	}
}

func WithDrainPolicy(p DrainPolicy) ClientOption {
	return func(c *Client) {
		c.drain = p
	}
}

// WithMaxIdlePerHost bounds the idle connections kept per host and port.
// It has no effect together with WithCache.
func WithMaxIdlePerHost(n int) ClientOption {
	return func(c *Client) {
		c.maxIdlePerHost = n
	}
}

// WithValidateSSL enables or disables certificate validation of the default dialer
func WithValidateSSL(validate bool) ClientOption {
	return func(c *Client) {
		c.validateSSL = validate
	}
}

// WithRequestID adds a fresh X-Request-Id header to every request
func WithRequestID(enabled bool) ClientOption {
	return func(c *Client) {
		c.requestID = enabled
	}
}

// NewRequest creates a GET request for an http:// or https:// URL
func (c *Client) NewRequest(url string) (*Request, error) {
	t, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	return c.NewRequestHost(t.Hostname, t.Port, t.URI, t.Secure), nil
}

// NewRequestHost creates a GET request for uri on host:port
func (c *Client) NewRequestHost(host string, port int, uri string, secure bool) *Request {
	h := NewHeaderSet()
	h.Hostname = host
	h.Port = port
	h.URI = normalizeURI(uri)
	h.Secure = secure

	h.Set("User-Agent", c.userAgent)
	h.Set("Accept", "*/*")
	h.Set("Accept-Encoding", "gzip, deflate")

	keys := make([]string, 0, len(c.defaultHeaders))
	for k := range c.defaultHeaders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Set(k, c.defaultHeaders[k])
	}
	if c.requestID {
		h.Set("X-Request-Id", uuid.NewString())
	}

	return &Request{
		Headers:      h,
		Timeout:      c.timeout,
		ThrowOnError: c.throwOnError,
		client:       c,
	}
}

// Do performs a complete exchange and buffers the response body
func (c *Client) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Result, error) {
	return c.do(ctx, method, url, headers, func(req *Request) error {
		if cl := req.Headers.ContentLength; cl != nil && *cl != int64(len(body)) {
			return requestError("headers", req.Headers.Hostname, req.Headers.Port,
				fmt.Sprintf("Content-Length %d does not match the %d byte body", *cl, len(body)), nil)
		}
		return req.Send(body)
	})
}

// DoStream is Do with a chunk-encoded body read from src
func (c *Client) DoStream(ctx context.Context, method, url string, src io.Reader, headers map[string]string) (*Result, error) {
	return c.do(ctx, method, url, headers, func(req *Request) error {
		return req.SendStream(src)
	})
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string, send func(*Request) error) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := c.NewRequest(url)
	if err != nil {
		return nil, err
	}
	req.SetMethod(method)
	if err := c.applyHeaders(req, headers); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, context.DeadlineExceeded
		}
		if remaining < req.Timeout {
			req.Timeout = remaining
		}
	}

	start := time.Now()
	if err := send(req); err != nil {
		if req.socket != nil && req.err == nil {
			req.abort(err)
		}
		return nil, err
	}

	resp, err := req.Response()
	if err != nil {
		return nil, err
	}
	data, readErr := resp.ReadAll()
	closeErr := resp.Close()
	duration := time.Since(start)
	if readErr != nil {
		return nil, readErr
	}
	if closeErr != nil {
		return nil, closeErr
	}

	return &Result{
		StatusCode:  resp.StatusCode,
		Status:      fmt.Sprintf("%d %s", resp.StatusCode, resp.StatusDescription),
		Headers:     resp.Headers.Map(),
		Body:        data,
		Duration:    duration,
		Reused:      req.Reused(),
		RequestHead: req.Headers.String(),
	}, nil
}

// applyHeaders copies caller headers onto req. Framing stays with the
// request pipeline: Content-Length becomes the preset body length, while Host
// and Transfer-Encoding are dropped because the pipeline writes them itself.
func (c *Client) applyHeaders(req *Request, headers map[string]string) error {
	for k, v := range headers {
		switch {
		case strings.EqualFold(k, "Content-Length"):
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil || n < 0 {
				return requestError("headers", req.Headers.Hostname, req.Headers.Port,
					"invalid Content-Length "+strconv.Quote(v), err)
			}
			req.SetContentLength(n)
		case strings.EqualFold(k, "Host"), strings.EqualFold(k, "Transfer-Encoding"):
			c.logger.Debug("ignoring caller framing header", zap.String("header", k))
		default:
			req.Headers.Set(k, v)
		}
	}
	return nil
}

func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Result, error) {
	return c.Do(ctx, "GET", url, nil, headers)
}

func (c *Client) Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Result, error) {
	return c.Do(ctx, "POST", url, body, headers)
}

func (c *Client) Put(ctx context.Context, url string, body []byte, headers map[string]string) (*Result, error) {
	return c.Do(ctx, "PUT", url, body, headers)
}

func (c *Client) Delete(ctx context.Context, url string, headers map[string]string) (*Result, error) {
	return c.Do(ctx, "DELETE", url, nil, headers)
}

// connect returns a cached socket for host:port or dials a new one
func (c *Client) connect(host string, port int, secure bool, timeout time.Duration) (Socket, bool, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	if s := c.cache.Acquire(host, port, timeout); s != nil {
		c.reuses.Add(1)
		return s, true, nil
	}

	s, err := c.dialer(host, port, secure, timeout)
	if err != nil {
		return nil, false, err
	}
	c.connects.Add(1)
	c.logger.Debug("connected", zap.String("host", host), zap.Int("port", port), zap.Bool("secure", secure))
	return s, false, nil
}

// Release returns a socket to the cache when it can carry another exchange
// and closes it otherwise.
func (c *Client) Release(s Socket) {
	if s == nil {
		return
	}
	if !s.ForceClosed() && s.KeepAlive() && !s.KeepAliveExpired() && s.Connected() && s.Available() == 0 {
		c.cache.Release(s)
		return
	}

	if s.ForceClosed() {
		c.forceCloses.Add(1)
		c.logger.Debug("force closing connection", zap.String("host", s.Hostname()), zap.Int("port", s.Port()))
	}
	_ = s.Close()
}

// Cache returns the connection cache used by the client
func (c *Client) Cache() *ConnectionCache {
	return c.cache
}

func (c *Client) Stats() Stats {
	return Stats{
		Connects:    c.connects.Load(),
		Reuses:      c.reuses.Load(),
		ForceCloses: c.forceCloses.Load(),
		Cache:       c.cache.Stats(),
	}
}

// CloseIdleConnections closes every cached connection
func (c *Client) CloseIdleConnections() {
	c.cache.CloseIdle()
}
