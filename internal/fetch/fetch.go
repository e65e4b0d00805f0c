// Package fetch performs the plain HTTP GETs the monitor depends on.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrHTTPStatus is returned (wrapped) for any non-2xx response.
var ErrHTTPStatus = errors.New("unexpected http status")

// DefaultMaxBody caps a single response body. Changelog pages are large but
// nowhere near this.
const DefaultMaxBody int64 = 8 << 20

// HTTPClient is the subset of *http.Client the fetcher needs. Tests swap it
// for a double.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher returns the body of a URL. Implementations must honour ctx.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	Timeout   time.Duration
	UserAgent string
	MaxBody   int64
}

// Client is the default Fetcher.
type Client struct {
	http HTTPClient

	// timeout is a func so a config reload can change it between requests.
	timeout   func() time.Duration
	userAgent string
	maxBody   int64
}

func New(c HTTPClient, opt Options) *Client {
	if c == nil {
		c = &http.Client{}
	}
	to := opt.Timeout
	cl := &Client{
		http:      c,
		timeout:   func() time.Duration { return to },
		userAgent: strings.TrimSpace(opt.UserAgent),
		maxBody:   opt.MaxBody,
	}
	if cl.maxBody <= 0 {
		cl.maxBody = DefaultMaxBody
	}
	return cl
}

// WithTimeoutFunc makes the per-request timeout follow f.
func (c *Client) WithTimeoutFunc(f func() time.Duration) *Client {
	if f != nil {
		c.timeout = f
	}
	return c
}

func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if to := c.timeout(); to > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, to)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch %s: %w: %d", url, ErrHTTPStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", url, c.maxBody)
	}
	return body, nil
}
