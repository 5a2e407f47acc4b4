// Package fetch retrieves the bytes behind a URL: http(s) with retries,
// file:// paths and base64 data URIs.
package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultMaxBytes = 20 << 20 // 20 MB
	defaultTimeout  = 30 * time.Second
	maxRedirects    = 5
)

// ErrUnsupportedScheme is returned for URLs the fetcher cannot retrieve.
var ErrUnsupportedScheme = errors.New("fetch: unsupported scheme")

// Fetcher returns the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	Timeout    time.Duration
	MaxBytes   int64
	MaxRetries uint64
	Backoff    time.Duration
	// BlockLocal rejects loopback and cloud metadata hosts.
	BlockLocal bool
	HTTPClient *http.Client
}

// Client is the default Fetcher.
type Client struct {
	http       *http.Client
	maxBytes   int64
	maxRetries uint64
	backoff    time.Duration
	blockLocal bool
}

var _ Fetcher = (*Client)(nil)

// New creates a Client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	c := &Client{
		maxBytes:   opts.MaxBytes,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		blockLocal: opts.BlockLocal,
	}
	if opts.HTTPClient != nil {
		c.http = opts.HTTPClient
	} else {
		c.http = &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (max %d)", maxRedirects)
				}
				if c.blockLocal {
					return checkBlockedHost(req.URL.Hostname())
				}
				return nil
			},
		}
	}
	return c
}

// Fetch retrieves rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "data:") {
		return decodeDataURI(rawURL)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid URL %q: %w", rawURL, err)
	}
	switch parsed.Scheme {
	case "http", "https":
		return c.fetchHTTP(ctx, parsed)
	case "file":
		data, err := os.ReadFile(parsed.Path)
		if err != nil {
			return nil, fmt.Errorf("fetch: read %s: %w", parsed.Path, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, parsed.Scheme)
	}
}

// fetchHTTP downloads a URL, retrying transport errors, 429 and 5xx with
// exponential backoff.
func (c *Client) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	if c.blockLocal {
		if err := checkBlockedHost(u.Hostname()); err != nil {
			return nil, err
		}
	}

	var data []byte
	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		data, err = c.get(ctx, u.String())
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", "raido")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: download %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	limited := io.LimitReader(resp.Body, c.maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body %s: %w", rawURL, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, &StatusError{URL: rawURL, Code: http.StatusRequestEntityTooLarge}
	}
	return data, nil
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s: HTTP %d", e.URL, e.Code)
}

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, fmt.Errorf("fetch: invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		decoded, err := url.PathUnescape(encoded)
		if err != nil {
			return nil, fmt.Errorf("fetch: invalid data URI payload: %w", err)
		}
		return []byte(decoded), nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("fetch: invalid base64 data: %w", err)
		}
	}
	return data, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("fetch: blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("fetch: blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("fetch: blocked host: cloud metadata address %s", host)
	}
	return nil
}
