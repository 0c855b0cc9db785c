// Package device talks to the OTA HTTP service of a NodeMCU device.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fikin/nodemcu-device/internal/release"
)

// Remote provides the operations the upgrade needs from a device
type Remote interface {
	// Version returns the device's software version string
	Version(ctx context.Context) (string, error)
	// ReleaseManifest returns the raw lines of the device's release manifest
	ReleaseManifest(ctx context.Context) ([]string, error)
	// Upload stores the local file at localPath on the device under name
	Upload(ctx context.Context, name, localPath string) error
	// Restart asks the device to reboot
	Restart(ctx context.Context) error
}

// Credentials holds the OTA service basic auth user
type Credentials struct {
	User     string
	Password string
}

// Options configures a Client
type Options struct {
	// Timeout bounds each request, 0 means no timeout.
	Timeout time.Duration
	// RequestInterval is the minimum spacing between requests, 0 disables pacing.
	RequestInterval time.Duration
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

// Client implements Remote over HTTP
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a client for host, given as "host[:port]" or a full
// base URL such as "http://192.168.1.10".
func NewClient(host string, creds Credentials, opts Options, logger *slog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RequestInterval > 0 {
		limit = rate.Every(opts.RequestInterval)
	}

	return &Client{
		baseURL: BaseURL(host),
		creds:   creds,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// BaseURL turns a host into the device base URL, defaulting to plain http
func BaseURL(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.Contains(host, "://") {
		return host
	}
	return "http://" + host
}

// Version queries GET /ota?version. The device answers with JSON; a JSON
// string is returned verbatim, anything else in its compact encoding.
func (c *Client) Version(ctx context.Context) (string, error) {
	u := c.baseURL + "/ota?version"
	resp, err := c.do(ctx, "version", http.MethodGet, u, nil, 0)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", &RemoteError{Op: "version", URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return string(raw), nil
}

// ReleaseManifest fetches GET /ota?release
func (c *Client) ReleaseManifest(ctx context.Context) ([]string, error) {
	u := c.baseURL + "/ota?release"
	resp, err := c.do(ctx, "release", http.MethodGet, u, nil, 0)
	if err != nil {
		return nil, err
	}

	lr := newLineReader(resp)
	defer func() {
		_ = lr.Close()
	}()

	lines, err := lr.ReadLines()
	if err != nil {
		return nil, &RemoteError{Op: "release", URL: u, StatusCode: resp.StatusCode, Err: err}
	}
	return lines, nil
}

// Upload streams localPath to POST /ota/<name>
func (c *Client) Upload(ctx context.Context, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &release.IOError{Path: localPath, Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return &release.IOError{Path: localPath, Err: err}
	}

	// nested SPIFFS names keep their slashes on the wire
	u := c.baseURL + (&url.URL{Path: "/ota/" + name}).EscapedPath()
	resp, err := c.do(ctx, "upload", http.MethodPost, u, f, info.Size())
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// Restart posts to /ota?restart
func (c *Client) Restart(ctx context.Context) error {
	u := c.baseURL + "/ota?restart"
	resp, err := c.do(ctx, "restart", http.MethodPost, u, nil, 0)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// do sends one authenticated request. Any status other than 200 is
// returned as a *RemoteError and the response body is closed.
func (c *Client) do(ctx context.Context, op, method, u string, body io.Reader, size int64) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &RemoteError{Op: op, URL: u, Err: err}
	}

	if body != nil && size == 0 {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &RemoteError{Op: op, URL: u, Err: err}
	}
	if body != nil && body != http.NoBody {
		req.ContentLength = size
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	req.SetBasicAuth(c.creds.User, c.creds.Password)

	c.logger.Debug("device request", "method", method, "url", u)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: op, URL: u, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		c.logger.Error("device request failed",
			"method", method,
			"url", u,
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(msg)))
		return nil, &RemoteError{Op: op, URL: u, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
