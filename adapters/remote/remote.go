// Package remote talks to the kintone REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/artpar/kintone/adapters/metrics"
	"github.com/artpar/kintone/domain/ratelimit"
	"github.com/rs/zerolog"
)

// Auth holds the credentials sent with every request. Password
// authentication wins over an API token when both are set; basic
// credentials are an extra layer some domains put in front of kintone.
type Auth struct {
	User          string
	Password      string
	APIToken      string
	BasicUser     string
	BasicPassword string
}

// Empty reports whether no kintone credential is set.
func (a Auth) Empty() bool {
	return (a.User == "" || a.Password == "") && a.APIToken == ""
}

// Client provides HTTP communication with a kintone domain.
type Client struct {
	httpClient *http.Client
	baseURL    string
	auth       Auth
	userAgent  string
	headers    map[string]string
	logger     zerolog.Logger
	metrics    *metrics.Collector
	limiter    *ratelimit.Limiter
}

// ClientConfig configures the client.
type ClientConfig struct {
	BaseURL   string
	Auth      Auth
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string

	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
	// HTTPClient replaces the default client; Timeout is then ignored.
	HTTPClient *http.Client
	// Limiter paces requests; nil sends them unpaced.
	Limiter *ratelimit.Limiter
}

// DefaultUserAgent is sent when ClientConfig.UserAgent is empty.
const DefaultUserAgent = "kintone-go"

// NewClient creates a new kintone HTTP client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		auth:       cfg.Auth,
		userAgent:  userAgent,
		headers:    cfg.Headers,
		logger:     logger,
		metrics:    cfg.Metrics,
		limiter:    cfg.Limiter,
	}
}

// BaseURL returns the domain URL requests are sent to.
func (c *Client) BaseURL() string { return c.baseURL }

// Request sends a JSON request and decodes the JSON response into result.
// params become the query string; body, when not nil, is sent as JSON.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, params, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			c.metrics.RequestError("decode")
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Upload posts content as the multipart "file" part and decodes the JSON
// response into result.
func (c *Client) Upload(ctx context.Context, path, name, contentType string, content io.Reader, result any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create multipart: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("write multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, nil, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			c.metrics.RequestError("decode")
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Download streams the response body of a GET into w and returns the
// number of bytes written.
func (c *Client) Download(ctx context.Context, path string, params url.Values, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read download: %w", err)
	}
	return n, nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.auth.User != "" && c.auth.Password != "" {
		req.Header.Set("X-Cybozu-Authorization",
			base64.StdEncoding.EncodeToString([]byte(c.auth.User+":"+c.auth.Password)))
	}
	if c.auth.APIToken != "" {
		req.Header.Set("X-Cybozu-API-Token", c.auth.APIToken)
	}
	if c.auth.BasicUser != "" {
		req.SetBasicAuth(c.auth.BasicUser, c.auth.BasicPassword)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// do executes req. Responses with status >= 400 are closed and returned
// as *RemoteError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}

	start := time.Now()
	c.metrics.InFlight(1)
	defer c.metrics.InFlight(-1)

	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RequestError("transport")
		c.logger.Warn().
			Err(err).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("duration", elapsed).
			Msg("kintone request failed")
		return nil, fmt.Errorf("execute request: %w", err)
	}

	c.metrics.ObserveRequest(req.Method, req.URL.Path, resp.StatusCode, elapsed)
	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", elapsed).
		Msg("kintone request")

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		c.metrics.RequestError("api")
		return nil, parseRemoteError(resp.StatusCode, body)
	}
	return resp, nil
}

// RemoteError is an error response from kintone. Code and ID come from the
// JSON error body; Errors holds per-field details of validation failures.
type RemoteError struct {
	StatusCode int
	Code       string
	ID         string
	Message    string
	Errors     map[string]FieldErrors
}

// FieldErrors lists the messages kintone reports for one field.
type FieldErrors struct {
	Messages []string `json:"messages"`
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("kintone error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("kintone error %d: %s", e.StatusCode, e.Message)
}

func parseRemoteError(status int, body []byte) *RemoteError {
	re := &RemoteError{StatusCode: status}
	var payload struct {
		Code    string                 `json:"code"`
		ID      string                 `json:"id"`
		Message string                 `json:"message"`
		Errors  map[string]FieldErrors `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && (payload.Code != "" || payload.Message != "") {
		re.Code = payload.Code
		re.ID = payload.ID
		re.Message = payload.Message
		re.Errors = payload.Errors
		return re
	}
	re.Message = strings.TrimSpace(string(body))
	if re.Message == "" {
		re.Message = http.StatusText(status)
	}
	return re
}

// Record-not-found codes kintone returns with status 404 or 520.
var notFoundCodes = map[string]bool{"GAIA_RE01": true, "GAIA_AP01": true}

// IsNotFound reports whether err is a kintone "not found" response.
func IsNotFound(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	return re.StatusCode == http.StatusNotFound || notFoundCodes[re.Code]
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == http.StatusUnauthorized
}
