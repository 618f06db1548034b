// Package checkin is a client for the smart-bin session service: login with
// credentials, then flip the checked-in flag with the returned bearer token.
package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/likhithmdev/Final-Sic/internal/constants"
)

var (
	ErrAuthFailure     = errors.New("login failed")
	ErrCheckInFailure  = errors.New("check-in failed")
	ErrCheckOutFailure = errors.New("check-out failed")
)

// maxErrorBody bounds how much of an error response is quoted in errors.
const maxErrorBody = 512

// Client talks to the session service. Every call is bounded by the client
// timeout; there are no retries.
type Client struct {
	parsedURL  *url.URL
	httpClient *http.Client
	captureDir string
}

// New creates a client for the service rooted at baseURL
// (e.g. http://localhost:3000/api). Pass an empty captureDir to disable
// response capturing.
func New(baseURL string, timeout time.Duration, captureDir string) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q: scheme and host are required", baseURL)
	}
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	c := &Client{
		parsedURL:  parsed,
		httpClient: &http.Client{Timeout: timeout},
	}
	if err := c.SetCaptureDir(captureDir); err != nil {
		return nil, err
	}
	return c, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.parsedURL.String()
}

// resolveURL builds a full URL from the base API URL and the given path segments.
func (c *Client) resolveURL(pathSegments ...string) string {
	return c.parsedURL.JoinPath(pathSegments...).String()
}

// SetCaptureDir enables API response capturing to the specified directory.
// Pass an empty string to disable capturing.
func (c *Client) SetCaptureDir(dir string) error {
	if dir == "" {
		c.captureDir = ""
		return nil
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("could not create capture directory: %w", err)
	}
	c.captureDir = dir
	return nil
}

// captureResponse saves the API response body to a file if capturing is enabled.
func (c *Client) captureResponse(endpoint string, body []byte) {
	if c.captureDir == "" {
		return
	}

	filename := strings.ReplaceAll(endpoint, "/", "_")
	filename = strings.TrimPrefix(filename, "_")
	timestamp := time.Now().Format("20060102_150405.000")
	filename = fmt.Sprintf("%s_%s.json", filename, timestamp)

	path := filepath.Join(c.captureDir, filename)

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, body, "", "  "); err == nil {
		body = prettyJSON.Bytes()
	}

	// WriteFile error is non-critical for capturing - log and continue
	if err := os.WriteFile(path, body, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to capture response to %s: %v\n", path, err)
	}
}

// readErrorBody reads a bounded excerpt of the response body for error messages.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return "(could not read error body)"
	}
	return strings.TrimSpace(string(body))
}

// loginRequest uses explicit names so the password never appears in a
// struct-printed log line.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request payload, never logged
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// Login authenticates and returns the bearer token. Any transport error,
// non-2xx status, success=false or missing token wraps ErrAuthFailure.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("%w: could not marshal input: %w", ErrAuthFailure, err)
	}

	status, respBody, err := c.post(ctx, "auth/login", "", body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}

	var result loginResponse
	if jsonErr := json.Unmarshal(respBody, &result); jsonErr != nil && isSuccess(status) {
		return "", fmt.Errorf("%w: could not unmarshal response: %w", ErrAuthFailure, jsonErr)
	}

	switch {
	case !isSuccess(status):
		return "", fmt.Errorf("%w: status %d: %s", ErrAuthFailure, status, excerpt(result.Message, respBody))
	case !result.Success:
		return "", fmt.Errorf("%w: %s", ErrAuthFailure, excerpt(result.Message, respBody))
	case result.Token == "":
		return "", fmt.Errorf("%w: response has no token", ErrAuthFailure)
	}
	return result.Token, nil
}

// CheckIn marks the token's user as present.
func (c *Client) CheckIn(ctx context.Context, token string) error {
	return c.flip(ctx, "rewards/check-in", token, ErrCheckInFailure)
}

// CheckOut marks the token's user as no longer present.
func (c *Client) CheckOut(ctx context.Context, token string) error {
	return c.flip(ctx, "rewards/check-out", token, ErrCheckOutFailure)
}

func (c *Client) flip(ctx context.Context, endpoint, token string, sentinel error) error {
	status, respBody, err := c.post(ctx, endpoint, token, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	if !isSuccess(status) {
		return fmt.Errorf("%w: status %d: %s", sentinel, status, excerpt("", respBody))
	}
	return nil
}

// post sends a POST request and returns the status and body. Only transport
// failures are returned as errors; status handling is left to the caller.
func (c *Client) post(ctx context.Context, endpoint, token string, body []byte) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolveURL(endpoint), bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("could not create request: %w", err)
	}

	req.Header.Set("X-Request-ID", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL constructed from validated parsedURL via resolveURL
	if err != nil {
		return 0, nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return resp.StatusCode, []byte(readErrorBody(resp.Body)), nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("could not read response body: %w", err)
	}

	c.captureResponse(endpoint, respBody)
	return resp.StatusCode, respBody, nil
}

// isSuccess reports whether a status code is 2xx.
func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func excerpt(message string, body []byte) string {
	if message != "" {
		return message
	}
	if len(body) == 0 {
		return "(empty body)"
	}
	return string(body)
}
