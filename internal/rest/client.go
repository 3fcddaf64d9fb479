// Package rest talks to the gateway's HTTP endpoints: presigned uploads,
// history, deployment config and the auth token endpoints.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/codefionn/webmessaging/internal/config"
	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxErrorBody bounds the response text copied into errors.
const maxErrorBody = 512

// Client performs REST calls for one configuration.
type Client struct {
	cfg       *config.Configuration
	http      *http.Client
	upload    *http.Client
	userAgent string
	log       *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for API calls and uploads.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
		cl.upload = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(cl *Client) {
		cl.log = l.WithPrefix("rest")
	}
}

// NewClient creates a client whose transport is traced with otelhttp.
func NewClient(cfg *config.Configuration, opts ...Option) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	c := &Client{
		cfg:       cfg,
		http:      &http.Client{Transport: transport, Timeout: consts.HTTPTimeout},
		upload:    &http.Client{Transport: transport, Timeout: consts.UploadTimeout},
		userAgent: consts.SDKName + "/" + consts.SDKVersion,
		log:       logger.Global().WithPrefix("rest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func bearer(req *http.Request, jwt string) {
	req.Header.Set("Authorization", "Bearer "+jwt)
}

// do sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) do(client *http.Client, req *http.Request, out any) error {
	c.log.Debug("%s %s", req.Method, req.URL.Redacted())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		c.log.Warn("%s %s: %v", req.Method, req.URL.Path, err)
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// statusError maps a non-2xx response onto an *errcode.Error.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return errcode.New(errcode.FromHTTPStatus(resp.StatusCode), msg)
}

// FetchDeploymentConfig downloads the published deployment configuration.
func (c *Client) FetchDeploymentConfig(ctx context.Context) (*config.DeploymentConfig, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.cfg.DeploymentConfigURL(), nil)
	if err != nil {
		return nil, err
	}
	var dc config.DeploymentConfig
	if err := c.do(c.http, req, &dc); err != nil {
		return nil, err
	}
	return &dc, nil
}
