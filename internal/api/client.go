package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Joseda-hg/taskdeck/internal/logging"
)

const (
	HeaderAPIKey    = "apikey"
	HeaderPrefer    = "Prefer"
	HeaderRequestID = "X-Request-Id"

	PreferRepresentation = "return=representation"

	maxErrorBody = 1 << 20
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client talks to a PostgREST-style collection API. Every request carries
// the api key both as the apikey header and as a bearer token, and asks for
// the affected rows to be echoed back.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	log    *logrus.Entry
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errBaseURLRequired
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		base:   base,
		apiKey: opts.APIKey,
		http:   httpClient,
		log:    logging.Component(logger, "api"),
	}, nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, query url.Values, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, query, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodDelete, path, query, nil, out)
}

// Do sends one request. body is JSON encoded when non-nil; a non-empty
// response body is decoded into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.base.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindEncode, Method: method, Path: path, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return &Error{Kind: KindTransport, Method: method, Path: path, Err: err}
	}
	requestID := uuid.NewString()
	c.setHeaders(req, requestID)

	entry := c.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"query":      target.RawQuery,
		"request_id": requestID,
	})
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		entry.WithError(err).Debug("request failed")
		return &Error{Kind: KindTransport, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	entry = entry.WithFields(logrus.Fields{
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := statusError(method, path, resp)
		entry.WithField("error", apiErr.Message).Debug("request rejected")
		return apiErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransport, Method: method, Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	entry.Debug("request completed")

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindDecode, Method: method, Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, requestID string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderPrefer, PreferRepresentation)
	req.Header.Set(HeaderRequestID, requestID)
	if c.apiKey != "" {
		req.Header.Set(HeaderAPIKey, c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func statusError(method, path string, resp *http.Response) *Error {
	apiErr := &Error{
		Kind:       KindStatus,
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return apiErr
	}

	var body ErrorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}
