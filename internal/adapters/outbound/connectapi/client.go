package connectapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/logging"
	"github.com/sufield/signet/internal/ports"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.appstoreconnect.apple.com"

// maxBody bounds how much of a response body is read.
const maxBody = 16 << 20

// Config configures a Client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Credentials ports.APICredentials

	// HTTPClient overrides the default transport. Tests inject httptest clients.
	HTTPClient *http.Client
	Clock      clock.PassiveClock
	Logger     *slog.Logger
}

// Client implements ports.RemoteService over HTTP.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens *tokenSource
	clock  clock.PassiveClock
	logger *slog.Logger
}

var _ ports.RemoteService = (*Client)(nil)

// New loads the API key named by cfg.Credentials and returns a client.
func New(cfg Config) (*Client, error) {
	if cfg.Credentials.KeyID == "" || cfg.Credentials.IssuerID == "" {
		return nil, fmt.Errorf("connectapi: key id and issuer id are required: %w", ports.ErrUnauthorized)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectapi: invalid base url: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	key, err := loadKey(cfg.Credentials.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("connectapi: %w: %w", ports.ErrUnauthorized, err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		}
	}

	return &Client{
		base:   base,
		http:   hc,
		tokens: newTokenSource(cfg.Credentials.KeyID, cfg.Credentials.IssuerID, key, cfg.Clock),
		clock:  cfg.Clock,
		logger: logging.OrDiscard(cfg.Logger).With("component", "connectapi"),
	}, nil
}

// NewFactory returns a ports.RemoteFactory creating clients against baseURL.
func NewFactory(baseURL string, timeout time.Duration, clk clock.PassiveClock, logger *slog.Logger) ports.RemoteFactory {
	return func(ctx context.Context, creds ports.APICredentials) (ports.RemoteService, error) {
		return New(Config{BaseURL: baseURL, Timeout: timeout, Credentials: creds, Clock: clk, Logger: logger})
	}
}

// StatusError is a non-2xx response. It unwraps to the matching ports error.
type StatusError struct {
	Method string
	Path   string
	Status int
	Detail string

	kind error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Detail)
}

func (e *StatusError) Unwrap() error { return e.kind }

type apiError struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func statusError(method, path string, status int, body []byte) error {
	var doc struct {
		Errors []apiError `json:"errors"`
	}
	detail := http.StatusText(status)
	if json.Unmarshal(body, &doc) == nil && len(doc.Errors) > 0 {
		e := doc.Errors[0]
		detail = strings.TrimSpace(e.Code + " " + e.Detail)
	}

	se := &StatusError{Method: method, Path: path, Status: status, Detail: detail}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		se.kind = ports.ErrUnauthorized
	case status == http.StatusNotFound:
		se.kind = ports.ErrNotFound
	case status == http.StatusConflict:
		se.kind = ports.ErrConflict
	case status == http.StatusTooManyRequests, status >= 500:
		se.kind = ports.ErrTransient
	}
	return se
}

// resource is one JSON:API resource object.
type resource struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id,omitempty"`
	Attributes    json.RawMessage         `json:"attributes,omitempty"`
	Relationships map[string]relationship `json:"relationships,omitempty"`
}

type linkage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// relationship data is an object for to-one and an array for to-many.
type relationship struct {
	Data json.RawMessage `json:"data,omitempty"`
}

func (r relationship) ids() []string {
	var many []linkage
	if json.Unmarshal(r.Data, &many) == nil {
		out := make([]string, 0, len(many))
		for _, l := range many {
			out = append(out, l.ID)
		}
		return out
	}
	var one linkage
	if json.Unmarshal(r.Data, &one) == nil && one.ID != "" {
		return []string{one.ID}
	}
	return nil
}

type listDocument struct {
	Data     []resource `json:"data"`
	Included []resource `json:"included,omitempty"`
	Links    struct {
		Next string `json:"next,omitempty"`
	} `json:"links"`
}

type singleDocument struct {
	Data     resource   `json:"data"`
	Included []resource `json:"included,omitempty"`
}

// request bodies
type newResource struct {
	Type          string         `json:"type"`
	ID            string         `json:"id,omitempty"`
	Attributes    any            `json:"attributes,omitempty"`
	Relationships map[string]any `json:"relationships,omitempty"`
}

type newDocument struct {
	Data newResource `json:"data"`
}

func toOne(typ, id string) any { return map[string]linkage{"data": {Type: typ, ID: id}} }

func toMany(typ string, ids []string) any {
	data := make([]linkage, 0, len(ids))
	for _, id := range ids {
		data = append(data, linkage{Type: typ, ID: id})
	}
	return map[string][]linkage{"data": data}
}

func decodeAttributes[T any](r resource) (T, error) {
	var v T
	if len(r.Attributes) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(r.Attributes, &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", r.Type, r.ID, err)
	}
	return v, nil
}

func (c *Client) endpoint(path string, query url.Values) *url.URL {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u
}

// do sends one authenticated request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method string, u *url.URL, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ports.ErrUnauthorized, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.clock.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", ports.ErrTransient, method, u.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %v", ports.ErrTransient, method, u.Path, err)
	}
	c.logger.Debug("remote call", "method", method, "path", u.Path, "status", resp.StatusCode, "duration", c.clock.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, u.Path, resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, u.Path, err)
	}
	return nil
}

// list follows pagination links and returns all resources plus included ones.
func (c *Client) list(ctx context.Context, path string, query url.Values) ([]resource, []resource, error) {
	var data, included []resource
	u := c.endpoint(path, query)
	for u != nil {
		var doc listDocument
		if err := c.do(ctx, http.MethodGet, u, nil, &doc); err != nil {
			return nil, nil, err
		}
		data = append(data, doc.Data...)
		included = append(included, doc.Included...)

		u = nil
		if doc.Links.Next != "" {
			next, err := url.Parse(doc.Links.Next)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid next link %q: %w", doc.Links.Next, err)
			}
			u = c.base.ResolveReference(next)
		}
	}
	return data, included, nil
}

func (c *Client) create(ctx context.Context, path string, r newResource) (singleDocument, error) {
	var doc singleDocument
	err := c.do(ctx, http.MethodPost, c.endpoint(path, nil), newDocument{Data: r}, &doc)
	return doc, err
}

func findIncluded(included []resource, typ, id string) (resource, bool) {
	for _, r := range included {
		if r.Type == typ && r.ID == id {
			return r, true
		}
	}
	return resource{}, false
}

// appID looks up the remote app resource for a bundle identifier.
func (c *Client) appID(ctx context.Context, app domain.AppIdentifier) (string, error) {
	q := url.Values{}
	q.Set("filter[bundleId]", app.String())
	q.Set("fields[apps]", "bundleId")
	data, _, err := c.list(ctx, "/v1/apps", q)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("app %s: %w", app, ports.ErrNotFound)
	}
	return data[0].ID, nil
}

// timeLayouts are the timestamp formats the remote is known to emit.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05-0700"}

// parseTime returns the zero time for empty or unparseable input.
func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

var errUnexpected = errors.New("unexpected response")

func isNotFound(err error) bool { return errors.Is(err, ports.ErrNotFound) }

func isConflict(err error) bool { return errors.Is(err, ports.ErrConflict) }
