// Package client talks to the HTTP front ends of a raft cluster. It
// follows redirects between replicas and retries unavailable ones.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultRetryGap = 100 * time.Millisecond

var (
	ErrUnavailable = errors.New("cluster unavailable")
	ErrBadRedirect = errors.New("bad redirect")
	ErrUnexpected  = errors.New("unexpected reply")
)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryGap sets the pause before asking another replica after one
// was unavailable.
func WithRetryGap(d time.Duration) Option {
	return func(c *Client) {
		c.retryGap = d
	}
}

type Client struct {
	servers  []string
	next     int
	hc       *http.Client
	logger   *zap.Logger
	retryGap time.Duration
}

// New makes a client of the replicas listening on servers (host:port).
func New(servers []string, opts ...Option) *Client {
	if len(servers) == 0 {
		panic("client: no servers")
	}
	c := &Client{
		servers:  servers,
		logger:   zap.NewNop(),
		retryGap: DefaultRetryGap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: 10 * time.Second}
	}
	// redirects name the replica in the body, not in Location
	hc := *c.hc
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	c.hc = &hc
	return c
}

// Reply is the status and the body of a command reply.
type Reply struct {
	Status int
	Info   string
}

func (r Reply) String() string {
	return fmt.Sprintf("%d %s", r.Status, r.Info)
}

func (c *Client) Create(ctx context.Context, key string) (Reply, error) {
	return c.do(ctx, http.MethodPost, url.Values{"key": {key}})
}

func (c *Client) Update(ctx context.Context, key, value string) (Reply, error) {
	return c.do(ctx, http.MethodPut, url.Values{"key": {key}, "value": {value}})
}

func (c *Client) Delete(ctx context.Context, key string) (Reply, error) {
	return c.do(ctx, http.MethodDelete, url.Values{"key": {key}})
}

// Cas sets key to value if it holds cmp.
func (c *Client) Cas(ctx context.Context, key, cmp, value string) (Reply, error) {
	return c.do(ctx, http.MethodPut, url.Values{"key": {key}, "cmp": {cmp}, "value": {value}})
}

// Get reads key. A nil value means the key is absent.
func (c *Client) Get(ctx context.Context, key string) (*string, error) {
	r, err := c.do(ctx, http.MethodGet, url.Values{"key": {key}})
	if err != nil {
		return nil, err
	}
	if r.Status != http.StatusAccepted {
		return nil, fmt.Errorf("%w: %s", ErrUnexpected, r)
	}
	var value *string
	if err := json.Unmarshal([]byte(r.Info), &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}
	return value, nil
}

func (c *Client) pick() string {
	s := c.servers[c.next%len(c.servers)]
	c.next++
	return s
}

func (c *Client) do(ctx context.Context, method string, query url.Values) (Reply, error) {
	server := c.pick()
	for {
		r, err := c.once(ctx, method, server, query)
		switch {
		case err != nil:
			c.logger.Debug("replica failed", zap.String("server", server), zap.Error(err))
		case r.Status == http.StatusFound:
			to, commitIndex, err := parseRedirect(r.Info)
			if err != nil {
				return Reply{}, err
			}
			c.logger.Debug("redirected", zap.String("from", server), zap.String("to", to))
			if commitIndex != nil {
				query.Set("commit_index", strconv.FormatInt(*commitIndex, 10))
			}
			server = to
			continue
		case r.Status == http.StatusServiceUnavailable:
			c.logger.Debug("replica unavailable", zap.String("server", server))
		default:
			return r, nil
		}

		server = c.pick()
		select {
		case <-ctx.Done():
			return Reply{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(c.retryGap):
		}
	}
}

func (c *Client) once(ctx context.Context, method, server string, query url.Values) (Reply, error) {
	u := url.URL{Scheme: "http", Host: server, Path: "/", RawQuery: query.Encode()}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return Reply{}, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Status: resp.StatusCode, Info: strings.TrimSuffix(string(body), "\n")}, nil
}

// parseRedirect reads `to="host:port", commit_index=N` where N can be
// null.
func parseRedirect(body string) (string, *int64, error) {
	toPart, commitPart, ok := strings.Cut(body, ", commit_index=")
	if !ok || !strings.HasPrefix(toPart, "to=") {
		return "", nil, fmt.Errorf("%w: %q", ErrBadRedirect, body)
	}
	to, err := strconv.Unquote(strings.TrimPrefix(toPart, "to="))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %q", ErrBadRedirect, body)
	}
	if commitPart == "null" {
		return to, nil, nil
	}
	commitIndex, err := strconv.ParseInt(commitPart, 10, 64)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %q", ErrBadRedirect, body)
	}
	return to, &commitIndex, nil
}
