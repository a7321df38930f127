package fleetapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

// MaxCallsPerBatch is the server's hard cap on sub-queries in one composite
// request. Larger composites are rejected with a validation fault.
const MaxCallsPerBatch = 100

// rpcPath is the single JSON-RPC endpoint exposed by the fleet server.
const rpcPath = "/api/v1/rpc"

// Config carries everything needed to talk to one fleet server.
type Config struct {
	// Server is the host name, host:port, or full URL of the fleet server.
	// A bare host gets https:// prepended.
	Server   string
	Database string
	Username string
	Password string

	// Timeout bounds one HTTP round trip. Defaults to 30s.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Logger receives wire-level debug output. Defaults to logr.Discard.
	Logger logr.Logger
}

// Client talks JSON-RPC to a fleet server. It authenticates lazily on demand
// and transparently re-authenticates once when the server reports an expired
// session. All methods are safe for concurrent use.
type Client struct {
	endpoint string
	database string
	username string
	password string

	httpc  *http.Client
	logger logr.Logger

	mu      sync.Mutex
	session string

	reqID atomic.Int64
}

// NewClient validates cfg and builds a Client. No network traffic happens
// until Authenticate or the first call.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("fleetapi: config is required")
	}
	if cfg.Server == "" || cfg.Database == "" || cfg.Username == "" {
		return nil, fmt.Errorf("fleetapi: server, database and username are required")
	}

	endpoint, err := endpointURL(cfg.Server)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	return &Client{
		endpoint: endpoint,
		database: cfg.Database,
		username: cfg.Username,
		password: cfg.Password,
		httpc: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(cfg.InsecureSkipVerify),
		},
		logger: logger,
	}, nil
}

// endpointURL normalizes the user-supplied server string into the full RPC
// endpoint URL.
func endpointURL(server string) (string, error) {
	raw := server
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("fleetapi: invalid server %q: %w", server, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("fleetapi: invalid server %q: missing host", server)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + rpcPath
	return u.String(), nil
}

// --- Wire framing ---

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcFault struct {
	Name  string `json:"name"`
	Debug string `json:"debug,omitempty"`
}

type rpcError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    rpcFault `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type authParams struct {
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResult struct {
	Session string `json:"session"`
	UserID  int64  `json:"userId"`
}

type getParams struct {
	Session string         `json:"session"`
	Type    string         `json:"type"`
	Search  map[string]any `json:"search,omitempty"`
}

type multiCallParams struct {
	Session string `json:"session"`
	Calls   []Call `json:"calls"`
}

// Authenticate exchanges the configured credentials for a session. It is
// called implicitly when the server reports an expired session, but callers
// normally invoke it once up front so credential problems surface early.
func (c *Client) Authenticate(ctx context.Context) error {
	raw, err := c.call(ctx, "Authenticate", authParams{
		Database: c.database,
		Username: c.username,
		Password: c.password,
	})
	if err != nil {
		return err
	}

	var res authResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return &Error{Kind: KindUnclassified, Op: "Authenticate", Message: "malformed auth result", Err: err}
	}
	if res.Session == "" {
		return &Error{Kind: KindAuth, Op: "Authenticate", Message: "server returned an empty session"}
	}

	c.mu.Lock()
	c.session = res.Session
	c.mu.Unlock()

	c.logger.Info("authenticated", "database", c.database, "userId", res.UserID)
	return nil
}

// Get runs one typed query and decodes the result list into out. Pass a nil
// out to discard the result.
func (c *Client) Get(ctx context.Context, typeName string, search map[string]any, out any) error {
	raw, err := c.withSession(ctx, "Get", func(session string) any {
		return getParams{Session: session, Type: typeName, Search: search}
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindUnclassified, Op: "Get", Message: fmt.Sprintf("malformed %s result", typeName), Err: err}
	}
	return nil
}

// MultiCall issues one composite request. The result slice holds one raw
// entry per sub-query, in request order; callers should still match entries
// to devices by embedded identifiers rather than position.
func (c *Client) MultiCall(ctx context.Context, calls []Call) ([]json.RawMessage, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if len(calls) > MaxCallsPerBatch {
		return nil, &Error{
			Kind:    KindValidation,
			Op:      "MultiCall",
			Message: fmt.Sprintf("%d sub-queries exceed the server cap of %d", len(calls), MaxCallsPerBatch),
		}
	}

	raw, err := c.withSession(ctx, "MultiCall", func(session string) any {
		return multiCallParams{Session: session, Calls: calls}
	})
	if err != nil {
		return nil, err
	}

	var results []json.RawMessage
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, &Error{Kind: KindUnclassified, Op: "MultiCall", Message: "malformed composite result", Err: err}
	}
	return results, nil
}

// withSession runs one session-bearing call, re-authenticating and replaying
// exactly once when the server reports the session expired.
func (c *Client) withSession(ctx context.Context, method string, build func(session string) any) (json.RawMessage, error) {
	raw, err := c.call(ctx, method, build(c.currentSession()))
	if err == nil {
		return raw, nil
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Name != faultSessionExpired {
		return nil, err
	}

	c.logger.V(1).Info("session expired, re-authenticating", "method", method)
	if authErr := c.Authenticate(ctx); authErr != nil {
		return nil, authErr
	}
	return c.call(ctx, method, build(c.currentSession()))
}

// call performs one JSON-RPC round trip and maps every failure mode onto the
// Error taxonomy. Context cancellation passes through untouched.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, &Error{Kind: KindUnclassified, Op: method, Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUnclassified, Op: method, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindTransient, Op: method, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	c.logger.V(1).Info("rpc round trip", "method", method, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &Error{
			Kind:    kindForStatus(resp.StatusCode),
			Op:      method,
			Message: fmt.Sprintf("server returned status %s", resp.Status),
		}
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, &Error{Kind: KindUnclassified, Op: method, Message: "malformed response", Err: err}
	}

	if rpcResp.Error != nil {
		return nil, &Error{
			Kind:    classifyFault(rpcResp.Error.Data.Name),
			Op:      method,
			Name:    rpcResp.Error.Data.Name,
			Message: rpcResp.Error.Message,
		}
	}

	return rpcResp.Result, nil
}

func (c *Client) currentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func newTransport(insecureSkipVerify bool) http.RoundTripper {
	if !insecureSkipVerify {
		return nil
	}
	return &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: insecureSkipVerify,
		},
	}
}

// kindForStatus classifies HTTP-level failures that never reached the RPC
// layer.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestTimeout || status >= 500:
		return KindTransient
	default:
		return KindUnclassified
	}
}
