package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hdjv-envi/wastelog/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// TokenSource provides the bearer token for authenticated calls. Token is
// read at call time, never snapshotted, so a concurrent refresh is always
// picked up. Invalidate is the single path for authoritative rejections:
// the client calls it exactly once per 401 before returning
// ErrUnauthorized.
type TokenSource interface {
	Token() string
	Invalidate(ctx context.Context)
}

// Client talks to the remote record endpoint.
type Client interface {
	// Login exchanges an identity token for a session token. Does not
	// require an existing session.
	Login(ctx context.Context, email, idToken string) (*LoginResult, error)

	// ValidateToken asks the backend whether the current token is valid.
	ValidateToken(ctx context.Context) (*ValidateResult, error)

	// RefreshToken asks the backend to extend the current token.
	RefreshToken(ctx context.Context) (*RefreshResult, error)

	// Upload submits one waste record. The call is bound to the
	// configured upload timeout; a deadline hit surfaces as ErrNetwork
	// because the backend may have applied the write anyway.
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)

	// Records fetches raw record rows for a site and waste type. The
	// first row is the header.
	Records(ctx context.Context, site, wasteType, from, to string) ([][]any, error)

	// User administration.
	Users(ctx context.Context) ([]User, error)
	ApproveUser(ctx context.Context, email string) error
	RejectUser(ctx context.Context, email string) error
	UpdateUserRole(ctx context.Context, email, role string) error
	DeleteUser(ctx context.Context, email string) error
}

// Compile-time interface check.
var _ Client = (*client)(nil)

type client struct {
	log     logrus.FieldLogger
	cfg     *config.BackendConfig
	tokens  TokenSource
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new backend client. All calls are throttled by a
// shared client-side limiter sized from the configured per-minute budget.
func NewClient(
	log logrus.FieldLogger,
	cfg *config.BackendConfig,
	tokens TokenSource,
) Client {
	rps := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)

	return &client{
		log:     log.WithField("component", "backend"),
		cfg:     cfg,
		tokens:  tokens,
		httpc:   &http.Client{},
		limiter: rate.NewLimiter(rps, cfg.RequestsPerMinute),
	}
}

// Login exchanges an identity token for a session token.
func (c *client) Login(ctx context.Context, email, idToken string) (*LoginResult, error) {
	params := url.Values{}
	params.Set("action", "login")
	params.Set("email", email)
	params.Set("idToken", idToken)

	var result LoginResult
	if err := c.get(ctx, params, &result, false); err != nil {
		return nil, err
	}

	return &result, nil
}

// ValidateToken asks the backend whether the current token is valid.
func (c *client) ValidateToken(ctx context.Context) (*ValidateResult, error) {
	params := url.Values{}
	params.Set("action", "validateToken")

	var result ValidateResult
	if err := c.get(ctx, params, &result, true); err != nil {
		return nil, err
	}

	return &result, nil
}

// RefreshToken asks the backend to extend the current token.
func (c *client) RefreshToken(ctx context.Context) (*RefreshResult, error) {
	params := url.Values{}
	params.Set("action", "refreshToken")

	var result RefreshResult
	if err := c.get(ctx, params, &result, true); err != nil {
		return nil, err
	}

	return &result, nil
}

// Upload submits one waste record.
func (c *client) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for request budget: %w", err)
	}

	// The token is read at call time so a refresh that completed after
	// the submission started is still honoured.
	if req.Token == "" {
		req.Token = c.tokens.Token()
	}

	if req.Token == "" {
		return nil, ErrNoToken
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding upload request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("creating upload request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(ctx, resp, true); err != nil {
		return nil, err
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding upload response: %v", ErrNetwork, err)
	}

	return &result, nil
}

// Records fetches raw record rows for a site and waste type.
func (c *client) Records(ctx context.Context, site, wasteType, from, to string) ([][]any, error) {
	params := url.Values{}
	params.Set("package", site)
	params.Set("wasteType", wasteType)
	params.Set("from", from)
	params.Set("to", to)

	var rows [][]any
	if err := c.get(ctx, params, &rows, true); err != nil {
		return nil, err
	}

	return rows, nil
}

// Users lists all registered users.
func (c *client) Users(ctx context.Context) ([]User, error) {
	params := url.Values{}
	params.Set("action", "getUsers")

	var users []User
	if err := c.get(ctx, params, &users, true); err != nil {
		return nil, err
	}

	return users, nil
}

// ApproveUser approves a pending user.
func (c *client) ApproveUser(ctx context.Context, email string) error {
	return c.userAction(ctx, "approveUser", email, nil)
}

// RejectUser rejects a pending user.
func (c *client) RejectUser(ctx context.Context, email string) error {
	return c.userAction(ctx, "rejectUser", email, nil)
}

// UpdateUserRole changes a user's role.
func (c *client) UpdateUserRole(ctx context.Context, email, role string) error {
	return c.userAction(ctx, "updateUserRole", email, url.Values{"role": {role}})
}

// DeleteUser removes a user.
func (c *client) DeleteUser(ctx context.Context, email string) error {
	return c.userAction(ctx, "deleteUser", email, nil)
}

// actionResult is the backend's envelope for administrative actions.
type actionResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (r *actionResult) ok() bool {
	return r.Success || r.Status == "success"
}

// userAction performs a per-user administrative action.
func (c *client) userAction(ctx context.Context, action, email string, extra url.Values) error {
	params := url.Values{}
	params.Set("action", action)
	params.Set("email", email)

	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}

	var result actionResult
	if err := c.get(ctx, params, &result, true); err != nil {
		return err
	}

	if !result.ok() {
		if result.Message != "" {
			return fmt.Errorf("%s failed: %s", action, result.Message)
		}

		return fmt.Errorf("%s failed", action)
	}

	return nil
}

// get performs a GET against the endpoint with the token appended as a
// query parameter, and decodes the JSON response into out.
func (c *client) get(ctx context.Context, params url.Values, out any, authed bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for request budget: %w", err)
	}

	if authed {
		token := c.tokens.Token()
		if token == "" {
			return ErrNoToken
		}

		params.Set("token", token)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	reqURL := c.cfg.Endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(ctx, resp, authed); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrNetwork, err)
	}

	return nil
}

// checkStatus maps HTTP status codes onto the error taxonomy. A 401 on an
// authenticated call invalidates the token source before returning, so
// every authoritative rejection flows through the forced-logout path
// exactly once.
func (c *client) checkStatus(ctx context.Context, resp *http.Response, authed bool) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if msg := readMessage(resp.Body); msg != "" && msg != "Unauthorized" {
			c.log.WithField("message", msg).Warn("Backend rejected token")
		}

		if authed {
			c.tokens.Invalidate(ctx)
		}

		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// readMessage extracts an optional {"message": ...} from an error body.
func readMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
	}

	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return ""
	}

	return body.Message
}
