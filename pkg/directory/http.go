package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/dmitrymomot/subsync/pkg/retry"
)

// Config holds the settings for the directory HTTP client. The management
// API is protected by OAuth2 client credentials.
type Config struct {
	BaseURL      string        `env:"DIRECTORY_BASE_URL,required"`
	TokenURL     string        `env:"DIRECTORY_TOKEN_URL,required"`
	ClientID     string        `env:"DIRECTORY_CLIENT_ID,required"`
	ClientSecret string        `env:"DIRECTORY_CLIENT_SECRET,required"`
	Audience     string        `env:"DIRECTORY_AUDIENCE"`
	Timeout      time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"10s"`
	MaxAttempts  int           `env:"DIRECTORY_MAX_ATTEMPTS" envDefault:"3"`
}

// HTTPClient talks to the directory management API. All calls go through
// the retry policy: transient failures (connection errors, 429, 5xx) are
// retried with backoff, authorization and other 4xx failures propagate
// immediately.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	// Plain client for calls carrying the end user's own bearer token; the
	// client-credentials transport would overwrite the Authorization header
	// with the service's token.
	userClient *http.Client
	policy     retry.Policy
}

// statusError carries the HTTP status of a failed directory call so the
// retry classifier can tell transient failures from permanent ones.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("directory responded %d: %s", e.status, e.body)
}

func (e *statusError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

// NewHTTPClient builds a directory client authenticated via the OAuth2
// client-credentials grant.
func NewHTTPClient(ctx context.Context, cfg Config) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("directory base URL is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("directory client credentials are required")
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	if cfg.Audience != "" {
		cc.EndpointParams = url.Values{"audience": {cfg.Audience}}
	}

	client := cc.Client(ctx)
	client.Timeout = cfg.Timeout

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		client:     client,
		userClient: &http.Client{Timeout: cfg.Timeout},
		policy: retry.Policy{
			MaxAttempts: maxAttempts,
			Backoff:     retry.Exponential{JitterFactor: 0.2},
			IsRetryable: func(err error) bool {
				var se *statusError
				if errors.As(err, &se) {
					return se.retryable()
				}
				// Connection-level failures have no status; retry them.
				return true
			},
		},
	}, nil
}

func (c *HTTPClient) GetUser(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrInvalidUserID
	}

	var user User
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &user)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (c *HTTPClient) GetUsersByEmail(ctx context.Context, email string) ([]User, error) {
	q := url.Values{"email": {email}}
	var users []User
	if err := c.do(ctx, http.MethodGet, "/users-by-email?"+q.Encode(), nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *HTTPClient) CreateUser(ctx context.Context, email string) (User, error) {
	body := map[string]any{
		"email":        email,
		"app_metadata": map[string]any{},
	}

	var user User
	if err := c.do(ctx, http.MethodPost, "/users", body, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (c *HTTPClient) UpdateMetadata(ctx context.Context, id string, patch Patch) error {
	if id == "" {
		return ErrInvalidUserID
	}
	body := map[string]any{"app_metadata": patch}
	return c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(id), body, nil)
}

func (c *HTTPClient) SearchMembersByOwner(ctx context.Context, ownerID string) ([]User, error) {
	q := url.Values{"q": {fmt.Sprintf("app_metadata.%s:%q", KeyOwnerID, ownerID)}}
	var users []User
	if err := c.do(ctx, http.MethodGet, "/users?"+q.Encode(), nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ResolveToken asks the directory's userinfo endpoint who the bearer token
// belongs to. The call is made with the end user's token, not the service's
// client credentials, and is not retried: a rejected token stays rejected.
func (c *HTTPClient) ResolveToken(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/userinfo", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.userClient.Do(req)
	if err != nil {
		return "", errors.Join(ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrUnauthorized
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.Join(ErrUpstream, &statusError{status: resp.StatusCode, body: string(raw)})
	}

	var info struct {
		UserID string `json:"user_id"`
		Sub    string `json:"sub"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", errors.Join(ErrUpstream, fmt.Errorf("decode userinfo: %w", err))
	}

	if info.UserID != "" {
		return info.UserID, nil
	}
	if info.Sub != "" {
		return info.Sub, nil
	}
	return "", ErrUnauthorized
}

// do performs one API call under the retry policy and decodes the response
// into out when it is non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode directory request: %w", err)
		}
	}

	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &statusError{status: resp.StatusCode, body: string(raw)}
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode directory response: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return c.classify(err)
	}
	return nil
}

// classify maps transport results onto the package's sentinel errors while
// keeping the original error available for logging.
func (c *HTTPClient) classify(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.status == http.StatusNotFound:
			return errors.Join(ErrUserNotFound, err)
		case se.status == http.StatusConflict:
			return errors.Join(ErrEmailTaken, err)
		case se.status == http.StatusUnauthorized || se.status == http.StatusForbidden:
			return errors.Join(ErrUnauthorized, err)
		}
	}
	return errors.Join(ErrUpstream, err)
}
