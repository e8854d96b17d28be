package upstox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/Kvijay199428/VEGA-sub001/pkg/config"
	"github.com/Kvijay199428/VEGA-sub001/pkg/httputil"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// Client handles communication with the Upstox v2 REST API
// ⭐ SSOT: Upstox API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string

	// Token management (login flow lives outside this module)
	accessToken string
	tokenMu     sync.RWMutex
}

// NewClient creates a new Upstox API client
func NewClient(cfg config.BrokerConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient:  httpClient,
		logger:      log.WithComponent("upstox"),
		baseURL:     strings.TrimRight(cfg.UpstoxBaseURL, "/"),
		accessToken: cfg.UpstoxToken,
	}
}

// SetAccessToken rotates the bearer token
func (c *Client) SetAccessToken(token string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.accessToken = token
}

func (c *Client) token() (string, error) {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	if c.accessToken == "" {
		return "", errors.New("upstox access token not configured")
	}
	return c.accessToken, nil
}

// request makes an authenticated request and decodes data into out.
// A response with status "error" is returned as *APIError.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	env, raw, err := c.exchange(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	if env.Status != "" && env.Status != "success" && env.Status != "partial_success" {
		return toAPIError(http.StatusOK, env.Errors)
	}

	if out == nil {
		return nil
	}

	var data struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(data.Data) == 0 || string(data.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// exchange performs the call and returns the envelope plus the raw body
func (c *Client) exchange(ctx context.Context, method, path string, query url.Values, body interface{}) (*envelope, []byte, error) {
	token, err := c.token()
	if err != nil {
		return nil, nil, err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := httputil.NewJSONRequest(ctx, method, target, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return nil, nil, fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= 300 {
		apiErr := toAPIError(resp.StatusCode, env.Errors)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, nil, apiErr
	}

	return &env, raw, nil
}

func toAPIError(status int, errs []apiError) *APIError {
	apiErr := &APIError{HTTPStatus: status}
	if len(errs) > 0 {
		apiErr.Code = errs[0].ErrorCode
		apiErr.Message = errs[0].Message
	}
	return apiErr
}

// GetProfile returns the user profile; used as an availability probe
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := c.request(ctx, http.MethodGet, "/user/profile", nil, nil, &profile); err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}
	return &profile, nil
}
