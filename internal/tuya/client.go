package tuya

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 20 * time.Second

// Credentials identify one cloud project and the single target device.
// Immutable for the lifetime of a client instance.
type Credentials struct {
	BaseURL      string
	AccessID     string
	AccessSecret string
	DeviceID     string
}

// Validate checks that all credential fields are present
func (c Credentials) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base URL is required")
	}
	if c.AccessID == "" || c.AccessSecret == "" {
		return errors.New("access ID and access secret are required")
	}
	if c.DeviceID == "" {
		return errors.New("device ID is required")
	}
	return nil
}

// Client is a minimal Tuya Cloud client for a single valve device: signed v2
// requests, token lifecycle, thing-shadow property issue/query, and a one-shot
// device metadata fetch.
type Client struct {
	creds      Credentials
	signer     *Signer
	httpClient *http.Client
	tokens     *TokenManager
	logger     *slog.Logger
}

// NewClient creates a client. store may be nil to keep the token cache purely
// in memory.
func NewClient(creds Credentials, store TokenStore, logger *slog.Logger) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")

	c := &Client{
		creds:  creds,
		signer: NewSigner(creds.AccessID, creds.AccessSecret),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger.With("component", "tuya-client"),
	}
	c.tokens = NewTokenManager(c, store, logger)
	return c, nil
}

// envelope is the vendor's response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

// request performs one signed HTTP round trip and unwraps the vendor envelope
func (c *Client) request(ctx context.Context, method, pathWithQuery, body, accessToken string) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.creds.BaseURL+pathWithQuery, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.signer.Headers(method, pathWithQuery, body, accessToken) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("%w: non-JSON response (HTTP %d)", ErrMalformedProperty, resp.StatusCode)
	}
	if !env.Success {
		return nil, classifyEnvelope(env.Code, env.Msg)
	}
	return env.Result, nil
}

// authorized performs a token-signed request. When the vendor reports the
// token invalid, the cache is invalidated and the request retried exactly once
// with a freshly fetched token.
func (c *Client) authorized(ctx context.Context, method, pathWithQuery, body string) (json.RawMessage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.request(ctx, method, pathWithQuery, body, token)
	var authErr *AuthError
	if errors.As(err, &authErr) {
		c.logger.Debug("access token rejected, refreshing once", "code", authErr.Code)
		c.tokens.Invalidate()
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		return c.request(ctx, method, pathWithQuery, body, token)
	}
	return result, err
}

// FetchToken requests a new project token. The token endpoint is the one call
// signed without an access token.
func (c *Client) FetchToken(ctx context.Context) (*AccessToken, error) {
	result, err := c.request(ctx, http.MethodGet, "/v1.0/token?grant_type=1", "", "")
	if err != nil {
		return nil, err
	}

	var res struct {
		AccessToken  string `json:"access_token"`
		ExpireTime   int64  `json:"expire_time"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("%w: token response: %v", ErrMalformedProperty, err)
	}
	if res.AccessToken == "" || res.ExpireTime <= 0 {
		return nil, fmt.Errorf("%w: token response missing access_token or expire_time", ErrMalformedProperty)
	}

	return &AccessToken{
		Value:     res.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(res.ExpireTime) * time.Second),
	}, nil
}

// DeviceMetadata is the static device record shown on the operator side
type DeviceMetadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Model       string `json:"model"`
	MAC         string `json:"mac"`
	Serial      string `json:"sn"`
	Category    string `json:"category"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Online      bool   `json:"online"`
}

// DeviceMetadata fetches the device record; consumed once at startup
func (c *Client) DeviceMetadata(ctx context.Context) (*DeviceMetadata, error) {
	result, err := c.authorized(ctx, http.MethodGet, "/v1.0/iot-03/devices/"+c.creds.DeviceID, "")
	if err != nil {
		return nil, err
	}

	var meta DeviceMetadata
	if err := json.Unmarshal(result, &meta); err != nil {
		return nil, fmt.Errorf("%w: device metadata: %v", ErrMalformedProperty, err)
	}
	if meta.ID == "" {
		return nil, fmt.Errorf("%w: device metadata missing id", ErrMalformedProperty)
	}
	return &meta, nil
}

// IssueProperties publishes desired shadow property values to the device. The
// vendor expects the property map string-encoded inside the JSON body.
func (c *Client) IssueProperties(ctx context.Context, props map[string]any) error {
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}
	body, err := json.Marshal(map[string]string{"properties": string(propsJSON)})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	path := fmt.Sprintf("/v2.0/cloud/thing/%s/shadow/properties/issue", c.creds.DeviceID)
	_, err = c.authorized(ctx, http.MethodPost, path, string(body))
	return err
}

// Property is one reported shadow property value
type Property struct {
	Code  string          `json:"code"`
	Value json.RawMessage `json:"value"`
	Time  int64           `json:"time"`
}

// StringValue interprets the property value as a JSON string, the wire shape
// of raw-encoded properties
func (p Property) StringValue() (string, error) {
	var s string
	if err := json.Unmarshal(p.Value, &s); err != nil {
		return "", fmt.Errorf("%w: %s value is not a string: %v", ErrMalformedProperty, p.Code, err)
	}
	return s, nil
}

// QueryProperties reads the current reported values for the given codes. With
// no codes, all reported properties are returned.
func (c *Client) QueryProperties(ctx context.Context, codes ...string) ([]Property, error) {
	path := fmt.Sprintf("/v2.0/cloud/thing/%s/shadow/properties", c.creds.DeviceID)
	if len(codes) > 0 {
		path += "?codes=" + strings.Join(codes, ",")
	}

	result, err := c.authorized(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}

	var res struct {
		Properties []Property `json:"properties"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("%w: properties response: %v", ErrMalformedProperty, err)
	}
	return res.Properties, nil
}

// Validate performs a lightweight credential and device check: fetch a token,
// then read the device's reported properties
func (c *Client) Validate(ctx context.Context) error {
	if _, err := c.tokens.Token(ctx); err != nil {
		return err
	}
	if _, err := c.QueryProperties(ctx); err != nil {
		return err
	}
	return nil
}
