// Package promo implements the three remote operations of the rewards API.
// Calls are single request/response exchanges; retry policy belongs to the caller.
package promo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"promokeys/internal/core"
	"promokeys/internal/ratelimit"
)

const (
	LoginPath         = "/promo/login-client"
	RegisterEventPath = "/promo/register-event"
	CreateCodePath    = "/promo/create-code"

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 1 << 20

	errCodeUnauthorized       = "unauthorized"
	errCodeUnauthorizedClient = "UnauthorizedClient"
	errCodeTooManyRegister    = "tooManyRegister"
)

// Client talks to the promo service. The zero value is not usable; set BaseURL and HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Limiter *ratelimit.RateLimiter // shared by all workers, may be nil
	Debug   *DebugLogger           // may be nil
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type loginRequest struct {
	AppToken     string `json:"appToken"`
	ClientID     string `json:"clientId"`
	ClientOrigin string `json:"clientOrigin"`
}

type registerEventRequest struct {
	PromoID     string `json:"promoId"`
	EventID     string `json:"eventId"`
	EventOrigin string `json:"eventOrigin"`
}

type createCodeRequest struct {
	PromoID string `json:"promoId"`
}

// Login exchanges an app token for a client token. Every failure wraps ErrAuth.
func (c *Client) Login(ctx context.Context, appToken string) (string, error) {
	status, body, err := c.post(ctx, "login", LoginPath, "", loginRequest{
		AppToken:     appToken,
		ClientID:     NewClientID(),
		ClientOrigin: "deviceid",
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if status >= http.StatusBadRequest {
		return "", fmt.Errorf("%w: status %d: %s", ErrAuth, status, errorCode(body))
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: invalid JSON in response body", ErrAuth)
	}

	token := gjson.GetBytes(body, "clientToken")
	if !token.Exists() || token.String() == "" {
		return "", fmt.Errorf("%w: clientToken missing from response", ErrAuth)
	}
	return token.String(), nil
}

// RegisterEvent declares one play event. Well-formed error bodies are
// interpreted into a Result; only network failures and unparseable bodies
// return ErrTransport.
func (c *Client) RegisterEvent(ctx context.Context, clientToken, promoID string) (Result, error) {
	status, body, err := c.post(ctx, "register_event", RegisterEventPath, clientToken, registerEventRequest{
		PromoID:     promoID,
		EventID:     NewEventID(),
		EventOrigin: "undefined",
	})
	if err != nil {
		return UnknownError, err
	}
	if !gjson.ValidBytes(body) {
		return UnknownError, fmt.Errorf("%w: invalid JSON in response body (status %d)", ErrTransport, status)
	}
	return classify(body), nil
}

// CreateCode redeems eligibility for a code. An empty string means the server
// withheld the code.
func (c *Client) CreateCode(ctx context.Context, clientToken, promoID string) (string, error) {
	status, body, err := c.post(ctx, "create_code", CreateCodePath, clientToken, createCodeRequest{
		PromoID: promoID,
	})
	if err != nil {
		return "", err
	}
	if status >= http.StatusBadRequest {
		return "", fmt.Errorf("%w: status %d: %s", ErrTransport, status, errorCode(body))
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: invalid JSON in response body", ErrTransport)
	}

	code := gjson.GetBytes(body, "promoCode")
	if code.Type != gjson.String {
		return "", nil
	}
	return code.String(), nil
}

func classify(body []byte) Result {
	if ec := gjson.GetBytes(body, "error_code"); ec.Exists() && ec.String() != "" {
		switch {
		case strings.EqualFold(ec.String(), errCodeUnauthorized),
			strings.EqualFold(ec.String(), errCodeUnauthorizedClient):
			return Unauthorized
		case strings.EqualFold(ec.String(), errCodeTooManyRegister):
			return RateLimited
		default:
			return UnknownError
		}
	}

	switch gjson.GetBytes(body, "hasCode").Type {
	case gjson.True:
		return Granted
	case gjson.False:
		return Pending
	}
	return UnknownError
}

func errorCode(body []byte) string {
	if !gjson.ValidBytes(body) {
		return "non-JSON body"
	}
	if ec := gjson.GetBytes(body, "error_code"); ec.Exists() {
		return ec.String()
	}
	return "no error_code"
}

// post sends a JSON body and returns the status code and the (bounded) response body.
// Failures before a response is read wrap ErrTransport.
func (c *Client) post(ctx context.Context, step, path, bearer string, payload any) (int, []byte, error) {
	worker := core.WorkerFromContext(ctx)

	if err := c.Limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: encoding request: %w", ErrTransport, err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		c.Debug.LogError(worker, step, err.Error(), time.Since(start))
		return 0, nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	c.Debug.LogRequest(worker, step, req, reqBody)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Debug.LogError(worker, step, err.Error(), time.Since(start))
		return 0, nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_, _ = io.Copy(io.Discard, resp.Body) // drain errors are ignorable
	duration := time.Since(start)
	if err != nil {
		c.Debug.LogError(worker, step, err.Error(), duration)
		return resp.StatusCode, nil, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	c.Debug.LogResponse(worker, step, resp, body, duration)
	return resp.StatusCode, body, nil
}
