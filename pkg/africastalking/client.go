// Package africastalking provides a client for the Africa's Talking bulk SMS
// API.
package africastalking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	// SandboxURL is the sandbox API host.
	SandboxURL = "https://api.sandbox.africastalking.com"
	// ProductionURL is the live API host.
	ProductionURL = "https://api.africastalking.com"

	// MaxRecipients is the largest recipient list accepted per request.
	MaxRecipients = 100
)

// Client defines the Africa's Talking SMS operations.
type Client interface {
	// SendSMS sends one message to up to MaxRecipients numbers.
	SendSMS(ctx context.Context, req SendRequest) (*SendResponse, error)
}

// SendRequest is a single messaging call.
type SendRequest struct {
	To      []string
	Message string
	// From is the registered sender id. Empty uses the account default.
	From string
}

// SendResponse is the parsed messaging response.
type SendResponse struct {
	SMSMessageData SMSMessageData `json:"SMSMessageData"`
}

// SMSMessageData summarizes a send.
type SMSMessageData struct {
	Message    string      `json:"Message"`
	Recipients []Recipient `json:"Recipients"`
}

// Recipient is the delivery status for one number.
type Recipient struct {
	StatusCode int    `json:"statusCode"`
	Number     string `json:"number"`
	Status     string `json:"status"`
	Cost       string `json:"cost"`
	MessageID  string `json:"messageId"`
}

// Accepted reports whether the gateway took the message for delivery.
func (r Recipient) Accepted() bool {
	// 100 Processed, 101 Sent, 102 Queued.
	return r.StatusCode >= 100 && r.StatusCode <= 102
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string

	// Wait is the Retry-After delay the gateway sent, if any.
	Wait time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("africastalking: status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// RetryAfter returns the delay the gateway asked for.
func (e *APIError) RetryAfter() time.Duration { return e.Wait }

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

type httpClient struct {
	username string
	apiKey   string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates an SMS client for the given account. The sandbox account
// name selects the sandbox host unless WithBaseURL overrides it.
func NewClient(username, apiKey string, opts ...Option) Client {
	base := ProductionURL
	if username == "sandbox" {
		base = SandboxURL
	}
	c := &httpClient{
		username: username,
		apiKey:   apiKey,
		baseURL:  base,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL is the API host requests are sent to.
func (c *httpClient) BaseURL() string {
	return c.baseURL
}

func (c *httpClient) SendSMS(ctx context.Context, req SendRequest) (*SendResponse, error) {
	if len(req.To) == 0 {
		return nil, eris.New("africastalking: no recipients")
	}
	if len(req.To) > MaxRecipients {
		return nil, eris.Errorf("africastalking: %d recipients exceeds limit of %d", len(req.To), MaxRecipients)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "africastalking: rate limit wait")
		}
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("to", strings.Join(req.To, ","))
	form.Set("message", req.Message)
	if req.From != "" {
		form.Set("from", req.From)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/version1/messaging", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "africastalking: create request")
	}
	httpReq.Header.Set("apiKey", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "africastalking: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "africastalking: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Wait:       parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	var out SendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "africastalking: decode response")
	}
	return &out, nil
}
