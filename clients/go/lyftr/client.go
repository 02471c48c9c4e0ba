// Package lyftr provides a client for the lyftr webhook ingestion service.
package lyftr

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// TimestampLayout is the canonical message timestamp format.
const TimestampLayout = "2006-01-02T15:04:05Z"

// ErrNoSecret is returned when sending a webhook without a secret.
var ErrNoSecret = errors.New("webhook secret not set")

// Client is a lyftr API client.
type Client struct {
	BaseURL    string
	Secret     string
	HTTPClient *http.Client
}

// NewClient creates a new lyftr client. secret is only needed for SendMessage.
func NewClient(baseURL, secret string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	return &Client{
		BaseURL:    baseURL,
		Secret:     secret,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("lyftr error %d: %s %v", e.StatusCode, e.Message, e.Fields)
	}
	return fmt.Sprintf("lyftr error %d: %s", e.StatusCode, e.Message)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// doRequest performs an HTTP request. A non-empty signature is sent as X-Signature.
func (c *Client) doRequest(method, path string, body []byte, signature string) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		json.Unmarshal(respBody, &errResp)
		return respBody, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Fields: errResp.Fields}
	}

	return respBody, nil
}

// Message is an inbound message as the service stores and returns it.
type Message struct {
	MessageID string  `json:"message_id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	TS        string  `json:"ts"`
	Text      *string `json:"text"`
}

// SendMessage posts a signed webhook delivery. Re-sending the same message_id
// succeeds without creating a second record.
func (c *Client) SendMessage(msg Message) error {
	if c.Secret == "" {
		return ErrNoSecret
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	_, err = c.doRequest(http.MethodPost, "/webhook", body, Sign(c.Secret, body))
	return err
}

// ListOptions selects a page of messages. Zero values are omitted.
type ListOptions struct {
	Limit  int
	Offset int
	From   string
	Since  string
	Query  string
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		v.Set("offset", strconv.Itoa(o.Offset))
	}
	if o.From != "" {
		v.Set("from", o.From)
	}
	if o.Since != "" {
		v.Set("since", o.Since)
	}
	if o.Query != "" {
		v.Set("q", o.Query)
	}
	return v
}

// MessagesResponse is one page of messages.
type MessagesResponse struct {
	Data   []Message `json:"data"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

// ListMessages retrieves a page of messages ordered by ts then message_id.
func (c *Client) ListMessages(opts ListOptions) (*MessagesResponse, error) {
	path := "/messages"
	if q := opts.values().Encode(); q != "" {
		path += "?" + q
	}

	respBody, err := c.doRequest(http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SenderCount is one entry of the top senders list.
type SenderCount struct {
	From  string `json:"from"`
	Count int64  `json:"count"`
}

// Stats is the aggregate summary of stored messages.
type Stats struct {
	TotalMessages  int64         `json:"total_messages"`
	UniqueSenders  int64         `json:"unique_senders"`
	TopSenders     []SenderCount `json:"top_senders"`
	FirstMessageTS *string       `json:"first_message_ts"`
	LastMessageTS  *string       `json:"last_message_ts"`
}

// Stats retrieves the message summary.
func (c *Client) Stats() (*Stats, error) {
	respBody, err := c.doRequest(http.MethodGet, "/stats", nil, "")
	if err != nil {
		return nil, err
	}

	var resp Stats
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready reports whether the service accepts webhooks.
func (c *Client) Ready() (bool, error) {
	_, err := c.doRequest(http.MethodGet, "/health/ready", nil, "")
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Check is the status of one health check.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health checks server health. A degraded service still returns its checks.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest(http.MethodGet, "/health", nil, "")
	var apiErr *APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable) {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
