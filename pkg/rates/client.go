package rates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://api.shipquote.dev/v1"
	errorBodyReadLimit   int64 = 1024
	defaultClientTimeout       = 10 * time.Second
)

var errAPIKeyRequired = errors.New("carrier api key is required")

// Quote is a single external carrier rate for a destination.
type Quote struct {
	ServiceID  string `json:"service_id"`
	Courier    string `json:"courier"`
	PriceCents int64  `json:"price_cents"`
	ETADays    int    `json:"eta_days"`
}

// Client wraps the external shipping rate quoting API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured rates base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the carrier rates client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

type quoteRequest struct {
	PostalCode  string `json:"postal_code"`
	WeightGrams int    `json:"weight_grams"`
}

type quoteResponse struct {
	Rates []Quote `json:"rates"`
}

// GetRates fetches carrier quotes for the destination postal code and the
// estimated shipment weight. An empty slice is a valid answer: the caller is
// expected to fall back to native options.
func (c *Client) GetRates(ctx context.Context, postalCode string, weightGrams int) ([]Quote, error) {
	if strings.TrimSpace(postalCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "postal code is required")
	}

	body, err := json.Marshal(quoteRequest{PostalCode: postalCode, WeightGrams: weightGrams})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode rate request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rates", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build rate request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "carrier rate request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("carrier rate request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var decoded quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode rate response")
	}
	return decoded.Rates, nil
}
