package txrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the TxRelay REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu        sync.RWMutex
	authToken string
}

// Submission represents the payload required to create a new transaction
// submission. Value and GasPrice are decimal wei strings; Data is hex encoded.
type Submission struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
	Chain    string `json:"chain,omitempty"`
	To       string `json:"to,omitempty"`
	Value    string `json:"value,omitempty"`
	Data     string `json:"data,omitempty"`
	GasLimit uint64 `json:"gas_limit,omitempty"`
	GasPrice string `json:"gas_price,omitempty"`
}

// Receipt contains the flattened receipt of a confirmed transaction.
type Receipt struct {
	BlockNumber     uint64 `json:"block_number"`
	TxIndex         uint   `json:"tx_index"`
	GasUsed         uint64 `json:"gas_used"`
	Status          uint64 `json:"status"`
	ContractAddress string `json:"contract_address,omitempty"`
}

// Transaction contains the lifecycle view of a submission.
type Transaction struct {
	Submission
	Loading     bool     `json:"loading"`
	Status      string   `json:"status,omitempty"`
	GasEstimate uint64   `json:"gas_estimate,omitempty"`
	TxHash      string   `json:"tx_hash,omitempty"`
	TxHashes    []string `json:"tx_hashes,omitempty"`
	Receipt     *Receipt `json:"receipt,omitempty"`
	RawTx       string   `json:"raw_tx,omitempty"`
	LastError   string   `json:"last_error,omitempty"`
	ErrorCode   string   `json:"error_code,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
}

// Stats aggregates submission counts by status.
type Stats struct {
	Total           int   `json:"total"`
	Building        int   `json:"building"`
	Submitted       int   `json:"submitted"`
	Confirmed       int   `json:"confirmed"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// Chain describes a configured chain endpoint.
type Chain struct {
	Name        string `json:"Name"`
	ChainID     string `json:"ChainID"`
	BlockNumber string `json:"BlockNumber"`
	Notes       string `json:"Notes"`
}

// ListQuery narrows the transaction listing.
type ListQuery struct {
	Limit    int
	Offset   int
	Statuses []string
	Kind     string
	Chain    string
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("txrelay api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("txrelay api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the TxRelay API. When httpClient is nil,
// a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// SetAuthToken stores the static bearer token attached to subsequent calls.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the currently stored token string.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// SubmitTransaction creates a new transaction submission.
func (c *Client) SubmitTransaction(ctx context.Context, submission Submission) (Transaction, error) {
	var result Transaction
	if err := c.post(ctx, "/api/v1/transactions", submission, &result); err != nil {
		return Transaction{}, err
	}
	return result, nil
}

// GetTransaction fetches the lifecycle view of a submission by identifier.
func (c *Client) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	var result Transaction
	endpoint := "/api/v1/transactions/" + url.PathEscape(id)
	if err := c.get(ctx, endpoint, &result); err != nil {
		return Transaction{}, err
	}
	return result, nil
}

// WaitTransaction blocks server side until the submission reaches a terminal
// status or the provided timeout elapses; in the latter case the current state
// is returned.
func (c *Client) WaitTransaction(ctx context.Context, id string, timeout time.Duration) (Transaction, error) {
	var result Transaction
	endpoint := fmt.Sprintf("/api/v1/transactions/%s?wait=%s", url.PathEscape(id), url.QueryEscape(timeout.String()))
	if err := c.get(ctx, endpoint, &result); err != nil {
		return Transaction{}, err
	}
	return result, nil
}

// ListTransactions returns submissions matching the query.
func (c *Client) ListTransactions(ctx context.Context, query ListQuery) ([]Transaction, error) {
	values := url.Values{}
	if query.Limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", query.Limit))
	}
	if query.Offset > 0 {
		values.Set("offset", fmt.Sprintf("%d", query.Offset))
	}
	if len(query.Statuses) > 0 {
		values.Set("status", strings.Join(query.Statuses, ","))
	}
	if query.Kind != "" {
		values.Set("kind", query.Kind)
	}
	if query.Chain != "" {
		values.Set("chain", query.Chain)
	}
	endpoint := "/api/v1/transactions"
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var results []Transaction
	if err := c.get(ctx, endpoint, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// GetStats returns aggregated submission counts.
func (c *Client) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/api/v1/stats", &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// ListChains returns the configured chain snapshots.
func (c *Client) ListChains(ctx context.Context) ([]Chain, error) {
	var chains []Chain
	if err := c.get(ctx, "/api/v1/chains", &chains); err != nil {
		return nil, err
	}
	return chains, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parts := strings.SplitN(endpoint, "?", 2)
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parts[0])}
	if len(parts) == 2 {
		rel.RawQuery = parts[1]
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AuthToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
