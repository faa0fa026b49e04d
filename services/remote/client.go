// Package remote is the thin gateway to the per-user remote document
// collection. Authentication is a single shared app-level key sent as the
// x-apikey header. Transport failures and non-success statuses are fatal to
// the calling operation; the gateway never retries and never queues.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"popcorntracker/models"
)

var (
	ErrBaseURLRequired = errors.New("remote base url is required")
	ErrAPIKeyRequired  = errors.New("remote api key is required")
	ErrRecordNotFound  = errors.New("remote record not found")
)

// Client talks to a restdb-style document collection.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewClient creates a gateway for the given collection URL and shared key.
func NewClient(baseURL, apiKey string, httpc *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrAPIKeyRequired
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, apiKey: strings.TrimSpace(apiKey), httpc: httpc}, nil
}

// recordPayload is the writable portion of a remote record.
type recordPayload struct {
	Document  models.Document `json:"document"`
	UserID    string          `json:"userId"`
	UserEmail string          `json:"userEmail,omitempty"`
}

// FetchByUser returns the records stored for a user. By convention zero or
// one record exists; callers treat index 0 as canonical.
func (c *Client) FetchByUser(ctx context.Context, userID string) ([]models.RemoteRecord, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf(`{"userId":%q}`, userID))

	var records []models.RemoteRecord
	if err := c.do(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// FetchRecord returns a single record by id. Used by the read-only shared
// view; never followed by a write.
func (c *Client) FetchRecord(ctx context.Context, recordID string) (models.RemoteRecord, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return models.RemoteRecord{}, ErrRecordNotFound
	}

	var record models.RemoteRecord
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(recordID), nil, &record); err != nil {
		return models.RemoteRecord{}, err
	}
	return record, nil
}

// Create inserts a new record for the user. Used only when no record exists
// yet for the given identity.
func (c *Client) Create(ctx context.Context, doc models.Document, userID, userEmail string) (models.RemoteRecord, error) {
	payload := recordPayload{Document: doc, UserID: userID, UserEmail: userEmail}

	var record models.RemoteRecord
	if err := c.do(ctx, http.MethodPost, c.baseURL, payload, &record); err != nil {
		return models.RemoteRecord{}, err
	}
	return record, nil
}

// Patch updates an existing record in place.
func (c *Client) Patch(ctx context.Context, recordID string, doc models.Document, userID, userEmail string) (models.RemoteRecord, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return models.RemoteRecord{}, ErrRecordNotFound
	}
	payload := recordPayload{Document: doc, UserID: userID, UserEmail: userEmail}

	var record models.RemoteRecord
	if err := c.do(ctx, http.MethodPatch, c.baseURL+"/"+url.PathEscape(recordID), payload, &record); err != nil {
		return models.RemoteRecord{}, err
	}
	return record, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, v any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("x-apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("remote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrRecordNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote request failed: %s", resp.Status)
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode remote response: %w", err)
	}
	return nil
}
