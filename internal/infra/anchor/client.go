// Package anchor talks to the optional external ledger collaborator.
// Anchoring is best-effort enrichment: a registration is complete before
// any anchor exists, and a dead or slow ledger costs nothing but the
// anchor itself.
package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"daon/internal/domain"
)

type Client struct {
	baseURL string
	httpDo  func(*http.Request) (*http.Response, error)
	timeout time.Duration
}

const maxAnchorResponseBytes = 64 * 1024

func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("anchor base url is required")
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpDo:  doer,
		timeout: timeout,
	}, nil
}

type anchorRequest struct {
	ContentHash string `json:"content_hash"`
	License     string `json:"license"`
	Creator     string `json:"creator"`
	CreatedAt   string `json:"created_at"`
}

type anchorResponse struct {
	TxReference string `json:"tx_reference"`
	Height      int64  `json:"height"`
	AnchoredAt  string `json:"anchored_at"`
}

// Anchor submits one record's hash to the ledger and returns the
// transaction reference it got back.
func (c *Client) Anchor(ctx context.Context, record domain.ContentRecord) (domain.LedgerAnchor, error) {
	body, err := json.Marshal(anchorRequest{
		ContentHash: record.ContentHash,
		License:     record.License,
		Creator:     record.Creator,
		CreatedAt:   record.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return domain.LedgerAnchor{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/api/v1/anchors", bytes.NewReader(body))
	if err != nil {
		return domain.LedgerAnchor{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpDo(req)
	if err != nil {
		return domain.LedgerAnchor{}, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAnchorResponseBytes))
	if err != nil {
		return domain.LedgerAnchor{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.LedgerAnchor{}, errors.New("ledger returned " + resp.Status)
	}

	var parsed anchorResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.LedgerAnchor{}, err
	}
	if parsed.TxReference == "" {
		return domain.LedgerAnchor{}, errors.New("ledger response missing tx_reference")
	}
	anchoredAt, err := time.Parse(time.RFC3339, parsed.AnchoredAt)
	if err != nil {
		anchoredAt = time.Now().UTC()
	}
	return domain.LedgerAnchor{
		TxReference: parsed.TxReference,
		Height:      parsed.Height,
		AnchoredAt:  anchoredAt.UTC(),
	}, nil
}
