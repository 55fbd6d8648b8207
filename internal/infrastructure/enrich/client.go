// Package enrich posts synced snapshots to the secondary enrichment
// endpoint, which re-resolves location server-side. Strictly fire-and-forget:
// the response body is discarded and failures never reach the caller.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"moneyhistory/internal/domain/sync"
	"moneyhistory/internal/shared/config"
)

type Client struct {
	cfg    config.EnrichConfig
	client *http.Client
}

func NewClient(cfg config.EnrichConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Send posts the snapshot. Errors are logged, not returned.
func (c *Client) Send(ctx context.Context, snap *sync.Snapshot) {
	if c.cfg.URL == "" {
		return
	}

	body, err := json.Marshal(snap)
	if err != nil {
		log.Printf("Enrichment payload marshal failed: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		log.Printf("Enrichment request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("Enrichment request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		log.Printf("Enrichment endpoint returned status %d", resp.StatusCode)
	}
}
