// Package rates keeps the cached market rates fresh. A provider client
// fetches the current quotes over HTTP and a refresher writes them into the
// exchange_rates table on a schedule, so listing-time rate checks always
// compare against a recent market value.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/qsmarket/market-bot/internal/apperr"
)

const fetchTimeout = 15 * time.Second

// Client fetches current market rates from the provider.
type Client struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewClient builds a provider client. httpClient may be nil.
func NewClient(url string, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetchTimeout}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{url: url, client: httpClient, log: log}
}

// Fetch returns the provider's current quotes as currency -> rate.
func (c *Client) Fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.External("rates provider", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.External("rates provider", fmt.Errorf("status %d", resp.StatusCode))
	}

	var quotes map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, apperr.External("rates provider", err)
	}
	return quotes, nil
}

// Source yields the current quotes.
type Source interface {
	Fetch(ctx context.Context) (map[string]float64, error)
}

// Store persists one reference rate.
type Store interface {
	UpsertReferenceRate(ctx context.Context, currency string, rate float64) error
}

// Refresher periodically copies provider quotes into the rate store.
type Refresher struct {
	source   Source
	store    Store
	log      *slog.Logger
	interval time.Duration
}

// NewRefresher constructs a Refresher instance.
func NewRefresher(source Source, store Store, log *slog.Logger, interval time.Duration) *Refresher {
	if log == nil {
		log = slog.Default()
	}

	return &Refresher{source: source, store: store, log: log, interval: interval}
}

// Run refreshes once immediately, then on every tick until the context is
// cancelled. Provider failures leave the previously stored rates in place.
func (r *Refresher) Run(ctx context.Context) {
	if r == nil || r.source == nil || r.store == nil {
		return
	}

	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("rate refresher stopped")
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	quotes, err := r.source.Fetch(ctx)
	if err != nil {
		r.log.Error("rate fetch failed", slog.Any("error", err))
		return
	}

	stored := 0
	for currency, rate := range quotes {
		if currency == "" || rate <= 0 {
			continue
		}
		if err := r.store.UpsertReferenceRate(ctx, currency, rate); err != nil {
			r.log.Error("rate upsert failed",
				slog.String("currency", currency), slog.Any("error", err))
			continue
		}
		stored++
	}

	r.log.Info("market rates refreshed", slog.Int("stored", stored))
}
