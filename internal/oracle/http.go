package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/solguard/riskengine/internal/schema"
)

// HTTPOracle is a thin adapter over a DexScreener-shaped pair API. Any
// vendor speaking the same response shape (price/mcap/liquidity/volume
// plus a holders endpoint) can sit behind this same struct; no vendor
// SDK is imported directly.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOracle builds an oracle pointed at baseURL (e.g.
// "https://api.dexscreener.com").
func NewHTTPOracle(baseURL string) *HTTPOracle {
	return &HTTPOracle{baseURL: baseURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (h *HTTPOracle) Overview(ctx context.Context, mint string) (Overview, error) {
	var resp struct {
		PriceUsd   string  `json:"priceUsd"`
		Fdv        float64 `json:"fdv"`
		Volume24h  float64 `json:"volume24h"`
		Liquidity  struct {
			Usd float64 `json:"usd"`
		} `json:"liquidity"`
	}
	if err := h.getJSON(ctx, fmt.Sprintf("%s/latest/dex/tokens/%s", h.baseURL, mint), &resp); err != nil {
		return Overview{}, err
	}
	var price float64
	fmt.Sscanf(resp.PriceUsd, "%f", &price)
	return Overview{
		Price:     price,
		MarketCap: resp.Fdv,
		Liquidity: resp.Liquidity.Usd,
		Volume24h: resp.Volume24h,
	}, nil
}

func (h *HTTPOracle) PriceHistory(ctx context.Context, mint string, days int) ([]PricePoint, error) {
	var resp struct {
		Points []struct {
			T int64   `json:"t"`
			V float64 `json:"v"`
		} `json:"points"`
	}
	url := fmt.Sprintf("%s/latest/dex/tokens/%s/history?days=%d", h.baseURL, mint, days)
	if err := h.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	out := make([]PricePoint, 0, len(resp.Points))
	for _, p := range resp.Points {
		out = append(out, PricePoint{T: p.T, V: p.V})
	}
	return out, nil
}

func (h *HTTPOracle) TopHolders(ctx context.Context, mint string) ([]schema.Holder, error) {
	var resp struct {
		Holders []struct {
			Address    string  `json:"address"`
			Balance    float64 `json:"balance"`
			Percentage float64 `json:"percentage"`
		} `json:"holders"`
	}
	url := fmt.Sprintf("%s/latest/dex/tokens/%s/holders", h.baseURL, mint)
	if err := h.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	out := make([]schema.Holder, 0, len(resp.Holders))
	for i, hd := range resp.Holders {
		out = append(out, schema.Holder{
			Address:    hd.Address,
			Balance:    hd.Balance,
			Percentage: hd.Percentage,
			Rank:       i + 1,
		})
	}
	return out, nil
}

func (h *HTTPOracle) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("oracle http %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
