// Package exchange implements the O(1) exchange-address whitelist and
// opportunistic auto-detection promotion. The set is write-once-mostly:
// reads are lock-free via an atomic pointer swap, extensions use
// copy-on-write publication.
package exchange

import (
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// exchangeKeywords matches labels returned by enriched RPC providers
// against known exchange brands.
var exchangeKeywords = regexp.MustCompile(`(?i)binance|okx|bybit|kucoin|gate|htx|coinbase|kraken|bitget|mexc|cex`)

// Detection records one auto-promoted address.
type Detection struct {
	Address    string
	Label      string
	DetectedAt time.Time
	Source     string
}

// Whitelist is an O(1)-membership, extend-only set of exchange/AMM/
// routing addresses, augmented at runtime by auto-detection.
type Whitelist struct {
	set        atomic.Pointer[map[string]struct{}]
	detections atomic.Pointer[[]Detection]
}

// New builds a Whitelist seeded with the static configured addresses.
func New(staticAddresses []string) *Whitelist {
	w := &Whitelist{}
	m := make(map[string]struct{}, len(staticAddresses))
	for _, a := range staticAddresses {
		m[a] = struct{}{}
	}
	w.set.Store(&m)
	empty := []Detection{}
	w.detections.Store(&empty)
	return w
}

// IsExchange reports O(1) membership against the current published set.
func (w *Whitelist) IsExchange(address string) bool {
	m := w.set.Load()
	if m == nil {
		return false
	}
	_, ok := (*m)[address]
	return ok
}

// Promote appends address to the set via copy-and-publish, recording the
// detection. Safe for concurrent callers; lost updates under a race are
// resolved with a compare-and-swap retry loop since extension is rare.
func (w *Whitelist) Promote(address, label, source string) {
	for {
		old := w.set.Load()
		if _, exists := (*old)[address]; exists {
			return
		}
		next := make(map[string]struct{}, len(*old)+1)
		for a := range *old {
			next[a] = struct{}{}
		}
		next[address] = struct{}{}
		if w.set.CompareAndSwap(old, &next) {
			break
		}
	}

	for {
		old := w.detections.Load()
		next := make([]Detection, len(*old), len(*old)+1)
		copy(next, *old)
		next = append(next, Detection{Address: address, Label: label, DetectedAt: time.Now(), Source: source})
		if w.detections.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Detections returns a snapshot of all auto-promoted addresses.
func (w *Whitelist) Detections() []Detection {
	p := w.detections.Load()
	out := make([]Detection, len(*p))
	copy(out, *p)
	return out
}

// TryAutoDetect inspects a labelled account response (as surfaced by an
// enriched RPC provider) and promotes the address if the label matches
// a known exchange keyword. Returns true if promoted.
func TryAutoDetect(w *Whitelist, address, label, source string) bool {
	if label == "" || !exchangeKeywords.MatchString(label) {
		return false
	}
	w.Promote(address, strings.TrimSpace(label), source)
	return true
}
