package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrPriceUnavailable signals that no quote exists for the requested symbol.
	ErrPriceUnavailable = errors.New("pricing: price unavailable")
	// ErrPriceStale signals that the stored quote exceeded the freshness window.
	ErrPriceStale = errors.New("pricing: price stale")
	// ErrPriceDeviation signals that a submitted quote moved too far from the
	// previous accepted quote.
	ErrPriceDeviation = errors.New("pricing: price deviation exceeds guard")
	// ErrInvalidQuote signals a malformed quote submission.
	ErrInvalidQuote = errors.New("pricing: invalid quote")
)

// PriceScale is the fixed-point scale for USD quotes: 1e18 per whole USD.
var PriceScale = big.NewInt(1_000_000_000_000_000_000)

const basisPoints = 10_000

// PriceStatus captures the health classification assigned to an oracle quote.
type PriceStatus string

const (
	// PriceStatusOK indicates the quote passed all configured guardrails.
	PriceStatusOK PriceStatus = "ok"
	// PriceStatusStale signals the quote exceeded the configured freshness window.
	PriceStatusStale PriceStatus = "stale"
)

// Quote summarises a stored oracle observation for one symbol.
type Quote struct {
	Symbol    string
	Price     *big.Int
	Provider  string
	UpdatedAt uint64
	Status    PriceStatus
}

// PriceFeed exposes the pricing lookups consumed by the risk engine. A failed
// lookup fails the calling operation closed; modules never fall back to a
// stale or missing price.
type PriceFeed interface {
	// Price resolves the current USD price for symbol at PriceScale precision.
	Price(symbol string) (*big.Int, error)
}

// ManualFeed is an operator-maintained price feed. Quotes are pushed through
// the administrative surface (bare or signed) and guarded for freshness and
// deviation on the way in and out.
type ManualFeed struct {
	mu sync.RWMutex

	quotes map[string]Quote
	// maxQuoteAge bounds quote staleness in seconds. Zero disables the guard.
	maxQuoteAge uint64
	// maxDeviationBps bounds the jump between consecutive quotes. Zero
	// disables the guard.
	maxDeviationBps uint64
	now             func() time.Time
}

// ManualFeedOption customises feed construction.
type ManualFeedOption func(*ManualFeed)

// WithMaxQuoteAge sets the freshness window in seconds.
func WithMaxQuoteAge(seconds uint64) ManualFeedOption {
	return func(f *ManualFeed) { f.maxQuoteAge = seconds }
}

// WithMaxDeviationBps sets the per-update deviation guard.
func WithMaxDeviationBps(bps uint64) ManualFeedOption {
	return func(f *ManualFeed) { f.maxDeviationBps = bps }
}

// WithClock overrides the feed clock. Intended for tests.
func WithClock(now func() time.Time) ManualFeedOption {
	return func(f *ManualFeed) {
		if now != nil {
			f.now = now
		}
	}
}

// NewManualFeed constructs an empty feed.
func NewManualFeed(opts ...ManualFeedOption) *ManualFeed {
	feed := &ManualFeed{
		quotes: make(map[string]Quote),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(feed)
	}
	return feed
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// SetQuote records a new observation for symbol. The price must be positive
// and, when the deviation guard is armed, within the allowed band around the
// previous quote.
func (f *ManualFeed) SetQuote(symbol string, price *big.Int, provider string) error {
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("%w: symbol required", ErrInvalidQuote)
	}
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidQuote)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if previous, ok := f.quotes[normalized]; ok && f.maxDeviationBps > 0 {
		if err := checkDeviation(previous.Price, price, f.maxDeviationBps); err != nil {
			return err
		}
	}
	f.quotes[normalized] = Quote{
		Symbol:    normalized,
		Price:     new(big.Int).Set(price),
		Provider:  strings.TrimSpace(provider),
		UpdatedAt: uint64(f.now().UTC().Unix()),
		Status:    PriceStatusOK,
	}
	return nil
}

func checkDeviation(previous, next *big.Int, maxBps uint64) error {
	if previous == nil || previous.Sign() <= 0 {
		return nil
	}
	diff := new(big.Int).Sub(next, previous)
	diff.Abs(diff)
	// diff * 10000 > previous * maxBps means the jump breached the guard.
	lhs := new(big.Int).Mul(diff, big.NewInt(basisPoints))
	rhs := new(big.Int).Mul(previous, new(big.Int).SetUint64(maxBps))
	if lhs.Cmp(rhs) > 0 {
		return ErrPriceDeviation
	}
	return nil
}

// Price implements PriceFeed. Stale or missing quotes fail closed.
func (f *ManualFeed) Price(symbol string) (*big.Int, error) {
	quote, err := f.QuoteFor(symbol)
	if err != nil {
		return nil, err
	}
	if quote.Status == PriceStatusStale {
		return nil, fmt.Errorf("%w: %s", ErrPriceStale, quote.Symbol)
	}
	return new(big.Int).Set(quote.Price), nil
}

// QuoteFor returns the stored quote for symbol with its freshness
// classification. Missing symbols error.
func (f *ManualFeed) QuoteFor(symbol string) (Quote, error) {
	normalized := normalizeSymbol(symbol)

	f.mu.RLock()
	defer f.mu.RUnlock()

	quote, ok := f.quotes[normalized]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrPriceUnavailable, normalized)
	}
	out := Quote{
		Symbol:    quote.Symbol,
		Price:     new(big.Int).Set(quote.Price),
		Provider:  quote.Provider,
		UpdatedAt: quote.UpdatedAt,
		Status:    PriceStatusOK,
	}
	if f.maxQuoteAge > 0 {
		nowTs := uint64(f.now().UTC().Unix())
		if nowTs > quote.UpdatedAt && nowTs-quote.UpdatedAt > f.maxQuoteAge {
			out.Status = PriceStatusStale
		}
	}
	return out, nil
}

// Symbols returns the quoted symbols in sorted order.
func (f *ManualFeed) Symbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	symbols := make([]string, 0, len(f.quotes))
	for symbol := range f.quotes {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
