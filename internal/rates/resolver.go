/**
 * @description
 * This file contains the exchange-rate resolution engine. The resolver prices
 * a currency pair through an ordered degrade path: live primary provider
 * (pivoted through USD), live backup provider, static fallback table, and an
 * unconditional default. Live quotes are cached with stale-while-revalidate
 * semantics so hot pairs are served without waiting on provider I/O.
 *
 * @dependencies
 * - context, log, strings, time: Standard Go libraries.
 * - internal/domain, internal/ratecache: Quote types and the TTL cache.
 * - pkg/fxclient: Concrete provider clients (injected via interfaces here).
 */

package rates

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sarafnet/hawala-service/internal/domain"
	"github.com/sarafnet/hawala-service/internal/ratecache"
)

// PivotCurrency is the currency every primary-provider quote is expressed
// against.
const PivotCurrency = "USD"

// ErrLiveTiersFailed reports that neither live provider produced a usable
// quote. It never escapes Resolve; the static table and default tier absorb it.
var ErrLiveTiersFailed = errors.New("all live rate providers failed")

// PrimaryProvider quotes a currency relative to USD.
type PrimaryProvider interface {
	USDRate(ctx context.Context, currency string) (float64, error)
}

// BackupProvider quotes an arbitrary currency pair directly.
type BackupProvider interface {
	PairRate(ctx context.Context, from, to string) (float64, error)
}

// Resolver prices currency pairs with tiered fallback.
type Resolver struct {
	primary     PrimaryProvider
	backup      BackupProvider
	cache       *ratecache.Cache
	static      StaticTable
	quoteTTL    time.Duration
	callTimeout time.Duration
}

// NewResolver creates a resolver. The cache instance is shared, injected
// state; the resolver never constructs its own.
func NewResolver(primary PrimaryProvider, backup BackupProvider, cache *ratecache.Cache, static StaticTable, quoteTTL, callTimeout time.Duration) *Resolver {
	if static == nil {
		static = DefaultStaticTable()
	}
	return &Resolver{
		primary:     primary,
		backup:      backup,
		cache:       cache,
		static:      static,
		quoteTTL:    quoteTTL,
		callTimeout: callTimeout,
	}
}

// CacheKey returns the cache key for a currency pair. Exposed so the admin
// invalidation endpoint and the cron warmer address the same keyspace.
func CacheKey(from, to string) string {
	return fmt.Sprintf("rate:%s-%s", strings.ToUpper(from), strings.ToUpper(to))
}

// Resolve prices amount from one currency into another. It never returns an
// error: every failure mode degrades to the next tier, terminating at the
// default rate of 1. Rates and results are rounded to 4 decimal places.
func (r *Resolver) Resolve(ctx context.Context, from, to string, amount float64) domain.ConversionResult {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	quote := r.resolveQuote(ctx, from, to)
	return domain.ConversionResult{
		From:   from,
		To:     to,
		Amount: amount,
		Rate:   quote.Rate,
		Result: domain.Round4(amount * quote.Rate),
		Tier:   quote.Tier,
	}
}

func (r *Resolver) resolveQuote(ctx context.Context, from, to string) domain.RateQuote {
	if from == to {
		return domain.RateQuote{FromCurrency: from, ToCurrency: to, Rate: 1, Tier: domain.RateTierIdentity}
	}

	cached, err := r.cache.BackgroundRefresh(ctx, CacheKey(from, to), r.quoteTTL, func(fetchCtx context.Context) (interface{}, error) {
		return r.fetchLive(fetchCtx, from, to)
	})
	if err == nil {
		if quote, ok := cached.(domain.RateQuote); ok {
			return quote
		}
	}

	if rate, ok := r.static.Lookup(from, to); ok {
		return domain.RateQuote{FromCurrency: from, ToCurrency: to, Rate: domain.Round4(rate), Tier: domain.RateTierStatic}
	}

	// Preserved from observed behavior: an unknown pair silently prices at 1.
	// Flagged as a likely mispricing pending product clarification.
	log.Printf("level=warn component=rate_resolver outcome=default_rate from=%s to=%s msg=\"pair absent from all tiers; defaulting rate to 1\"", from, to)
	return domain.RateQuote{FromCurrency: from, ToCurrency: to, Rate: 1, Tier: domain.RateTierDefault}
}

// fetchLive attempts the live tiers in order: primary (via the USD pivot),
// then backup. It is the fetcher handed to the cache, so only live quotes are
// ever cached; degraded static/default prices are recomputed per request.
// On the synchronous first-fill path ctx is the caller's, so a cancelled
// request stops waiting on providers immediately; the cache strips
// cancellation before invoking this from a background refresh goroutine.
func (r *Resolver) fetchLive(ctx context.Context, from, to string) (interface{}, error) {
	if rate, err := r.fetchPrimary(ctx, from, to); err == nil {
		return domain.RateQuote{FromCurrency: from, ToCurrency: to, Rate: domain.Round4(rate), Tier: domain.RateTierLivePrimary}, nil
	} else {
		log.Printf("level=warn component=rate_resolver tier=live_primary outcome=failed from=%s to=%s err=%v", from, to, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	rate, err := r.backup.PairRate(callCtx, from, to)
	if err != nil {
		log.Printf("level=warn component=rate_resolver tier=live_backup outcome=failed from=%s to=%s err=%v", from, to, err)
		return nil, ErrLiveTiersFailed
	}
	return domain.RateQuote{FromCurrency: from, ToCurrency: to, Rate: domain.Round4(rate), Tier: domain.RateTierLiveBackup}, nil
}

// fetchPrimary prices a pair off the primary provider's USD quotes. Pairs
// touching the pivot need a single request; cross pairs compose two, and both
// must succeed or the tier is discarded.
func (r *Resolver) fetchPrimary(ctx context.Context, from, to string) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	switch {
	case from == PivotCurrency:
		return r.primary.USDRate(callCtx, to)
	case to == PivotCurrency:
		usdToFrom, err := r.primary.USDRate(callCtx, from)
		if err != nil {
			return 0, err
		}
		return 1 / usdToFrom, nil
	default:
		usdToFrom, err := r.primary.USDRate(callCtx, from)
		if err != nil {
			return 0, err
		}
		usdToTo, err := r.primary.USDRate(callCtx, to)
		if err != nil {
			return 0, err
		}
		return (1 / usdToFrom) * usdToTo, nil
	}
}

// Warm resolves each configured pair once so the cache is primed. The cron
// warmer calls this on a schedule; failures degrade exactly like a request.
func (r *Resolver) Warm(ctx context.Context, pairs []string) {
	for _, pair := range pairs {
		parts := strings.SplitN(strings.ToUpper(strings.TrimSpace(pair)), "-", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			log.Printf("level=warn component=rate_warmer outcome=skip pair=%q msg=\"malformed pair; expected FROM-TO\"", pair)
			continue
		}
		result := r.Resolve(ctx, parts[0], parts[1], 1)
		log.Printf("level=info component=rate_warmer pair=%s-%s tier=%s rate=%.4f", parts[0], parts[1], result.Tier, result.Rate)
	}
}
