package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sarafnet/hawala-service/internal/domain"
	"github.com/sarafnet/hawala-service/internal/ratecache"
)

type primaryStub struct {
	rates map[string]float64
	err   error
	calls int
}

func (s *primaryStub) USDRate(ctx context.Context, currency string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	rate, ok := s.rates[currency]
	if !ok {
		return 0, errors.New("currency not quoted")
	}
	return rate, nil
}

type backupStub struct {
	rates map[string]float64
	err   error
	calls int
}

func (s *backupStub) PairRate(ctx context.Context, from, to string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	rate, ok := s.rates[from+"-"+to]
	if !ok {
		return 0, errors.New("pair not quoted")
	}
	return rate, nil
}

func newTestResolver(primary *primaryStub, backup *backupStub) *Resolver {
	return NewResolver(primary, backup, ratecache.New(), DefaultStaticTable(), 5*time.Minute, time.Second)
}

func TestResolve_SameCurrencySkipsProviders(t *testing.T) {
	primary := &primaryStub{err: errors.New("must not be called")}
	backup := &backupStub{err: errors.New("must not be called")}
	resolver := newTestResolver(primary, backup)

	result := resolver.Resolve(context.Background(), "USD", "USD", 250)

	if result.Rate != 1 {
		t.Fatalf("expected rate 1 for same currency, got %v", result.Rate)
	}
	if result.Result != 250 {
		t.Fatalf("expected amount unchanged, got %v", result.Result)
	}
	if result.Tier != domain.RateTierIdentity {
		t.Fatalf("expected identity tier, got %s", result.Tier)
	}
	if primary.calls != 0 || backup.calls != 0 {
		t.Fatal("did not expect any provider calls for same currency")
	}
}

func TestResolve_PrimaryFromUSD(t *testing.T) {
	primary := &primaryStub{rates: map[string]float64{"AFN": 70.85}}
	backup := &backupStub{err: errors.New("must not be called")}
	resolver := newTestResolver(primary, backup)

	result := resolver.Resolve(context.Background(), "USD", "AFN", 100)

	if result.Rate != 70.85 {
		t.Fatalf("expected rate 70.85, got %v", result.Rate)
	}
	if result.Result != 7085 {
		t.Fatalf("expected result 7085, got %v", result.Result)
	}
	if result.Tier != domain.RateTierLivePrimary {
		t.Fatalf("expected live_primary tier, got %s", result.Tier)
	}
	if backup.calls != 0 {
		t.Fatal("did not expect backup provider calls")
	}
}

func TestResolve_PrimaryToUSDInverts(t *testing.T) {
	primary := &primaryStub{rates: map[string]float64{"AFN": 80}}
	resolver := newTestResolver(primary, &backupStub{})

	result := resolver.Resolve(context.Background(), "AFN", "USD", 160)

	if result.Rate != 0.0125 {
		t.Fatalf("expected inverted rate 0.0125, got %v", result.Rate)
	}
	if result.Result != 2 {
		t.Fatalf("expected result 2, got %v", result.Result)
	}
}

func TestResolve_CrossPairComposesThroughPivot(t *testing.T) {
	// EUR->AFN = (1/0.92) * 70.84 = 77.0
	primary := &primaryStub{rates: map[string]float64{"EUR": 0.92, "AFN": 70.84}}
	resolver := newTestResolver(primary, &backupStub{})

	result := resolver.Resolve(context.Background(), "EUR", "AFN", 10)

	want := domain.Round4((1 / 0.92) * 70.84)
	if result.Rate != want {
		t.Fatalf("expected composed rate %v, got %v", want, result.Rate)
	}
	if primary.calls != 2 {
		t.Fatalf("expected two pivot quotes, got %d", primary.calls)
	}
	if result.Tier != domain.RateTierLivePrimary {
		t.Fatalf("expected live_primary tier, got %s", result.Tier)
	}
}

func TestResolve_CrossPairFailsWhenOneLegMissing(t *testing.T) {
	// AFN leg is quoted but EUR is not, so the whole primary tier is discarded.
	primary := &primaryStub{rates: map[string]float64{"AFN": 70.84}}
	backup := &backupStub{rates: map[string]float64{"EUR-AFN": 77.25}}
	resolver := newTestResolver(primary, backup)

	result := resolver.Resolve(context.Background(), "EUR", "AFN", 1)

	if result.Tier != domain.RateTierLiveBackup {
		t.Fatalf("expected fall through to backup, got %s", result.Tier)
	}
	if result.Rate != 77.25 {
		t.Fatalf("expected backup rate, got %v", result.Rate)
	}
}

func TestResolve_BackupTierWhenPrimaryDown(t *testing.T) {
	primary := &primaryStub{err: errors.New("timeout")}
	backup := &backupStub{rates: map[string]float64{"USD-PKR": 278.50}}
	resolver := newTestResolver(primary, backup)

	result := resolver.Resolve(context.Background(), "USD", "PKR", 10)

	if result.Tier != domain.RateTierLiveBackup {
		t.Fatalf("expected live_backup tier, got %s", result.Tier)
	}
	if result.Result != 2785 {
		t.Fatalf("expected result 2785, got %v", result.Result)
	}
}

func TestResolve_StaticTierWhenBothProvidersDown(t *testing.T) {
	primary := &primaryStub{err: errors.New("timeout")}
	backup := &backupStub{err: errors.New("timeout")}
	resolver := newTestResolver(primary, backup)

	result := resolver.Resolve(context.Background(), "USD", "AFN", 100)

	if result.Tier != domain.RateTierStatic {
		t.Fatalf("expected static tier, got %s", result.Tier)
	}
	if result.Result != 7085 {
		t.Fatalf("expected static-table result 7085, got %v", result.Result)
	}
}

func TestResolve_StaticTierInverseLookup(t *testing.T) {
	primary := &primaryStub{err: errors.New("timeout")}
	backup := &backupStub{err: errors.New("timeout")}
	resolver := newTestResolver(primary, backup)

	result := resolver.Resolve(context.Background(), "AFN", "USD", 70.85)

	if result.Tier != domain.RateTierStatic {
		t.Fatalf("expected static tier, got %s", result.Tier)
	}
	if result.Rate != domain.Round4(1/70.85) {
		t.Fatalf("expected inverse static rate, got %v", result.Rate)
	}
}

func TestResolve_DefaultsToOneWhenAllTiersMiss(t *testing.T) {
	primary := &primaryStub{err: errors.New("timeout")}
	backup := &backupStub{err: errors.New("timeout")}
	resolver := newTestResolver(primary, backup)

	// EUR-PKR is absent from the static table in both directions.
	result := resolver.Resolve(context.Background(), "EUR", "PKR", 500)

	if result.Tier != domain.RateTierDefault {
		t.Fatalf("expected default tier, got %s", result.Tier)
	}
	if result.Rate != 1 || result.Result != 500 {
		t.Fatalf("expected identity pricing, got rate=%v result=%v", result.Rate, result.Result)
	}
}

func TestResolve_LiveQuoteIsCached(t *testing.T) {
	primary := &primaryStub{rates: map[string]float64{"AFN": 70.85}}
	resolver := newTestResolver(primary, &backupStub{})

	resolver.Resolve(context.Background(), "USD", "AFN", 1)
	resolver.Resolve(context.Background(), "USD", "AFN", 1)

	if primary.calls != 1 {
		t.Fatalf("expected one provider call for a cached pair, got %d", primary.calls)
	}
}

func TestResolve_DegradedQuoteIsNotCached(t *testing.T) {
	primary := &primaryStub{err: errors.New("timeout")}
	backup := &backupStub{err: errors.New("timeout")}
	resolver := newTestResolver(primary, backup)

	resolver.Resolve(context.Background(), "USD", "AFN", 1)
	resolver.Resolve(context.Background(), "USD", "AFN", 1)

	// Each request retries the live tiers instead of pinning the fallback.
	if primary.calls < 2 || backup.calls < 2 {
		t.Fatalf("expected live tiers retried per request, primary=%d backup=%d", primary.calls, backup.calls)
	}
}

// ctxPrimaryStub refuses to quote once the request context is done, the way a
// real HTTP client would.
type ctxPrimaryStub struct {
	rates map[string]float64
	calls int
}

func (s *ctxPrimaryStub) USDRate(ctx context.Context, currency string) (float64, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.rates[currency], nil
}

type ctxBackupStub struct {
	rates map[string]float64
	calls int
}

func (s *ctxBackupStub) PairRate(ctx context.Context, from, to string) (float64, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.rates[from+"-"+to], nil
}

func TestResolve_CancelledRequestStopsWaitingOnProviders(t *testing.T) {
	primary := &ctxPrimaryStub{rates: map[string]float64{"AFN": 70.85}}
	backup := &ctxBackupStub{rates: map[string]float64{"USD-AFN": 70.90}}
	resolver := NewResolver(primary, backup, ratecache.New(), DefaultStaticTable(), 5*time.Minute, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := resolver.Resolve(ctx, "USD", "AFN", 100)

	// Both live tiers see the cancellation and fail fast, so the quote
	// degrades to the static table instead of blocking on provider calls.
	if result.Tier != domain.RateTierStatic {
		t.Fatalf("expected static tier for a cancelled request, got %s", result.Tier)
	}
	if primary.calls == 0 || backup.calls == 0 {
		t.Fatal("expected the cancellation to be observed by the providers")
	}

	// A later request with a live context is unaffected.
	fresh := resolver.Resolve(context.Background(), "USD", "AFN", 100)
	if fresh.Tier != domain.RateTierLivePrimary {
		t.Fatalf("expected live_primary tier after cancellation cleared, got %s", fresh.Tier)
	}
	if fresh.Result != 7085 {
		t.Fatalf("expected result 7085, got %v", fresh.Result)
	}
}

func TestResolve_NormalizesCurrencyCase(t *testing.T) {
	primary := &primaryStub{rates: map[string]float64{"AFN": 70.85}}
	resolver := newTestResolver(primary, &backupStub{})

	result := resolver.Resolve(context.Background(), " usd ", "afn", 2)

	if result.From != "USD" || result.To != "AFN" {
		t.Fatalf("expected normalized codes, got %s-%s", result.From, result.To)
	}
	if result.Result != 141.7 {
		t.Fatalf("expected 141.7, got %v", result.Result)
	}
}

func TestResolve_RoundsToFourDecimals(t *testing.T) {
	primary := &primaryStub{rates: map[string]float64{"AFN": 70.856789}}
	resolver := newTestResolver(primary, &backupStub{})

	result := resolver.Resolve(context.Background(), "USD", "AFN", 1)

	if result.Rate != 70.8568 {
		t.Fatalf("expected rate rounded to 4dp, got %v", result.Rate)
	}
}

func TestCacheKey_SharedKeyspace(t *testing.T) {
	if CacheKey("usd", "afn") != "rate:USD-AFN" {
		t.Fatalf("unexpected cache key %q", CacheKey("usd", "afn"))
	}
}

func TestWarm_PrimesCache(t *testing.T) {
	primary := &primaryStub{rates: map[string]float64{"AFN": 70.85, "PKR": 278.50}}
	resolver := newTestResolver(primary, &backupStub{})

	resolver.Warm(context.Background(), []string{"USD-AFN", "USD-PKR", "bogus"})

	calls := primary.calls
	resolver.Resolve(context.Background(), "USD", "AFN", 1)
	resolver.Resolve(context.Background(), "USD", "PKR", 1)

	if primary.calls != calls {
		t.Fatalf("expected warmed pairs to serve from cache, extra calls=%d", primary.calls-calls)
	}
}
