package aggregator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paaavkata/market-dashboard/services/price-api/internal/cache"
	"github.com/paaavkata/market-dashboard/services/price-api/internal/fetcher"
	"github.com/paaavkata/market-dashboard/services/price-api/internal/pricing"
	"github.com/paaavkata/market-dashboard/services/price-api/pkg/models"
	"github.com/paaavkata/market-dashboard/shared/pkg/retry"
	"github.com/paaavkata/market-dashboard/shared/pkg/utils"
)

type MockBulkFetcher struct {
	mock.Mock
}

func (m *MockBulkFetcher) FetchBulkPrices(ctx context.Context) ([]models.PriceItem, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PriceItem), args.Error(1)
}

type MockOrderbookFetcher struct {
	mock.Mock
}

func (m *MockOrderbookFetcher) FetchOrderbookSnapshot(ctx context.Context) (map[string]models.OrderbookEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]models.OrderbookEntry), args.Error(1)
}

type MockRateSource struct {
	mock.Mock
}

func (m *MockRateSource) LocalRate(ctx context.Context) (decimal.Decimal, bool) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Bool(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(kind string, data any, timestamp time.Time) {
	m.Called(kind, data, timestamp)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return nil
}

var bulkItems = []models.PriceItem{
	{Title: "Dollar", Symbol: "USD", Sell: "61000", LastUpdate: "12:00"},
	{Title: "Tether", Symbol: "USDT", Sell: "60000", LastUpdate: "12:00"},
	{Title: "Gold 18k", Symbol: "GOL18", Sell: "3500000", LastUpdate: "12:00"},
}

func testOptions(clock cache.Clock, sleeper *recordingSleeper) Options {
	opts := Options{
		Retry: retry.Policy{MaxAttempts: 1, BaseDelay: time.Second},
		Clock: clock,
	}
	if sleeper != nil {
		opts.RetryOptions = []retry.Option{retry.WithSleeper(sleeper.sleep)}
	}
	return opts
}

func TestPricesPipeline_CachesWithinTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	bulk := new(MockBulkFetcher)
	bulk.On("FetchBulkPrices", mock.Anything).Return(bulkItems, nil).Once()

	p := NewPricesPipeline(bulk, 5*time.Minute, testOptions(clock, nil), utils.NewTestLogger())

	first, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), first.Timestamp)
	assert.Equal(t, []models.PriceItem{bulkItems[1]}, first.Data.Crypto)
	assert.Equal(t, []models.PriceItem{bulkItems[2]}, first.Data.Gold)
	assert.Equal(t, []models.PriceItem{bulkItems[0]}, first.Data.Currencies)

	clock.Advance(4 * time.Minute)
	second, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Timestamp, second.Timestamp, "cached timestamp is returned on a hit")
	assert.Equal(t, cache.StateFresh, p.State())

	bulk.AssertNumberOfCalls(t, "FetchBulkPrices", 1)
}

func TestPricesPipeline_RefetchesAfterExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	bulk := new(MockBulkFetcher)
	bulk.On("FetchBulkPrices", mock.Anything).Return(bulkItems, nil).Twice()

	p := NewPricesPipeline(bulk, 5*time.Minute, testOptions(clock, nil), utils.NewTestLogger())

	_, err := p.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	assert.Equal(t, cache.StateStale, p.State())

	snap, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), snap.Timestamp)
	bulk.AssertExpectations(t)
}

func TestPricesPipeline_EmptyUpstreamWithoutCache(t *testing.T) {
	t.Parallel()

	bulk := new(MockBulkFetcher)
	bulk.On("FetchBulkPrices", mock.Anything).Return([]models.PriceItem{}, fetcher.ErrUpstreamEmptyResult).Once()

	p := NewPricesPipeline(bulk, 5*time.Minute, testOptions(newFakeClock(), nil), utils.NewTestLogger())

	_, err := p.Get(context.Background())
	assert.ErrorIs(t, err, fetcher.ErrUpstreamEmptyResult)
	assert.Equal(t, cache.StateEmpty, p.State())
}

func TestPricesPipeline_ExpiredEntryIsNotServedOnFailure(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	bulk := new(MockBulkFetcher)
	bulk.On("FetchBulkPrices", mock.Anything).Return(bulkItems, nil).Once()
	bulk.On("FetchBulkPrices", mock.Anything).Return([]models.PriceItem{}, fetcher.ErrUpstreamUnavailable).Once()

	p := NewPricesPipeline(bulk, 5*time.Minute, testOptions(clock, nil), utils.NewTestLogger())

	_, err := p.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, fetcher.ErrUpstreamUnavailable)
	assert.Equal(t, cache.StateStale, p.State())
}

func TestPricesPipeline_ServeStaleOnError(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	bulk := new(MockBulkFetcher)
	bulk.On("FetchBulkPrices", mock.Anything).Return(bulkItems, nil).Once()
	bulk.On("FetchBulkPrices", mock.Anything).Return([]models.PriceItem{}, fetcher.ErrUpstreamTimeout).Once()

	opts := testOptions(clock, nil)
	opts.ServeStaleOnError = true
	p := NewPricesPipeline(bulk, 5*time.Minute, opts, utils.NewTestLogger())

	first, err := p.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	stale, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.Equal(t, first.Timestamp, stale.Timestamp)
	assert.Equal(t, first.Data, stale.Data)
}

func TestPricesPipeline_RetryPolicyApplies(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	bulk := new(MockBulkFetcher)
	bulk.On("FetchBulkPrices", mock.Anything).Return([]models.PriceItem{}, fetcher.ErrUpstreamUnavailable).Once()
	bulk.On("FetchBulkPrices", mock.Anything).Return(bulkItems, nil).Once()

	opts := testOptions(newFakeClock(), sleeper)
	opts.Retry = retry.Policy{MaxAttempts: 2, BaseDelay: 500 * time.Millisecond}
	p := NewPricesPipeline(bulk, 5*time.Minute, opts, utils.NewTestLogger())

	_, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, sleeper.waits)
	bulk.AssertExpectations(t)
}

func TestPricesPipeline_RefreshIgnoresFreshCache(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	bulk := new(MockBulkFetcher)
	bulk.On("FetchBulkPrices", mock.Anything).Return(bulkItems, nil).Twice()
	publisher := new(MockPublisher)
	publisher.On("Publish", models.StreamTypePrices, mock.AnythingOfType("models.CategorizedPrices"), mock.AnythingOfType("time.Time")).Twice()

	opts := testOptions(clock, nil)
	opts.Publisher = publisher
	p := NewPricesPipeline(bulk, 5*time.Minute, opts, utils.NewTestLogger())

	require.NoError(t, p.Refresh(context.Background()))
	clock.Advance(time.Second)
	require.NoError(t, p.Refresh(context.Background()))

	snap, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), snap.Timestamp)
	bulk.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestPricesPipeline_LocalRate(t *testing.T) {
	t.Parallel()

	bulk := new(MockBulkFetcher)
	bulk.On("FetchBulkPrices", mock.Anything).Return(bulkItems, nil).Once()
	p := NewPricesPipeline(bulk, 5*time.Minute, testOptions(newFakeClock(), nil), utils.NewTestLogger())

	rate, ok := p.LocalRate(context.Background())
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(60000).Equal(rate))

	failing := new(MockBulkFetcher)
	failing.On("FetchBulkPrices", mock.Anything).Return([]models.PriceItem{}, fetcher.ErrUpstreamUnavailable)
	q := NewPricesPipeline(failing, 5*time.Minute, testOptions(newFakeClock(), nil), utils.NewTestLogger())

	_, ok = q.LocalRate(context.Background())
	assert.False(t, ok)
}

// blockingBulkFetcher holds every call until release is closed.
type blockingBulkFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *blockingBulkFetcher) FetchBulkPrices(ctx context.Context) ([]models.PriceItem, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	<-b.release
	return bulkItems, nil
}

func TestPricesPipeline_SingleFlight(t *testing.T) {
	t.Parallel()

	bulk := &blockingBulkFetcher{started: make(chan struct{}), release: make(chan struct{})}
	p := NewPricesPipeline(bulk, 5*time.Minute, testOptions(newFakeClock(), nil), utils.NewTestLogger())

	const callers = 10
	var wg sync.WaitGroup
	results := make([]Snapshot[models.CategorizedPrices], callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = p.Get(context.Background())
	}()
	<-bulk.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Get(context.Background())
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(bulk.release)
	wg.Wait()

	assert.Equal(t, int32(1), bulk.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Timestamp, results[i].Timestamp)
	}
}

func btcSnapshot() map[string]models.OrderbookEntry {
	return map[string]models.OrderbookEntry{
		"BTCUSDT": {LastTradePrice: decimal.NewFromInt(50000)},
		"USDTIRT": {LastTradePrice: decimal.NewFromInt(605000)},
	}
}

func TestNobitexPipeline_RetriesWithLinearBackoff(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	orderbook := new(MockOrderbookFetcher)
	orderbook.On("FetchOrderbookSnapshot", mock.Anything).Return(nil, fetcher.ErrUpstreamTimeout).Twice()
	orderbook.On("FetchOrderbookSnapshot", mock.Anything).Return(btcSnapshot(), nil).Once()
	rates := new(MockRateSource)
	rates.On("LocalRate", mock.Anything).Return(decimal.NewFromInt(60000), true)

	opts := testOptions(newFakeClock(), sleeper)
	opts.Retry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Second}
	p := NewNobitexPipeline(orderbook, rates, 30*time.Second, opts, utils.NewTestLogger())

	snap, err := p.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
	assert.Equal(t, 3_000_000_000.0, snap.Data["BTC"].Price)
	assert.Equal(t, 3_060_000_000.0, snap.Data["BTC"].DayHigh)
	assert.Equal(t, 2_940_000_000.0, snap.Data["BTC"].DayLow)
	assert.Equal(t, 60000.0, snap.Data["USDT"].Price)
	orderbook.AssertExpectations(t)
}

func TestNobitexPipeline_ExhaustedRetriesFail(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	orderbook := new(MockOrderbookFetcher)
	orderbook.On("FetchOrderbookSnapshot", mock.Anything).Return(nil, fetcher.ErrUpstreamUnavailable).Times(3)

	opts := testOptions(newFakeClock(), sleeper)
	opts.Retry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Second}
	p := NewNobitexPipeline(orderbook, new(MockRateSource), 30*time.Second, opts, utils.NewTestLogger())

	_, err := p.Get(context.Background())
	assert.ErrorIs(t, err, fetcher.ErrUpstreamUnavailable)
	assert.Equal(t, cache.StateEmpty, p.State())
	orderbook.AssertExpectations(t)
}

func TestNobitexPipeline_FallsBackToOrderbookRate(t *testing.T) {
	t.Parallel()

	orderbook := new(MockOrderbookFetcher)
	orderbook.On("FetchOrderbookSnapshot", mock.Anything).Return(btcSnapshot(), nil).Once()
	rates := new(MockRateSource)
	rates.On("LocalRate", mock.Anything).Return(decimal.Zero, false)

	p := NewNobitexPipeline(orderbook, rates, 30*time.Second, testOptions(newFakeClock(), nil), utils.NewTestLogger())

	snap, err := p.Get(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, snap.Data, "USDT", "USDT entry is omitted without a bulk rate")
	assert.Equal(t, 3_025_000_000.0, snap.Data["BTC"].Price)
}

func TestNobitexPipeline_NoRateIsDerivationFailure(t *testing.T) {
	t.Parallel()

	orderbook := new(MockOrderbookFetcher)
	orderbook.On("FetchOrderbookSnapshot", mock.Anything).Return(map[string]models.OrderbookEntry{
		"BTCUSDT": {LastTradePrice: decimal.NewFromInt(50000)},
	}, nil).Twice()
	rates := new(MockRateSource)
	rates.On("LocalRate", mock.Anything).Return(decimal.Zero, false)

	p := NewNobitexPipeline(orderbook, rates, 30*time.Second, testOptions(newFakeClock(), nil), utils.NewTestLogger())

	_, err := p.Get(context.Background())
	assert.ErrorIs(t, err, pricing.ErrDerivationUnavailable)
	assert.Equal(t, cache.StateEmpty, p.State(), "failed derivations are not cached")

	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, pricing.ErrDerivationUnavailable)
	orderbook.AssertExpectations(t)
}

func TestNobitexPipeline_UsesShorterTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	orderbook := new(MockOrderbookFetcher)
	orderbook.On("FetchOrderbookSnapshot", mock.Anything).Return(btcSnapshot(), nil).Twice()
	rates := new(MockRateSource)
	rates.On("LocalRate", mock.Anything).Return(decimal.NewFromInt(60000), true)

	p := NewNobitexPipeline(orderbook, rates, 30*time.Second, testOptions(clock, nil), utils.NewTestLogger())

	_, err := p.Get(context.Background())
	require.NoError(t, err)
	clock.Advance(10 * time.Second)
	_, err = p.Get(context.Background())
	require.NoError(t, err)
	clock.Advance(25 * time.Second)
	_, err = p.Get(context.Background())
	require.NoError(t, err)

	orderbook.AssertExpectations(t)
	assert.Equal(t, NobitexPipelineName, p.Name())
}

func TestPipeline_ErrorIsNotSwallowed(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	p := newPipeline("test", "test", time.Minute, Options{Clock: newFakeClock()}, utils.NewTestLogger(),
		func(ctx context.Context) (int, error) { return 0, boom })

	_, err := p.get(context.Background())
	assert.ErrorIs(t, err, boom)
}
