package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/paaavkata/market-dashboard/services/price-api/internal/pricing"
	"github.com/paaavkata/market-dashboard/services/price-api/pkg/models"
	"github.com/paaavkata/market-dashboard/shared/pkg/retry"
)

const NobitexPipelineName = "nobitex"

type OrderbookSnapshotFetcher interface {
	FetchOrderbookSnapshot(ctx context.Context) (map[string]models.OrderbookEntry, error)
}

// LocalRateSource supplies the USDT to local currency rate.
type LocalRateSource interface {
	LocalRate(ctx context.Context) (decimal.Decimal, bool)
}

// NobitexPipeline serves crypto prices derived from Nobitex USDT markets.
type NobitexPipeline struct {
	*pipeline[map[string]models.DerivedCryptoPrice]
	fetcher OrderbookSnapshotFetcher
	rates   LocalRateSource
	policy  retry.Policy
	logger  *logrus.Logger
}

func NewNobitexPipeline(fetcher OrderbookSnapshotFetcher, rates LocalRateSource, ttl time.Duration, opts Options, logger *logrus.Logger) *NobitexPipeline {
	p := &NobitexPipeline{
		fetcher: fetcher,
		rates:   rates,
		policy:  opts.Retry,
		logger:  logger,
	}

	retryOpts := append([]retry.Option{retryNotifier(logger, NobitexPipelineName)}, opts.RetryOptions...)
	p.pipeline = newPipeline(NobitexPipelineName, models.StreamTypeNobitex, ttl, opts, logger,
		func(ctx context.Context) (map[string]models.DerivedCryptoPrice, error) {
			snapshot, err := retry.Do(ctx, p.policy, p.fetcher.FetchOrderbookSnapshot, retryOpts...)
			if err != nil {
				return nil, err
			}
			return p.derive(ctx, snapshot)
		})

	return p
}

func (p *NobitexPipeline) Get(ctx context.Context) (Snapshot[map[string]models.DerivedCryptoPrice], error) {
	return p.get(ctx)
}

func (p *NobitexPipeline) Refresh(ctx context.Context) error {
	_, err := p.fetch(ctx, true)
	return err
}

func (p *NobitexPipeline) derive(ctx context.Context, snapshot map[string]models.OrderbookEntry) (map[string]models.DerivedCryptoPrice, error) {
	rate, fromBulk := decimal.Zero, false
	rateSource := "bulk"
	if p.rates != nil {
		rate, fromBulk = p.rates.LocalRate(ctx)
	}

	if !fromBulk {
		var ok bool
		rate, ok = pricing.FallbackLocalRate(snapshot)
		if !ok {
			return nil, fmt.Errorf("%w: no USDT rate from bulk prices or orderbook", pricing.ErrDerivationUnavailable)
		}
		rateSource = "orderbook"
		p.logger.WithField("rate", rate.String()).Warn("Bulk USDT rate unavailable, using orderbook rate")
	}

	prices := pricing.DeriveCryptoPrices(snapshot, rate, fromBulk)
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: no tracked pairs in snapshot", pricing.ErrDerivationUnavailable)
	}

	p.logger.WithFields(logrus.Fields{
		"rate":        rate.String(),
		"rate_source": rateSource,
		"symbols":     len(prices),
	}).Debug("Derived crypto prices")

	return prices, nil
}
