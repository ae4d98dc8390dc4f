package aggregator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/paaavkata/market-dashboard/services/price-api/internal/pricing"
	"github.com/paaavkata/market-dashboard/services/price-api/pkg/models"
	"github.com/paaavkata/market-dashboard/shared/pkg/retry"
)

const PricesPipelineName = "prices"

type BulkPriceFetcher interface {
	FetchBulkPrices(ctx context.Context) ([]models.PriceItem, error)
}

// PricesPipeline serves the categorized bulk price list.
type PricesPipeline struct {
	*pipeline[models.CategorizedPrices]
	fetcher BulkPriceFetcher
	policy  retry.Policy
	logger  *logrus.Logger
}

func NewPricesPipeline(fetcher BulkPriceFetcher, ttl time.Duration, opts Options, logger *logrus.Logger) *PricesPipeline {
	p := &PricesPipeline{
		fetcher: fetcher,
		policy:  opts.Retry,
		logger:  logger,
	}

	retryOpts := append([]retry.Option{retryNotifier(logger, PricesPipelineName)}, opts.RetryOptions...)
	p.pipeline = newPipeline(PricesPipelineName, models.StreamTypePrices, ttl, opts, logger,
		func(ctx context.Context) (models.CategorizedPrices, error) {
			items, err := retry.Do(ctx, p.policy, p.fetcher.FetchBulkPrices, retryOpts...)
			if err != nil {
				return models.CategorizedPrices{}, err
			}
			return p.categorize(items), nil
		})

	return p
}

// Get returns the cached categorized prices, fetching them when the cache
// is empty or expired.
func (p *PricesPipeline) Get(ctx context.Context) (Snapshot[models.CategorizedPrices], error) {
	return p.get(ctx)
}

// Refresh fetches regardless of cache freshness.
func (p *PricesPipeline) Refresh(ctx context.Context) error {
	_, err := p.fetch(ctx, true)
	return err
}

// LocalRate returns the USDT sell price from the bulk list.
func (p *PricesPipeline) LocalRate(ctx context.Context) (decimal.Decimal, bool) {
	snapshot, err := p.Get(ctx)
	if err != nil {
		p.logger.WithError(err).Debug("Bulk prices unavailable for local rate")
		return decimal.Zero, false
	}
	return pricing.ExtractLocalRate(snapshot.Data.Crypto)
}

func (p *PricesPipeline) categorize(items []models.PriceItem) models.CategorizedPrices {
	categorized := pricing.Categorize(items)

	if unknown := pricing.UnknownSymbols(items); len(unknown) > 0 {
		p.logger.WithFields(logrus.Fields{
			"symbols": unknown,
			"count":   len(unknown),
		}).Debug("Unrecognized symbols defaulted to currencies")
	}

	p.logger.WithFields(logrus.Fields{
		"crypto":     len(categorized.Crypto),
		"gold":       len(categorized.Gold),
		"currencies": len(categorized.Currencies),
	}).Debug("Categorized bulk prices")

	return categorized
}
