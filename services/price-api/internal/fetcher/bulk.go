package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paaavkata/market-dashboard/services/price-api/pkg/models"
	"github.com/paaavkata/market-dashboard/shared/pkg/baha24"
)

const providerBaha24 = "baha24"

// BulkPriceSource is the upstream that returns the whole price list.
type BulkPriceSource interface {
	GetPrices(ctx context.Context) ([]baha24.PriceRecord, error)
}

type BulkFetcher struct {
	source  BulkPriceSource
	timeout time.Duration
	logger  *logrus.Logger
}

func NewBulkFetcher(source BulkPriceSource, timeout time.Duration, logger *logrus.Logger) *BulkFetcher {
	return &BulkFetcher{
		source:  source,
		timeout: timeout,
		logger:  logger,
	}
}

// FetchBulkPrices returns the provider's price list. On failure it returns
// an empty slice and a classified error; zero records is ErrUpstreamEmptyResult.
func (f *BulkFetcher) FetchBulkPrices(ctx context.Context) ([]models.PriceItem, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	records, err := f.source.GetPrices(ctx)
	if err != nil {
		err = classify(providerBaha24, err)
		f.logger.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).Warn("Failed to fetch bulk prices")
		return []models.PriceItem{}, err
	}

	items := make([]models.PriceItem, 0, len(records))
	for _, record := range records {
		items = append(items, models.PriceItem{
			Title:      record.Title,
			Symbol:     record.Symbol,
			Sell:       record.Sell,
			LastUpdate: record.LastUpdate,
		})
	}

	if len(items) == 0 {
		f.logger.Warn("Bulk price provider returned an empty list")
		return items, fmt.Errorf("%w: %s", ErrUpstreamEmptyResult, providerBaha24)
	}

	f.logger.WithFields(logrus.Fields{
		"items_count": len(items),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Successfully fetched bulk prices")

	return items, nil
}
