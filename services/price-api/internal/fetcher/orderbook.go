package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/paaavkata/market-dashboard/services/price-api/pkg/models"
	"github.com/paaavkata/market-dashboard/shared/pkg/nobitex"
)

const providerNobitex = "nobitex"

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)

// OrderbookSource is the upstream serving orderbooks and trade history.
type OrderbookSource interface {
	GetOrderbooks(ctx context.Context) (*nobitex.Orderbook, error)
	GetTrades(ctx context.Context, symbol string) (json.RawMessage, error)
}

type OrderbookFetcher struct {
	source     OrderbookSource
	timeout    time.Duration
	localQuote string
	logger     *logrus.Logger
}

func NewOrderbookFetcher(source OrderbookSource, timeout time.Duration, localQuote string, logger *logrus.Logger) *OrderbookFetcher {
	return &OrderbookFetcher{
		source:     source,
		timeout:    timeout,
		localQuote: strings.ToUpper(localQuote),
		logger:     logger,
	}
}

// FetchOrderbookSnapshot returns the last trade price of every pair keyed by
// pair name. Pairs whose price does not parse are skipped.
func (f *OrderbookFetcher) FetchOrderbookSnapshot(ctx context.Context) (map[string]models.OrderbookEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	book, err := f.source.GetOrderbooks(ctx)
	if err != nil {
		err = classify(providerNobitex, err)
		f.logger.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).Warn("Failed to fetch orderbook snapshot")
		return nil, err
	}

	snapshot := make(map[string]models.OrderbookEntry, len(book.Pairs))
	parseErrors := 0

	for pair, raw := range book.Pairs {
		entry, err := parseOrderbookPair(raw)
		if err != nil {
			f.logger.WithFields(logrus.Fields{
				"pair":  pair,
				"error": err.Error(),
			}).Debug("Failed to parse orderbook pair")
			parseErrors++
			continue
		}
		snapshot[pair] = entry
	}

	if len(snapshot) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUpstreamEmptyResult, providerNobitex)
	}

	f.logger.WithFields(logrus.Fields{
		"total_pairs":  len(book.Pairs),
		"valid_pairs":  len(snapshot),
		"parse_errors": parseErrors,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("Successfully fetched orderbook snapshot")

	return snapshot, nil
}

// FetchTrades returns the upstream trade list for symbol quoted in the local
// currency, unmodified.
func (f *OrderbookFetcher) FetchTrades(ctx context.Context, symbol string) (json.RawMessage, error) {
	if !symbolPattern.MatchString(symbol) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	market := strings.ToUpper(symbol) + f.localQuote

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	trades, err := f.source.GetTrades(ctx, market)
	if err != nil {
		err = classify(providerNobitex, err)
		f.logger.WithError(err).WithField("market", market).Warn("Failed to fetch trades")
		return nil, err
	}

	return trades, nil
}

func parseOrderbookPair(raw nobitex.OrderbookPair) (models.OrderbookEntry, error) {
	if raw.LastTradePrice == "" {
		return models.OrderbookEntry{}, fmt.Errorf("missing lastTradePrice")
	}

	price, err := decimal.NewFromString(raw.LastTradePrice.String())
	if err != nil {
		return models.OrderbookEntry{}, fmt.Errorf("failed to parse lastTradePrice '%s': %w", raw.LastTradePrice, err)
	}

	entry := models.OrderbookEntry{LastTradePrice: price}
	if raw.LastUpdate != "" {
		if millis, err := raw.LastUpdate.Int64(); err == nil && millis > 0 {
			entry.LastUpdate = time.UnixMilli(millis).UTC()
		}
	}

	return entry, nil
}
