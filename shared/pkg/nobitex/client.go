package nobitex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	BaseURL        = "https://api.nobitex.ir"
	orderbookPath  = "/v3/orderbook/all"
	tradesPath     = "/v2/trades/{symbol}"
	defaultAgent   = "market-dashboard/1.0"
	defaultTimeout = 10 * time.Second
)

type Config struct {
	BaseURL           string
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond int
}

type Client struct {
	client      *resty.Client
	logger      *logrus.Logger
	rateLimiter *RateLimiter
}

// StatusError is returned when Nobitex answers with a non-2xx status or a
// body whose status field is not "ok".
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("nobitex returned status %q", e.Status)
	}
	return fmt.Sprintf("nobitex returned http status %d", e.StatusCode)
}

func NewClient(config Config, logger *logrus.Logger) *Client {
	client := resty.New()

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	agent := config.UserAgent
	if agent == "" {
		agent = defaultAgent
	}

	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", agent)

	return &Client{
		client:      client,
		logger:      logger,
		rateLimiter: NewRateLimiter(config.RequestsPerSecond),
	}
}

func (c *Client) GetOrderbooks(ctx context.Context) (*Orderbook, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.client.R().SetContext(ctx).Get(orderbookPath)
	if err != nil {
		c.logger.WithError(err).Debug("Nobitex orderbook request failed")
		return nil, fmt.Errorf("failed to fetch orderbooks: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, &StatusError{StatusCode: resp.StatusCode()}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal orderbooks: %w", err)
	}

	book := &Orderbook{Pairs: make(map[string]OrderbookPair, len(raw))}
	if status, ok := raw["status"]; ok {
		if err := json.Unmarshal(status, &book.Status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
	}
	if book.Status != StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Status: book.Status}
	}

	for key, value := range raw {
		if key == "status" {
			continue
		}

		var pair OrderbookPair
		if err := json.Unmarshal(value, &pair); err != nil {
			c.logger.WithFields(logrus.Fields{
				"pair":  key,
				"error": err.Error(),
			}).Debug("Skipping undecodable orderbook entry")
			continue
		}
		book.Pairs[key] = pair
	}

	c.logger.WithField("pair_count", len(book.Pairs)).Debug("Fetched Nobitex orderbooks")
	return book, nil
}

// GetTrades returns the raw trade list body for a market symbol such as "BTCIRT".
func (c *Client) GetTrades(ctx context.Context, symbol string) (json.RawMessage, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		Get(tradesPath)
	if err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Debug("Nobitex trades request failed")
		return nil, fmt.Errorf("failed to fetch trades: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, &StatusError{StatusCode: resp.StatusCode()}
	}

	body := resp.Body()
	if !json.Valid(body) {
		return nil, fmt.Errorf("trades response for %s is not valid JSON", symbol)
	}

	return json.RawMessage(body), nil
}
