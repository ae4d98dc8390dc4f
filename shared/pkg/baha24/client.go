package baha24

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	BaseURL        = "https://baha24.com"
	pricesPath     = "/api/v1/price"
	defaultAgent   = "market-dashboard/1.0"
	defaultTimeout = 10 * time.Second
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	client *resty.Client
	logger *logrus.Logger
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("baha24 returned status %d", e.StatusCode)
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
		client: client,
		logger: logger,
	}
}

// GetPrices fetches the full price list. Retries are left to the caller.
func (c *Client) GetPrices(ctx context.Context) ([]PriceRecord, error) {
	resp, err := c.client.R().SetContext(ctx).Get(pricesPath)
	if err != nil {
		c.logger.WithError(err).Debug("Baha24 price request failed")
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, &StatusError{StatusCode: resp.StatusCode()}
	}

	var records []PriceRecord
	if err := json.Unmarshal(resp.Body(), &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prices: %w", err)
	}

	c.logger.WithField("record_count", len(records)).Debug("Fetched Baha24 price list")
	return records, nil
}
