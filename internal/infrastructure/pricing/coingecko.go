package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Config represents the price feed configuration
type Config struct {
	URL     string
	Timeout time.Duration
}

// CoinGeckoClient fetches the SOL/USD quote from the CoinGecko simple price API
type CoinGeckoClient struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewCoinGeckoClient creates a new price client
func NewCoinGeckoClient(config Config, logger *zap.Logger) *CoinGeckoClient {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	st := gobreaker.Settings{
		Name:        "CoinGecko",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &CoinGeckoClient{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(st),
		logger:         logger,
	}
}

// FetchSOLPrice returns the current SOL price in USD
func (c *CoinGeckoClient) FetchSOLPrice(ctx context.Context) (decimal.Decimal, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch SOL price: %w", err)
	}
	return result.(decimal.Decimal), nil
}

func (c *CoinGeckoClient) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var quotes map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &quotes); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price response: %w", err)
	}

	price, ok := quotes["solana"]["usd"]
	if !ok || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("price response missing solana/usd quote")
	}

	c.logger.Debug("Fetched SOL price", zap.String("usd", price.String()))
	return price, nil
}
