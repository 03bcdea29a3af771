// Package retry wraps a provider.DataProvider with exponential backoff
// retry, the same shape as the teacher's broker retry client, generalized
// from string-matched transient errors to the typed errs.IsRetryable
// predicate.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
	"github.com/makutaku/vortex-go/internal/provider"
)

// Config contains retry configuration parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig provides sensible defaults for retrying a fetch, per
// spec.md §4.5: N=5 attempts total, i.e. 4 retries after the first try.
var DefaultConfig = Config{
	MaxRetries:     4,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client wraps a provider.DataProvider with retry logic for FetchBars.
type Client struct {
	provider provider.DataProvider
	logger   *logrus.Entry
	config   Config
}

// NewClient creates a new retry client wrapping p with optional config.
func NewClient(p provider.DataProvider, logger *logrus.Entry, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	return &Client{provider: p, logger: logger.WithField("component", "retry"), config: cfg}
}

// FetchBarsWithRetry attempts req against the wrapped provider, retrying on
// errs.IsRetryable failures with exponential backoff and jitter, per
// spec.md §4.5. Non-retryable errors (validation, auth, allowance,
// data-not-found, low-data, circuit-open) return on the first attempt.
func (c *Client) FetchBarsWithRetry(ctx context.Context, req provider.FetchRequest) (domain.PriceSeries, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff
	attempts := 0

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-fetchCtx.Done():
			return domain.PriceSeries{}, fmt.Errorf("fetch timed out after %v: %w", c.config.Timeout, fetchCtx.Err())
		default:
		}

		series, err := c.provider.FetchBars(fetchCtx, req)
		attempts++
		if err == nil {
			return series, nil
		}

		lastErr = err
		c.logger.WithFields(logrus.Fields{
			"attempt":    attempt + 1,
			"max":        c.config.MaxRetries + 1,
			"instrument": req.Instrument.ID(),
			"period":     req.Period,
			"kind":       errs.KindOf(err).String(),
		}).Warn("fetch attempt failed")

		if !errs.IsRetryable(err) || attempt >= c.config.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff):
			backoff = c.calculateNextBackoff(backoff)
		case <-fetchCtx.Done():
			return domain.PriceSeries{}, fmt.Errorf("fetch timed out during backoff: %w", fetchCtx.Err())
		}
	}

	return domain.PriceSeries{}, fmt.Errorf("fetch failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.WithError(err).Warn("failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}
