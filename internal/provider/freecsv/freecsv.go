// Package freecsv implements a DataProvider against a free chart-style JSON
// history endpoint, grounded on the Yahoo Finance chart API client pattern:
// one GET request per window, interval+range query params, skip-null-row
// defensive parsing of parallel OHLCV arrays.
package freecsv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
	"github.com/makutaku/vortex-go/internal/provider"
)

const providerName = "freecsv"

var baseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

var intervalByPeriod = map[domain.Period]string{
	domain.Period1Min:  "1m",
	domain.Period5Min:  "5m",
	domain.Period15Min: "15m",
	domain.Period30Min: "30m",
	domain.Period1Hour: "60m",
	domain.Period1Day:  "1d",
	domain.Period1Week: "1wk",
}

// Provider is a free, unauthenticated chart-JSON OHLCV source. It never
// requires Login/Logout and has no allowance to check.
type Provider struct {
	client *http.Client
	log    *logrus.Entry
}

// New builds a freecsv Provider. log may be nil, in which case a default
// logrus logger is used.
func New(log *logrus.Entry) *Provider {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Provider{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.WithField("provider", providerName),
	}
}

// Name implements provider.DataProvider.
func (p *Provider) Name() string { return providerName }

// Login implements provider.DataProvider. freecsv needs no session.
func (p *Provider) Login(ctx context.Context) error { return nil }

// Logout implements provider.DataProvider.
func (p *Provider) Logout(ctx context.Context) error { return nil }

// SupportedPeriods implements provider.DataProvider.
func (p *Provider) SupportedPeriods() []domain.Period {
	return []domain.Period{
		domain.Period1Min, domain.Period5Min, domain.Period15Min, domain.Period30Min,
		domain.Period1Hour, domain.Period1Day, domain.Period1Week,
	}
}

// MaxWindow implements provider.DataProvider. Intraday periods are limited
// to 60 days per call by the upstream endpoint; daily and above are
// effectively unbounded, capped here at ten years to keep a single fetch
// request finite.
func (p *Provider) MaxWindow(period domain.Period) time.Duration {
	if period.IsIntraday() {
		return 60 * 24 * time.Hour
	}
	return 10 * 365 * 24 * time.Hour
}

// MinStart implements provider.DataProvider. freecsv imposes no
// instrument-specific earliest date.
func (p *Provider) MinStart(domain.Instrument, domain.Period) time.Time {
	return time.Time{}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// FetchBars implements provider.DataProvider.
func (p *Provider) FetchBars(ctx context.Context, req provider.FetchRequest) (domain.PriceSeries, error) {
	interval, ok := intervalByPeriod[req.Period]
	if !ok {
		return domain.PriceSeries{}, errs.New(errs.KindValidation, "fetch_bars",
			"period %s not supported by %s", req.Period, providerName)
	}

	reqURL := baseURL + url.QueryEscape(req.Instrument.Symbol())
	params := url.Values{}
	params.Set("interval", interval)
	params.Set("period1", fmt.Sprintf("%d", req.Start.Unix()))
	params.Set("period2", fmt.Sprintf("%d", req.End.Unix()))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.PriceSeries{}, errs.Wrap(errs.KindConnection, "fetch_bars", err, "building request")
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (compatible; vortex-go/1.0)")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.PriceSeries{}, errs.Wrap(errs.KindConnection, "fetch_bars", err,
			"fetching %s", req.Instrument.Symbol())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PriceSeries{}, errs.Wrap(errs.KindConnection, "fetch_bars", err, "reading response body")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.PriceSeries{}, errs.New(errs.KindRateLimit, "fetch_bars",
			"rate limited fetching %s: %s", req.Instrument.Symbol(), string(body))
	case resp.StatusCode >= 500:
		return domain.PriceSeries{}, errs.New(errs.KindConnection, "fetch_bars",
			"upstream error %d fetching %s", resp.StatusCode, req.Instrument.Symbol())
	case resp.StatusCode != http.StatusOK:
		return domain.PriceSeries{}, errs.New(errs.KindDataNotFound, "fetch_bars",
			"status %d fetching %s: %s", resp.StatusCode, req.Instrument.Symbol(), string(body))
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.PriceSeries{}, errs.Wrap(errs.KindConnection, "fetch_bars", err, "parsing chart response")
	}
	if parsed.Chart.Error != nil {
		return domain.PriceSeries{}, errs.New(errs.KindDataNotFound, "fetch_bars",
			"upstream reported error for %s: %v", req.Instrument.Symbol(), parsed.Chart.Error)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		p.log.WithField("symbol", req.Instrument.Symbol()).Debug("no chart data returned")
		return domain.NewPriceSeries(req.Instrument.Symbol(), req.Period, providerName, req.Start, req.End, nil), nil
	}

	result := parsed.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		if quote.Open[i] == 0 && quote.High[i] == 0 && quote.Low[i] == 0 && quote.Close[i] == 0 {
			continue
		}
		var volume float64
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}
		bars = append(bars, domain.Bar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      quote.Open[i],
			High:      quote.High[i],
			Low:       quote.Low[i],
			Close:     quote.Close[i],
			Volume:    volume,
		})
	}

	return domain.NewPriceSeries(req.Instrument.Symbol(), req.Period, providerName, req.Start, req.End, bars), nil
}

var _ provider.DataProvider = (*Provider)(nil)
