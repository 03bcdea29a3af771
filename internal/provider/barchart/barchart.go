// Package barchart implements a DataProvider against a cookie- and
// CSRF-authenticated paid historical download endpoint. Login harvests a
// CSRF token from a meta tag on the site's home page, CheckAllowance
// probes remaining daily downloads without consuming one, and FetchBars
// form-POSTs to the download endpoint using the same session.
package barchart

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
	"github.com/makutaku/vortex-go/internal/provider"
)

const providerName = "barchart"

var (
	homeURLVar  = "https://www.barchart.com/"
	loginURLVar = "https://www.barchart.com/login"
)

const (
	downloadURL = "https://www.barchart.com/my/download"
	dateLayout  = "01/02/2006"
)

var csrfMetaTag = regexp.MustCompile(`<meta name="csrf-token" content="([^"]+)"`)

// Credentials are the username/password pair used to authenticate.
type Credentials struct {
	Username string
	Password string
}

// Provider is a session-based, quota-limited OHLCV source. A single
// Provider instance is stateful across calls: it keeps its CSRF token and
// session cookies until Logout is called.
type Provider struct {
	creds  Credentials
	client *http.Client
	log    *logrus.Entry

	csrfToken string
}

// New builds a barchart Provider with its own cookie jar. log may be nil.
func New(creds Credentials, log *logrus.Entry) (*Provider, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "new_provider", err, "building cookie jar")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Provider{
		creds:  creds,
		client: &http.Client{Timeout: 30 * time.Second, Jar: jar},
		log:    log.WithField("provider", providerName),
	}, nil
}

// Name implements provider.DataProvider.
func (p *Provider) Name() string { return providerName }

// Login implements provider.DataProvider. It fetches the home page to
// harvest a CSRF token, then POSTs credentials to establish a session.
func (p *Provider) Login(ctx context.Context) error {
	token, err := p.fetchCSRFToken(ctx, homeURLVar)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("email", p.creds.Username)
	form.Set("password", p.creds.Password)
	form.Set("_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURLVar, strings.NewReader(form.Encode()))
	if err != nil {
		return errs.Wrap(errs.KindConnection, "login", err, "building login request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-TOKEN", token)

	resp, err := p.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindConnection, "login", err, "posting login form")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errs.New(errs.KindAuthentication, "login", "credentials rejected, status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return errs.New(errs.KindConnection, "login", "login endpoint returned %d", resp.StatusCode)
	}

	p.csrfToken = token
	return nil
}

// Logout implements provider.DataProvider. It drops the in-memory CSRF
// token and cookie jar contents; a fresh Login is required afterward.
func (p *Provider) Logout(ctx context.Context) error {
	p.csrfToken = ""
	jar, err := cookiejar.New(nil)
	if err != nil {
		return errs.Wrap(errs.KindConfig, "logout", err, "resetting cookie jar")
	}
	p.client.Jar = jar
	return nil
}

func (p *Provider) fetchCSRFToken(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", errs.Wrap(errs.KindConnection, "fetch_csrf_token", err, "building request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.KindConnection, "fetch_csrf_token", err, "fetching %s", pageURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.Wrap(errs.KindConnection, "fetch_csrf_token", err, "reading body")
	}

	match := csrfMetaTag.FindSubmatch(body)
	if match == nil {
		return "", errs.New(errs.KindAuthentication, "fetch_csrf_token", "no csrf-token meta tag found at %s", pageURL)
	}
	return string(match[1]), nil
}

// SupportedPeriods implements provider.DataProvider.
func (p *Provider) SupportedPeriods() []domain.Period {
	return []domain.Period{domain.Period1Day, domain.Period1Week, domain.Period1Month}
}

// MaxWindow implements provider.DataProvider. The download endpoint serves
// up to three years of daily bars per request.
func (p *Provider) MaxWindow(domain.Period) time.Duration {
	return 3 * 365 * 24 * time.Hour
}

// MinStart implements provider.DataProvider. Futures contracts are bounded
// to their own trading window; undated instruments have no lower bound.
func (p *Provider) MinStart(instrument domain.Instrument, _ domain.Period) time.Time {
	if fut, ok := instrument.(domain.Future); ok {
		start, _ := fut.ContractWindow(time.UTC)
		return start
	}
	return time.Time{}
}

// CheckAllowance probes the provider's daily download quota without
// consuming a download, per spec.md §9's allowance pre-flight decision: it
// POSTs the same download form with onlyCheckPermissions=true.
func (p *Provider) CheckAllowance(ctx context.Context) (remaining int, err error) {
	if p.csrfToken == "" {
		return 0, errs.New(errs.KindAuthentication, "check_allowance", "not logged in")
	}

	form := url.Values{}
	form.Set("_token", p.csrfToken)
	form.Set("onlyCheckPermissions", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, downloadURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, errs.Wrap(errs.KindConnection, "check_allowance", err, "building request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-TOKEN", p.csrfToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, errs.Wrap(errs.KindConnection, "check_allowance", err, "posting allowance check")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errs.Wrap(errs.KindConnection, "check_allowance", err, "reading body")
	}

	if resp.StatusCode != http.StatusOK {
		return 0, errs.New(errs.KindConnection, "check_allowance", "status %d checking allowance", resp.StatusCode)
	}

	remaining, parseErr := parseAllowance(string(body))
	if parseErr != nil {
		return 0, errs.Wrap(errs.KindConnection, "check_allowance", parseErr, "parsing allowance response")
	}
	return remaining, nil
}

var allowanceRegex = regexp.MustCompile(`"remaining":\s*(-?\d+)`)

func parseAllowance(body string) (int, error) {
	match := allowanceRegex.FindStringSubmatch(body)
	if match == nil {
		return 0, fmt.Errorf("no remaining-allowance field in response")
	}
	return strconv.Atoi(match[1])
}

// FetchBars implements provider.DataProvider.
func (p *Provider) FetchBars(ctx context.Context, req provider.FetchRequest) (domain.PriceSeries, error) {
	if p.csrfToken == "" {
		return domain.PriceSeries{}, errs.New(errs.KindAuthentication, "fetch_bars", "not logged in")
	}

	form := url.Values{}
	form.Set("_token", p.csrfToken)
	form.Set("symbol", req.Instrument.Symbol())
	form.Set("startDate", req.Start.Format(dateLayout))
	form.Set("endDate", req.End.Format(dateLayout))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, downloadURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.PriceSeries{}, errs.Wrap(errs.KindConnection, "fetch_bars", err, "building request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("X-CSRF-TOKEN", p.csrfToken)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.PriceSeries{}, errs.Wrap(errs.KindConnection, "fetch_bars", err,
			"fetching %s", req.Instrument.Symbol())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PriceSeries{}, errs.Wrap(errs.KindConnection, "fetch_bars", err, "reading body")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.PriceSeries{}, errs.New(errs.KindAuthentication, "fetch_bars", "session expired")
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests:
		return domain.PriceSeries{}, errs.New(errs.KindAllowanceExceeded, "fetch_bars",
			"download allowance exceeded for %s", req.Instrument.Symbol())
	case resp.StatusCode >= 500:
		return domain.PriceSeries{}, errs.New(errs.KindConnection, "fetch_bars", "upstream error %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.PriceSeries{}, errs.New(errs.KindDataNotFound, "fetch_bars",
			"status %d fetching %s", resp.StatusCode, req.Instrument.Symbol())
	}

	bars, err := parseCSVBars(string(body))
	if err != nil {
		return domain.PriceSeries{}, errs.Wrap(errs.KindConnection, "fetch_bars", err, "parsing download body")
	}

	return domain.NewPriceSeries(req.Instrument.Symbol(), req.Period, providerName, req.Start, req.End, bars), nil
}

// parseCSVBars parses the download endpoint's CSV body:
// "date,open,high,low,close,volume" header followed by one row per bar.
func parseCSVBars(body string) ([]domain.Bar, error) {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) <= 1 {
		return nil, nil
	}

	bars := make([]domain.Bar, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := strings.Split(strings.TrimSpace(line), ",")
		if len(fields) < 6 {
			continue
		}
		ts, err := time.Parse("01/02/2006", fields[0])
		if err != nil {
			return nil, fmt.Errorf("parsing date %q: %w", fields[0], err)
		}
		open, _ := strconv.ParseFloat(fields[1], 64)
		high, _ := strconv.ParseFloat(fields[2], 64)
		low, _ := strconv.ParseFloat(fields[3], 64)
		closeP, _ := strconv.ParseFloat(fields[4], 64)
		volume, _ := strconv.ParseFloat(fields[5], 64)
		bars = append(bars, domain.Bar{
			Timestamp: ts.UTC(), Open: open, High: high, Low: low, Close: closeP, Volume: volume,
		})
	}
	return bars, nil
}

var _ provider.DataProvider = (*Provider)(nil)
