package barchart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
	"github.com/makutaku/vortex-go/internal/provider"
)

func TestParseCSVBars(t *testing.T) {
	body := "date,open,high,low,close,volume\n" +
		"01/02/2024,100,101,99,100.5,1000\n" +
		"01/03/2024,100.5,102,100,101.5,1100\n"

	bars, err := parseCSVBars(body)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 100.0, bars[0].Open)
	assert.Equal(t, 101.5, bars[1].Close)
}

func TestParseCSVBars_EmptyBody(t *testing.T) {
	bars, err := parseCSVBars("date,open,high,low,close,volume\n")
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestParseAllowance(t *testing.T) {
	remaining, err := parseAllowance(`{"success":true,"remaining": 42}`)
	require.NoError(t, err)
	assert.Equal(t, 42, remaining)
}

func TestProvider_Login_HarvestsCSRFAndAuthenticates(t *testing.T) {
	var sawCSRFHeader string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><meta name="csrf-token" content="tok123"></head></html>`))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		sawCSRFHeader = r.Header.Get("X-CSRF-TOKEN")
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := New(Credentials{Username: "u", Password: "p"}, nil)
	require.NoError(t, err)
	p.client = srv.Client()

	origHome, origLogin := homeURLVar, loginURLVar
	homeURLVar, loginURLVar = srv.URL+"/", srv.URL+"/login"
	defer func() { homeURLVar, loginURLVar = origHome, origLogin }()

	require.NoError(t, p.Login(context.Background()))
	assert.Equal(t, "tok123", sawCSRFHeader)
	assert.Equal(t, "tok123", p.csrfToken)
}

func TestProvider_Login_RejectsBadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<meta name="csrf-token" content="tok123">`))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := New(Credentials{Username: "u", Password: "wrong"}, nil)
	require.NoError(t, err)
	p.client = srv.Client()

	origHome, origLogin := homeURLVar, loginURLVar
	homeURLVar, loginURLVar = srv.URL+"/", srv.URL+"/login"
	defer func() { homeURLVar, loginURLVar = origHome, origLogin }()

	err = p.Login(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthentication, errs.KindOf(err))
}

func TestProvider_FetchBars_RequiresLogin(t *testing.T) {
	p, err := New(Credentials{Username: "u", Password: "p"}, nil)
	require.NoError(t, err)

	_, err = p.FetchBars(context.Background(), provider.FetchRequest{
		Instrument: domain.Stock{InstID: "AAPL", Ticker: "AAPL"},
		Period:     domain.Period1Day,
		Start:      time.Now().AddDate(0, -1, 0),
		End:        time.Now(),
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthentication, errs.KindOf(err))
}

func TestProvider_MinStart_BoundsFutureToContractWindow(t *testing.T) {
	p, err := New(Credentials{}, nil)
	require.NoError(t, err)

	fut := domain.Future{InstID: "GCJ24", Root: "GC", Year: 2024, MonthCode: domain.MonthJ, DaysCount: 90}
	start := p.MinStart(fut, domain.Period1Day)
	assert.False(t, start.IsZero())
}
