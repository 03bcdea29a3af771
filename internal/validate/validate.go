// Package validate checks a freshly fetched price series before it is
// folded into metadata and persisted, per spec.md §4.11. Column presence is
// enforced structurally by domain.Bar; what remains to check here is value
// sanity, row coherence, and non-emptiness.
package validate

import (
	"github.com/sirupsen/logrus"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
)

// Series inspects series for value sanity: negative prices or volume are
// logged as warnings (not fatal), OHLC incoherence is logged and the row
// kept, and an empty series after these checks surfaces as DataNotFound.
func Series(log *logrus.Entry, symbol string, series domain.PriceSeries) (domain.PriceSeries, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}

	for _, b := range series.Bars {
		if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 {
			log.WithFields(logrus.Fields{"symbol": symbol, "ts": b.Timestamp}).
				Warn("negative price in fetched bar")
		}
		if b.Volume < 0 {
			log.WithFields(logrus.Fields{"symbol": symbol, "ts": b.Timestamp}).
				Warn("negative volume in fetched bar")
		}
		if !b.Coherent() {
			log.WithFields(logrus.Fields{"symbol": symbol, "ts": b.Timestamp}).
				Warn("OHLC coherence violation, row kept")
		}
	}

	if series.IsEmpty() {
		return series, errs.New(errs.KindDataNotFound, "validate_series", "no bars for %s after validation", symbol)
	}
	return series, nil
}
