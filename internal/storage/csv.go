package storage

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/makutaku/vortex-go/internal/domain"
)

// csvCodec is the row-oriented backend: one CSV row per bar, header first,
// timestamps in RFC3339. It favors easy inspection over compactness.
type csvCodec struct{}

func (csvCodec) extension() string { return "csv" }

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

func (csvCodec) encode(w *os.File, bars []domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	row := make([]string, len(csvHeader))
	for _, b := range bars {
		row[0] = b.Timestamp.UTC().Format(time.RFC3339)
		row[1] = strconv.FormatFloat(b.Open, 'f', -1, 64)
		row[2] = strconv.FormatFloat(b.High, 'f', -1, 64)
		row[3] = strconv.FormatFloat(b.Low, 'f', -1, 64)
		row[4] = strconv.FormatFloat(b.Close, 'f', -1, 64)
		row[5] = strconv.FormatFloat(b.Volume, 'f', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (csvCodec) decode(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	bars := make([]domain.Bar, 0, len(records)-1)
	for _, rec := range records[1:] {
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, err
		}
		open, _ := strconv.ParseFloat(rec[1], 64)
		high, _ := strconv.ParseFloat(rec[2], 64)
		low, _ := strconv.ParseFloat(rec[3], 64)
		closeP, _ := strconv.ParseFloat(rec[4], 64)
		vol, _ := strconv.ParseFloat(rec[5], 64)
		bars = append(bars, domain.Bar{
			Timestamp: ts.UTC(), Open: open, High: high, Low: low, Close: closeP, Volume: vol,
		})
	}
	return bars, nil
}

// NewCSVStorage builds the row-oriented CSV-backed Storage, per spec.md
// §4.2's first storage backend.
func NewCSVStorage(baseDir string, dryRun bool) *FileStorage {
	return newFileStorage(baseDir, csvCodec{}, dryRun)
}
