// Package storage persists PriceSeries to a file tree plus a JSON sidecar
// of Metadata, the way the teacher's JSONStorage persisted position data:
// write to a temp file in the target directory, then atomically rename, so
// a reader never observes a half-written file.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/makutaku/vortex-go/internal/domain"
	"github.com/makutaku/vortex-go/internal/errs"
)

// Storage is the contract every backend implements (spec.md §4.2).
type Storage interface {
	// Persist writes series under the path convention for instrument/period,
	// plus a JSON metadata sidecar, atomically from a consumer's viewpoint.
	Persist(series domain.PriceSeries, instrument domain.Instrument, period domain.Period) error
	// Load reads a previously persisted series. It fails with ErrNotFound if
	// either the bar file or the sidecar metadata is absent.
	Load(instrument domain.Instrument, period domain.Period) (domain.PriceSeries, error)
	// Path returns the bar-file path that would be used for instrument and
	// period, without touching the filesystem. Used by dry-run mode.
	Path(instrument domain.Instrument, period domain.Period) string
}

// ErrNotFound is returned by Load when no persisted series exists yet.
var ErrNotFound = errs.New(errs.KindStorage, "load", "no persisted series")

// codec performs the format-specific (de)serialization a backend needs;
// everything else (path construction, directory creation, sidecar
// handling, atomic rename) is shared in FileStorage.
type codec interface {
	extension() string
	encode(w *os.File, bars []domain.Bar) error
	decode(path string) ([]domain.Bar, error)
}

// FileStorage is the shared skeleton both backends embed. It centralizes
// path construction, directory creation, metadata sidecar handling, and
// error wrapping, leaving only bar (de)serialization to the codec.
type FileStorage struct {
	baseDir string
	codec   codec
	dryRun  bool
	mu      sync.Mutex
}

func newFileStorage(baseDir string, c codec, dryRun bool) *FileStorage {
	return &FileStorage{baseDir: baseDir, codec: c, dryRun: dryRun}
}

// Path implements Storage.
func (fs *FileStorage) Path(instrument domain.Instrument, period domain.Period) string {
	return barPath(fs.baseDir, instrument, period, fs.codec.extension())
}

func sidecarPath(barPath string) string {
	return barPath + ".json"
}

// barPath is a pure function of (instrument, period) so two runs reach the
// same file, per spec.md §4.2.
func barPath(baseDir string, instrument domain.Instrument, period domain.Period, ext string) string {
	switch inst := instrument.(type) {
	case domain.Future:
		month, _ := inst.MonthCode.Month()
		yyyymm := fmt.Sprintf("%04d%02d", inst.Year, int(month))
		name := fmt.Sprintf("%s_%s00.%s", inst.InstID, yyyymm, ext)
		return filepath.Join(baseDir, "futures", string(period), inst.InstID, name)
	case domain.Forex:
		return filepath.Join(baseDir, "forex", string(period), inst.InstID+"."+ext)
	case domain.Stock:
		return filepath.Join(baseDir, "stocks", string(period), inst.InstID+"."+ext)
	default:
		return filepath.Join(baseDir, "unknown", string(period), instrument.ID()+"."+ext)
	}
}

// Persist implements Storage.
func (fs *FileStorage) Persist(series domain.PriceSeries, instrument domain.Instrument, period domain.Period) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.Path(instrument, period)
	if fs.dryRun {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.KindStorage, "persist", err, "creating directory %s", dir)
	}

	if err := fs.writeAtomic(path, series.Bars); err != nil {
		return errs.Wrap(errs.KindStorage, "persist", err, "writing bars to %s", path)
	}

	if series.Metadata.CreatedTs.IsZero() {
		series.Metadata.CreatedTs = time.Now().UTC()
	}
	if err := writeMetadata(sidecarPath(path), series.Metadata); err != nil {
		return errs.Wrap(errs.KindStorage, "persist", err, "writing metadata sidecar for %s", path)
	}
	return nil
}

// writeAtomic writes bars to a temp file in the target directory and
// renames it into place, the same EXDEV-safe approach the teacher's
// JSONStorage.saveUnsafe uses for its single JSON blob, generalized to any
// codec and to per-(instrument,period) bar files.
func (fs *FileStorage) writeAtomic(path string, bars []domain.Bar) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".vortex-*")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmpName)
	}()

	if err := f.Chmod(0o644); err != nil {
		return fmt.Errorf("set temp file permissions: %w", err)
	}
	if err := fs.codec.encode(f, bars); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Load implements Storage.
func (fs *FileStorage) Load(instrument domain.Instrument, period domain.Period) (domain.PriceSeries, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.Path(instrument, period)
	meta, err := readMetadata(sidecarPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.PriceSeries{}, ErrNotFound
		}
		return domain.PriceSeries{}, errs.Wrap(errs.KindStorage, "load", err, "reading metadata sidecar for %s", path)
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return domain.PriceSeries{}, ErrNotFound
		}
		return domain.PriceSeries{}, errs.Wrap(errs.KindStorage, "load", err, "stat %s", path)
	}

	bars, err := fs.codec.decode(path)
	if err != nil {
		return domain.PriceSeries{}, errs.Wrap(errs.KindStorage, "load", err, "decoding bars from %s", path)
	}

	return domain.PriceSeries{Bars: bars, Metadata: meta}, nil
}

// sidecarDoc is the JSON shape of a Metadata sidecar. Datetimes use
// time.RFC3339, an ISO-8601 profile with explicit zone, per spec.md §4.2.
type sidecarDoc struct {
	Symbol         string     `json:"symbol"`
	Period         string     `json:"period"`
	RequestedStart time.Time  `json:"requested_start"`
	RequestedEnd   time.Time  `json:"requested_end"`
	FirstRowTs     time.Time  `json:"first_row_ts"`
	LastRowTs      time.Time  `json:"last_row_ts"`
	Provider       string     `json:"provider"`
	ExpirationTs   *time.Time `json:"expiration_ts,omitempty"`
	CreatedTs      time.Time  `json:"created_ts"`
}

func writeMetadata(path string, md domain.Metadata) error {
	doc := sidecarDoc{
		Symbol:         md.Symbol,
		Period:         string(md.Period),
		RequestedStart: md.RequestedStart,
		RequestedEnd:   md.RequestedEnd,
		FirstRowTs:     md.FirstRowTs,
		LastRowTs:      md.LastRowTs,
		Provider:       md.Provider,
		ExpirationTs:   md.ExpirationTs,
		CreatedTs:      md.CreatedTs,
	}

	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".vortex-meta-*")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmpName)
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func readMetadata(path string) (domain.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Metadata{}, err
	}
	var doc sidecarDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Metadata{}, err
	}
	return domain.Metadata{
		Symbol:         doc.Symbol,
		Period:         domain.Period(doc.Period),
		RequestedStart: doc.RequestedStart,
		RequestedEnd:   doc.RequestedEnd,
		FirstRowTs:     doc.FirstRowTs,
		LastRowTs:      doc.LastRowTs,
		Provider:       doc.Provider,
		ExpirationTs:   doc.ExpirationTs,
		CreatedTs:      doc.CreatedTs,
	}, nil
}
