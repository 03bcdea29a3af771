package storage

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/makutaku/vortex-go/internal/domain"
)

// columnarCodec is the "columnar" storage backend named in spec.md §4.2:
// despite the name it lays bars out row-major as fixed-width binary records
// (int64 unix-nanos + 5 float64 fields), not grouped by column. No
// third-party columnar/Parquet library is vendored anywhere in the corpus
// this was grounded on, so this stays a direct encoding/binary layout (see
// DESIGN.md).
type columnarCodec struct{}

func (columnarCodec) extension() string { return "vtx" }

const columnarRecordSize = 8 + 8*5 // int64 + 5 float64

func (columnarCodec) encode(w *os.File, bars []domain.Bar) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, columnarRecordSize)
	for _, b := range bars {
		binary.BigEndian.PutUint64(buf[0:8], uint64(b.Timestamp.UTC().UnixNano()))
		putFloat(buf[8:16], b.Open)
		putFloat(buf[16:24], b.High)
		putFloat(buf[24:32], b.Low)
		putFloat(buf[32:40], b.Close)
		putFloat(buf[40:48], b.Volume)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (columnarCodec) decode(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	buf := make([]byte, columnarRecordSize)
	var bars []domain.Bar
	for {
		_, err := io.ReadFull(br, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ns := int64(binary.BigEndian.Uint64(buf[0:8]))
		bars = append(bars, domain.Bar{
			Timestamp: unixNanoUTC(ns),
			Open:      getFloat(buf[8:16]),
			High:      getFloat(buf[16:24]),
			Low:       getFloat(buf[24:32]),
			Close:     getFloat(buf[32:40]),
			Volume:    getFloat(buf[40:48]),
		})
	}
	return bars, nil
}

// NewColumnarStorage builds the compact binary-backed Storage, per
// spec.md §4.2's second storage backend.
func NewColumnarStorage(baseDir string, dryRun bool) *FileStorage {
	return newFileStorage(baseDir, columnarCodec{}, dryRun)
}
