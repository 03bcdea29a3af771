package storage

import (
	"encoding/binary"
	"math"
	"time"
)

func putFloat(dst []byte, v float64) {
	binary.BigEndian.PutUint64(dst, math.Float64bits(v))
}

func getFloat(src []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(src))
}

func unixNanoUTC(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
