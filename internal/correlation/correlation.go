// Package correlation generates per-run correlation identifiers, the same
// random-with-fallback approach the teacher's cmd/bot/main.go uses to tag a
// run's log lines.
package correlation

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New generates a short hex correlation ID. If crypto/rand fails (which in
// practice never happens on a healthy OS), it falls back to a timestamp
// plus PID so a run still gets a usable, if less unique, identifier rather
// than failing startup entirely.
func New(logger *logrus.Entry) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		if logger != nil {
			logger.WithError(err).Warn("failed to generate random correlation id, falling back to timestamp+pid")
		}
		return fmt.Sprintf("%x", time.Now().UnixNano()^int64(os.Getpid()))
	}
	return hex.EncodeToString(buf)
}
