package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/openml-pimp/internal/timeutil"
)

const (
	maxBusyAttempts    = 5
	initialBusyBackoff = 10 * time.Millisecond
)

// busyClock is swapped for a mock in tests.
var busyClock timeutil.Clock = timeutil.RealClock{}

// retryOnBusy runs fn until it stops failing with SQLITE_BUSY, doubling the
// wait between attempts. Other errors are returned unchanged.
func retryOnBusy(fn func() error) error {
	backoff := initialBusyBackoff
	var err error
	for attempt := 1; attempt <= maxBusyAttempts; attempt++ {
		err = fn()
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt < maxBusyAttempts {
			busyClock.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("database still busy after %d attempts: %w", maxBusyAttempts, err)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
