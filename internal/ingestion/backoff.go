// Package ingestion polls external sources into the stored signal pool.
//
// Every ingestion query carries its own backoff state. A success schedules
// the next poll one interval out and clears the error count; a failure
// pushes the next poll out by errorCount² units, capped. One slow or broken
// feed never delays another.
package ingestion

import (
	"time"

	"github.com/scrypster/briefing/pkg/types"
)

// Backoff computes next poll times.
type Backoff struct {
	Interval time.Duration // after a success
	Unit     time.Duration // multiplied by errorCount²
	Cap      time.Duration // maximum failure delay
}

// DefaultBackoff returns the standard schedule: 30m after success, 1m×n²
// after the nth consecutive failure, at most 2h.
func DefaultBackoff() Backoff {
	return Backoff{Interval: 30 * time.Minute, Unit: time.Minute, Cap: 2 * time.Hour}
}

// Delay returns min(errorCount² × Unit, Cap).
func (b Backoff) Delay(errorCount int) time.Duration {
	if errorCount < 1 {
		return 0
	}
	if b.Unit <= 0 {
		return b.Cap
	}
	n := int64(errorCount)
	if n > int64(b.Cap/b.Unit) || n*n > int64(b.Cap/b.Unit) {
		return b.Cap
	}
	return time.Duration(n*n) * b.Unit
}

// Success records a successful poll at now.
func (b Backoff) Success(q *types.IngestionQuery, now time.Time) {
	at := now
	q.ErrorCount = 0
	q.LastError = ""
	q.LastSuccessAt = &at
	q.NextPollAt = now.Add(b.Interval)
}

// Failure records a failed poll at now.
func (b Backoff) Failure(q *types.IngestionQuery, now time.Time, err error) {
	q.ErrorCount++
	if err != nil {
		q.LastError = err.Error()
	}
	q.NextPollAt = now.Add(b.Delay(q.ErrorCount))
}
