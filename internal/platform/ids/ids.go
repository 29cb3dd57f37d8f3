// Package ids issues the prefixed, time-based identifiers used across the
// EMR: REC1718000000000 for records, BN... for patients, DOC... for
// documents. Values are unix milliseconds, bumped when needed so that ids
// are strictly increasing within a process.
package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	PrefixRecord   = "REC"
	PrefixPatient  = "BN"
	PrefixDocument = "DOC"
	PrefixTransfer = "TR"
)

type Sequence struct {
	mu   sync.Mutex
	last int64
}

// Next returns prefix followed by max(now in ms, previous+1).
func (s *Sequence) Next(prefix string, now time.Time) string {
	s.mu.Lock()
	n := now.UnixMilli()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	s.mu.Unlock()
	return prefix + strconv.FormatInt(n, 10)
}

var defaultSeq Sequence

// Next draws from the process-wide sequence.
func Next(prefix string, now time.Time) string {
	return defaultSeq.Next(prefix, now)
}
