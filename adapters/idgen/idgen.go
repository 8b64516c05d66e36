// Package idgen generates mirror run identifiers.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/kintone/ports"
	"github.com/google/uuid"
)

// UUID generates time-ordered UUIDs (version 7), so run ids sort by start
// time.
type UUID struct{}

// New returns a new UUIDv7, falling back to a random UUID if the clock
// source fails.
func (UUID) New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

var _ ports.IDGenerator = UUID{}

// Sequential returns prefix1, prefix2, ... Safe for concurrent use.
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns the next id.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

var _ ports.IDGenerator = (*Sequential)(nil)
