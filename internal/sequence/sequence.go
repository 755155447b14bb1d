// Package sequence allocates human-readable transaction numbers of the form
// TXN<YYYYMMDD><NNNN> from an atomic per-day counter.
package sequence

import (
	"context"
	"fmt"
	"time"

	"sarisari/backend/internal/store"
)

const (
	Prefix    = "TXN"
	dayLayout = "20060102"
)

type Number struct {
	Value string
	Day   string
	Seq   int64
	At    time.Time
}

type Generator struct {
	counter store.Sequencer
	loc     *time.Location
	now     func() time.Time
}

// NewGenerator returns a generator that cuts days in loc. A nil counter means
// callers supply one on every Next call, usually the repository bound to the
// current transaction.
func NewGenerator(loc *time.Location, counter store.Sequencer) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{counter: counter, loc: loc, now: time.Now}
}

// WithClock replaces the time source. Used by tests that pin the day.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	dup := *g
	dup.now = now
	return &dup
}

func (g *Generator) Location() *time.Location {
	return g.loc
}

// Next allocates the next number for the current day. The generator's own
// counter wins over fallback when both are set.
func (g *Generator) Next(ctx context.Context, fallback store.Sequencer) (Number, error) {
	counter := g.counter
	if counter == nil {
		counter = fallback
	}
	if counter == nil {
		return Number{}, fmt.Errorf("%w: no sequence counter configured", store.ErrUnavailable)
	}

	at := g.now().In(g.loc)
	day := DayKey(at)
	seq, err := counter.Next(ctx, day)
	if err != nil {
		return Number{}, err
	}
	if seq < 1 {
		return Number{}, fmt.Errorf("%w: counter for %s returned %d", store.ErrUnavailable, day, seq)
	}
	return Number{Value: Format(day, seq), Day: day, Seq: seq, At: at}, nil
}

func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// Format renders a number; the counter is padded to four digits and widens
// past 9999 rather than wrapping.
func Format(day string, seq int64) string {
	return fmt.Sprintf("%s%s%04d", Prefix, day, seq)
}
