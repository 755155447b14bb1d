package sequence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarisari/backend/internal/store"
)

type dayCounter map[string]int64

func (c dayCounter) Next(_ context.Context, day string) (int64, error) {
	c[day]++
	return c[day], nil
}

type brokenCounter struct{}

func (brokenCounter) Next(context.Context, string) (int64, error) {
	return 0, store.Unavailable(errors.New("counter offline"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "TXN202610170001", Format("20261017", 1))
	assert.Equal(t, "TXN202610170042", Format("20261017", 42))
	assert.Equal(t, "TXN2026101712345", Format("20261017", 12345))
}

func TestGeneratorCutsDaysInLocation(t *testing.T) {
	manila := time.FixedZone("PHT", 8*60*60)
	counter := dayCounter{}
	clock := time.Date(2026, time.October, 17, 17, 30, 0, 0, time.UTC)
	gen := NewGenerator(manila, nil).WithClock(func() time.Time { return clock })

	n, err := gen.Next(context.Background(), counter)
	require.NoError(t, err)
	assert.Equal(t, "TXN202610180001", n.Value, "17:30 UTC is already the 18th in Manila")
	assert.Equal(t, "20261018", n.Day)

	n, err = NewGenerator(nil, counter).WithClock(func() time.Time { return clock }).Next(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "TXN202610170001", n.Value)
}

func TestGeneratorPrefersOwnCounter(t *testing.T) {
	own := dayCounter{"20261017": 9}
	fallback := dayCounter{}
	gen := NewGenerator(time.UTC, own).WithClock(func() time.Time {
		return time.Date(2026, time.October, 17, 8, 0, 0, 0, time.UTC)
	})

	n, err := gen.Next(context.Background(), fallback)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n.Seq)
	assert.Empty(t, fallback)
}

func TestGeneratorSurfacesCounterFailure(t *testing.T) {
	_, err := NewGenerator(time.UTC, brokenCounter{}).Next(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, store.IsRetryable(err))

	_, err = NewGenerator(time.UTC, nil).Next(context.Background(), nil)
	assert.True(t, store.IsRetryable(err))
}
