package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_TracksHostClock(t *testing.T) {
	before := time.Now().UnixMilli()
	got := System{}.NowMillis()
	after := time.Now().UnixMilli()

	assert.GreaterOrEqual(t, got, before)
	assert.LessOrEqual(t, got, after)
}

func TestFunc(t *testing.T) {
	c := Func(func() int64 { return 42 })
	assert.Equal(t, int64(42), c.NowMillis())
}

func TestTime(t *testing.T) {
	assert.True(t, Time(0).IsZero())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Time(1704067200000))
}
