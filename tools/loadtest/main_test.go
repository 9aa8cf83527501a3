package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentiles(t *testing.T) {
	var latencies []time.Duration
	for i := 1; i <= 100; i++ {
		latencies = append(latencies, time.Duration(i)*time.Millisecond)
	}

	p50, p95, p99 := percentiles(latencies)
	assert.Equal(t, 50*time.Millisecond, p50)
	assert.Equal(t, 95*time.Millisecond, p95)
	assert.Equal(t, 99*time.Millisecond, p99)
}

func TestPercentilesEmptyAndSingle(t *testing.T) {
	p50, p95, p99 := percentiles(nil)
	assert.Zero(t, p50)
	assert.Zero(t, p95)
	assert.Zero(t, p99)

	p50, p95, p99 = percentiles([]time.Duration{time.Second})
	assert.Equal(t, time.Second, p50)
	assert.Equal(t, time.Second, p95)
	assert.Equal(t, time.Second, p99)
}

func TestRunStatsRecord(t *testing.T) {
	stats := newRunStats(3)
	stats.record("space_can_enter", 5*time.Millisecond, true)
	stats.record("space_can_enter", 7*time.Millisecond, false)
	stats.record("space_list", time.Millisecond, true)

	assert.Equal(t, 2, stats.ByType["space_can_enter"].Sent)
	assert.Equal(t, 1, stats.ByType["space_can_enter"].Failed)
	assert.Equal(t, 1, stats.ByType["space_list"].Succeeded)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "50.00%", percentageString(1, 2))
	assert.Equal(t, "0.00%", percentageString(0, 0))
	assert.Equal(t, "N/A", formatRate(10, 0))
	assert.Equal(t, "2.00/s", formatRate(20, 10*time.Second))
	assert.Equal(t, "-", formatDuration(0))
	assert.Equal(t, "1.5ms", formatDuration(1500*time.Microsecond))
}
