package clock

import (
	"testing"
	"time"

	"github.com/smallbiznis/millroll/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestPlantClockUsesPlantLocation(t *testing.T) {
	cfg := config.DefaultPlantConfig()
	cfg.Timezone = "Asia/Jakarta"
	c := New(config.NewStaticPlantConfigHolder(cfg))

	assert.Equal(t, "Asia/Jakarta", c.Now().Location().String())
}

func TestStartOfDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	ts := time.Date(2025, 4, 10, 23, 45, 12, 0, loc)

	start := StartOfDay(ts)
	assert.Equal(t, time.Date(2025, 4, 10, 0, 0, 0, 0, loc), start)
	assert.Equal(t, "2025-04-10", Day(ts))
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())
}
