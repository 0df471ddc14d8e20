package clock

import (
	"time"

	"github.com/smallbiznis/millroll/internal/config"
	"go.uber.org/fx"
)

// Clock reports wall-clock time in the plant's timezone.
type Clock interface {
	Now() time.Time
}

type plantClock struct {
	plant *config.PlantConfigHolder
}

// New returns a Clock that follows the (reloadable) plant timezone.
func New(plant *config.PlantConfigHolder) Clock {
	return &plantClock{plant: plant}
}

func (c *plantClock) Now() time.Time {
	return time.Now().In(c.plant.Get().Location())
}

// Day formats t as the production calendar day.
func Day(t time.Time) string {
	return t.Format("2006-01-02")
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
