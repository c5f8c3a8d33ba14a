package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{"same day", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC), 0},
		{"crosses midnight", time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC), time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC), 1},
		{"95 days", time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC), 95},
		{"leap february", time.Date(2028, 2, 28, 0, 0, 0, 0, time.UTC), time.Date(2028, 3, 1, 0, 0, 0, 0, time.UTC), 2},
		{"future is negative", time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), -4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.from, tt.to))
		})
	}
}

func TestFixed_Advance(t *testing.T) {
	c := NewFixed(time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC))
	c.Advance(48 * time.Hour)
	assert.Equal(t, time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC), c.Now())

	c.Set(time.Date(2027, 1, 1, 0, 0, 0, 0, time.FixedZone("ART", -3*3600)))
	assert.Equal(t, time.UTC, c.Now().Location())
}
