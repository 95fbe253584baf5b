package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/t77yq/duewatch/internal/model"
)

var reference = time.Date(2025, time.March, 15, 14, 30, 0, 0, time.UTC)

func dueIn(days int) *model.Date {
	return model.DatePtr(model.NewDate(reference).AddDays(days))
}

func TestDaysUntil(t *testing.T) {
	tests := []struct {
		name   string
		target *model.Date
		want   int
		wantOK bool
	}{
		{name: "absent", target: nil, wantOK: false},
		{name: "zero date", target: &model.Date{}, wantOK: false},
		{name: "today", target: dueIn(0), want: 0, wantOK: true},
		{name: "tomorrow", target: dueIn(1), want: 1, wantOK: true},
		{name: "yesterday", target: dueIn(-1), want: -1, wantOK: true},
		{name: "ten days ago", target: dueIn(-10), want: -10, wantOK: true},
		{name: "next year", target: &model.Date{Year: 2026, Month: time.March, Day: 15}, want: 365, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DaysUntil(reference, tt.target)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDaysUntil_IgnoresTimeOfDay(t *testing.T) {
	target := &model.Date{Year: 2025, Month: time.March, Day: 16}

	early := time.Date(2025, time.March, 15, 0, 0, 1, 0, time.UTC)
	late := time.Date(2025, time.March, 15, 23, 59, 59, 0, time.UTC)

	d1, _ := DaysUntil(early, target)
	d2, _ := DaysUntil(late, target)
	assert.Equal(t, 1, d1)
	assert.Equal(t, 1, d2)
}

func TestDaysUntil_UsesUTCCalendarDate(t *testing.T) {
	// 23:30 in UTC-5 is already the 16th in UTC
	bogota := time.FixedZone("COT", -5*3600)
	ref := time.Date(2025, time.March, 15, 23, 30, 0, 0, bogota)

	days, ok := DaysUntil(ref, &model.Date{Year: 2025, Month: time.March, Day: 16})
	assert.True(t, ok)
	assert.Equal(t, 0, days)
}

func TestDaysUntil_AcrossDSTTransition(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	ref := time.Date(2025, time.March, 8, 12, 0, 0, 0, ny)

	days, ok := DaysUntil(ref, &model.Date{Year: 2025, Month: time.March, Day: 10})
	assert.True(t, ok)
	assert.Equal(t, 2, days)
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsExpired(-1, true))
	assert.False(t, IsExpired(0, true))
	assert.False(t, IsExpired(-5, false))

	assert.True(t, IsDueWithin(0, true, 30))
	assert.True(t, IsDueWithin(30, true, 30))
	assert.False(t, IsDueWithin(31, true, 30))
	assert.False(t, IsDueWithin(-1, true, 30))
	assert.False(t, IsDueWithin(10, false, 30))

	assert.True(t, EligibleForRenewal(180, true))
	assert.True(t, EligibleForRenewal(-3, true))
	assert.False(t, EligibleForRenewal(181, true))
	assert.False(t, EligibleForRenewal(0, false))
}
